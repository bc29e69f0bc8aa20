// Package batch schedules fetch sessions for many accounts, strictly
// one at a time. Each account gets its own state machine, timer and
// cancellation flag; a single periodic tick recomputes every task's
// elapsed/remaining so timers keep moving while a call is outstanding.
package batch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"xscraper/pkg/checkpoint"
	errs "xscraper/pkg/errors"
	"xscraper/pkg/fetcher"
	"xscraper/pkg/logger"
)

// TaskStatus is one account's position in the scheduler state machine:
// pending -> fetching -> completed | incomplete | failed, with an
// explicit retry re-entering fetching from a terminal state.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskFetching   TaskStatus = "fetching"
	TaskCompleted  TaskStatus = "completed"
	TaskIncomplete TaskStatus = "incomplete"
	TaskFailed     TaskStatus = "failed"
)

// Terminal reports whether the status allows a retry.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskIncomplete, TaskFailed:
		return true
	default:
		return false
	}
}

// AccountTask is a point-in-time view of one account's task, handed to
// the UI on every tick.
type AccountTask struct {
	AccountKey         string
	Status             TaskStatus
	MediaCount         int
	PreviousMediaCount int
	Batches            int
	Cursor             string
	Elapsed            time.Duration
	Remaining          time.Duration
	Err                string
	Salvaged           bool
}

// task is the scheduler-owned mutable state behind an AccountTask.
type task struct {
	key       string
	status    TaskStatus
	media     int
	prevMedia int
	batches   int
	cursor    string
	errMsg    string
	salvaged  bool
	startedAt time.Time
	elapsed   time.Duration
	remaining time.Duration
	cancel    *fetcher.CancelToken
}

// SessionRunner is the single-account session boundary.
type SessionRunner interface {
	Run(ctx context.Context, params fetcher.Params, onProgress fetcher.ProgressFunc, cancel *fetcher.CancelToken) (*fetcher.Result, error)
}

// Config holds scheduler settings. Defaults is the parameter template
// applied to every account; its AccountKey and resume fields are
// filled per task.
type Config struct {
	AccountTimeout time.Duration
	TickInterval   time.Duration
	Defaults       fetcher.Params
	// OnUpdate receives a snapshot of all tasks on every tick and
	// state change. Called from scheduler goroutines; must not block.
	OnUpdate func([]AccountTask)
}

// Scheduler runs the queue.
type Scheduler struct {
	runner  SessionRunner
	archive fetcher.Archiver
	openCp  fetcher.CheckpointOpener
	logger  logger.Logger
	cfg     Config

	mu    sync.Mutex
	tasks map[string]*task
	order []string

	// runMu serializes task execution: the run loop and any retries
	// take it per task, so only one session is ever in flight.
	runMu sync.Mutex

	stopAll atomic.Bool
}

// NewScheduler creates a scheduler. archive may be nil; it only backs
// the cursor-recovery step of retry. openCp may be nil to use on-disk
// checkpoints.
func NewScheduler(runner SessionRunner, archive fetcher.Archiver, openCp fetcher.CheckpointOpener, log logger.Logger, cfg Config) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if openCp == nil {
		openCp = func(accountKey string) (fetcher.Checkpoints, error) {
			return checkpoint.NewManager(accountKey)
		}
	}
	return &Scheduler{
		runner:  runner,
		archive: archive,
		openCp:  openCp,
		logger:  log,
		cfg:     cfg,
		tasks:   make(map[string]*task),
	}
}

// Add queues accounts. Duplicates are ignored.
func (s *Scheduler) Add(accountKeys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range accountKeys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, dup := s.tasks[key]; dup {
			continue
		}
		s.tasks[key] = &task{key: key, status: TaskPending}
		s.order = append(s.order, key)
	}
}

// Run processes the queue sequentially until every task reaches a
// terminal state or StopAll is requested. Accounts not yet started
// when the stop arrives remain pending.
func (s *Scheduler) Run(ctx context.Context) error {
	s.stopAll.Store(false)

	stopTick := s.startTicker()
	defer stopTick()

	for _, key := range s.queued() {
		if s.stopAll.Load() || ctx.Err() != nil {
			s.logger.Info("batch stop requested, leaving remaining accounts pending")
			break
		}
		s.runMu.Lock()
		s.runTask(ctx, key, s.cfg.Defaults)
		s.runMu.Unlock()
	}
	return ctx.Err()
}

// StopAll aborts the queue and cancels the in-flight task.
func (s *Scheduler) StopAll() {
	s.stopAll.Store(true)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.status == TaskFetching {
			t.cancel.Cancel()
		}
	}
}

// StopOne cancels a single fetching task. Other tasks, pending or
// fetching, are untouched.
func (s *Scheduler) StopOne(accountKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[accountKey]; ok && t.status == TaskFetching {
		t.cancel.Cancel()
	}
}

// ErrNotRetryable rejects retries of tasks that are not in a terminal
// state.
var ErrNotRetryable = errors.New("task is not in a terminal state")

// Retry re-runs one terminal task, resuming from the best surviving
// state: the full session checkpoint, then the lightweight cursor
// slot, then the archive's last saved cursor, then fresh. While the
// run loop is still working the queue, the retry waits its turn
// instead of starting a second concurrent session.
func (s *Scheduler) Retry(ctx context.Context, accountKey string) error {
	s.mu.Lock()
	t, ok := s.tasks[accountKey]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown account %q", accountKey)
	}
	if !t.status.Terminal() {
		s.mu.Unlock()
		return ErrNotRetryable
	}
	t.prevMedia = t.media
	t.status = TaskPending
	s.mu.Unlock()
	s.notify()

	stopTick := s.startTicker()
	defer stopTick()

	s.runMu.Lock()
	defer s.runMu.Unlock()

	params := s.cfg.Defaults
	params.ResumeCursor = s.recoverCursor(ctx, accountKey)
	s.runTask(ctx, accountKey, params)
	return nil
}

// Tasks returns a snapshot of every task in queue order.
func (s *Scheduler) Tasks() []AccountTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Scheduler) snapshotLocked() []AccountTask {
	out := make([]AccountTask, 0, len(s.order))
	for _, key := range s.order {
		t := s.tasks[key]
		out = append(out, AccountTask{
			AccountKey:         t.key,
			Status:             t.status,
			MediaCount:         t.media,
			PreviousMediaCount: t.prevMedia,
			Batches:            t.batches,
			Cursor:             t.cursor,
			Elapsed:            t.elapsed,
			Remaining:          t.remaining,
			Err:                t.errMsg,
			Salvaged:           t.salvaged,
		})
	}
	return out
}

func (s *Scheduler) queued() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// runTask drives one account through fetching into a terminal state.
func (s *Scheduler) runTask(ctx context.Context, key string, params fetcher.Params) {
	cancel := fetcher.NewCancelToken()

	s.mu.Lock()
	t := s.tasks[key]
	if t == nil || t.status == TaskFetching {
		s.mu.Unlock()
		return
	}
	t.status = TaskFetching
	t.cancel = cancel
	t.startedAt = time.Now()
	t.elapsed = 0
	t.remaining = s.cfg.AccountTimeout
	t.errMsg = ""
	s.mu.Unlock()
	s.notify()

	params.AccountKey = key
	params.Timeout = s.cfg.AccountTimeout

	res, err := s.runner.Run(ctx, params, func(p fetcher.Progress) {
		s.mu.Lock()
		t.media = p.TotalEntries
		t.batches = p.Batch
		t.cursor = p.Cursor
		s.mu.Unlock()
		s.notify()
	}, cancel)

	s.mu.Lock()
	status := classify(res, err)
	t.status = status
	if res != nil {
		t.media = len(res.Entries)
		t.batches = res.Batches
		t.cursor = res.Cursor
		t.salvaged = res.Salvaged
		t.elapsed = res.Elapsed
	}
	if err != nil {
		t.errMsg = err.Error()
	}
	t.remaining = 0
	s.mu.Unlock()
	s.notify()

	s.logger.InfoWithFields("account finished", map[string]interface{}{
		"account": key,
		"status":  string(status),
		"media":   t.media,
	})
}

// classify maps a session outcome onto a terminal task status. A stop
// with zero merged items is a failure, not a partial result; an
// auth-class error taints whatever was fetched under the bad token, so
// it is always a failure; anything else that stopped short of natural
// completion is incomplete and retryable.
func classify(res *fetcher.Result, err error) TaskStatus {
	if res == nil {
		return TaskFailed
	}
	if res.Status == fetcher.StatusCompleted {
		return TaskCompleted
	}

	var fetchErr *errs.Error
	if errors.As(err, &fetchErr) && errs.IsAuthClass(fetchErr.Type) {
		return TaskFailed
	}
	if len(res.Entries) == 0 {
		return TaskFailed
	}
	return TaskIncomplete
}

// recoverCursor walks the degraded resume chain for a retry. An empty
// return means fresh start; a surviving full checkpoint also returns
// empty because the session controller resumes from it on its own.
func (s *Scheduler) recoverCursor(ctx context.Context, accountKey string) string {
	if s.openCp != nil {
		cps, err := s.openCp(accountKey)
		if err == nil && cps != nil {
			if session, err := cps.Load(); err == nil && session.Resumable() {
				return ""
			}
			if cursor, err := cps.LoadCursor(); err == nil && cursor != "" {
				s.logger.WithField("account", accountKey).
					Info("resuming retry from lightweight cursor slot")
				return cursor
			}
		}
	}

	if s.archive != nil {
		if cursor, err := s.archive.LastCursor(ctx, accountKey); err == nil && cursor != "" {
			s.logger.WithField("account", accountKey).
				Info("resuming retry from archived cursor")
			return cursor
		}
	}

	return ""
}

// startTicker runs the timer tick for the duration of a Run or Retry,
// returning a stop function. One tick serves every task.
func (s *Scheduler) startTicker() func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(s.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// tick recomputes elapsed/remaining for every fetching task in one
// pass.
func (s *Scheduler) tick() {
	s.mu.Lock()
	for _, t := range s.tasks {
		if t.status != TaskFetching {
			continue
		}
		t.elapsed = time.Since(t.startedAt)
		if s.cfg.AccountTimeout > 0 {
			t.remaining = s.cfg.AccountTimeout - t.elapsed
			if t.remaining < 0 {
				t.remaining = 0
			}
		}
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Scheduler) notify() {
	if s.cfg.OnUpdate == nil {
		return
	}
	s.mu.Lock()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.cfg.OnUpdate(snap)
}

// ReadAccounts parses an accounts list: one handle per line, blank
// lines and #-comments skipped.
func ReadAccounts(r io.Reader) ([]string, error) {
	var accounts []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		accounts = append(accounts, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read accounts list: %w", err)
	}
	return accounts, nil
}
