// Package fetcher runs one account's fetch session: a loop of
// extractor batches merged into an in-memory timeline, checkpointed
// after every batch so that a crash, timeout or stop never loses
// merged data.
package fetcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"xscraper/internal/metrics"
	"xscraper/pkg/checkpoint"
	errs "xscraper/pkg/errors"
	"xscraper/pkg/extractor"
	"xscraper/pkg/logger"
	"xscraper/pkg/retry"
	"xscraper/pkg/timeline"
)

// Extractor is the subprocess adapter boundary.
type Extractor interface {
	Fetch(ctx context.Context, req extractor.Request) (*extractor.Result, error)
}

// Archiver is the persist collaborator. Save is called after every
// batch and is best-effort; failures are logged, never fatal.
// LastCursor backs the degraded resume path when checkpoints are gone.
type Archiver interface {
	Save(ctx context.Context, snap timeline.Snapshot) error
	LastCursor(ctx context.Context, accountKey string) (string, error)
}

// Checkpoints is the durable per-account session store.
type Checkpoints interface {
	Save(session *checkpoint.Session) error
	Load() (*checkpoint.Session, error)
	Clear() error
	SaveCursor(cursor string) error
	LoadCursor() (string, error)
}

// CheckpointOpener opens the checkpoint store for one account key.
type CheckpointOpener func(accountKey string) (Checkpoints, error)

// ErrFetchInProgress rejects a second fetch for an account that
// already has one running, rather than interleaving two sessions.
var ErrFetchInProgress = errs.New(errs.ErrorTypeUnknown,
	"a fetch for this account is already in progress",
	"Stop it or wait for it to finish")

// Status is how a session ended.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusTimedOut  Status = "timed_out"
	StatusFailed    Status = "failed"
)

// Params configures one session.
type Params struct {
	AccountKey      string
	AuthToken       string
	TimelineKind    string
	MediaType       string
	IncludeRetweets bool
	BatchSize       int
	Timeout         time.Duration // 0 = no wall-clock budget
	MaxEmptyBatches int           // 0 = default of 3
	ForceRestart    bool          // discard any checkpoint
	ResumeCursor    string        // explicit cursor, beats the checkpoint
	StartDate       string        // date-range search mode
	EndDate         string
}

// Progress is delivered to the caller after every merged batch.
type Progress struct {
	Batch        int
	NewEntries   int
	TotalEntries int
	Cursor       string
	Elapsed      time.Duration
	AccountInfo  timeline.AccountInfo
}

// ProgressFunc receives per-batch progress. May be nil.
type ProgressFunc func(Progress)

// Result is the final outcome of a session. On abnormal stops Entries
// still holds everything merged so far, and Salvaged reports whether a
// checkpoint exists to resume from.
type Result struct {
	AccountKey  string
	Status      Status
	Entries     []timeline.Entry
	AccountInfo timeline.AccountInfo
	Completed   bool
	Cursor      string
	Batches     int
	Salvaged    bool
	Elapsed     time.Duration
}

const defaultMaxEmptyBatches = 3

// Options wires a Runner's collaborators. Zero values get defaults:
// checkpoints on disk, stray-process cleanup, three retry attempts.
type Options struct {
	Archiver        Archiver
	OpenCheckpoints CheckpointOpener
	MaxRetries      int
	Backoff         retry.BackoffStrategy
	Cleanup         func()
}

// Runner executes fetch sessions. One Runner serves any number of
// accounts, but at most one session per account key runs at a time.
type Runner struct {
	extractor Extractor
	archiver  Archiver
	openCp    CheckpointOpener
	logger    logger.Logger
	retries   int
	backoff   retry.BackoffStrategy
	cleanup   func()

	mu     sync.Mutex
	active map[string]struct{}
}

// NewRunner creates a Runner around the given extractor adapter.
func NewRunner(ext Extractor, log logger.Logger, opts Options) *Runner {
	openCp := opts.OpenCheckpoints
	if openCp == nil {
		openCp = func(accountKey string) (Checkpoints, error) {
			return checkpoint.NewManager(accountKey)
		}
	}
	cleanup := opts.Cleanup
	if cleanup == nil {
		cleanup = extractor.KillStrayProcesses
	}
	retries := opts.MaxRetries
	if retries == 0 {
		retries = 3
	}
	backoff := opts.Backoff
	if backoff == nil {
		backoff = retry.DefaultExponentialBackoff()
	}

	return &Runner{
		extractor: ext,
		archiver:  opts.Archiver,
		openCp:    openCp,
		logger:    log,
		retries:   retries,
		backoff:   backoff,
		cleanup:   cleanup,
		active:    make(map[string]struct{}),
	}
}

// Running reports whether a session for the account key is in flight.
func (r *Runner) Running(accountKey string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[accountKey]
	return ok
}

func (r *Runner) acquire(accountKey string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.active[accountKey]; busy {
		return false
	}
	r.active[accountKey] = struct{}{}
	return true
}

func (r *Runner) release(accountKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, accountKey)
}

// Run executes one session. It returns a non-nil Result for every
// started session, including failed ones; the error is non-nil only
// when the session ended on an extractor or parse failure. Cancelled
// and timed-out sessions are not errors: their Result reports the
// status and whatever was salvaged.
func (r *Runner) Run(ctx context.Context, params Params, onProgress ProgressFunc, cancel *CancelToken) (*Result, error) {
	if params.AccountKey == "" {
		return nil, errs.New(errs.ErrorTypeUnknown, "account key is required", "")
	}
	if !r.acquire(params.AccountKey) {
		return nil, ErrFetchInProgress
	}
	defer r.release(params.AccountKey)

	// Any subprocess left over from a crashed run would race this one
	// for the rate limit.
	r.cleanup()

	start := time.Now()
	defer metrics.ObserveSessionDuration(start)

	cps := r.openCheckpoints(params.AccountKey)
	session := r.openSession(cps, params)

	var deadline time.Time
	if params.Timeout > 0 {
		deadline = start.Add(params.Timeout)
		var cancelCtx context.CancelFunc
		ctx, cancelCtx = context.WithDeadline(ctx, deadline)
		defer cancelCtx()
	}

	maxEmpty := params.MaxEmptyBatches
	if maxEmpty <= 0 {
		maxEmpty = defaultMaxEmptyBatches
	}

	log := r.logger.WithField("account", params.AccountKey)
	log.InfoWithFields("starting fetch session", map[string]interface{}{
		"resumed":    session.Cursor != "",
		"entries":    len(session.Entries),
		"batch_size": session.BatchSize,
	})

	batches := 0
	emptyStreak := 0

	for {
		if cancel.Cancelled() {
			log.Info("stop requested, ending session")
			return r.finish(session, cps, StatusCancelled, batches, start), nil
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			log.Warn("session timeout reached before next batch")
			return r.finish(session, cps, StatusTimedOut, batches, start), nil
		}

		res, err := r.fetchBatch(ctx, session, params)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				log.Warn("batch overran the session timeout, keeping merged data")
				return r.finish(session, cps, StatusTimedOut, batches, start), nil
			}
			if errors.Is(err, context.Canceled) {
				return r.finish(session, cps, StatusCancelled, batches, start), nil
			}
			r.countFailure(err)
			log.WithError(err).Error("batch fetch failed")
			return r.finish(session, cps, StatusFailed, batches, start), err
		}

		batches++
		metrics.BatchesFetched.Inc()

		previousCursor := session.Cursor
		merged, added := timeline.Merge(session.Entries, res.Entries)
		session.Entries = merged
		session.Cursor = res.Cursor
		if session.AccountInfo.IsZero() && !res.AccountInfo.IsZero() {
			session.AccountInfo = res.AccountInfo
		}
		metrics.EntriesMerged.Add(float64(added))

		log.DebugWithFields("batch merged", map[string]interface{}{
			"batch": batches,
			"new":   added,
			"total": len(session.Entries),
		})

		// An unbounded request asks for the whole timeline in one
		// call; a cursor handed back anyway does not restart the loop.
		if !res.HasMore() || session.BatchSize == 0 {
			session.Completed = true
			r.clearCheckpoint(cps, log)
			r.persist(ctx, session, log)
			r.progress(onProgress, batches, added, session, start)
			metrics.IncSessionFinished(string(StatusCompleted))
			log.InfoWithFields("fetch completed", map[string]interface{}{
				"entries": len(session.Entries),
				"batches": batches,
			})
			return &Result{
				AccountKey:  session.AccountKey,
				Status:      StatusCompleted,
				Entries:     session.Entries,
				AccountInfo: session.AccountInfo,
				Completed:   true,
				Batches:     batches,
				Elapsed:     time.Since(start),
			}, nil
		}

		r.saveCheckpoint(session, cps, log)
		r.persist(ctx, session, log)
		r.progress(onProgress, batches, added, session, start)

		// A batch that adds nothing while claiming more data, or that
		// hands back the cursor it was given, makes no forward
		// progress. A few in a row means the remote side is stuck.
		if added == 0 || res.Cursor == previousCursor {
			emptyStreak++
			if emptyStreak >= maxEmpty {
				err := errs.New(errs.ErrorTypeEmpty,
					"extractor returned no new items across consecutive batches",
					"The timeline may be exhausted; already fetched data has been saved")
				r.countFailure(err)
				return r.finish(session, cps, StatusFailed, batches, start), err
			}
		} else {
			emptyStreak = 0
		}
	}
}

// fetchBatch runs one extractor call, retrying transient failures.
func (r *Runner) fetchBatch(ctx context.Context, session *checkpoint.Session, params Params) (*extractor.Result, error) {
	req := extractor.Request{
		Target:          session.AccountKey,
		AuthToken:       session.AuthToken,
		TimelineKind:    session.TimelineKind,
		BatchSize:       session.BatchSize,
		MediaType:       session.MediaType,
		IncludeRetweets: session.IncludeRetweets,
		Cursor:          session.Cursor,
		StartDate:       params.StartDate,
		EndDate:         params.EndDate,
	}

	cfg := &retry.Config{
		MaxAttempts: r.retries,
		Backoff:     r.backoff,
		RetryIf:     retry.DefaultRetryIf,
		Context:     ctx,
		Logger:      r.logger,
	}
	return retry.DoWithResult(func() (*extractor.Result, error) {
		return r.extractor.Fetch(ctx, req)
	}, cfg)
}

// finish builds the result for a non-completed stop. The checkpoint
// written after the last merged batch stays on disk, so any nonzero
// progress is resumable.
func (r *Runner) finish(session *checkpoint.Session, cps Checkpoints, status Status, batches int, start time.Time) *Result {
	salvaged := len(session.Entries) > 0 && cps != nil
	metrics.IncSessionFinished(string(status))
	return &Result{
		AccountKey:  session.AccountKey,
		Status:      status,
		Entries:     session.Entries,
		AccountInfo: session.AccountInfo,
		Completed:   false,
		Cursor:      session.Cursor,
		Batches:     batches,
		Salvaged:    salvaged,
		Elapsed:     time.Since(start),
	}
}

// openCheckpoints opens the store; a broken store degrades the run to
// non-resumable instead of failing it.
func (r *Runner) openCheckpoints(accountKey string) Checkpoints {
	cps, err := r.openCp(accountKey)
	if err != nil {
		r.logger.WithError(err).Warn("checkpoint store unavailable, session will not be resumable")
		return nil
	}
	return cps
}

// openSession decides fresh versus resume. An explicit cursor beats
// the checkpoint; a force-restart discards it.
func (r *Runner) openSession(cps Checkpoints, params Params) *checkpoint.Session {
	fresh := &checkpoint.Session{
		AccountKey:      params.AccountKey,
		AuthToken:       params.AuthToken,
		MediaType:       params.MediaType,
		TimelineKind:    params.TimelineKind,
		IncludeRetweets: params.IncludeRetweets,
		BatchSize:       params.BatchSize,
		CreatedAt:       time.Now(),
	}

	if params.ForceRestart {
		if cps != nil {
			if err := cps.Clear(); err != nil {
				r.logger.WithError(err).Warn("failed to clear checkpoint for restart")
			}
		}
		return fresh
	}

	if params.ResumeCursor != "" {
		fresh.Cursor = params.ResumeCursor
		return fresh
	}

	if cps == nil {
		return fresh
	}
	stored, err := cps.Load()
	if err != nil {
		r.logger.WithError(err).Warn("failed to load checkpoint, starting fresh")
		return fresh
	}
	if !stored.Resumable() {
		return fresh
	}

	// Resume with the stored fetch parameters; only the token may be
	// refreshed, since the old one could have expired mid-run.
	if params.AuthToken != "" {
		stored.AuthToken = params.AuthToken
	}
	return stored
}

func (r *Runner) saveCheckpoint(session *checkpoint.Session, cps Checkpoints, log logger.Logger) {
	if cps == nil {
		return
	}
	if err := cps.Save(session); err != nil {
		log.WithError(err).Warn("checkpoint write failed, merged data kept in memory")
	}
	if err := cps.SaveCursor(session.Cursor); err != nil {
		log.WithError(err).Warn("cursor slot write failed")
	}
}

func (r *Runner) clearCheckpoint(cps Checkpoints, log logger.Logger) {
	if cps == nil {
		return
	}
	if err := cps.Clear(); err != nil {
		log.WithError(err).Warn("failed to clear checkpoint after completion")
	}
}

// persist hands the snapshot to the archive. Fire and forget.
func (r *Runner) persist(ctx context.Context, session *checkpoint.Session, log logger.Logger) {
	if r.archiver == nil {
		return
	}
	snap := timeline.Snapshot{
		AccountKey:  session.AccountKey,
		DisplayName: session.AccountInfo.Name,
		NiceName:    session.AccountInfo.Nick,
		AvatarURL:   session.AccountInfo.ProfileImage,
		TotalCount:  len(session.Entries),
		Entries:     session.Entries,
		MediaType:   session.MediaType,
		Cursor:      session.Cursor,
		Completed:   session.Completed,
	}
	if err := r.archiver.Save(ctx, snap); err != nil {
		log.WithError(err).Warn("archive save failed")
	}
}

func (r *Runner) progress(fn ProgressFunc, batch, added int, session *checkpoint.Session, start time.Time) {
	if fn == nil {
		return
	}
	fn(Progress{
		Batch:        batch,
		NewEntries:   added,
		TotalEntries: len(session.Entries),
		Cursor:       session.Cursor,
		Elapsed:      time.Since(start),
		AccountInfo:  session.AccountInfo,
	})
}

func (r *Runner) countFailure(err error) {
	var fetchErr *errs.Error
	if errors.As(err, &fetchErr) {
		metrics.IncExtractorFailure(string(fetchErr.Type))
		return
	}
	metrics.IncExtractorFailure(string(errs.ErrorTypeUnknown))
}
