package fetcher

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xscraper/pkg/checkpoint"
	errs "xscraper/pkg/errors"
	"xscraper/pkg/extractor"
	"xscraper/pkg/logger"
	"xscraper/pkg/retry"
	"xscraper/pkg/timeline"
)

// scriptedExtractor serves batches keyed by the cursor it is called
// with, which doubles as a check that cursors are passed back
// verbatim. A nil result with a nil error blocks until the context is
// done.
type scriptedExtractor struct {
	mu       sync.Mutex
	byCursor map[string]*extractor.Result
	errs     map[string]error
	block    map[string]bool
	requests []extractor.Request
}

func newScripted() *scriptedExtractor {
	return &scriptedExtractor{
		byCursor: make(map[string]*extractor.Result),
		errs:     make(map[string]error),
		block:    make(map[string]bool),
	}
}

func (s *scriptedExtractor) Fetch(ctx context.Context, req extractor.Request) (*extractor.Result, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	blocked := s.block[req.Cursor]
	err := s.errs[req.Cursor]
	res := s.byCursor[req.Cursor]
	s.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, errs.New(errs.ErrorTypeUnknown, "no scripted batch for cursor "+req.Cursor, "")
	}
	return res, nil
}

func (s *scriptedExtractor) calls() []extractor.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]extractor.Request(nil), s.requests...)
}

// memCheckpoints is an in-memory Checkpoints for tests.
type memCheckpoints struct {
	mu      sync.Mutex
	session *checkpoint.Session
	cursor  string
	saves   int
}

func (m *memCheckpoints) Save(session *checkpoint.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *session
	cp.Entries = append([]timeline.Entry(nil), session.Entries...)
	m.session = &cp
	m.saves++
	return nil
}

func (m *memCheckpoints) Load() (*checkpoint.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, nil
	}
	cp := *m.session
	cp.Entries = append([]timeline.Entry(nil), m.session.Entries...)
	return &cp, nil
}

func (m *memCheckpoints) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	m.cursor = ""
	return nil
}

func (m *memCheckpoints) SaveCursor(cursor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursor = cursor
	return nil
}

func (m *memCheckpoints) LoadCursor() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor, nil
}

func entries(prefix string, start, n int) []timeline.Entry {
	out := make([]timeline.Entry, 0, n)
	for i := 0; i < n; i++ {
		id := start + i
		out = append(out, timeline.Entry{
			URL:     fmt.Sprintf("https://pbs.twimg.com/%s/%d.jpg", prefix, id),
			TweetID: timeline.TweetID(id),
			Type:    "photo",
		})
	}
	return out
}

func batch(items []timeline.Entry, cursor string, completed bool) *extractor.Result {
	return &extractor.Result{Entries: items, Cursor: cursor, Completed: completed}
}

func newTestRunner(t *testing.T, ext Extractor, cps *memCheckpoints) *Runner {
	t.Helper()
	return NewRunner(ext, logger.NewTestLogger(), Options{
		OpenCheckpoints: func(string) (Checkpoints, error) { return cps, nil },
		Cleanup:         func() {},
		MaxRetries:      2,
		Backoff:         &retry.ConstantBackoff{Delay: time.Millisecond},
	})
}

func TestRunCompletesAndClearsCheckpoint(t *testing.T) {
	ext := newScripted()
	ext.byCursor[""] = batch(entries("a", 0, 50), "c1", false)
	ext.byCursor["c1"] = batch(entries("a", 50, 50), "c2", false)
	// Zero items but a cursor and more data claimed: not terminal.
	ext.byCursor["c2"] = batch(nil, "c3", false)
	// Zero items, no cursor: natural completion.
	ext.byCursor["c3"] = batch(nil, "", false)

	cps := &memCheckpoints{}
	r := newTestRunner(t, ext, cps)

	res, err := r.Run(context.Background(), Params{AccountKey: "nasa", BatchSize: 50}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.True(t, res.Completed)
	assert.Len(t, res.Entries, 100)
	assert.Equal(t, 4, res.Batches)
	assert.Nil(t, cps.session, "checkpoint must be cleared on completion")
}

func TestRunCancelAfterSecondBatch(t *testing.T) {
	ext := newScripted()
	ext.byCursor[""] = batch(entries("a", 0, 10), "c1", false)
	ext.byCursor["c1"] = batch(entries("a", 10, 10), "c2", false)
	ext.byCursor["c2"] = batch(entries("a", 20, 10), "c3", false)
	ext.byCursor["c3"] = batch(entries("a", 30, 10), "c4", false)
	ext.byCursor["c4"] = batch(entries("a", 40, 10), "", true)

	cps := &memCheckpoints{}
	r := newTestRunner(t, ext, cps)
	cancel := NewCancelToken()

	res, err := r.Run(context.Background(), Params{AccountKey: "nasa", BatchSize: 50}, func(p Progress) {
		if p.Batch == 2 {
			cancel.Cancel()
		}
	}, cancel)
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, res.Status)
	assert.False(t, res.Completed)
	assert.Len(t, res.Entries, 20, "exactly batches 1-2")
	assert.True(t, res.Salvaged)

	require.NotNil(t, cps.session)
	assert.Equal(t, "c2", cps.session.Cursor)
	assert.Len(t, cps.session.Entries, 20)
}

func TestRunTimeoutKeepsDataThroughLastCompletedBatch(t *testing.T) {
	ext := newScripted()
	ext.byCursor[""] = batch(entries("a", 0, 10), "c1", false)
	ext.byCursor["c1"] = batch(entries("a", 10, 10), "c2", false)
	ext.block["c2"] = true // call 3 outlives the budget

	cps := &memCheckpoints{}
	r := newTestRunner(t, ext, cps)

	res, err := r.Run(context.Background(), Params{
		AccountKey: "nasa",
		BatchSize:  50,
		Timeout:    150 * time.Millisecond,
	}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, StatusTimedOut, res.Status)
	assert.False(t, res.Completed)
	assert.Len(t, res.Entries, 20)
	assert.True(t, res.Salvaged)
	require.NotNil(t, cps.session)
	assert.Equal(t, "c2", cps.session.Cursor)
}

func TestRunResumeEquivalence(t *testing.T) {
	script := func() *scriptedExtractor {
		ext := newScripted()
		ext.byCursor[""] = batch(entries("a", 0, 10), "c1", false)
		ext.byCursor["c1"] = batch(entries("a", 10, 10), "c2", false)
		ext.byCursor["c2"] = batch(entries("a", 20, 10), "c3", false)
		ext.byCursor["c3"] = batch(entries("a", 30, 10), "", true)
		return ext
	}

	// Uninterrupted run.
	full, err := newTestRunner(t, script(), &memCheckpoints{}).
		Run(context.Background(), Params{AccountKey: "nasa", BatchSize: 50}, nil, nil)
	require.NoError(t, err)

	// Interrupted after batch 2, then resumed from the checkpoint.
	cps := &memCheckpoints{}
	cancel := NewCancelToken()
	partial, err := newTestRunner(t, script(), cps).
		Run(context.Background(), Params{AccountKey: "nasa", BatchSize: 50}, func(p Progress) {
			if p.Batch == 2 {
				cancel.Cancel()
			}
		}, cancel)
	require.NoError(t, err)
	require.Len(t, partial.Entries, 20)

	resumed, err := newTestRunner(t, script(), cps).
		Run(context.Background(), Params{AccountKey: "nasa", BatchSize: 50}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, full.Completed, resumed.Completed)
	assert.Equal(t, full.Entries, resumed.Entries)
	assert.Nil(t, cps.session)
}

func TestRunResumeRequestsStoredCursorFirst(t *testing.T) {
	cps := &memCheckpoints{}
	require.NoError(t, cps.Save(&checkpoint.Session{
		AccountKey: "nasa",
		Cursor:     "c7",
		Entries:    entries("a", 0, 5),
	}))

	ext := newScripted()
	ext.byCursor["c7"] = batch(entries("a", 5, 5), "", true)

	res, err := newTestRunner(t, ext, cps).
		Run(context.Background(), Params{AccountKey: "nasa", BatchSize: 50, AuthToken: "fresh-token"}, nil, nil)
	require.NoError(t, err)

	calls := ext.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "c7", calls[0].Cursor)
	// A new token replaces the checkpointed one on resume.
	assert.Equal(t, "fresh-token", calls[0].AuthToken)
	assert.Len(t, res.Entries, 10)
}

func TestRunForceRestartDiscardsCheckpoint(t *testing.T) {
	cps := &memCheckpoints{}
	require.NoError(t, cps.Save(&checkpoint.Session{AccountKey: "nasa", Cursor: "stale"}))

	ext := newScripted()
	ext.byCursor[""] = batch(entries("a", 0, 3), "", true)

	res, err := newTestRunner(t, ext, cps).
		Run(context.Background(), Params{AccountKey: "nasa", BatchSize: 50, ForceRestart: true}, nil, nil)
	require.NoError(t, err)

	calls := ext.calls()
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].Cursor)
	assert.True(t, res.Completed)
}

func TestRunExplicitCursorBeatsCheckpoint(t *testing.T) {
	cps := &memCheckpoints{}
	require.NoError(t, cps.Save(&checkpoint.Session{AccountKey: "nasa", Cursor: "stored"}))

	ext := newScripted()
	ext.byCursor["explicit"] = batch(nil, "", true)

	_, err := newTestRunner(t, ext, cps).
		Run(context.Background(), Params{AccountKey: "nasa", BatchSize: 50, ResumeCursor: "explicit"}, nil, nil)
	require.NoError(t, err)

	calls := ext.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "explicit", calls[0].Cursor)
}

func TestRunEmptyBatchStreakFails(t *testing.T) {
	ext := newScripted()
	// Cursors advance but nothing new ever arrives.
	ext.byCursor[""] = batch(entries("a", 0, 5), "c1", false)
	ext.byCursor["c1"] = batch(nil, "c2", false)
	ext.byCursor["c2"] = batch(nil, "c3", false)
	ext.byCursor["c3"] = batch(nil, "c4", false)
	ext.byCursor["c4"] = batch(nil, "c5", false)

	cps := &memCheckpoints{}
	res, err := newTestRunner(t, ext, cps).
		Run(context.Background(), Params{AccountKey: "nasa", BatchSize: 50, MaxEmptyBatches: 3}, nil, nil)
	require.Error(t, err)

	var fetchErr *errs.Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, errs.ErrorTypeEmpty, fetchErr.Type)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Len(t, res.Entries, 5)
	assert.True(t, res.Salvaged, "partial results stay resumable")
}

func TestRunRepeatedCursorCountsAsEmpty(t *testing.T) {
	ext := newScripted()
	// The extractor hands the same cursor back forever.
	ext.byCursor[""] = batch(nil, "stuck", false)
	ext.byCursor["stuck"] = batch(nil, "stuck", false)

	res, err := newTestRunner(t, ext, &memCheckpoints{}).
		Run(context.Background(), Params{AccountKey: "nasa", BatchSize: 50, MaxEmptyBatches: 2}, nil, nil)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, res.Status)
}

func TestRunTerminalErrorNotRetried(t *testing.T) {
	ext := newScripted()
	ext.errs[""] = errs.New(errs.ErrorTypeAuth, "401 unauthorized", "")

	res, err := newTestRunner(t, ext, &memCheckpoints{}).
		Run(context.Background(), Params{AccountKey: "nasa", BatchSize: 50}, nil, nil)
	require.Error(t, err)

	var fetchErr *errs.Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, errs.ErrorTypeAuth, fetchErr.Type)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Empty(t, res.Entries)
	assert.False(t, res.Salvaged)
	assert.Len(t, ext.calls(), 1, "terminal failures must not be retried")
}

func TestRunTransientErrorRetriedThenSucceeds(t *testing.T) {
	ext := newScripted()
	calls := 0
	flaky := &flakyExtractor{inner: ext, failFirst: &calls}
	ext.byCursor[""] = batch(entries("a", 0, 5), "", true)

	res, err := newTestRunner(t, flaky, &memCheckpoints{}).
		Run(context.Background(), Params{AccountKey: "nasa", BatchSize: 50}, nil, nil)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Len(t, res.Entries, 5)
	assert.Equal(t, 2, calls)
}

// flakyExtractor fails the first call with a rate limit, then
// delegates.
type flakyExtractor struct {
	inner     Extractor
	failFirst *int
}

func (f *flakyExtractor) Fetch(ctx context.Context, req extractor.Request) (*extractor.Result, error) {
	*f.failFirst++
	if *f.failFirst == 1 {
		return nil, errs.New(errs.ErrorTypeRateLimit, "429 too many requests", "")
	}
	return f.inner.Fetch(ctx, req)
}

func TestRunRejectsConcurrentFetchForSameAccount(t *testing.T) {
	ext := newScripted()
	ext.block[""] = true

	r := newTestRunner(t, ext, &memCheckpoints{})
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	done := make(chan *Result, 1)
	go func() {
		res, _ := r.Run(ctx, Params{AccountKey: "nasa", BatchSize: 50}, nil, nil)
		done <- res
	}()

	require.Eventually(t, func() bool { return r.Running("nasa") },
		time.Second, 5*time.Millisecond)

	_, err := r.Run(context.Background(), Params{AccountKey: "nasa", BatchSize: 50}, nil, nil)
	assert.ErrorIs(t, err, ErrFetchInProgress)

	stop()
	res := <-done
	assert.Equal(t, StatusCancelled, res.Status)
	assert.False(t, r.Running("nasa"))
}

func TestRunRetryOfZeroItemFailureStartsFresh(t *testing.T) {
	cps := &memCheckpoints{}

	failing := newScripted()
	failing.errs[""] = errs.New(errs.ErrorTypeNotFound, "404 not found", "")
	res, err := newTestRunner(t, failing, cps).
		Run(context.Background(), Params{AccountKey: "ghost", BatchSize: 50}, nil, nil)
	require.Error(t, err)
	assert.Empty(t, res.Entries)
	assert.Nil(t, cps.session, "zero-item failure leaves no checkpoint")

	recovered := newScripted()
	recovered.byCursor[""] = batch(entries("g", 0, 2), "", true)
	res, err = newTestRunner(t, recovered, cps).
		Run(context.Background(), Params{AccountKey: "ghost", BatchSize: 50}, nil, nil)
	require.NoError(t, err)

	calls := recovered.calls()
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].Cursor, "retry after zero-item failure starts fresh")
	assert.True(t, res.Completed)
}

func TestRunUnboundedBatchSizeFetchesOnce(t *testing.T) {
	ext := newScripted()
	// The adapter misbehaves and hands back a cursor on an unbounded
	// request; the session must not loop on it.
	ext.byCursor[""] = batch(entries("a", 0, 40), "c1", false)

	cps := &memCheckpoints{}
	res, err := newTestRunner(t, ext, cps).
		Run(context.Background(), Params{AccountKey: "nasa"}, nil, nil)
	require.NoError(t, err)

	require.Len(t, ext.calls(), 1)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.True(t, res.Completed)
	assert.Len(t, res.Entries, 40)
	assert.Nil(t, cps.session, "one-shot fetch completes and clears the checkpoint")
}

func TestRunInvokesProcessCleanupBeforeFetching(t *testing.T) {
	ext := newScripted()
	ext.byCursor[""] = batch(entries("a", 0, 3), "", true)

	var cleanups int
	r := NewRunner(ext, logger.NewTestLogger(), Options{
		OpenCheckpoints: func(string) (Checkpoints, error) { return &memCheckpoints{}, nil },
		Cleanup:         func() { cleanups++ },
		MaxRetries:      1,
		Backoff:         &retry.ConstantBackoff{Delay: time.Millisecond},
	})

	_, err := r.Run(context.Background(), Params{AccountKey: "nasa", BatchSize: 50}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, cleanups, "stray extractor processes are reaped once per session")
}
