package fetcher

import "sync/atomic"

// CancelToken is a cooperative stop flag. The session loop polls it at
// safe points between batches; the in-flight extractor call is never
// torn down by it, so a completed batch is always merged and
// checkpointed before the stop takes effect.
type CancelToken struct {
	flag atomic.Bool
}

// NewCancelToken returns an unset token.
func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

// Cancel requests a stop. Safe to call from any goroutine, repeatedly.
func (t *CancelToken) Cancel() {
	t.flag.Store(true)
}

// Cancelled reports whether a stop has been requested.
func (t *CancelToken) Cancelled() bool {
	return t != nil && t.flag.Load()
}
