// Package extractor is the subprocess boundary to the external media
// extraction binary. It builds the command line for a batch request,
// runs the binary with at most one invocation in flight system-wide,
// and turns mixed stdout into typed entries or a classified error.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	errs "xscraper/pkg/errors"
	"xscraper/pkg/logger"
	"xscraper/pkg/ratelimit"
	"xscraper/pkg/timeline"
)

// ErrBusy is returned when a fetch is requested while another
// extractor call is still in flight.
var ErrBusy = errs.New(errs.ErrorTypeUnknown,
	"an extraction is already in progress", "Wait for it to finish or stop it first")

// Runner invokes the extractor binary. Safe for concurrent use; the
// gate rejects overlapping invocations instead of queueing them.
type Runner struct {
	binPath string
	logger  logger.Logger
	gate    *ratelimit.Gate
	limiter ratelimit.Limiter
}

// NewRunner creates a Runner for the binary at binPath. limiter may be
// nil to disable call spacing.
func NewRunner(binPath string, log logger.Logger, limiter ratelimit.Limiter) *Runner {
	return &Runner{
		binPath: binPath,
		logger:  log,
		gate:    ratelimit.NewGate(),
		limiter: limiter,
	}
}

// Fetch runs one extractor invocation and returns the batch it
// produced. The returned cursor is opaque; pass it back verbatim in
// the next Request to continue.
func (r *Runner) Fetch(ctx context.Context, req Request) (*Result, error) {
	if !r.gate.TryAcquire() {
		return nil, ErrBusy
	}
	defer r.gate.Release()

	if r.limiter != nil {
		r.limiter.Wait()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	args := buildArgs(req)
	r.logger.DebugWithFields("invoking extractor", map[string]interface{}{
		"target":     req.Target,
		"kind":       effectiveKind(req),
		"batch_size": req.BatchSize,
		"has_cursor": req.Cursor != "",
	})

	output, err := r.run(ctx, args)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		classified := Classify(string(output), req.Target)
		r.logger.WarnWithFields("extractor failed", map[string]interface{}{
			"target": req.Target,
			"class":  string(classified.Type),
		})
		return nil, classified
	}

	return r.parse(output, req)
}

// run executes the binary and returns its combined output. The context
// kills a call that outlives its session.
func (r *Runner) run(ctx context.Context, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, r.binPath, args...)
	cmd.Env = append(os.Environ(),
		"PYTHONIOENCODING=utf-8",
		"PYTHONUTF8=1",
	)

	// Children the binary leaves behind are reaped by
	// KillStrayProcesses at the start of the next session.
	return cmd.CombinedOutput()
}

// parse extracts the JSON document from mixed stdout and converts it.
func (r *Runner) parse(output []byte, req Request) (*Result, error) {
	jsonStr := extractJSON(string(output))
	if jsonStr == "" {
		raw := strings.TrimSpace(string(output))
		if raw == "" {
			return nil, errs.New(errs.ErrorTypeEmpty,
				"extractor returned no data",
				"The timeline may be empty or inaccessible")
		}
		if len(raw) > maxDiagnosticLen {
			raw = raw[:maxDiagnosticLen] + "..."
		}
		return nil, errs.New(errs.ErrorTypeParsing,
			fmt.Sprintf("could not locate JSON in extractor output: %s", raw), "")
	}

	var raw rawResponse
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, errs.New(errs.ErrorTypeParsing,
			fmt.Sprintf("failed to decode extractor JSON: %v", err), "")
	}

	return convert(raw, req), nil
}

// convert maps the extractor's wire document onto timeline entries.
func convert(raw rawResponse, req Request) *Result {
	isTextOnly := req.MediaType == "text"

	mediaTweetIDs := make(map[timeline.TweetID]bool, len(raw.Media))
	for _, m := range raw.Media {
		mediaTweetIDs[m.TweetID] = true
	}

	var entries []timeline.Entry
	switch {
	case isTextOnly:
		// Text mode keeps only tweets that carry no media attachment.
		entries = make([]timeline.Entry, 0, len(raw.Metadata))
		for _, meta := range raw.Metadata {
			if !mediaTweetIDs[meta.TweetID] {
				entries = append(entries, textEntry(meta))
			}
		}
	case len(raw.Media) > 0:
		entries = make([]timeline.Entry, 0, len(raw.Media))
		for _, m := range raw.Media {
			entries = append(entries, mediaEntry(m))
		}
	case len(raw.Metadata) > 0:
		// Media-less batch: fall back to the metadata records.
		entries = make([]timeline.Entry, 0, len(raw.Metadata))
		for _, meta := range raw.Metadata {
			entries = append(entries, textEntry(meta))
		}
	}

	return &Result{
		Entries:     entries,
		AccountInfo: buildAccountInfo(raw, req),
		Cursor:      raw.Cursor,
		Completed:   raw.Completed,
	}
}

// buildAccountInfo derives the account record for this batch. The
// bookmarks and likes collections keep fixed display names because the
// authors in them are not the fetched account.
func buildAccountInfo(raw rawResponse, req Request) timeline.AccountInfo {
	info := timeline.AccountInfo{
		Name: CleanUsername(req.Target),
		Nick: CleanUsername(req.Target),
	}

	isBookmarks := req.TimelineKind == "bookmarks" || req.Target == TargetBookmarks
	isLikes := req.TimelineKind == "likes"

	if len(raw.Media) > 0 {
		info = accountInfoFrom(raw.Media[0].User)
	} else if len(raw.Metadata) > 0 {
		info.Name = raw.Metadata[0].Author.Name
		info.Nick = raw.Metadata[0].Author.Nick
	}

	if isBookmarks {
		info.Name = TargetBookmarks
		info.Nick = "My Bookmarks"
	} else if isLikes {
		info.Name = TargetLikes
		info.Nick = "My Likes"
	}

	return info
}
