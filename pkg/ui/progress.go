// Package ui renders single-fetch progress for plain terminal output.
package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"xscraper/pkg/fetcher"
)

// Progress prints per-batch progress lines. Quiet mode suppresses
// everything except the final summary.
type Progress struct {
	out   io.Writer
	quiet bool
}

// NewProgress creates a progress printer writing to out.
func NewProgress(out io.Writer, quiet bool) *Progress {
	return &Progress{out: out, quiet: quiet}
}

// Handler returns the callback to pass into the session runner.
func (p *Progress) Handler() fetcher.ProgressFunc {
	return func(prog fetcher.Progress) {
		if p.quiet {
			return
		}
		fmt.Fprintf(p.out, "batch %d: +%d items (%d total) elapsed %s cursor %s\n",
			prog.Batch, prog.NewEntries, prog.TotalEntries,
			prog.Elapsed.Round(time.Second), cursorTail(prog.Cursor))
	}
}

// Summary prints the session outcome.
func (p *Progress) Summary(res *fetcher.Result, err error) {
	if res == nil {
		if err != nil {
			fmt.Fprintf(p.out, "fetch failed: %v\n", err)
		}
		return
	}

	switch res.Status {
	case fetcher.StatusCompleted:
		fmt.Fprintf(p.out, "done: %d items in %d batches (%s)\n",
			len(res.Entries), res.Batches, res.Elapsed.Round(time.Second))
	case fetcher.StatusCancelled, fetcher.StatusTimedOut:
		fmt.Fprintf(p.out, "stopped (%s): %d items fetched\n", res.Status, len(res.Entries))
		if res.Salvaged {
			fmt.Fprintln(p.out, "partial results salvaged, run again to continue")
		}
	default:
		if err != nil {
			fmt.Fprintf(p.out, "fetch failed: %v\n", err)
		}
		if res.Salvaged {
			fmt.Fprintf(p.out, "partial results salvaged, resumable: %d items checkpointed\n",
				len(res.Entries))
		}
	}
}

// cursorTail keeps cursor output short; they run long and only the
// tail varies.
func cursorTail(cursor string) string {
	if cursor == "" {
		return "-"
	}
	if len(cursor) <= 12 {
		return cursor
	}
	return "…" + cursor[len(cursor)-12:]
}

// FormatDuration renders a duration as mm:ss for table cells.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", m, s)
}

// Rule draws a horizontal divider of width n.
func Rule(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("─", n)
}
