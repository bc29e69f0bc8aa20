package tui

import (
	"fmt"
	"strings"
	"time"

	"xscraper/pkg/batch"
	"xscraper/pkg/ui"
)

const (
	colAccount = 22
	colStatus  = 12
	colItems   = 12
	colBatches = 8
	colTime    = 14
)

func (m *Model) View() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.quitting {
		return "stopping fetches...\n"
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("xscraper batch"))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render(fmt.Sprintf("  %-*s %-*s %-*s %-*s %-*s",
		colAccount, "ACCOUNT",
		colStatus, "STATUS",
		colItems, "ITEMS",
		colBatches, "BATCHES",
		colTime, "TIME")))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(ui.Rule(colAccount + colStatus + colItems + colBatches + colTime + 6)))
	b.WriteString("\n")

	for i, t := range m.tasks {
		b.WriteString(m.renderRow(i, t))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.renderFooter())

	if t := m.selectedTask(); t != nil && t.Err != "" {
		b.WriteString("\n")
		b.WriteString(errStyle.Render(truncate(t.Err, max(m.width-4, 40))))
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓ select · s stop · r retry · q quit"))
	b.WriteString("\n")

	return b.String()
}

func (m *Model) renderRow(i int, t batch.AccountTask) string {
	marker := "  "
	if i == m.selected {
		marker = "> "
	}

	status := string(t.Status)
	if t.Status == batch.TaskFetching {
		status = m.spinner.View() + status
	}
	if t.Salvaged {
		status += "*"
	}

	items := fmt.Sprintf("%d", t.MediaCount)
	if delta := t.MediaCount - t.PreviousMediaCount; t.PreviousMediaCount > 0 && delta > 0 {
		items = fmt.Sprintf("%d (+%d)", t.MediaCount, delta)
	}

	timeCell := ""
	switch {
	case t.Status == batch.TaskFetching:
		timeCell = fmt.Sprintf("%s/-%s", ui.FormatDuration(t.Elapsed), ui.FormatDuration(t.Remaining))
	case t.Elapsed > 0:
		timeCell = ui.FormatDuration(t.Elapsed)
	}

	line := fmt.Sprintf("%s%-*s %s %-*s %-*d %-*s",
		marker,
		colAccount, truncate(t.AccountKey, colAccount),
		styleForStatus(string(t.Status)).Render(fmt.Sprintf("%-*s", colStatus, status)),
		colItems, items,
		colBatches, t.Batches,
		colTime, timeCell)

	if i == m.selected {
		return selectedStyle.Render(line)
	}
	return rowStyle.Render(line)
}

func (m *Model) renderFooter() string {
	pending, fetching, completed, incomplete, failed := m.counts()
	elapsed := time.Since(m.startTime)

	summary := fmt.Sprintf("%d pending · %d fetching · %d completed · %d incomplete · %d failed · %s",
		pending, fetching, completed, incomplete, failed, ui.FormatDuration(elapsed))

	if m.allDone {
		summary += "  ·  all tasks finished"
	}
	return statStyle.Render(summary)
}

func truncate(s string, n int) string {
	if n <= 1 || len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
