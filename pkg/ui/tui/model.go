// Package tui renders the batch fetch dashboard with Bubble Tea.
package tui

import (
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"xscraper/pkg/batch"
)

// Controls are the scheduler hooks the dashboard drives. Retry runs in
// its own goroutine so the update loop never blocks on a fetch.
type Controls struct {
	StopAll func()
	StopOne func(accountKey string)
	Retry   func(accountKey string)
}

// Model holds the dashboard state. All mutation happens inside the
// Bubble Tea update loop; the mutex guards reads from Send callers.
type Model struct {
	mu sync.RWMutex

	spinner  spinner.Model
	tasks    []batch.AccountTask
	selected int

	width  int
	height int

	controls  Controls
	startTime time.Time
	quitting  bool
	allDone   bool
}

// tasksMsg carries a fresh scheduler snapshot into the update loop.
type tasksMsg []batch.AccountTask

// doneMsg signals that the scheduler run has returned.
type doneMsg struct{}

// tickMsg drives the elapsed clock in the footer.
type tickMsg time.Time

func newModel(controls Controls) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = statusStyles["fetching"]

	return &Model{
		spinner:   sp,
		controls:  controls,
		startTime: time.Now(),
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// selectedTask returns the task under the cursor, or nil when the
// table is empty.
func (m *Model) selectedTask() *batch.AccountTask {
	if m.selected < 0 || m.selected >= len(m.tasks) {
		return nil
	}
	return &m.tasks[m.selected]
}

// counts tallies tasks per status for the footer.
func (m *Model) counts() (pending, fetching, completed, incomplete, failed int) {
	for _, t := range m.tasks {
		switch t.Status {
		case batch.TaskPending:
			pending++
		case batch.TaskFetching:
			fetching++
		case batch.TaskCompleted:
			completed++
		case batch.TaskIncomplete:
			incomplete++
		case batch.TaskFailed:
			failed++
		}
	}
	return
}
