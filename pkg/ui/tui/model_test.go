package tui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xscraper/pkg/batch"
)

func sampleTasks() []batch.AccountTask {
	return []batch.AccountTask{
		{AccountKey: "alpha", Status: batch.TaskCompleted, MediaCount: 120, Batches: 3, Elapsed: 40 * time.Second},
		{AccountKey: "beta", Status: batch.TaskFetching, MediaCount: 55, Batches: 2, Elapsed: 30 * time.Second, Remaining: 90 * time.Second},
		{AccountKey: "gamma", Status: batch.TaskFailed, Err: "authentication failed"},
		{AccountKey: "delta", Status: batch.TaskPending},
	}
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestUpdateTasksSnapshot(t *testing.T) {
	m := newModel(Controls{})

	updated, _ := m.Update(tasksMsg(sampleTasks()))
	m = updated.(*Model)

	assert.Len(t, m.tasks, 4)
	assert.Equal(t, 0, m.selected)
}

func TestSelectionClampsWhenTasksShrink(t *testing.T) {
	m := newModel(Controls{})
	m.tasks = sampleTasks()
	m.selected = 3

	updated, _ := m.Update(tasksMsg(sampleTasks()[:2]))
	m = updated.(*Model)

	assert.Equal(t, 1, m.selected)
}

func TestNavigationKeys(t *testing.T) {
	m := newModel(Controls{})
	m.tasks = sampleTasks()

	updated, _ := m.Update(key("j"))
	m = updated.(*Model)
	assert.Equal(t, 1, m.selected)

	updated, _ = m.Update(key("k"))
	m = updated.(*Model)
	assert.Equal(t, 0, m.selected)

	// does not move past the edges
	updated, _ = m.Update(key("k"))
	m = updated.(*Model)
	assert.Equal(t, 0, m.selected)
}

func TestQuitStopsAll(t *testing.T) {
	var stopped bool
	m := newModel(Controls{StopAll: func() { stopped = true }})
	m.tasks = sampleTasks()

	updated, cmd := m.Update(key("q"))
	m = updated.(*Model)

	assert.True(t, stopped)
	assert.True(t, m.quitting)
	require.NotNil(t, cmd)
}

func TestStopOnlyFiresOnFetchingTask(t *testing.T) {
	var stoppedKey string
	m := newModel(Controls{StopOne: func(k string) { stoppedKey = k }})
	m.tasks = sampleTasks()

	// selected task is completed, stop is a no-op
	m.Update(key("s"))
	assert.Empty(t, stoppedKey)

	m.selected = 1
	m.Update(key("s"))
	assert.Equal(t, "beta", stoppedKey)
}

func TestRetryOnlyFiresOnTerminalTask(t *testing.T) {
	var retried string
	m := newModel(Controls{Retry: func(k string) { retried = k }})
	m.tasks = sampleTasks()

	m.selected = 1 // fetching, not retryable
	m.Update(key("r"))
	assert.Empty(t, retried)

	m.selected = 2 // failed
	m.Update(key("r"))
	assert.Equal(t, "gamma", retried)
}

func TestViewRendersRowsAndFooter(t *testing.T) {
	m := newModel(Controls{})
	m.width = 100
	m.tasks = sampleTasks()
	m.selected = 2

	out := m.View()

	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "beta")
	assert.Contains(t, out, "120")
	assert.Contains(t, out, "1 pending")
	assert.Contains(t, out, "1 fetching")
	assert.Contains(t, out, "1 completed")
	assert.Contains(t, out, "1 failed")
	// selected failed task shows its error line
	assert.Contains(t, out, "authentication failed")
}

func TestViewShowsMediaDeltaOnRetry(t *testing.T) {
	m := newModel(Controls{})
	m.tasks = []batch.AccountTask{
		{AccountKey: "alpha", Status: batch.TaskCompleted, MediaCount: 12, PreviousMediaCount: 5},
	}

	assert.Contains(t, m.View(), "12 (+7)")
}

func TestDoneMsgMarksFooter(t *testing.T) {
	m := newModel(Controls{})
	m.tasks = sampleTasks()

	updated, _ := m.Update(doneMsg{})
	m = updated.(*Model)

	assert.True(t, m.allDone)
	assert.Contains(t, m.View(), "all tasks finished")
}

func TestCounts(t *testing.T) {
	m := newModel(Controls{})
	m.tasks = append(sampleTasks(), batch.AccountTask{AccountKey: "eps", Status: batch.TaskIncomplete})

	pending, fetching, completed, incomplete, failed := m.counts()
	assert.Equal(t, 1, pending)
	assert.Equal(t, 1, fetching)
	assert.Equal(t, 1, completed)
	assert.Equal(t, 1, incomplete)
	assert.Equal(t, 1, failed)
}
