package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"xscraper/pkg/batch"
)

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tasksMsg:
		m.tasks = msg
		if m.selected >= len(m.tasks) {
			m.selected = len(m.tasks) - 1
		}
		if m.selected < 0 {
			m.selected = 0
		}
		return m, nil

	case doneMsg:
		m.allDone = true
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		return m, tickCmd()
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		if m.controls.StopAll != nil {
			m.controls.StopAll()
		}
		return m, tea.Quit

	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}

	case "down", "j":
		if m.selected < len(m.tasks)-1 {
			m.selected++
		}

	case "s":
		if t := m.selectedTask(); t != nil && t.Status == batch.TaskFetching {
			if m.controls.StopOne != nil {
				m.controls.StopOne(t.AccountKey)
			}
		}

	case "r":
		if t := m.selectedTask(); t != nil && t.Status.Terminal() {
			if m.controls.Retry != nil {
				m.controls.Retry(t.AccountKey)
			}
		}
	}

	return m, nil
}
