package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"xscraper/pkg/batch"
)

// Dashboard wraps the Bubble Tea program for the batch view.
type Dashboard struct {
	program *tea.Program
	model   *Model
}

// New creates a dashboard wired to the given scheduler controls.
func New(controls Controls) *Dashboard {
	m := newModel(controls)
	return &Dashboard{
		program: tea.NewProgram(m, tea.WithAltScreen()),
		model:   m,
	}
}

// Run blocks until the user quits or Done has been signalled and the
// program exits.
func (d *Dashboard) Run() error {
	_, err := d.program.Run()
	return err
}

// Update pushes a fresh task snapshot into the view. Safe to call from
// any goroutine; pass it as the scheduler's OnUpdate callback.
func (d *Dashboard) Update(tasks []batch.AccountTask) {
	d.program.Send(tasksMsg(tasks))
}

// Done marks the run finished in the footer. The program keeps running
// so results stay on screen until the user quits.
func (d *Dashboard) Done() {
	d.program.Send(doneMsg{})
}

// Quit stops the program.
func (d *Dashboard) Quit() {
	d.program.Quit()
}
