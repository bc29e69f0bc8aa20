package tui

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	neonPink   = lipgloss.Color("#FF10F0")
	neonCyan   = lipgloss.Color("#00FFFF")
	neonGreen  = lipgloss.Color("#39FF14")
	neonYellow = lipgloss.Color("#FFFF00")
	neonRed    = lipgloss.Color("#FF3131")
	dimGray    = lipgloss.Color("#555555")
	offWhite   = lipgloss.Color("#E0E0E0")
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(neonPink).
			Bold(true).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(neonCyan).
			Bold(true)

	selectedStyle = lipgloss.NewStyle().
			Foreground(offWhite).
			Background(lipgloss.Color("#2A2A2A")).
			Bold(true)

	rowStyle = lipgloss.NewStyle().
			Foreground(offWhite)

	helpStyle = lipgloss.NewStyle().
			Foreground(dimGray)

	errStyle = lipgloss.NewStyle().
			Foreground(neonRed)

	statStyle = lipgloss.NewStyle().
			Foreground(neonCyan)
)

// statusStyles maps a task status to its rendered color.
var statusStyles = map[string]lipgloss.Style{
	"pending":    lipgloss.NewStyle().Foreground(dimGray),
	"fetching":   lipgloss.NewStyle().Foreground(neonCyan).Bold(true),
	"completed":  lipgloss.NewStyle().Foreground(neonGreen),
	"incomplete": lipgloss.NewStyle().Foreground(neonYellow),
	"failed":     lipgloss.NewStyle().Foreground(neonRed),
}

func styleForStatus(status string) lipgloss.Style {
	if s, ok := statusStyles[status]; ok {
		return s
	}
	return rowStyle
}
