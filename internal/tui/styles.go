package tui

import "github.com/charmbracelet/lipgloss"

var (
	// HeaderStyle styles the column header row.
	HeaderStyle = lipgloss.NewStyle().Bold(true)
	// TitleStyle styles the table title.
	TitleStyle = lipgloss.NewStyle().Bold(true).Underline(true)

	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	activeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))

	statusStyles = map[string]lipgloss.Style{
		"cached":   okStyle,
		"complete": okStyle,
		"download": okStyle,
		"ok":       okStyle,

		"resolving":   activeStyle,
		"downloading": activeStyle,
		"extracting":  activeStyle,
		"storing":     activeStyle,

		"outdated": warningStyle,
		"warning":  warningStyle,

		"error": errorStyle,

		"pending": lipgloss.NewStyle().Faint(true),
	}

	terminalStatuses = map[string]bool{
		"cached":   true,
		"complete": true,
		"error":    true,
	}
)

// StatusStyle returns the lipgloss style for the given status string.
func StatusStyle(status string) lipgloss.Style {
	if s, ok := statusStyles[status]; ok {
		return s
	}
	return lipgloss.NewStyle()
}

// IsTerminalStatus reports whether an acquisition row has finished.
func IsTerminalStatus(status string) bool {
	return terminalStatuses[status]
}
