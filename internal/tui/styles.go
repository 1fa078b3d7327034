// SPDX-License-Identifier: MIT
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"whisperer/internal/protocol"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D7D7D"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F5F")).
			Bold(true)

	recordingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#D7263D")).
			Padding(0, 1).
			Bold(true)

	fieldStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#5FAFFF"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3A3A3A")).
			Padding(0, 1)
)

var severityColors = map[protocol.Severity]lipgloss.Color{
	protocol.SeverityLow:      "#25A065",
	protocol.SeverityMedium:   "#E5C07B",
	protocol.SeverityHigh:     "#FF8700",
	protocol.SeverityCritical: "#FF5F5F",
}

func severityStyle(s protocol.Severity) lipgloss.Style {
	c, ok := severityColors[s]
	if !ok {
		c = "#7D7D7D"
	}
	return lipgloss.NewStyle().Foreground(c).Bold(true)
}

func bandStyle(score int) lipgloss.Style {
	switch protocol.HealthBand(score) {
	case "good":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065"))
	case "fair":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F"))
	}
}
