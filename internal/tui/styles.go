package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/machinewatch/internal/ui"
	"github.com/muurk/machinewatch/internal/version"
)

const (
	AppName = "MACHINEWATCH"

	minWidth = 72
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(ui.TextColor).
			Bold(true)

	subtleStyle = lipgloss.NewStyle().
			Foreground(ui.MutedColor)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(ui.PrimaryColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(ui.ErrorColor).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(ui.WarningColor).
			Bold(true)
)

// renderContainer frames content between an app header and a help footer
func renderContainer(content, footer string, width int) string {
	if width < minWidth {
		width = minWidth
	}

	header := lipgloss.JoinHorizontal(lipgloss.Top,
		titleStyle.Render(AppName+" "+version.Version),
		subtleStyle.Render("  live machine monitor"),
	)

	section := func(border lipgloss.Border) lipgloss.Style {
		return lipgloss.NewStyle().
			BorderStyle(border).
			BorderForeground(ui.PrimaryColor).
			Width(width-4).
			Padding(0, 1)
	}

	inner := lipgloss.JoinVertical(lipgloss.Left,
		section(lipgloss.Border{Bottom: "─"}).Render(header),
		lipgloss.NewStyle().Width(width-4).Render(content),
		section(lipgloss.Border{Top: "─"}).Render(footer),
	)

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ui.PrimaryColor).
		Render(inner)
}
