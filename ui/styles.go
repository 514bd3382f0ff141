package ui

import (
	"github.com/charmbracelet/lipgloss"

	"dmux/logsvc"
)

var (
	sidebarWidth = 32

	borderColor  = lipgloss.Color("62")
	dangerColor  = lipgloss.Color("203")
	mutedColor   = lipgloss.Color("243")
	successColor = lipgloss.Color("78")
	errorColor   = lipgloss.Color("203")
	warnColor    = lipgloss.Color("214")
	infoColor    = lipgloss.Color("75")

	sidebarStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, true, false, false).
			BorderForeground(borderColor).
			Width(sidebarWidth).
			Padding(0, 1)

	selectedItemStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	normalItemStyle   = lipgloss.NewStyle()
	mutedStyle        = lipgloss.NewStyle().Foreground(mutedColor)
	dangerStyle       = lipgloss.NewStyle().Foreground(dangerColor).Bold(true)

	overlayBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor).
			Padding(1, 2)

	toastStyle = lipgloss.NewStyle().Padding(0, 1)

	helpBarStyle = lipgloss.NewStyle().Foreground(mutedColor)
)

func statusColor(status string) lipgloss.Color {
	switch status {
	case "working":
		return infoColor
	case "waiting":
		return warnColor
	case "idle":
		return successColor
	default:
		return mutedColor
	}
}

func toastColor(sev logsvc.Severity) lipgloss.Color {
	switch sev {
	case logsvc.SeveritySuccess:
		return successColor
	case logsvc.SeverityWarning:
		return warnColor
	case logsvc.SeverityError:
		return errorColor
	default:
		return infoColor
	}
}
