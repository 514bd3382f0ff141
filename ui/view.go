package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"dmux/store"
)

func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "starting dmux...\n"
	}

	sidebar := m.renderSidebar()
	main := m.renderMain()

	body := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, main)

	help := helpBarStyle.Render("↑/↓ select  enter focus  n new  N new+prompt  m merge  D close  r rename  d duplicate  a autopilot  e editor  y copy path  q quit")

	view := lipgloss.JoinVertical(lipgloss.Left, body, help)

	if t, ok := m.toasts.Current(); ok {
		toast := toastStyle.Foreground(toastColor(t.Severity)).Render("● " + t.Message)
		view = lipgloss.JoinVertical(lipgloss.Left, view, toast)
	}

	if m.overlay != nil {
		return m.overlay.Render(m.width, m.height)
	}
	return view
}

func (m *Model) renderSidebar() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", m.snap.ProjectName)
	for i, p := range m.snap.Panes {
		line := paneLine(p)
		if i == m.cursor {
			b.WriteString(selectedItemStyle.Render("› " + line))
		} else {
			b.WriteString(normalItemStyle.Render("  " + line))
		}
		b.WriteString("\n")
	}
	if len(m.snap.Panes) == 0 {
		b.WriteString(mutedStyle.Render("  no panes yet — press n"))
	}
	height := m.height - 2
	if height < 1 {
		height = 1
	}
	return sidebarStyle.Height(height).Render(b.String())
}

func paneLine(p store.Pane) string {
	dot := lipgloss.NewStyle().Foreground(statusColor(string(p.AgentStatus))).Render("●")
	name := p.Slug
	if name == "" {
		name = p.ID
	}
	suffix := ""
	if p.Autopilot {
		suffix += " ⚡"
	}
	if p.TestStatus == store.TestFailed {
		suffix += " ✗test"
	}
	if p.DevStatus == store.DevRunning {
		suffix += " dev"
	}
	return fmt.Sprintf("%s %s%s", dot, name, suffix)
}

func (m *Model) renderMain() string {
	pane, ok := m.selected()
	if !ok {
		return mutedStyle.Render("select or create a pane")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", pane.Slug)
	fmt.Fprintf(&b, "agent: %s   status: %s\n\n", pane.Agent, pane.AgentStatus)
	if pane.Prompt != "" {
		fmt.Fprintf(&b, "prompt: %s\n\n", pane.Prompt)
	}
	if pane.OptionsQuestion != "" {
		fmt.Fprintf(&b, "waiting: %s\n", pane.OptionsQuestion)
		for _, opt := range pane.Options {
			fmt.Fprintf(&b, "  - %s\n", opt.Description)
		}
	}
	if pane.AgentSummary != "" {
		fmt.Fprintf(&b, "summary: %s\n", pane.AgentSummary)
	}
	if pane.WorktreePath != "" {
		fmt.Fprintf(&b, "worktree: %s\n", pane.WorktreePath)
	}
	return b.String()
}
