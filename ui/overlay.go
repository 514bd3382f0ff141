package ui

import (
	"context"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"dmux/action"
)

// overlayKind distinguishes the modal currently on screen. promptOverlay is
// local to the TUI (gathering a new pane's initial prompt before the pane
// exists at all); the rest mirror action.Result's dialog kinds directly.
type overlayKind int

const (
	overlayConfirm overlayKind = iota
	overlayChoice
	overlayInput
	overlayProgress
	overlayPrompt
)

// overlayState holds whichever single modal is currently active, grounded
// on claude-squad's ui/overlay.selectionOverlay: a title, body, selection
// cursor and bound callbacks, rendered as one centered bordered box.
type overlayState struct {
	kind overlayKind

	title   string
	message string

	options  []action.Option
	selected int

	input       string
	placeholder string

	onConfirm func(ctx context.Context) (action.Result, error)
	onCancel  func(ctx context.Context) (action.Result, error)
	onSelect  func(ctx context.Context, optionID string) (action.Result, error)
	onSubmit  func(ctx context.Context, value string) (action.Result, error)
}

func newResultOverlay(r action.Result) *overlayState {
	switch r.Kind {
	case action.KindConfirm:
		return &overlayState{kind: overlayConfirm, title: r.Title, message: r.Message, onConfirm: r.OnConfirm, onCancel: r.OnCancel}
	case action.KindChoice:
		return &overlayState{kind: overlayChoice, title: r.Title, message: r.Message, options: r.Options, onSelect: r.OnSelect}
	case action.KindInput:
		return &overlayState{kind: overlayInput, title: r.Title, message: r.Message, placeholder: r.Placeholder, input: r.DefaultValue, onSubmit: r.OnSubmit}
	case action.KindProgress:
		title := r.ProgressType
		if title == "" {
			title = "Working"
		}
		return &overlayState{kind: overlayProgress, title: title, message: r.Message}
	default:
		return nil
	}
}

func newPromptOverlay() *overlayState {
	return &overlayState{kind: overlayPrompt, title: "New pane", message: "Describe the task for the agent", placeholder: "fix the flaky retry test"}
}

// updateOverlay handles a key event while an overlay is active, invoking
// its bound callback (off the Update goroutine, via tea.Cmd) once the user
// confirms, cancels, selects or submits.
func (m *Model) updateOverlay(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	o := m.overlay
	switch msg.Type {
	case tea.KeyEsc:
		cancel := o.onCancel
		m.overlay = nil
		if cancel != nil {
			return m, runCallback(m.ctx, func(ctx context.Context) (action.Result, error) { return cancel(ctx) })
		}
		return m, nil
	}

	switch o.kind {
	case overlayConfirm:
		switch msg.String() {
		case "y", "enter":
			confirm := o.onConfirm
			m.overlay = nil
			if confirm != nil {
				return m, runCallback(m.ctx, func(ctx context.Context) (action.Result, error) { return confirm(ctx) })
			}
		case "n":
			cancel := o.onCancel
			m.overlay = nil
			if cancel != nil {
				return m, runCallback(m.ctx, func(ctx context.Context) (action.Result, error) { return cancel(ctx) })
			}
		}
	case overlayChoice:
		switch msg.String() {
		case "up", "k":
			if o.selected > 0 {
				o.selected--
			}
		case "down", "j":
			if o.selected < len(o.options)-1 {
				o.selected++
			}
		case "enter":
			return m.selectChoice(o.selected)
		default:
			if n, err := strconv.Atoi(msg.String()); err == nil && n >= 1 && n <= len(o.options) {
				return m.selectChoice(n - 1)
			}
		}
	case overlayInput:
		switch msg.Type {
		case tea.KeyEnter:
			submit := o.onSubmit
			value := o.input
			m.overlay = nil
			if submit != nil {
				return m, runCallback(m.ctx, func(ctx context.Context) (action.Result, error) { return submit(ctx, value) })
			}
		case tea.KeyBackspace:
			if len(o.input) > 0 {
				o.input = o.input[:len(o.input)-1]
			}
		case tea.KeyRunes:
			o.input += string(msg.Runes)
		case tea.KeySpace:
			o.input += " "
		}
	case overlayPrompt:
		switch msg.Type {
		case tea.KeyEnter:
			prompt := o.input
			m.overlay = nil
			return m, m.createPane(prompt)
		case tea.KeyBackspace:
			if len(o.input) > 0 {
				o.input = o.input[:len(o.input)-1]
			}
		case tea.KeyRunes:
			o.input += string(msg.Runes)
		case tea.KeySpace:
			o.input += " "
		}
	case overlayProgress:
		// Progress overlays close when the next actionResultMsg arrives or
		// on esc (handled above); no other key closes them.
	}
	return m, nil
}

func (m *Model) selectChoice(index int) (tea.Model, tea.Cmd) {
	o := m.overlay
	if index < 0 || index >= len(o.options) {
		return m, nil
	}
	selectFn := o.onSelect
	optionID := o.options[index].ID
	m.overlay = nil
	if selectFn == nil {
		return m, nil
	}
	return m, runCallback(m.ctx, func(ctx context.Context) (action.Result, error) { return selectFn(ctx, optionID) })
}

func runCallback(ctx context.Context, fn func(ctx context.Context) (action.Result, error)) tea.Cmd {
	return func() tea.Msg {
		result, err := fn(ctx)
		return actionResultMsg{result: result, err: err}
	}
}

// Render draws the active overlay centered over a width x height viewport.
func (o *overlayState) Render(width, height int) string {
	box := overlayBoxStyle.Width(min(width-4, 60))

	var body string
	switch o.kind {
	case overlayConfirm:
		body = o.title + "\n\n" + o.message + "\n\n[y] confirm   [n/esc] cancel"
	case overlayChoice:
		body = o.title + "\n\n" + o.message + "\n\n" + renderOptions(o.options, o.selected)
	case overlayInput, overlayPrompt:
		body = o.title + "\n\n" + o.message + "\n\n> " + o.input + "█\n\n[enter] submit   [esc] cancel"
	case overlayProgress:
		body = o.title + "\n\n" + o.message
	}

	content := box.Render(body)
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, content)
}

func renderOptions(options []action.Option, selected int) string {
	var out string
	for i, opt := range options {
		cursor := "  "
		if i == selected {
			cursor = "> "
		}
		label := opt.Label
		if opt.Danger {
			label = dangerStyle.Render(label)
		}
		out += cursor + strconv.Itoa(i+1) + ". " + label
		if opt.Description != "" {
			out += "  " + mutedStyle.Render(opt.Description)
		}
		out += "\n"
	}
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
