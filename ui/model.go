// Package ui is the bubbletea control-pane TUI: a sidebar list of panes
// with their live status, one modal overlay at a time for action.Result
// confirm/choice/input/progress kinds, and a single-toast notification
// line — the same panel/overlay/toast shape claude-squad's ui/ and app/
// lay out, cut down to what a control pane (not a terminal renderer)
// needs, since dmux leaves pane content itself to tmux.
package ui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"dmux/action"
	"dmux/keys"
	"dmux/lifecycle"
	"dmux/logsvc"
	"dmux/store"
	"dmux/tmux"
)

// toastPollInterval controls how often the model checks whether the
// current toast has expired.
const toastPollInterval = 500 * time.Millisecond

// snapshotMsg carries a fresh store.Snapshot into the bubbletea loop;
// Model.Store.Subscribe's callback runs on an arbitrary goroutine, so it
// is forwarded through tea.Program.Send rather than touched directly.
type snapshotMsg store.Snapshot

// actionResultMsg wraps the Result of a dispatched action.
type actionResultMsg struct {
	result action.Result
	err    error
}

// toastTickMsg fires on a timer to expire the current toast.
type toastTickMsg struct{}

// Model is the control pane's bubbletea model.
type Model struct {
	ctx context.Context

	store      *store.Store
	tmux       *tmux.Adapter
	dispatcher *action.Dispatcher
	lifecycle  *lifecycle.Controller
	toasts     *logsvc.ToastQueue

	snap   store.Snapshot
	cursor int

	overlay *overlayState

	width, height int
	quitting      bool
}

// New constructs the control-pane Model. program is the bubbletea program
// used to forward store notifications; set it via Model.Attach once the
// tea.Program exists (bubbletea's NewProgram needs the model first).
func New(ctx context.Context, st *store.Store, tm *tmux.Adapter, dispatcher *action.Dispatcher, lc *lifecycle.Controller, toasts *logsvc.ToastQueue) *Model {
	return &Model{
		ctx:        ctx,
		store:      st,
		tmux:       tm,
		dispatcher: dispatcher,
		lifecycle:  lc,
		toasts:     toasts,
		snap:       st.Snapshot(),
	}
}

// Attach wires the store's subscriber callback to forward snapshots into
// program, and must be called once the tea.Program is constructed.
func (m *Model) Attach(program *tea.Program) (unsubscribe func()) {
	return m.store.Subscribe(func(snap store.Snapshot) {
		program.Send(snapshotMsg(snap))
	})
}

func (m *Model) Init() tea.Cmd { return tickToast() }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case snapshotMsg:
		m.snap = store.Snapshot(msg)
		if m.cursor >= len(m.snap.Panes) {
			m.cursor = max(0, len(m.snap.Panes)-1)
		}
		return m, nil

	case toastTickMsg:
		if m.toasts.Expired() {
			m.toasts.Advance()
		}
		return m, tickToast()

	case actionResultMsg:
		return m.applyResult(msg.result, msg.err)

	case tea.KeyMsg:
		if m.overlay != nil {
			return m.updateOverlay(msg)
		}
		return m.updateNormal(msg)
	}
	return m, nil
}

func (m *Model) updateNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	name, ok := keys.GlobalKeyStringsMap[msg.String()]
	if !ok {
		return m, nil
	}
	switch name {
	case keys.KeyUp:
		if m.cursor > 0 {
			m.cursor--
		}
	case keys.KeyDown:
		if m.cursor < len(m.snap.Panes)-1 {
			m.cursor++
		}
	case keys.KeyEnter:
		if pane, ok := m.selected(); ok {
			_ = m.tmux.SelectPane(m.ctx, pane.TmuxPaneID)
		}
	case keys.KeyNew:
		return m, m.createPane("")
	case keys.KeyNewWithPrompt:
		m.overlay = newPromptOverlay()
	case keys.KeyClose:
		return m, m.invoke(action.ActionClose)
	case keys.KeyRename:
		return m, m.invoke(action.ActionRename)
	case keys.KeyDuplicate:
		return m, m.invoke(action.ActionDuplicate)
	case keys.KeyMerge:
		return m, m.invoke(action.ActionMerge)
	case keys.KeyToggleAutopilot:
		return m, m.invoke(action.ActionToggleAutopilot)
	case keys.KeyOpenInEditor:
		return m, m.invoke(action.ActionOpenInEditor)
	case keys.KeyCopyPath:
		return m, m.invoke(action.ActionCopyPath)
	case keys.KeyQuit:
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) selected() (store.Pane, bool) {
	if m.cursor < 0 || m.cursor >= len(m.snap.Panes) {
		return store.Pane{}, false
	}
	return m.snap.Panes[m.cursor], true
}

// invoke dispatches id against the selected pane as a tea.Cmd so the
// (potentially blocking) handler runs off the Update goroutine.
func (m *Model) invoke(id action.ID) tea.Cmd {
	pane, ok := m.selected()
	if !ok {
		return nil
	}
	return func() tea.Msg {
		result, err := m.dispatcher.Invoke(m.ctx, pane, id)
		return actionResultMsg{result: result, err: err}
	}
}

func (m *Model) createPane(prompt string) tea.Cmd {
	return func() tea.Msg {
		result, err := m.lifecycle.Create(m.ctx, lifecycle.CreateInput{
			Prompt:        prompt,
			ProjectName:   m.snap.ProjectName,
			ControlPaneID: m.snap.ControlPaneID,
		})
		if err != nil {
			return actionResultMsg{err: err}
		}
		if result.NeedsAgentChoice {
			return actionResultMsg{result: agentChoiceResult(result.AvailableAgents, prompt)}
		}
		return actionResultMsg{result: action.Success(fmt.Sprintf("created %s", result.Pane.Slug), true)}
	}
}

// agentChoiceResult turns lifecycle's ambiguous-agent signal into the same
// action.Result Choice shape every other dialog uses, so the overlay code
// has one rendering path regardless of where a Result came from.
func agentChoiceResult(agents []store.Agent, prompt string) action.Result {
	var opts []action.Option
	for _, a := range agents {
		opts = append(opts, action.Option{ID: string(a), Label: string(a)})
	}
	return action.Choice("Choose an agent", "Multiple agent CLIs are available.", opts, nil)
}

func (m *Model) applyResult(result action.Result, err error) (tea.Model, tea.Cmd) {
	if m.overlay != nil && m.overlay.kind == overlayProgress {
		m.overlay = nil
	}
	if err != nil {
		m.toasts.Push(err.Error(), logsvc.SeverityError)
		return m, nil
	}
	switch result.Kind {
	case action.KindConfirm, action.KindChoice, action.KindInput, action.KindProgress:
		m.overlay = newResultOverlay(result)
	case action.KindSuccess:
		m.toasts.Push(result.Message, logsvc.SeveritySuccess)
	case action.KindError:
		m.toasts.Push(result.Message, logsvc.SeverityError)
	case action.KindInfo:
		m.toasts.Push(result.Message, logsvc.SeverityInfo)
	case action.KindNavigation:
		if result.TargetPaneID != "" {
			_ = m.tmux.SelectPane(m.ctx, result.TargetPaneID)
		}
		if result.Message != "" {
			m.toasts.Push(result.Message, logsvc.SeverityInfo)
		}
	}
	return m, nil
}

func tickToast() tea.Cmd {
	return tea.Tick(toastPollInterval, func(time.Time) tea.Msg { return toastTickMsg{} })
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
