package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"dmux/action"
	"dmux/lifecycle"
	"dmux/logsvc"
	"dmux/store"
	"dmux/tmux"
)

// Run starts the control-pane TUI and blocks until the user quits or ctx is
// canceled, mirroring claude-squad's app.Run entrypoint shape.
func Run(ctx context.Context, st *store.Store, tm *tmux.Adapter, dispatcher *action.Dispatcher, lc *lifecycle.Controller, toasts *logsvc.ToastQueue) error {
	m := New(ctx, st, tm, dispatcher, lc, toasts)
	program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	unsubscribe := m.Attach(program)
	defer unsubscribe()

	_, err := program.Run()
	return err
}
