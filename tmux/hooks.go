package tmux

import (
	"context"
	"fmt"
)

// HookNames are the tmux hooks dmux installs/uninstalls as a unit
// (spec.md §6 "Tmux hooks installed").
var HookNames = []string{
	"session-window-changed",
	"window-pane-changed",
	"pane-exited",
	"client-session-changed",
}

// hookCommand pings socketPath with a single byte using tmux's built-in
// run-shell, so the only external dependency a hook fires is a tiny shell
// one-liner, not a helper binary.
func hookCommand(socketPath string) string {
	return fmt.Sprintf(`run-shell "printf x | nc -U -q0 %s 2>/dev/null || true"`, socketPath)
}

// InstallHooks binds every name in HookNames to ping socketPath.
func (a *Adapter) InstallHooks(ctx context.Context, socketPath string) error {
	cmd := hookCommand(socketPath)
	for _, name := range HookNames {
		if _, err := a.mutate(ctx, "set-hook", "-g", name, cmd); err != nil {
			return fmt.Errorf("failed to install hook %s: %w", name, err)
		}
	}
	return nil
}

// UninstallHooks removes every hook in HookNames by name, tolerating hooks
// that were never installed.
func (a *Adapter) UninstallHooks(ctx context.Context) error {
	for _, name := range HookNames {
		if _, err := a.mutate(ctx, "set-hook", "-gu", name); err != nil && !isMissingPane(err) {
			return fmt.Errorf("failed to uninstall hook %s: %w", name, err)
		}
	}
	return nil
}
