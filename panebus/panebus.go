// Package panebus unifies tmux-hook-triggered and polled pane-change
// notifications behind one Bus interface (spec.md §4.6). Reconciliation —
// matching tmux pane ids back to pane records — belongs to the lifecycle
// controller, not this package: panebus only decides that the tmux-level
// set of panes changed.
package panebus

import (
	"context"
	"errors"
	"time"
)

// Event is the single notification shape the bus emits.
type Event struct {
	AddedIDs   []string
	RemovedIDs []string
	Source     string
	Timestamp  time.Time
}

// Bus is implemented by both HookBus and PollBus.
type Bus interface {
	// Start begins emitting events to the given callback.
	Start(ctx context.Context, onChange func(Event)) error
	// Stop tears down the backend.
	Stop()
	// ForceCheck requests an immediate check outside the normal cadence.
	ForceCheck()
	Mode() string
}

// Start tries preferred first and falls back to fallback on install
// failure, mirroring a CLI's alias-then-PATH-then-error resolution
// cascade. Returns the mode name that ended up running.
func Start(ctx context.Context, preferred, fallback Bus, onChange func(Event)) (mode string, err error) {
	if preferred != nil {
		if err := preferred.Start(ctx, onChange); err == nil {
			return preferred.Mode(), nil
		}
	}
	if fallback == nil {
		return "", errNoBackend
	}
	if err := fallback.Start(ctx, onChange); err != nil {
		return "", err
	}
	return fallback.Mode(), nil
}

var errNoBackend = errors.New("panebus: no backend available")
