package action

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"dmux/config"
	"dmux/store"
)

// ID names a dispatchable pane action.
type ID string

const (
	ActionMerge           ID = "merge"
	ActionClose           ID = "close"
	ActionRename          ID = "rename"
	ActionDuplicate       ID = "duplicate"
	ActionOpenInEditor    ID = "open_in_editor"
	ActionCopyPath        ID = "copy_path"
	ActionToggleAutopilot ID = "toggle_autopilot"
)

// Handler runs one action against a pane and returns its first Result.
type Handler func(ctx context.Context, pane store.Pane) (Result, error)

// Dispatcher routes an action ID to its Handler and, for HTTP, banks the
// Result's callbacks in a CallbackRegistry so a follow-up request can
// resolve them.
type Dispatcher struct {
	Handlers  map[ID]Handler
	Callbacks *CallbackRegistry
}

// New constructs a Dispatcher with a fresh CallbackRegistry.
func New() *Dispatcher {
	return &Dispatcher{Handlers: make(map[ID]Handler), Callbacks: NewCallbackRegistry()}
}

// Register attaches handler to id, overwriting any prior registration.
func (d *Dispatcher) Register(id ID, handler Handler) {
	d.Handlers[id] = handler
}

// Invoke materialises the first Result for id against pane.
func (d *Dispatcher) Invoke(ctx context.Context, pane store.Pane, id ID) (Result, error) {
	handler, ok := d.Handlers[id]
	if !ok {
		return Result{}, fmt.Errorf("action: no handler registered for %q", id)
	}
	return handler(ctx, pane)
}

// actionAvailability maps each ID to a predicate over the pane deciding
// whether that action is offered at all.
var actionAvailability = map[ID]func(pane store.Pane) bool{
	ActionMerge:           func(p store.Pane) bool { return p.HasWorktree() },
	ActionClose:           func(p store.Pane) bool { return true },
	ActionRename:          func(p store.Pane) bool { return true },
	ActionDuplicate:       func(p store.Pane) bool { return p.Agent != store.AgentNone },
	ActionOpenInEditor:    func(p store.Pane) bool { return p.HasWorktree() },
	ActionCopyPath:        func(p store.Pane) bool { return p.HasWorktree() },
	ActionToggleAutopilot: func(p store.Pane) bool { return p.Agent != store.AgentNone },
}

// allActionIDs fixes the iteration order GetAvailableActions reports in,
// so two calls against the same pane produce the same slice.
var allActionIDs = []ID{
	ActionMerge, ActionClose, ActionRename, ActionDuplicate,
	ActionOpenInEditor, ActionCopyPath, ActionToggleAutopilot,
}

// GetAvailableActions filters the static action table by pane shape: no
// worktree suppresses merge/editor/copy-path, agent=none suppresses
// agent-specific actions (spec.md §4.11). settings is accepted for parity
// with the spec's getAvailableActions(pane, settings) signature; no
// current predicate depends on it, but a future settings-gated action
// (e.g. disabling autopilot entirely) has somewhere to plug in.
func GetAvailableActions(pane store.Pane, settings config.Settings) []ID {
	_ = settings
	var out []ID
	for _, id := range allActionIDs {
		if predicate, ok := actionAvailability[id]; ok && predicate(pane) {
			out = append(out, id)
		}
	}
	return out
}

// pendingCallback is one banked follow-up, expiring after callbackTTL.
type pendingCallback struct {
	result    Result
	createdAt time.Time
}

const callbackTTL = 10 * time.Minute
const callbackGCInterval = time.Minute

// CallbackRegistry banks a Result's OnConfirm/OnSelect/OnSubmit callbacks
// under a random ID so the HTTP facade can resolve them from a later
// request, garbage-collecting entries older than callbackTTL.
type CallbackRegistry struct {
	mu      sync.Mutex
	pending map[string]pendingCallback
	stop    chan struct{}
}

func NewCallbackRegistry() *CallbackRegistry {
	r := &CallbackRegistry{pending: make(map[string]pendingCallback), stop: make(chan struct{})}
	go r.gcLoop()
	return r
}

// Bank stores result under a fresh uuid and returns it.
func (r *CallbackRegistry) Bank(result Result) string {
	id := uuid.New().String()
	r.mu.Lock()
	r.pending[id] = pendingCallback{result: result, createdAt: time.Now()}
	r.mu.Unlock()
	return id
}

// Resolve looks up a banked Result by id, removing it (callbacks are
// single-use).
func (r *CallbackRegistry) Resolve(id string) (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.pending[id]
	if !ok {
		return Result{}, false
	}
	delete(r.pending, id)
	return entry.result, true
}

func (r *CallbackRegistry) gcLoop() {
	ticker := time.NewTicker(callbackGCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *CallbackRegistry) sweep() {
	cutoff := time.Now().Add(-callbackTTL)
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, entry := range r.pending {
		if entry.createdAt.Before(cutoff) {
			delete(r.pending, id)
		}
	}
}

// Stop ends the background GC sweep.
func (r *CallbackRegistry) Stop() {
	close(r.stop)
}
