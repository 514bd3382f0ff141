package action

import (
	"context"
	"testing"
	"time"

	"dmux/config"
	"dmux/store"
)

func TestGetAvailableActionsHidesWorktreeOnlyActionsForShellPane(t *testing.T) {
	pane := store.Pane{ID: "p1", Agent: store.AgentNone}
	ids := GetAvailableActions(pane, config.Settings{})

	for _, id := range ids {
		if id == ActionMerge || id == ActionOpenInEditor || id == ActionCopyPath {
			t.Errorf("shell pane should not offer %q", id)
		}
	}
}

func TestGetAvailableActionsOffersMergeForWorktreePane(t *testing.T) {
	pane := store.Pane{ID: "p1", Agent: store.AgentClaude, WorktreePath: "/repo/.dmux/worktrees/x"}
	ids := GetAvailableActions(pane, config.Settings{})

	found := false
	for _, id := range ids {
		if id == ActionMerge {
			found = true
		}
	}
	if !found {
		t.Error("expected merge to be offered for a pane with a worktree")
	}
}

func TestDispatcherInvokeUnknownActionErrors(t *testing.T) {
	d := New()
	_, err := d.Invoke(context.Background(), store.Pane{}, ActionMerge)
	if err == nil {
		t.Error("expected an error for an unregistered action")
	}
}

func TestDispatcherInvokeRunsRegisteredHandler(t *testing.T) {
	d := New()
	d.Register(ActionClose, func(ctx context.Context, pane store.Pane) (Result, error) {
		return Success("closed", true), nil
	})

	result, err := d.Invoke(context.Background(), store.Pane{ID: "p1"}, ActionClose)
	if err != nil {
		t.Fatal(err)
	}
	if result.Kind != KindSuccess || result.Message != "closed" {
		t.Errorf("result = %+v", result)
	}
}

func TestCallbackRegistryBankAndResolveIsSingleUse(t *testing.T) {
	r := NewCallbackRegistry()
	defer r.Stop()

	id := r.Bank(Info("hello", true))

	result, ok := r.Resolve(id)
	if !ok || result.Message != "hello" {
		t.Fatalf("Resolve = %+v, %v", result, ok)
	}

	if _, ok := r.Resolve(id); ok {
		t.Error("expected second Resolve of the same id to fail (single-use)")
	}
}

func TestCallbackRegistrySweepRemovesExpiredEntries(t *testing.T) {
	r := NewCallbackRegistry()
	defer r.Stop()

	id := r.Bank(Info("stale", false))
	r.mu.Lock()
	entry := r.pending[id]
	entry.createdAt = time.Now().Add(-callbackTTL - time.Minute)
	r.pending[id] = entry
	r.mu.Unlock()

	r.sweep()

	if _, ok := r.Resolve(id); ok {
		t.Error("expected expired callback to have been swept")
	}
}

func TestKindStringCoversAllVariants(t *testing.T) {
	kinds := []Kind{KindView, KindNavigation, KindInfo, KindSuccess, KindError, KindConfirm, KindChoice, KindInput, KindProgress}
	for _, k := range kinds {
		if k.String() == "unknown" {
			t.Errorf("Kind %d has no String() mapping", k)
		}
	}
}
