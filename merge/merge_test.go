package merge

import (
	"context"
	"strings"
	"testing"
	"time"

	"dmux/action"
	"dmux/config"
	"dmux/store"
)

func newTestSession(t *testing.T, panes []store.Pane, settings config.Settings) *Session {
	t.Helper()
	st := store.New("proj", "/proj", settings)
	st.UpdatePanes(panes, "", "", time.Now())
	return &Session{Store: st, ProjectRoot: "/proj"}
}

func TestValidateNoWorktreeIsAnError(t *testing.T) {
	s := newTestSession(t, nil, config.Settings{})
	pane := store.Pane{ID: "p1"}

	result, clean, err := s.Validate(context.Background(), pane, "main")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clean {
		t.Fatalf("expected clean=false for a shell pane")
	}
	if result.Kind != action.KindError {
		t.Fatalf("expected KindError, got %v", result.Kind)
	}
}

func TestValidateDetectsSiblings(t *testing.T) {
	panes := []store.Pane{
		{ID: "p1", Slug: "fix-bug", WorktreePath: "/proj/.dmux/worktrees/fix-bug"},
		{ID: "p2", Slug: "fix-bug-codex", WorktreePath: "/proj/.dmux/worktrees/fix-bug"},
	}
	s := newTestSession(t, panes, config.Settings{})

	result, clean, err := s.Validate(context.Background(), panes[0], "main")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clean {
		t.Fatalf("expected clean=false when siblings share the worktree")
	}
	if result.Kind != action.KindConfirm {
		t.Fatalf("expected a confirm result prompting to close siblings, got %v", result.Kind)
	}
}

func TestBranchForUsesSettingsPrefix(t *testing.T) {
	s := newTestSession(t, nil, config.Settings{BranchPrefix: "alice/"})
	pane := store.Pane{Slug: "fix-bug"}
	if got := s.branchFor(pane); got != "alice/fix-bug" {
		t.Fatalf("branchFor = %q, want %q", got, "alice/fix-bug")
	}
}

func TestDiscoverSubWorktreesOrdersLeavesFirst(t *testing.T) {
	root := store.Pane{ID: "root", WorktreePath: "/proj/.dmux/worktrees/root"}
	shallow := store.Pane{ID: "shallow", WorktreePath: "/proj/.dmux/worktrees/root/.dmux/worktrees/child"}
	deep := store.Pane{ID: "deep", WorktreePath: "/proj/.dmux/worktrees/root/.dmux/worktrees/child/.dmux/worktrees/grandchild"}
	unrelated := store.Pane{ID: "other", WorktreePath: "/proj/.dmux/worktrees/unrelated"}

	s := newTestSession(t, []store.Pane{root, shallow, deep, unrelated}, config.Settings{})
	got := s.DiscoverSubWorktrees(root)

	if len(got) != 2 {
		t.Fatalf("expected 2 sub-worktrees, got %d: %+v", len(got), got)
	}
	if got[0].ID != "deep" || got[1].ID != "shallow" {
		t.Fatalf("expected deepest worktree first, got order %s, %s", got[0].ID, got[1].ID)
	}
}

func TestConflictPromptNamesBothBranches(t *testing.T) {
	prompt := conflictPrompt("fix-bug", "main")
	if !strings.Contains(prompt, "fix-bug") || !strings.Contains(prompt, "main") {
		t.Fatalf("expected prompt to name both branches: %s", prompt)
	}
}
