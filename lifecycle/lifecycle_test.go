package lifecycle

import (
	"context"
	"path/filepath"
	"testing"

	"dmux/config"
	"dmux/store"
)

func TestSanitizeSlugLowercasesAndHyphenates(t *testing.T) {
	cases := map[string]string{
		"Fix The Login Bug":  "fix-the-login-bug",
		"  leading/trailing ": "leading-trailing",
		"already-kebab":      "already-kebab",
		"Punctuation!! Here": "punctuation-here",
	}
	for in, want := range cases {
		if got := sanitizeSlug(in); got != want {
			t.Errorf("sanitizeSlug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestShellQuoteEscapesSingleQuotes(t *testing.T) {
	got := shellQuote("it's a test")
	want := `'it'\''s a test'`
	if got != want {
		t.Errorf("shellQuote = %q, want %q", got, want)
	}
}

func TestCloseLockPathIsPerPane(t *testing.T) {
	a := closeLockPath("/repo", "pane-a")
	b := closeLockPath("/repo", "pane-b")
	if a == b {
		t.Error("different pane ids should not share a lock path")
	}
	if filepath.Dir(a) != filepath.Join("/repo", ".dmux", "locks") {
		t.Errorf("lock dir = %q", filepath.Dir(a))
	}
}

func TestToggleAutopilotFlips(t *testing.T) {
	c := &Controller{}
	pane := store.Pane{Autopilot: false}
	pane = c.ToggleAutopilot(pane)
	if !pane.Autopilot {
		t.Error("expected autopilot to flip to true")
	}
	pane = c.ToggleAutopilot(pane)
	if pane.Autopilot {
		t.Error("expected autopilot to flip back to false")
	}
}

func TestOpenInEditorRejectsShellPane(t *testing.T) {
	c := &Controller{}
	err := c.OpenInEditor(nil, store.Pane{ID: "p1"})
	if err == nil {
		t.Error("expected an error for a pane with no worktree")
	}
}

func TestCopyPathRejectsShellPane(t *testing.T) {
	c := &Controller{}
	err := c.CopyPath(store.Pane{ID: "p1"})
	if err == nil {
		t.Error("expected an error for a pane with no worktree")
	}
}

func TestResolveBaseBranchPrefersSettingsOverGit(t *testing.T) {
	// A Controller with a nil Git adapter would panic if resolveBaseBranch
	// ever shelled out here, so a clean return proves the configured
	// BaseBranch short-circuits the CurrentBranch probe — the behaviour an
	// A/B pair relies on to fork both panes from the same commit.
	c := &Controller{}
	got, err := c.resolveBaseBranch(context.Background(), config.Settings{BaseBranch: "develop"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "develop" {
		t.Errorf("resolveBaseBranch = %q, want %q", got, "develop")
	}
}
