package gitwt

import "testing"

func TestValidateBranchFragment(t *testing.T) {
	tests := []struct {
		name    string
		frag    string
		wantErr bool
	}{
		{"simple", "fix-auth-bug", false},
		{"slashes ok mid-string", "feature/auth", false},
		{"space", "fix auth bug", true},
		{"dotdot", "fix..bug", true},
		{"tilde", "fix~1", true},
		{"caret", "fix^1", true},
		{"colon", "fix:bug", true},
		{"question", "fix?bug", true},
		{"asterisk", "fix*bug", true},
		{"bracket", "fix[bug", true},
		{"backslash", `fix\bug`, true},
		{"leading dash", "-fixbug", true},
		{"trailing slash", "fixbug/", true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBranchFragment(tt.frag)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBranchFragment(%q) error = %v, wantErr %v", tt.frag, err, tt.wantErr)
			}
		})
	}
}

func TestSlugifyBranchFragment(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercases and dashes", "Fix The Auth Bug", "fix-the-auth-bug"},
		{"collapses repeats", "fix   auth -- bug", "fix-auth-bug"},
		{"trims edges", "--fix-bug--", "fix-bug"},
		{"strips punctuation", "fix auth bug!!", "fix-auth-bug"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SlugifyBranchFragment(tt.input)
			if got != tt.want {
				t.Errorf("SlugifyBranchFragment(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestAppendAgentSuffixIdempotent(t *testing.T) {
	// append(append(b,s),s) = append(b,s) — idempotent suffix appending.
	base := "fix-auth-bug"
	for _, agent := range []string{"claude", "opencode", "codex"} {
		once := AppendAgentSuffix(base, agent)
		twice := AppendAgentSuffix(once, agent)
		if once != twice {
			t.Errorf("AppendAgentSuffix(%q) not idempotent: once=%q twice=%q", agent, once, twice)
		}
	}
}

func TestAppendAgentSuffixKnownAgents(t *testing.T) {
	tests := []struct {
		agent string
		want  string
	}{
		{"claude", "fix-auth-bug-claude-code"},
		{"opencode", "fix-auth-bug-opencode"},
		{"codex", "fix-auth-bug-codex"},
	}
	for _, tt := range tests {
		got := AppendAgentSuffix("fix-auth-bug", tt.agent)
		if got != tt.want {
			t.Errorf("AppendAgentSuffix(%q) = %q, want %q", tt.agent, got, tt.want)
		}
	}
}

func TestAppendAgentSuffixUnknownAgentUnchanged(t *testing.T) {
	got := AppendAgentSuffix("fix-auth-bug", "none")
	if got != "fix-auth-bug" {
		t.Errorf("AppendAgentSuffix(unknown) = %q, want unchanged", got)
	}
}

func TestParseWorktreeList(t *testing.T) {
	out := "worktree /repo\nHEAD abc123\nbranch refs/heads/main\n\n" +
		"worktree /repo/.dmux/worktrees/fix-auth-bug\nHEAD def456\nbranch refs/heads/fix-auth-bug\n"
	got := parseWorktreeList(out)
	if len(got) != 2 {
		t.Fatalf("expected 2 worktrees, got %d", len(got))
	}
	if got[0].Path != "/repo" || got[0].Branch != "main" {
		t.Errorf("unexpected first entry: %+v", got[0])
	}
	if got[1].Path != "/repo/.dmux/worktrees/fix-auth-bug" || got[1].Branch != "fix-auth-bug" {
		t.Errorf("unexpected second entry: %+v", got[1])
	}
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not a working tree", &Error{Stderr: "fatal: 'x' is not a working tree"}, true},
		{"already exists", &Error{Stderr: "fatal: branch already exists"}, true},
		{"unrelated", &Error{Stderr: "fatal: ambiguous argument"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.want {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewDiffStats(t *testing.T) {
	content := "diff --git a/f b/f\n--- a/f\n+++ b/f\n+added line\n-removed line\n"
	stats := NewDiffStats(content)
	if stats.Added != 1 || stats.Removed != 1 {
		t.Errorf("NewDiffStats() = %+v, want Added=1 Removed=1", stats)
	}
}
