package config

import (
	"path/filepath"
	"testing"
)

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name    string
		s       Settings
		wantErr bool
	}{
		{"zero value valid", Settings{}, false},
		{"valid permission mode", Settings{PermissionMode: PermissionAcceptEdits}, false},
		{"invalid permission mode", Settings{PermissionMode: "yolo"}, true},
		{"valid agent", Settings{DefaultAgent: AgentCodex}, false},
		{"invalid agent", Settings{DefaultAgent: "gpt5"}, true},
		{"valid base branch", Settings{BaseBranch: "main"}, false},
		{"invalid base branch", Settings{BaseBranch: "bad branch"}, true},
		{"valid branch prefix with trailing slash", Settings{BranchPrefix: "alice/"}, false},
		{"invalid branch prefix", Settings{BranchPrefix: "al ice/"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSettingsMergePrecedence(t *testing.T) {
	base := Settings{
		PermissionMode: PermissionPlan,
		BaseBranch:     "main",
		BranchPrefix:   "bob/",
	}
	override := Settings{
		PermissionMode: PermissionBypassPermissions,
	}
	merged := base.Merge(override)
	if merged.PermissionMode != PermissionBypassPermissions {
		t.Errorf("PermissionMode = %v, want override to win", merged.PermissionMode)
	}
	if merged.BaseBranch != "main" {
		t.Errorf("BaseBranch = %v, want base to survive untouched override field", merged.BaseBranch)
	}
}

func TestSaveAndLoadProjectSettings(t *testing.T) {
	dir := t.TempDir()
	want := Settings{
		PermissionMode: PermissionAcceptEdits,
		BaseBranch:     "develop",
		BranchPrefix:   "team/",
	}
	if err := SaveProjectSettings(dir, want); err != nil {
		t.Fatalf("SaveProjectSettings() error = %v", err)
	}
	got, err := readSettingsFile(ProjectSettingsPath(dir))
	if err != nil {
		t.Fatalf("readSettingsFile() error = %v", err)
	}
	if got != want {
		t.Errorf("readSettingsFile() = %+v, want %+v", got, want)
	}
}

func TestProjectSettingsPath(t *testing.T) {
	got := ProjectSettingsPath("/repo")
	want := filepath.Join("/repo", ".dmux", "settings.json")
	if got != want {
		t.Errorf("ProjectSettingsPath() = %q, want %q", got, want)
	}
}

func TestReadSettingsFileMissingIsZeroValue(t *testing.T) {
	dir := t.TempDir()
	got, err := readSettingsFile(filepath.Join(dir, "does-not-exist.json"))
	if err != nil {
		t.Fatalf("readSettingsFile() error = %v", err)
	}
	if got != (Settings{}) {
		t.Errorf("readSettingsFile() on missing file = %+v, want zero value", got)
	}
}
