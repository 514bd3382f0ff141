package store

import (
	"path/filepath"
	"testing"
	"time"

	"dmux/config"
)

func TestWatcherInitialReadPopulatesStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".dmux", ConfigFileName)
	pf := PaneFile{Panes: []Pane{{ID: "p1", Slug: "fix-bug"}}, ControlPaneID: "%1"}
	if err := WritePaneFile(path, pf, time.Now()); err != nil {
		t.Fatalf("WritePaneFile() error = %v", err)
	}

	st := New("proj", dir, config.Settings{})
	w := NewWatcher(st, path)
	stop, err := w.Start()
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer stop()

	snap := st.Snapshot()
	if len(snap.Panes) != 1 || snap.Panes[0].ID != "p1" {
		t.Errorf("snapshot after Start() = %+v, want one pane p1", snap.Panes)
	}
	if snap.ControlPaneID != "%1" {
		t.Errorf("ControlPaneID = %q, want %%1", snap.ControlPaneID)
	}
}

func TestRereadIsIdempotentOnUnchangedContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".dmux", ConfigFileName)
	pf := PaneFile{Panes: []Pane{{ID: "p1"}}}
	if err := WritePaneFile(path, pf, time.Now()); err != nil {
		t.Fatalf("WritePaneFile() error = %v", err)
	}

	st := New("proj", dir, config.Settings{})
	w := NewWatcher(st, path)
	if err := w.reread(); err != nil {
		t.Fatalf("first reread() error = %v", err)
	}
	firstHash := w.lastHash

	// rereading the exact same bytes must be a no-op: hash unchanged.
	if err := w.reread(); err != nil {
		t.Fatalf("second reread() error = %v", err)
	}
	if w.lastHash != firstHash {
		t.Error("reread() on unchanged content altered lastHash; expected idempotence")
	}
}

func TestWriteLockedThenReadPaneFileRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".dmux", ConfigFileName)
	want := PaneFile{Panes: []Pane{{ID: "p1", Slug: "fix-bug", Agent: AgentClaude}}, WelcomePaneID: "%2"}

	if err := WriteLocked(path, want, time.Now()); err != nil {
		t.Fatalf("WriteLocked() error = %v", err)
	}

	got, err := ReadPaneFile(path)
	if err != nil {
		t.Fatalf("ReadPaneFile() error = %v", err)
	}
	if len(got.Panes) != 1 || got.Panes[0].ID != "p1" || got.Panes[0].Agent != AgentClaude {
		t.Errorf("ReadPaneFile() = %+v, want round-tripped pane", got.Panes)
	}
	if got.WelcomePaneID != "%2" {
		t.Errorf("WelcomePaneID = %q, want %%2", got.WelcomePaneID)
	}
}
