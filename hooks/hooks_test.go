package hooks

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeExecutable(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
}

func TestResolveOrder(t *testing.T) {
	root := t.TempDir()
	home := t.TempDir()
	r := New(root, home, nil)

	if _, found, _ := r.Resolve(PostMerge); found {
		t.Fatalf("expected no hook found before any script exists")
	}

	globalPath := filepath.Join(home, ".dmux", "hooks", "post_merge")
	writeExecutable(t, globalPath, "#!/bin/sh\nexit 0\n")
	path, found, notExec := r.Resolve(PostMerge)
	if !found || notExec || path != globalPath {
		t.Fatalf("expected global hook to resolve, got %s found=%v notExec=%v", path, found, notExec)
	}

	teamPath := filepath.Join(root, ".dmux-hooks", "post_merge")
	writeExecutable(t, teamPath, "#!/bin/sh\nexit 0\n")
	path, found, _ = r.Resolve(PostMerge)
	if !found || path != teamPath {
		t.Fatalf("expected team hook to win over global, got %s", path)
	}
}

func TestResolveNotExecutable(t *testing.T) {
	root := t.TempDir()
	r := New(root, t.TempDir(), nil)
	path := filepath.Join(root, ".dmux-hooks", "pre_merge")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("echo hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, found, notExec := r.Resolve(PreMerge)
	if !found || !notExec {
		t.Fatalf("expected found but not executable, got found=%v notExec=%v", found, notExec)
	}
}

func TestRunSyncBlocksOnExitCode(t *testing.T) {
	root := t.TempDir()
	r := New(root, t.TempDir(), nil)
	path := filepath.Join(root, ".dmux-hooks", "pre_merge")
	writeExecutable(t, path, "#!/bin/sh\nexit 3\n")

	res := r.Run(context.Background(), PreMerge, Env{Root: root, WorktreePath: root})
	if !res.Ran {
		t.Fatalf("expected hook to run")
	}
	if res.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", res.ExitCode)
	}
}

func TestRunMissingHookIsNotAnError(t *testing.T) {
	root := t.TempDir()
	r := New(root, t.TempDir(), nil)
	res := r.Run(context.Background(), PostClose, Env{Root: root})
	if res.Ran {
		t.Fatalf("expected missing hook to report Ran=false")
	}
}

func TestMetadataOverridesSyncMode(t *testing.T) {
	root := t.TempDir()
	r := New(root, t.TempDir(), nil)
	path := filepath.Join(root, ".dmux-hooks", "post_merge")
	writeExecutable(t, path, "#!/bin/sh\ntouch "+filepath.Join(root, "ran")+"\n")
	writeExecutable(t, path+".toml", "sync = true\n")

	res := r.Run(context.Background(), PostMerge, Env{Root: root, WorktreePath: root})
	if !res.Ran || res.ExitCode != 0 {
		t.Fatalf("expected synchronous run to complete cleanly, got %+v", res)
	}
	if _, err := os.Stat(filepath.Join(root, "ran")); err != nil {
		t.Fatalf("expected hook side effect to be visible once Run returns: %v", err)
	}
}

func TestEnvIncludesTargetBranchOnlyWhenSet(t *testing.T) {
	e := Env{Root: "/r", Slug: "x"}
	slice := e.toSlice()
	for _, kv := range slice {
		if kv == "DMUX_TARGET_BRANCH=" {
			t.Fatalf("did not expect empty DMUX_TARGET_BRANCH to be present")
		}
	}
	e.TargetBranch = "main"
	slice = e.toSlice()
	found := false
	for _, kv := range slice {
		if kv == "DMUX_TARGET_BRANCH=main" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected DMUX_TARGET_BRANCH=main in env")
	}
}
