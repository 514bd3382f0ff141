// Package hooks resolves and executes user lifecycle scripts: team hooks
// checked into the repo, a local override, or a global fallback under the
// user's home directory, whichever is found first (spec.md §4.13).
package hooks

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"dmux/logsvc"
)

// Name identifies a lifecycle hook point.
type Name string

const (
	PreMerge  Name = "pre_merge"
	PostMerge Name = "post_merge"
	PrePR     Name = "pre_pr"
	PreCreate Name = "pre_create"
	PostClose Name = "post_close"
)

// DefaultTimeout bounds a synchronous hook; merges may extend it up to
// MaxMergeTimeout for long-running resolutions (spec.md §4.13).
const (
	DefaultTimeout  = 30 * time.Second
	MaxMergeTimeout = 10 * time.Minute
)

// syncHooks are the ones spec.md §4.13 calls out as synchronous by default;
// everything else runs detached.
var syncHooks = map[Name]bool{
	PrePR:     true,
	PreMerge:  true,
	PostMerge: false,
}

// metadata is the optional sidecar "<hookName>.toml" overriding defaults.
type metadata struct {
	Sync      *bool `toml:"sync"`
	TimeoutMs *int  `toml:"timeout_ms"`
}

// Runner resolves hook scripts against a project root and a home
// directory, in the order team > local > global.
type Runner struct {
	ProjectRoot string
	HomeDir     string
	Ring        *logsvc.Ring
}

func New(projectRoot, homeDir string, ring *logsvc.Ring) *Runner {
	return &Runner{ProjectRoot: projectRoot, HomeDir: homeDir, Ring: ring}
}

// searchPaths returns the three candidate locations for name, in
// resolution order.
func (r *Runner) searchPaths(name Name) []string {
	return []string{
		filepath.Join(r.ProjectRoot, ".dmux-hooks", string(name)),
		filepath.Join(r.ProjectRoot, ".dmux", "hooks", string(name)),
		filepath.Join(r.HomeDir, ".dmux", "hooks", string(name)),
	}
}

// Resolve finds the first executable hook script, skipping candidates that
// exist but are not executable. found is false when no candidate path
// exists at all; when candidates exist but none is executable, the first of
// them is returned with notExecutable set so the caller can log and skip it
// rather than silently doing nothing.
func (r *Runner) Resolve(name Name) (path string, found bool, notExecutable bool) {
	skipped := ""
	for _, candidate := range r.searchPaths(name) {
		info, err := os.Stat(candidate)
		if err != nil {
			continue
		}
		if info.Mode()&0o111 == 0 {
			if skipped == "" {
				skipped = candidate
			}
			continue
		}
		return candidate, true, false
	}
	if skipped != "" {
		return skipped, true, true
	}
	return "", false, false
}

func (r *Runner) readMetadata(scriptPath string) metadata {
	var m metadata
	data, err := os.ReadFile(scriptPath + ".toml")
	if err != nil {
		return m
	}
	_ = toml.Unmarshal(data, &m)
	return m
}

// Env is the flat key/value set a hook invocation runs with, built the way
// the lifecycle controller's temp-file prompt handoff assembles its shell
// environment: a fixed list of named fields plus caller-supplied extras.
type Env struct {
	Root           string
	ServerPort     int
	PaneID         string
	Slug           string
	Prompt         string
	Agent          string
	TmuxPaneID     string
	WorktreePath   string
	Branch         string
	TargetBranch   string // merge hooks only
	Extra          map[string]string
}

func (e Env) toSlice() []string {
	out := []string{
		"DMUX_ROOT=" + e.Root,
		"DMUX_SERVER_PORT=" + fmt.Sprint(e.ServerPort),
		"DMUX_PANE_ID=" + e.PaneID,
		"DMUX_SLUG=" + e.Slug,
		"DMUX_PROMPT=" + e.Prompt,
		"DMUX_AGENT=" + e.Agent,
		"DMUX_TMUX_PANE_ID=" + e.TmuxPaneID,
		"DMUX_WORKTREE_PATH=" + e.WorktreePath,
		"DMUX_BRANCH=" + e.Branch,
	}
	if e.TargetBranch != "" {
		out = append(out, "DMUX_TARGET_BRANCH="+e.TargetBranch)
	}
	for k, v := range e.Extra {
		out = append(out, k+"="+v)
	}
	return append(os.Environ(), out...)
}

// Result is what a single hook invocation produced, for the caller to log.
type Result struct {
	Ran      bool
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

// Run resolves name and executes it, synchronously if name is one of
// spec.md's sync hooks (or its metadata overrides that), detached
// otherwise. A missing script is not an error — Result.Ran is false.
func (r *Runner) Run(ctx context.Context, name Name, env Env) Result {
	path, found, notExecutable := r.Resolve(name)
	if !found {
		return Result{Ran: false}
	}
	if notExecutable {
		r.log(logsvc.LevelWarn, fmt.Sprintf("hook %s at %s is not executable, skipping", name, path))
		return Result{Ran: false}
	}

	meta := r.readMetadata(path)
	sync := syncHooks[name]
	if meta.Sync != nil {
		sync = *meta.Sync
	}
	timeout := DefaultTimeout
	if meta.TimeoutMs != nil {
		timeout = time.Duration(*meta.TimeoutMs) * time.Millisecond
	}

	if sync {
		return r.runSync(ctx, path, env, timeout)
	}
	r.runDetached(path, env)
	return Result{Ran: true}
}

// RunMergeSync is Run for pre_merge/post_merge with the extended long-merge
// timeout budget spec.md §4.13 allows.
func (r *Runner) RunMergeSync(ctx context.Context, name Name, env Env) Result {
	path, found, notExecutable := r.Resolve(name)
	if !found || notExecutable {
		if notExecutable {
			r.log(logsvc.LevelWarn, fmt.Sprintf("hook %s at %s is not executable, skipping", name, path))
		}
		return Result{Ran: false}
	}
	meta := r.readMetadata(path)
	timeout := MaxMergeTimeout
	if meta.TimeoutMs != nil {
		timeout = time.Duration(*meta.TimeoutMs) * time.Millisecond
	}
	return r.runSync(ctx, path, env, timeout)
}

func (r *Runner) runSync(ctx context.Context, path string, env Env, timeout time.Duration) Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path)
	cmd.Env = env.toSlice()
	cmd.Dir = env.WorktreePath
	if cmd.Dir == "" {
		cmd.Dir = env.Root
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		exitCode = -1
		var exitErr *exec.ExitError
		if bytesAsExitError(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		r.log(logsvc.LevelWarn, fmt.Sprintf("hook %s exited %d: %s", filepath.Base(path), exitCode, stderr.String()))
	}
	return Result{Ran: true, ExitCode: exitCode, Stdout: stdout.String(), Stderr: stderr.String(), Err: err}
}

// runDetached launches path without waiting, logging its exit code once it
// finishes (spec.md §4.13 "detached (default, logs exit code)").
func (r *Runner) runDetached(path string, env Env) {
	cmd := exec.Command(path)
	cmd.Env = env.toSlice()
	cmd.Dir = env.WorktreePath
	if cmd.Dir == "" {
		cmd.Dir = env.Root
	}
	if err := cmd.Start(); err != nil {
		r.log(logsvc.LevelWarn, fmt.Sprintf("failed to start hook %s: %v", filepath.Base(path), err))
		return
	}
	go func() {
		err := cmd.Wait()
		exitCode := 0
		if err != nil {
			exitCode = -1
			var exitErr *exec.ExitError
			if bytesAsExitError(err, &exitErr) {
				exitCode = exitErr.ExitCode()
			}
		}
		r.log(logsvc.LevelInfo, fmt.Sprintf("hook %s finished with exit %d", filepath.Base(path), exitCode))
	}()
}

func bytesAsExitError(err error, target **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if ok {
		*target = ee
	}
	return ok
}

func (r *Runner) log(level logsvc.Level, message string) {
	if r.Ring != nil {
		r.Ring.Push(level, "hooks", message, "", "")
	}
}
