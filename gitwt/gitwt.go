// Package gitwt is the git adapter: worktree and branch lifecycle, status,
// diff, merge and stash primitives. Read-only inspection goes through
// go-git; anything go-git does not implement (worktree add/remove, merge,
// stash) is shelled out to the git binary.
package gitwt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Adapter runs git operations against a single repository root.
type Adapter struct {
	RepoRoot string
	// Timeout bounds every shelled git invocation. Zero means 5s, the
	// mutation budget from the concurrency model.
	Timeout time.Duration
}

func New(repoRoot string) *Adapter {
	return &Adapter{RepoRoot: repoRoot, Timeout: 5 * time.Second}
}

// Error wraps a failed git invocation with its exit code and stderr.
type Error struct {
	Op       string
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("git %s %s: exit %d: %s", e.Op, strings.Join(e.Args, " "), e.ExitCode, e.Stderr)
}

func (a *Adapter) run(ctx context.Context, dir string, args ...string) (string, error) {
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		op := ""
		if len(args) > 0 {
			op = args[0]
		}
		return "", &Error{Op: op, Args: args, ExitCode: exitCode, Stderr: stderr.String()}
	}
	return string(out), nil
}

// IsNotFound reports whether err indicates a resource ("branch already
// deleted", "worktree already gone") that was never there to begin with —
// the "expected-missing" error category from the error handling design.
// It also reports true for an "already exists" message.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{
		"not a working tree",
		"is not a working tree",
		"no such file or directory",
		"branch not found",
		"not found",
		"already exists",
	} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

// ValidateBranchFragment rejects any fragment that is not legal inside a
// git ref: whitespace, "..", "~", "^", ":", "?", "*", "[", "\\", a leading
// "-" or a trailing "/".
func ValidateBranchFragment(s string) error {
	if s == "" {
		return fmt.Errorf("branch fragment is empty")
	}
	if strings.ContainsAny(s, " \t\n~^:?*[\\") || strings.Contains(s, "..") {
		return fmt.Errorf("branch fragment %q contains a disallowed character", s)
	}
	if strings.HasPrefix(s, "-") {
		return fmt.Errorf("branch fragment %q must not start with '-'", s)
	}
	if strings.HasSuffix(s, "/") {
		return fmt.Errorf("branch fragment %q must not end with '/'", s)
	}
	return nil
}

var (
	unsafeCharsRegex = regexp.MustCompile(`[^a-z0-9\-_/.]+`)
	multiDashRegex   = regexp.MustCompile(`-+`)
	multiDotRegex    = regexp.MustCompile(`\.{2,}`)
)

// SlugifyBranchFragment turns arbitrary text into a branch-safe fragment.
// Unlike ValidateBranchFragment (reject), this mutates so a derived slug
// always passes validation.
func SlugifyBranchFragment(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "-")
	s = unsafeCharsRegex.ReplaceAllString(s, "")
	s = multiDashRegex.ReplaceAllString(s, "-")
	s = multiDotRegex.ReplaceAllString(s, ".")
	s = strings.Trim(s, "-/")
	if s == "" {
		s = fmt.Sprintf("dmux-%d", time.Now().Unix())
	}
	return s
}

// agentSlugSuffixes maps each agent identifier to the fragment appended to
// an A/B pair's shared base slug (spec.md §3/§4.9 step 2).
var agentSlugSuffixes = map[string]string{
	"claude":   "-claude-code",
	"opencode": "-opencode",
	"codex":    "-codex",
}

// AppendAgentSuffix appends agent's slug suffix to base, idempotently: a
// base that already ends with the suffix is returned unchanged, satisfying
// append(append(b,s),s) = append(b,s). Unknown agents are returned as-is.
func AppendAgentSuffix(base, agent string) string {
	suffix, ok := agentSlugSuffixes[agent]
	if !ok {
		return base
	}
	if strings.HasSuffix(base, suffix) {
		return base
	}
	return base + suffix
}

// CurrentBranch returns the short name of HEAD in dir.
func (a *Adapter) CurrentBranch(ctx context.Context, dir string) (string, error) {
	out, err := a.run(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// MainBranch probes, in order: the remote's symbolic HEAD, then local
// "main", then local "master".
func (a *Adapter) MainBranch(ctx context.Context, dir string) (string, error) {
	if out, err := a.run(ctx, dir, "symbolic-ref", "refs/remotes/origin/HEAD"); err == nil {
		ref := strings.TrimSpace(out)
		return strings.TrimPrefix(ref, "refs/remotes/origin/"), nil
	}
	repo, err := git.PlainOpen(dir)
	if err == nil {
		for _, candidate := range []string{"main", "master"} {
			if _, refErr := repo.Reference(plumbing.NewBranchReferenceName(candidate), false); refErr == nil {
				return candidate, nil
			}
		}
	}
	return "", fmt.Errorf("could not determine main branch for %s", dir)
}

// WorktreeInfo is one entry of `git worktree list --porcelain`.
type WorktreeInfo struct {
	Path   string
	Branch string
	Head   string
}

// WorktreeList lists all worktrees registered against the repository.
func (a *Adapter) WorktreeList(ctx context.Context, dir string) ([]WorktreeInfo, error) {
	out, err := a.run(ctx, dir, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parseWorktreeList(out), nil
}

func parseWorktreeList(out string) []WorktreeInfo {
	var trees []WorktreeInfo
	var cur WorktreeInfo
	flush := func() {
		if cur.Path != "" {
			trees = append(trees, cur)
		}
		cur = WorktreeInfo{}
	}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, "worktree "):
			flush()
			cur.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "HEAD "):
			cur.Head = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			cur.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		}
	}
	flush()
	return trees
}

// WorktreeAdd creates a new worktree at path on branch, optionally based
// off base (HEAD if base is empty). If branch already exists it is
// attached to rather than recreated.
func (a *Adapter) WorktreeAdd(ctx context.Context, path, branch, base string) error {
	if err := ValidateBranchFragment(branch); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create worktree parent directory: %w", err)
	}

	repo, err := git.PlainOpen(a.RepoRoot)
	if err != nil {
		return fmt.Errorf("failed to open repository: %w", err)
	}
	if _, refErr := repo.Reference(plumbing.NewBranchReferenceName(branch), false); refErr == nil {
		_, err := a.run(ctx, a.RepoRoot, "worktree", "add", path, branch)
		return err
	}

	args := []string{"worktree", "add", "-b", branch, path}
	if base != "" {
		args = append(args, base)
	} else {
		args = append(args, "HEAD")
	}
	_, err = a.run(ctx, a.RepoRoot, args...)
	return err
}

// WorktreeRemove removes the worktree at path. force bypasses the
// uncommitted-changes safety check.
func (a *Adapter) WorktreeRemove(ctx context.Context, path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "-f")
	}
	args = append(args, path)
	_, err := a.run(ctx, a.RepoRoot, args...)
	if err != nil && IsNotFound(err) {
		return nil
	}
	return err
}

func (a *Adapter) WorktreePrune(ctx context.Context) error {
	_, err := a.run(ctx, a.RepoRoot, "worktree", "prune")
	return err
}

// StatusPorcelain returns the list of changed file paths in dir.
func (a *Adapter) StatusPorcelain(ctx context.Context, dir string) ([]string, error) {
	out, err := a.run(ctx, dir, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		if len(line) > 3 {
			files = append(files, strings.TrimSpace(line[3:]))
		}
	}
	return files, nil
}

// IsDirty reports whether dir has any uncommitted changes.
func (a *Adapter) IsDirty(ctx context.Context, dir string) (bool, error) {
	files, err := a.StatusPorcelain(ctx, dir)
	if err != nil {
		return false, err
	}
	return len(files) > 0, nil
}

type DiffOptions struct {
	Cached bool
	Range  string // e.g. "main...feature"; empty diffs the working tree
}

// Diff returns the raw diff text for dir.
func (a *Adapter) Diff(ctx context.Context, dir string, opts DiffOptions) (string, error) {
	args := []string{"--no-pager", "diff"}
	if opts.Cached {
		args = append(args, "--cached")
	}
	if opts.Range != "" {
		args = append(args, opts.Range)
	}
	return a.run(ctx, dir, args...)
}

func (a *Adapter) StageAll(ctx context.Context, dir string) error {
	_, err := a.run(ctx, dir, "add", "-A")
	return err
}

func (a *Adapter) Commit(ctx context.Context, dir, message string) error {
	_, err := a.run(ctx, dir, "commit", "-m", message)
	return err
}

func (a *Adapter) Stash(ctx context.Context, dir string) error {
	_, err := a.run(ctx, dir, "stash", "push", "-u")
	return err
}

func (a *Adapter) StashPop(ctx context.Context, dir string) error {
	_, err := a.run(ctx, dir, "stash", "pop")
	return err
}

func (a *Adapter) Checkout(ctx context.Context, dir, ref string) error {
	_, err := a.run(ctx, dir, "checkout", ref)
	return err
}

type MergeOptions struct {
	NoEdit   bool
	NoCommit bool
}

// Merge merges ref into the branch currently checked out in dir.
func (a *Adapter) Merge(ctx context.Context, dir, ref string, opts MergeOptions) error {
	args := []string{"merge", ref}
	if opts.NoEdit {
		args = append(args, "--no-edit")
	}
	if opts.NoCommit {
		args = append(args, "--no-commit", "--no-ff")
	}
	_, err := a.run(ctx, dir, args...)
	return err
}

func (a *Adapter) MergeAbort(ctx context.Context, dir string) error {
	_, err := a.run(ctx, dir, "merge", "--abort")
	if err != nil && IsNotFound(err) {
		return nil
	}
	return err
}

// SymbolicMergeHeadExists reports whether a merge is currently in progress
// in dir (MERGE_HEAD present).
func (a *Adapter) SymbolicMergeHeadExists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".git", "MERGE_HEAD"))
	return err == nil
}

// ConflictingFiles returns the set of paths with unresolved conflicts.
func (a *Adapter) ConflictingFiles(ctx context.Context, dir string) ([]string, error) {
	out, err := a.run(ctx, dir, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

func (a *Adapter) BranchDelete(ctx context.Context, name string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	_, err := a.run(ctx, a.RepoRoot, "branch", flag, name)
	if err != nil && IsNotFound(err) {
		return nil
	}
	return err
}

// Log returns one-line log entries for rangeSpec (e.g. "main..feature").
func (a *Adapter) Log(ctx context.Context, dir, rangeSpec string) ([]string, error) {
	out, err := a.run(ctx, dir, "log", "--oneline", rangeSpec)
	if err != nil {
		return nil, err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// AheadCount reports how many commits ref is ahead of base.
func (a *Adapter) AheadCount(ctx context.Context, dir, base, ref string) (int, error) {
	entries, err := a.Log(ctx, dir, fmt.Sprintf("%s..%s", base, ref))
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// FindRepoRoot walks up from path until a git repository is found.
func FindRepoRoot(path string) (string, error) {
	cur, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	for {
		if _, err := git.PlainOpen(cur); err == nil {
			return cur, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", fmt.Errorf("no git repository found above %s", path)
		}
		cur = parent
	}
}

// DiffStats summarizes an insertion/deletion count alongside raw content.
type DiffStats struct {
	Content string
	Added   int
	Removed int
}

func NewDiffStats(content string) DiffStats {
	stats := DiffStats{Content: content}
	for _, line := range strings.Split(content, "\n") {
		switch {
		case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
			stats.Added++
		case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
			stats.Removed++
		}
	}
	return stats
}
