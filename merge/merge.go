// Package merge implements the two-phase merge state machine spec.md
// §4.10 and §9 describe: {Validate -> ResolvePrecondition* -> Execute ->
// Finalise}, each transition returning an action.Result so the TUI and the
// HTTP facade drive the exact same flow.
package merge

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"dmux/action"
	"dmux/gitwt"
	"dmux/hooks"
	"dmux/lifecycle"
	"dmux/llm"
	"dmux/store"
	"dmux/tmux"
)

// Issue is the first blocking precondition Validate finds, checked in the
// exact order spec.md §4.10 documents.
type Issue string

const (
	IssueNone                Issue = ""
	IssueNothingToMerge      Issue = "nothing_to_merge"
	IssueMainDirty           Issue = "main_dirty"
	IssueWorktreeUncommitted Issue = "worktree_uncommitted"
	IssueMergeConflict       Issue = "merge_conflict"
)

// Strategy picks how a conflict or dirty-tree precondition gets resolved.
type Strategy string

const (
	StrategyCommitAutomatic Strategy = "commit_automatic"
	StrategyCommitAIEditable Strategy = "commit_ai_editable"
	StrategyCommitManual    Strategy = "commit_manual"
	StrategyStashMain       Strategy = "stash_main"
	StrategyAIMerge         Strategy = "ai_merge"
	StrategyManualMerge     Strategy = "manual_merge"
	StrategyCancel          Strategy = "cancel"
)

// Session wires together everything one merge needs: the git adapter
// rooted at the main repository, the tmux adapter (for spawning a
// conflict-resolution pane), the LLM chain (commit messages and conflict
// resolution), the lifecycle controller (pane create/close) and the hook
// runner (pre_merge/post_merge).
type Session struct {
	Git         *gitwt.Adapter
	Tmux        *tmux.Adapter
	Chain       *llm.Chain
	Lifecycle   *lifecycle.Controller
	Hooks       *hooks.Runner
	Store       *store.Store
	ProjectRoot string
}

func New(g *gitwt.Adapter, t *tmux.Adapter, chain *llm.Chain, lc *lifecycle.Controller, hr *hooks.Runner, st *store.Store, projectRoot string) *Session {
	return &Session{Git: g, Tmux: t, Chain: chain, Lifecycle: lc, Hooks: hr, Store: st, ProjectRoot: projectRoot}
}

// siblings returns every other pane record sharing pane's worktree path —
// spec.md §5's "single ownership class" that must be closed before a merge
// proceeds.
func (s *Session) siblings(pane store.Pane) []store.Pane {
	if !pane.HasWorktree() {
		return nil
	}
	var out []store.Pane
	for _, p := range s.Store.Snapshot().Panes {
		if p.ID != pane.ID && p.WorktreePath == pane.WorktreePath {
			out = append(out, p)
		}
	}
	return out
}

func (s *Session) branchFor(pane store.Pane) string {
	settings := s.Store.Snapshot().Settings
	return settings.BranchPrefix + pane.Slug
}

// Validate runs Phase 1: nothing_to_merge, main_dirty,
// worktree_uncommitted, merge_conflict in that order, plus the sibling
// check that gates the main confirmation. When clean is true the Result is
// the zero value and the caller should proceed straight to Execute.
func (s *Session) Validate(ctx context.Context, pane store.Pane, targetBranch string) (result action.Result, clean bool, err error) {
	if !pane.HasWorktree() {
		return action.Err(fmt.Sprintf("pane %s has no worktree to merge", pane.ID), true), false, nil
	}

	if siblings := s.siblings(pane); len(siblings) > 0 {
		return s.siblingResult(pane, siblings), false, nil
	}

	if targetBranch == "" {
		targetBranch, err = s.Git.MainBranch(ctx, s.ProjectRoot)
		if err != nil {
			return action.Result{}, false, fmt.Errorf("failed to determine target branch: %w", err)
		}
	}
	branch := s.branchFor(pane)

	ahead, err := s.Git.AheadCount(ctx, pane.WorktreePath, targetBranch, branch)
	if err != nil {
		return action.Result{}, false, fmt.Errorf("failed to compute ahead-count: %w", err)
	}
	if ahead == 0 {
		return action.Info(fmt.Sprintf("%s has no commits ahead of %s; nothing to merge", branch, targetBranch), true), false, nil
	}

	if dirty, derr := s.Git.IsDirty(ctx, s.ProjectRoot); derr == nil && dirty {
		return s.dirtyChoice(pane, targetBranch, IssueMainDirty, s.ProjectRoot), false, nil
	}
	if dirty, derr := s.Git.IsDirty(ctx, pane.WorktreePath); derr == nil && dirty {
		return s.dirtyChoice(pane, targetBranch, IssueWorktreeUncommitted, pane.WorktreePath), false, nil
	}

	if conflicted, cerr := s.dryRunConflicts(ctx, pane, targetBranch); cerr == nil && len(conflicted) > 0 {
		return s.conflictChoice(pane, targetBranch, conflicted), false, nil
	}

	return action.Result{}, true, nil
}

// dryRunConflicts merges targetBranch into the worktree with --no-commit,
// inspects the unresolved-path list, then aborts unconditionally —
// spec.md §4.10's "a dry-run indicates conflicting files".
func (s *Session) dryRunConflicts(ctx context.Context, pane store.Pane, targetBranch string) ([]string, error) {
	err := s.Git.Merge(ctx, pane.WorktreePath, targetBranch, gitwt.MergeOptions{NoCommit: true})
	defer s.Git.MergeAbort(ctx, pane.WorktreePath)
	if err == nil {
		return nil, nil
	}
	return s.Git.ConflictingFiles(ctx, pane.WorktreePath)
}

func (s *Session) siblingResult(pane store.Pane, siblings []store.Pane) action.Result {
	names := make([]string, len(siblings))
	for i, p := range siblings {
		names[i] = p.Slug
	}
	return action.Confirm(
		"Close sibling panes first",
		fmt.Sprintf("Worktree %s is also open in: %s. Close them before merging.", pane.WorktreePath, strings.Join(names, ", ")),
		"OK", "",
		func(ctx context.Context) (action.Result, error) { return action.Result{}, nil },
		nil,
	)
}

// dirtyChoice builds the main_dirty / worktree_uncommitted choice, whose
// automatic/AI-editable options stage everything and ask the LLM for a
// conventional-commit message, falling back to manual input on any AI
// failure (spec.md §4.10).
func (s *Session) dirtyChoice(pane store.Pane, targetBranch string, issue Issue, dir string) action.Result {
	title := "Uncommitted changes"
	message := fmt.Sprintf("%s has uncommitted changes.", dir)
	options := []action.Option{
		{ID: string(StrategyCommitAutomatic), Label: "Commit automatically", Description: "Stage everything and generate a commit message"},
		{ID: string(StrategyCommitAIEditable), Label: "Commit with AI-drafted, editable message"},
		{ID: string(StrategyCommitManual), Label: "Write a commit message"},
	}
	if issue == IssueMainDirty {
		options = append(options, action.Option{ID: string(StrategyStashMain), Label: "Stash main's changes"})
	}
	options = append(options, action.Option{ID: string(StrategyCancel), Label: "Cancel", Danger: true})

	return action.Choice(title, message, options, func(ctx context.Context, optionID string) (action.Result, error) {
		return s.resolveDirty(ctx, pane, targetBranch, dir, Strategy(optionID))
	})
}

func (s *Session) resolveDirty(ctx context.Context, pane store.Pane, targetBranch, dir string, strategy Strategy) (action.Result, error) {
	switch strategy {
	case StrategyCancel:
		return action.Info("Merge cancelled", true), nil
	case StrategyStashMain:
		if err := s.Git.Stash(ctx, dir); err != nil {
			return action.Err(fmt.Sprintf("failed to stash %s: %v", dir, err), true), nil
		}
		return s.ReValidateAndExecute(ctx, pane, targetBranch)
	case StrategyCommitManual:
		return action.Input("Commit message", fmt.Sprintf("Enter a commit message for %s", dir), "", "", func(ctx context.Context, value string) (action.Result, error) {
			return s.commitAndContinue(ctx, pane, targetBranch, dir, value)
		}), nil
	case StrategyCommitAutomatic:
		msg := s.generateCommitMessage(ctx, dir)
		return s.commitAndContinue(ctx, pane, targetBranch, dir, msg)
	case StrategyCommitAIEditable:
		msg := s.generateCommitMessage(ctx, dir)
		return action.Input("Commit message", "Review or edit the AI-drafted message", "", msg, func(ctx context.Context, value string) (action.Result, error) {
			return s.commitAndContinue(ctx, pane, targetBranch, dir, value)
		}), nil
	default:
		return action.Err(fmt.Sprintf("unknown merge strategy %q", strategy), true), nil
	}
}

// generateCommitMessage stages everything and asks the LLM for a
// conventional-commit summary of the diff, falling back to a generic
// message on any AI failure (spec.md §7 "non-critical with fallback").
func (s *Session) generateCommitMessage(ctx context.Context, dir string) string {
	if err := s.Git.StageAll(ctx, dir); err != nil {
		return "chore: merge in-progress changes"
	}
	diff, err := s.Git.Diff(ctx, dir, gitwt.DiffOptions{Cached: true})
	if err != nil || diff == "" {
		return "chore: merge in-progress changes"
	}
	if s.Chain == nil {
		return "chore: merge in-progress changes"
	}
	prompt := "Write a single-line conventional-commit message summarising this diff:\n\n" + diff
	out, err := s.Chain.Call(ctx, prompt, llm.CallOptions{MaxTokens: 48})
	if err != nil || strings.TrimSpace(out) == "" {
		return "chore: merge in-progress changes"
	}
	return strings.TrimSpace(strings.SplitN(out, "\n", 2)[0])
}

func (s *Session) commitAndContinue(ctx context.Context, pane store.Pane, targetBranch, dir, message string) (action.Result, error) {
	if err := s.Git.StageAll(ctx, dir); err != nil {
		return action.Err(fmt.Sprintf("failed to stage %s: %v", dir, err), true), nil
	}
	if message == "" {
		message = "chore: merge in-progress changes"
	}
	if err := s.Git.Commit(ctx, dir, message); err != nil {
		return action.Err(fmt.Sprintf("failed to commit %s: %v", dir, err), true), nil
	}
	return s.ReValidateAndExecute(ctx, pane, targetBranch)
}

// conflictChoice builds the merge_conflict choice: ai_merge spawns a
// conflict-resolution pane, manual_merge navigates to the worktree.
func (s *Session) conflictChoice(pane store.Pane, targetBranch string, files []string) action.Result {
	message := fmt.Sprintf("Merging %s into %s would conflict on: %s", targetBranch, pane.Slug, strings.Join(files, ", "))
	options := []action.Option{
		{ID: string(StrategyAIMerge), Label: "Resolve with AI", Default: true},
		{ID: string(StrategyManualMerge), Label: "Resolve manually"},
		{ID: string(StrategyCancel), Label: "Cancel", Danger: true},
	}
	return action.Choice("Merge conflict", message, options, func(ctx context.Context, optionID string) (action.Result, error) {
		return s.resolveConflict(ctx, pane, targetBranch, Strategy(optionID))
	})
}

func (s *Session) resolveConflict(ctx context.Context, pane store.Pane, targetBranch string, strategy Strategy) (action.Result, error) {
	switch strategy {
	case StrategyCancel:
		return action.Info("Merge cancelled", true), nil
	case StrategyManualMerge:
		return action.Navigation("Resolve the conflict in the worktree pane, then retry the merge.", pane.ID), nil
	case StrategyAIMerge:
		return s.aiConflictResolve(ctx, pane, targetBranch)
	default:
		return action.Err(fmt.Sprintf("unknown conflict strategy %q", strategy), true), nil
	}
}

// aiConflictResolve spawns a dedicated pane in the project root, aborts
// any in-progress merge, produces conflict markers with --no-edit, and
// launches an agent with a crafted prompt instructing it to preserve both
// feature sets and commit (spec.md §4.10 step "Merge conflict").
func (s *Session) aiConflictResolve(ctx context.Context, pane store.Pane, targetBranch string) (action.Result, error) {
	_ = s.Git.MergeAbort(ctx, pane.WorktreePath)
	if err := s.Git.Merge(ctx, pane.WorktreePath, targetBranch, gitwt.MergeOptions{NoEdit: true}); err == nil {
		return s.ReValidateAndExecute(ctx, pane, targetBranch)
	}

	create, err := s.Lifecycle.Create(ctx, lifecycle.CreateInput{
		Prompt:      conflictPrompt(pane.Slug, targetBranch),
		Agent:       pane.Agent,
		ProjectName: filepath.Base(s.ProjectRoot),
	})
	if err != nil {
		return action.Navigation(fmt.Sprintf("failed to launch a conflict-resolution pane: %v; resolve manually", err), pane.ID), nil
	}
	return action.Navigation("Conflict-resolution pane launched; once it commits, retry the merge.", create.Pane.ID), nil
}

func conflictPrompt(slug, targetBranch string) string {
	return fmt.Sprintf(
		"A merge of %q into %q produced conflict markers in this worktree. "+
			"Resolve every conflict by preserving the intent of both branches' changes, "+
			"then `git add` the resolved files and commit.", targetBranch, slug)
}

// ReValidateAndExecute re-runs Validate (a precondition fix may have
// uncovered another one) and, once clean, runs Execute.
func (s *Session) ReValidateAndExecute(ctx context.Context, pane store.Pane, targetBranch string) (action.Result, error) {
	result, clean, err := s.Validate(ctx, pane, targetBranch)
	if err != nil {
		return action.Err(err.Error(), true), nil
	}
	if !clean {
		return result, nil
	}
	return s.Execute(ctx, pane, targetBranch)
}

// Execute runs Phase 2, only valid once Validate reports clean: pre_merge
// hook, worktree-side merge, main-side merge, and a cleanup confirmation.
func (s *Session) Execute(ctx context.Context, pane store.Pane, targetBranch string) (action.Result, error) {
	branch := s.branchFor(pane)
	env := hooks.Env{
		Root: s.ProjectRoot, PaneID: pane.ID, Slug: pane.Slug, Prompt: pane.Prompt,
		Agent: string(pane.Agent), TmuxPaneID: pane.TmuxPaneID, WorktreePath: pane.WorktreePath,
		Branch: branch, TargetBranch: targetBranch,
	}
	if s.Hooks != nil {
		if res := s.Hooks.RunMergeSync(ctx, hooks.PreMerge, env); res.Ran && res.ExitCode != 0 {
			return action.Err(fmt.Sprintf("pre_merge hook failed: %s", res.Stderr), true), nil
		}
	}

	if err := s.Git.Merge(ctx, pane.WorktreePath, targetBranch, gitwt.MergeOptions{NoEdit: true}); err != nil {
		if conflicted, cerr := s.Git.ConflictingFiles(ctx, pane.WorktreePath); cerr == nil && len(conflicted) > 0 {
			return s.aiConflictResolve(ctx, pane, targetBranch)
		}
		return action.Err(fmt.Sprintf("failed to merge %s into worktree: %v", targetBranch, err), true), nil
	}

	if err := s.Git.Checkout(ctx, s.ProjectRoot, targetBranch); err != nil {
		return action.Navigation(fmt.Sprintf("failed to checkout %s: %v; worktree is merged, finish manually", targetBranch, err), pane.ID), nil
	}
	if err := s.Git.Merge(ctx, s.ProjectRoot, branch, gitwt.MergeOptions{NoEdit: true}); err != nil {
		return action.Navigation(fmt.Sprintf("failed to merge %s into %s: %v", branch, targetBranch, err), pane.ID), nil
	}

	if s.Hooks != nil {
		s.Hooks.Run(ctx, hooks.PostMerge, env)
	}

	return action.Confirm(
		"Merge complete",
		fmt.Sprintf("%s merged into %s. Clean up the worktree and branch?", branch, targetBranch),
		"Clean up", "Leave it",
		func(ctx context.Context) (action.Result, error) {
			if err := s.Lifecycle.Close(ctx, pane, branch, lifecycle.CloseKillCleanBranch); err != nil {
				return action.Err(fmt.Sprintf("merge succeeded but cleanup failed: %v", err), true), nil
			}
			return action.Success(fmt.Sprintf("%s cleaned up", pane.Slug), true), nil
		},
		func(ctx context.Context) (action.Result, error) {
			return action.Success("Merge complete", true), nil
		},
	), nil
}

// subWorktree is one nested worktree discovered under a feature worktree.
type subWorktree struct {
	pane  store.Pane
	depth int
}

// DiscoverSubWorktrees returns the pane records in the store whose worktree
// path lies under <worktree>/.dmux/worktrees/, deepest first (spec.md §4.10
// "Multi-merge"); it does not scan the filesystem.
func (s *Session) DiscoverSubWorktrees(root store.Pane) []store.Pane {
	prefix := filepath.Join(root.WorktreePath, ".dmux", "worktrees")
	var matches []subWorktree
	for _, p := range s.Store.Snapshot().Panes {
		if p.ID == root.ID || !strings.HasPrefix(p.WorktreePath, prefix) {
			continue
		}
		matches = append(matches, subWorktree{pane: p, depth: strings.Count(strings.TrimPrefix(p.WorktreePath, prefix), string(filepath.Separator))})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].depth > matches[j].depth })
	out := make([]store.Pane, len(matches))
	for i, m := range matches {
		out[i] = m.pane
	}
	return out
}

// ValidateAll concurrently validates root and every discovered
// sub-worktree before any of them execute, using errgroup because this is
// new concurrent-fan-out surface the base merge flow never needed.
func (s *Session) ValidateAll(ctx context.Context, root store.Pane, targetBranch string) (map[string]action.Result, error) {
	panes := append([]store.Pane{root}, s.DiscoverSubWorktrees(root)...)
	results := make(map[string]action.Result, len(panes))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range panes {
		p := p
		g.Go(func() error {
			result, clean, err := s.Validate(gctx, p, targetBranch)
			if err != nil {
				return err
			}
			mu.Lock()
			if !clean {
				results[p.ID] = result
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// RunMultiMerge executes leaves-first, stopping at the first pane whose
// Execute doesn't return a clean success (spec.md §4.10 "orders them
// leaves-first, and executes the sequence").
func (s *Session) RunMultiMerge(ctx context.Context, root store.Pane, targetBranch string) ([]action.Result, error) {
	panes := append(s.DiscoverSubWorktrees(root), root)
	var results []action.Result
	for _, p := range panes {
		result, clean, err := s.Validate(ctx, p, targetBranch)
		if err != nil {
			return results, err
		}
		if !clean {
			results = append(results, result)
			return results, nil
		}
		result, err = s.Execute(ctx, p, targetBranch)
		if err != nil {
			return results, err
		}
		results = append(results, result)
		if result.Kind != action.KindConfirm {
			return results, nil
		}
	}
	return results, nil
}
