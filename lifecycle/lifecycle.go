// Package lifecycle owns pane lifetime: creating a pane (worktree + tmux
// split + agent launch), closing one (lock, kill, clean up), and
// the smaller single-step actions (rename, duplicate, open-in-editor,
// copy-path, toggle-autopilot).
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"dmux/config"
	"dmux/gitwt"
	"dmux/hooks"
	"dmux/llm"
	"dmux/store"
	"dmux/tmux"
)

// Controller wires the tmux/git adapters, the LLM chain and the state
// store into the pane-lifetime operations spec.md §4.9 names.
type Controller struct {
	Tmux        *tmux.Adapter
	Git         *gitwt.Adapter
	Store       *store.Store
	Chain       *llm.Chain
	Hooks       *hooks.Runner
	ProjectRoot string

	AutoApproveWait time.Duration
}

// New constructs a Controller with spec.md's ~10s trust-prompt wait.
func New(t *tmux.Adapter, g *gitwt.Adapter, st *store.Store, chain *llm.Chain, hr *hooks.Runner, projectRoot string) *Controller {
	return &Controller{
		Tmux:            t,
		Git:             g,
		Store:           st,
		Chain:           chain,
		Hooks:           hr,
		ProjectRoot:     projectRoot,
		AutoApproveWait: 10 * time.Second,
	}
}

// runHook fires name if a Hooks runner is wired, tolerating a nil Runner so
// tests can construct a bare Controller.
func (c *Controller) runHook(ctx context.Context, name hooks.Name, env hooks.Env) {
	if c.Hooks == nil {
		return
	}
	c.Hooks.Run(ctx, name, env)
}

// CreateInput is the spec.md §4.9 Create request shape. Agents, when it
// holds two or more entries, requests an A/B pair: one slug derived once,
// then creation repeated per agent off a shared base branch (spec.md §3,
// §4.9 step 2); Agent is ignored in that case.
type CreateInput struct {
	Prompt        string
	Agent         store.Agent   // zero value means "let the caller choose"
	Agents        []store.Agent // set for an A/B pair
	ProjectName   string
	ControlPaneID string
}

// CreateResult either asks the caller to pick an agent or carries the
// newly-created pane(s). Pane is the first (or only) entry of Panes.
type CreateResult struct {
	NeedsAgentChoice bool
	AvailableAgents  []store.Agent
	Pane             store.Pane
	Panes            []store.Pane
}

var agentProbeOrder = []struct {
	agent   store.Agent
	command string
}{
	{store.AgentClaude, "claude"},
	{store.AgentOpenCode, "opencode"},
	{store.AgentCodex, "codex"},
}

// DetectAvailableAgents probes the user's shell and PATH for every known
// agent CLI, generalizing the teacher's single-agent shell-alias-then-PATH
// probe to dmux's three agent identifiers.
func (c *Controller) DetectAvailableAgents() []store.Agent {
	shell := os.Getenv("SHELL")
	var found []store.Agent
	for _, candidate := range agentProbeOrder {
		if _, err := llm.ResolveCLICommand(shell, candidate.command); err == nil {
			found = append(found, candidate.agent)
		}
	}
	return found
}

// Create runs the pane-creation pipeline: slug, worktree, tmux split, agent
// launch and trust-prompt auto-approval. It does not write the new pane
// record to the pane file; the caller persists it. An A/B pair
// (len(in.Agents) >= 2) shares one derived slug and base branch across a
// repeated creation, one pane per agent.
func (c *Controller) Create(ctx context.Context, in CreateInput) (CreateResult, error) {
	if len(in.Agents) >= 2 {
		return c.createPair(ctx, in)
	}

	agent := in.Agent
	if agent == "" {
		available := c.DetectAvailableAgents()
		if len(available) > 1 {
			return CreateResult{NeedsAgentChoice: true, AvailableAgents: available}, nil
		}
		if len(available) == 1 {
			agent = available[0]
		} else {
			agent = store.AgentNone
		}
	}

	slug := c.deriveSlug(ctx, in.Prompt)
	settings := c.Store.Snapshot().Settings
	base, err := c.resolveBaseBranch(ctx, settings)
	if err != nil {
		return CreateResult{}, err
	}

	pane, err := c.createOne(ctx, in.Prompt, agent, slug, base, settings)
	if err != nil {
		return CreateResult{}, err
	}
	return CreateResult{Pane: pane, Panes: []store.Pane{pane}}, nil
}

// createPair derives one slug for the pair's shared task, resolves the base
// branch once, then creates a worktree+pane per agent off that same base,
// each slug carrying its agent's suffix (spec.md §3, §4.9 step 2).
func (c *Controller) createPair(ctx context.Context, in CreateInput) (CreateResult, error) {
	baseSlug := c.deriveSlug(ctx, in.Prompt)
	settings := c.Store.Snapshot().Settings
	base, err := c.resolveBaseBranch(ctx, settings)
	if err != nil {
		return CreateResult{}, err
	}

	panes := make([]store.Pane, 0, len(in.Agents))
	for _, agent := range in.Agents {
		slug := gitwt.AppendAgentSuffix(baseSlug, string(agent))
		pane, err := c.createOne(ctx, in.Prompt, agent, slug, base, settings)
		if err != nil {
			return CreateResult{Panes: panes}, err
		}
		panes = append(panes, pane)
	}
	result := CreateResult{Panes: panes}
	if len(panes) > 0 {
		result.Pane = panes[0]
	}
	return result, nil
}

// resolveBaseBranch returns settings.BaseBranch, falling back to the main
// repo's current branch so an A/B pair's two creations fork from the same
// commit.
func (c *Controller) resolveBaseBranch(ctx context.Context, settings config.Settings) (string, error) {
	if settings.BaseBranch != "" {
		return settings.BaseBranch, nil
	}
	base, err := c.Git.CurrentBranch(ctx, c.ProjectRoot)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base branch: %w", err)
	}
	return base, nil
}

// createOne creates the worktree, tmux pane, and (if agent != AgentNone)
// the agent process for a single slug — the unit Create and createPair
// both repeat.
func (c *Controller) createOne(ctx context.Context, prompt string, agent store.Agent, slug, base string, settings config.Settings) (store.Pane, error) {
	branch := settings.BranchPrefix + slug
	worktreePath := filepath.Join(c.ProjectRoot, ".dmux", "worktrees", slug)

	c.runHook(ctx, hooks.PreCreate, hooks.Env{
		Root: c.ProjectRoot, Slug: slug, Prompt: prompt, Agent: string(agent),
		WorktreePath: worktreePath, Branch: branch,
	})

	if err := c.Git.WorktreeAdd(ctx, worktreePath, branch, base); err != nil {
		return store.Pane{}, fmt.Errorf("failed to create worktree: %w", err)
	}

	paneID, err := c.Tmux.SplitPane(ctx, tmux.SplitOptions{StartDir: worktreePath, Title: slug})
	if err != nil {
		return store.Pane{}, fmt.Errorf("failed to split pane: %w", err)
	}

	pane := store.Pane{
		ID:           uuid.New().String(),
		Slug:         slug,
		Prompt:       prompt,
		TmuxPaneID:   paneID,
		WorktreePath: worktreePath,
		Agent:        agent,
		AgentStatus:  store.StatusWorking,
		Autopilot:    settings.EnableAutopilotByDefault,
	}

	if agent != store.AgentNone {
		c.launchAgent(ctx, paneID, worktreePath, string(agent), prompt)
		_, _ = c.Tmux.AwaitTrustPrompt(ctx, paneID, c.AutoApproveWait)
	}

	return pane, nil
}

// deriveSlug asks the LLM for a short branch-safe slug, falling back to a
// timestamped default — a value, not an error, since slug derivation sits
// in the non-critical-with-fallback error category.
func (c *Controller) deriveSlug(ctx context.Context, prompt string) string {
	if c.Chain != nil && prompt != "" {
		out, err := c.Chain.Call(ctx, "Produce a short kebab-case branch-name slug (2-4 words, no punctuation besides hyphens) summarising this task:\n"+prompt, llm.CallOptions{MaxTokens: 16})
		if err == nil && out != "" {
			if slug := sanitizeSlug(out); slug != "" {
				return gitwt.SlugifyBranchFragment(slug)
			}
		}
	}
	return fmt.Sprintf("dmux-%d", time.Now().Unix())
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9-]+`)

func sanitizeSlug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonSlugChars.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// launchAgent writes the prompt to a temp file inside the worktree and has
// the pane cat-then-delete it into the agent's stdin, so large prompts
// never hit shell-escaping limits; a write failure falls back to inline
// shell-escaped text.
func (c *Controller) launchAgent(ctx context.Context, paneID, worktreePath, command, prompt string) {
	if prompt == "" {
		_ = c.Tmux.SendShellCommand(ctx, paneID, command)
		return
	}

	promptFile := filepath.Join(worktreePath, fmt.Sprintf(".dmux-prompt-%s.tmp", filepath.Base(paneID)))
	if err := os.WriteFile(promptFile, []byte(prompt), 0o600); err != nil {
		_ = c.Tmux.SendShellCommand(ctx, paneID, fmt.Sprintf("%s %s", command, shellQuote(prompt)))
		return
	}
	script := fmt.Sprintf("cat %s | %s; rm -f %s", shellQuote(promptFile), command, shellQuote(promptFile))
	_ = c.Tmux.SendShellCommand(ctx, paneID, script)
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// CloseChoice selects how much of a pane's footprint Close tears down.
type CloseChoice string

const (
	CloseKillOnly        CloseChoice = "kill_only"
	CloseKillAndClean    CloseChoice = "kill_and_clean"
	CloseKillCleanBranch CloseChoice = "kill_clean_branch"
)

// closeLockPath returns the per-pane lock file under .dmux/locks that Close
// holds for the duration of a teardown.
func closeLockPath(projectRoot, paneID string) string {
	return filepath.Join(projectRoot, ".dmux", "locks", "close-"+filepath.Base(paneID)+".lock")
}

// Close executes the three-step teardown the chosen CloseChoice selects,
// each step tolerant of "already gone", under a per-pane file lock.
func (c *Controller) Close(ctx context.Context, pane store.Pane, branch string, choice CloseChoice) error {
	lockPath := closeLockPath(c.ProjectRoot, pane.ID)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return fmt.Errorf("failed to prepare close lock directory: %w", err)
	}
	lock := flock.New(lockPath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire close lock for pane %s: %w", pane.ID, err)
	}
	defer lock.Unlock()

	if err := c.Tmux.KillPane(ctx, pane.TmuxPaneID); err != nil {
		return fmt.Errorf("failed to kill pane %s: %w", pane.TmuxPaneID, err)
	}

	if choice == CloseKillAndClean || choice == CloseKillCleanBranch {
		if pane.HasWorktree() {
			if err := c.Git.WorktreeRemove(ctx, pane.WorktreePath, true); err != nil {
				return fmt.Errorf("failed to remove worktree %s: %w", pane.WorktreePath, err)
			}
		}
	}
	if choice == CloseKillCleanBranch && branch != "" {
		if err := c.Git.BranchDelete(ctx, branch, true); err != nil {
			return fmt.Errorf("failed to delete branch %s: %w", branch, err)
		}
	}

	c.runHook(ctx, hooks.PostClose, hooks.Env{
		Root: c.ProjectRoot, PaneID: pane.ID, Slug: pane.Slug,
		WorktreePath: pane.WorktreePath, Branch: branch,
	})

	return nil
}

// EnsureWelcomePane splits a fresh shell pane titled "welcome" when the
// pane list has gone empty, matching spec.md §4.9's closing note.
func (c *Controller) EnsureWelcomePane(ctx context.Context) (string, error) {
	return c.Tmux.SplitPane(ctx, tmux.SplitOptions{StartDir: c.ProjectRoot, Title: "welcome"})
}

// Rename retitles the tmux pane to newSlug; persisting the new slug on the
// pane record is left to the caller.
func (c *Controller) Rename(ctx context.Context, pane store.Pane, newSlug string) error {
	return c.Tmux.SetPaneTitle(ctx, pane.TmuxPaneID, newSlug)
}

// Duplicate creates a sibling pane sharing pane's prompt and agent but a
// fresh slug/worktree/branch.
func (c *Controller) Duplicate(ctx context.Context, pane store.Pane, controlPaneID string) (CreateResult, error) {
	return c.Create(ctx, CreateInput{Prompt: pane.Prompt, Agent: pane.Agent, ControlPaneID: controlPaneID})
}

// OpenInEditor shells out to $EDITOR (falling back to $VISUAL, then "vi")
// against the pane's worktree path.
func (c *Controller) OpenInEditor(ctx context.Context, pane store.Pane) error {
	if !pane.HasWorktree() {
		return fmt.Errorf("pane %s has no worktree to open", pane.ID)
	}
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		editor = "vi"
	}
	cmd := exec.CommandContext(ctx, editor, pane.WorktreePath)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	return cmd.Start()
}

// CopyPath copies the pane's worktree path to the system clipboard.
func (c *Controller) CopyPath(pane store.Pane) error {
	if !pane.HasWorktree() {
		return fmt.Errorf("pane %s has no worktree path to copy", pane.ID)
	}
	return clipboard.WriteAll(pane.WorktreePath)
}

// ToggleAutopilot flips and returns the pane's autopilot flag.
func (c *Controller) ToggleAutopilot(pane store.Pane) store.Pane {
	pane.Autopilot = !pane.Autopilot
	return pane
}
