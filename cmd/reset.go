package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"dmux/gitwt"
	"dmux/store"
	"dmux/tmux"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Kill the project's tmux session and prune orphaned worktrees",
	Args:  cobra.NoArgs,
	RunE:  runReset,
}

func runReset(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	projectRoot, err := gitwt.FindRepoRoot(".")
	if err != nil {
		return fmt.Errorf("dmux must be run from within a git repository: %w", err)
	}
	projectName := filepath.Base(projectRoot)

	tmuxAdapter := tmux.New(sessionNameFor(projectName))
	if err := tmuxAdapter.KillSession(ctx); err != nil {
		return fmt.Errorf("failed to kill tmux session: %w", err)
	}
	fmt.Printf("killed tmux session for %s\n", projectName)

	gitAdapter := gitwt.New(projectRoot)
	if err := gitAdapter.WorktreePrune(ctx); err != nil {
		return fmt.Errorf("failed to prune worktrees: %w", err)
	}

	worktreeRoot := filepath.Join(projectRoot, ".dmux", "worktrees")
	entries, err := os.ReadDir(worktreeRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read worktree directory: %w", err)
	}
	trees, err := gitAdapter.WorktreeList(ctx, projectRoot)
	if err != nil {
		return fmt.Errorf("failed to list worktrees: %w", err)
	}
	known := make(map[string]bool, len(trees))
	for _, t := range trees {
		known[filepath.Clean(t.Path)] = true
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(worktreeRoot, entry.Name())
		if known[filepath.Clean(path)] {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to remove orphaned worktree directory %s: %v\n", path, err)
			continue
		}
		fmt.Printf("removed orphaned worktree directory %s\n", path)
	}

	configPath := store.ConfigFilePath(projectRoot)
	if err := os.Remove(configPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove pane config file: %w", err)
	}

	return nil
}
