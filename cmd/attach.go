package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"dmux/gitwt"
	"dmux/tmux"
)

var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Attach the current terminal to the project's tmux session",
	Args:  cobra.NoArgs,
	RunE:  runAttach,
}

func init() {
	rootCmd.AddCommand(attachCmd)
}

func runAttach(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	projectRoot, err := gitwt.FindRepoRoot(".")
	if err != nil {
		return fmt.Errorf("dmux must be run from within a git repository: %w", err)
	}
	projectName := filepath.Base(projectRoot)

	tmuxAdapter := tmux.New(sessionNameFor(projectName))
	if _, err := tmuxAdapter.EnsureSession(ctx, projectRoot); err != nil {
		return fmt.Errorf("failed to start tmux session: %w", err)
	}

	attached, err := tmuxAdapter.Attach(ctx)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		_ = attached.Detach()
	}()

	attached.Forward(os.Stdin)
	return attached.Detach()
}
