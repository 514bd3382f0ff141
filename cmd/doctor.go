package cmd

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"dmux/llm"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that tmux, git, and a coding-agent CLI are available",
	Args:  cobra.NoArgs,
	RunE:  runDoctor,
}

var knownAgents = []string{"claude", "opencode", "codex"}

func runDoctor(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	ok := true

	for _, bin := range []string{"tmux", "git"} {
		if path, err := exec.LookPath(bin); err != nil {
			ok = false
			fmt.Fprintf(out, "[missing] %s: not found on PATH\n", bin)
		} else {
			fmt.Fprintf(out, "[ok]      %s: %s\n", bin, path)
		}
	}

	shell := os.Getenv("SHELL")
	foundAgent := false
	for _, name := range knownAgents {
		if resolved, err := llm.ResolveCLICommand(shell, name); err == nil {
			foundAgent = true
			fmt.Fprintf(out, "[ok]      agent %s: %s\n", name, resolved)
		} else {
			fmt.Fprintf(out, "[absent]  agent %s: not found\n", name)
		}
	}
	if !foundAgent {
		fmt.Fprintln(out, "[warning] no agent CLI found; panes can still be created as shell panes")
	}

	if os.Getenv("OPENROUTER_API_KEY") == "" {
		fmt.Fprintln(out, "[info]    OPENROUTER_API_KEY not set; LLM-backed features fall back to any configured CLI agent")
	} else {
		fmt.Fprintln(out, "[ok]      OPENROUTER_API_KEY set")
	}

	if !ok {
		return fmt.Errorf("dmux doctor found missing required dependencies")
	}
	return nil
}
