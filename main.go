// Command dmux attaches to a per-project tmux session and runs the TUI
// that orchestrates AI coding agents, one per tmux pane and git worktree.
package main

import (
	"fmt"
	"os"

	"dmux/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
