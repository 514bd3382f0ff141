package llm

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CLIProvider shells to a local agent CLI (e.g. "claude -p") resolved the
// same way config.Settings.DefaultAgent is resolved: a shell-alias lookup
// first, falling back to a plain PATH lookup.
type CLIProvider struct {
	// Command is the resolved binary path or name (e.g. "claude").
	Command string
	// ExtraArgs are appended before the prompt is passed via stdin.
	ExtraArgs []string
}

func (p *CLIProvider) Name() string { return "cli:" + p.Command }

func (p *CLIProvider) Call(ctx context.Context, prompt string, opts CallOptions) (string, error) {
	if p.Command == "" {
		return "", fmt.Errorf("llm: no CLI command configured")
	}
	timeout := time.Duration(opts.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append([]string(nil), p.ExtraArgs...)
	if opts.JSON {
		args = append(args, "--output-format", "json")
	}

	cmd := exec.CommandContext(ctx, p.Command, args...)
	cmd.Stdin = strings.NewReader(prompt)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("llm: %s failed: %w: %s", p.Command, err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// ResolveCLICommand finds name in the shell's alias table first (so a user
// who aliased "claude" to a wrapper script still gets it), then falls back
// to a plain PATH lookup.
func ResolveCLICommand(shell, name string) (string, error) {
	if shell == "" {
		shell = "/bin/bash"
	}
	var rc string
	switch {
	case strings.Contains(shell, "zsh"):
		rc = "source ~/.zshrc 2>/dev/null || true; which " + name
	case strings.Contains(shell, "bash"):
		rc = "source ~/.bashrc 2>/dev/null || true; which " + name
	default:
		rc = "which " + name
	}

	cmd := exec.Command(shell, "-c", rc)
	out, err := cmd.Output()
	if err == nil {
		if path := strings.TrimSpace(string(out)); path != "" {
			return path, nil
		}
	}

	path, err := exec.LookPath(name)
	if err == nil {
		return path, nil
	}
	return "", fmt.Errorf("llm: %s not found in aliases or PATH", name)
}
