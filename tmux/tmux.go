// Package tmux is the only component allowed to shell out to the tmux
// binary. It manages one shared tmux session for the whole project — a
// control pane plus one content pane per agent, created with split-window —
// instead of the one-session-per-agent model; everything else (command
// construction, exponential-backoff polling, content hashing to cheapen
// comparisons) follows the same idiom the original single-session adapter
// used.
package tmux

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Runner executes external commands; swapped out in tests.
type Runner interface {
	Run(ctx context.Context, args ...string) (stdout string, err error)
}

// ExecRunner is the production Runner, shelling to the real tmux binary.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "tmux", args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return "", &Error{Args: args, ExitCode: exitCode, Stderr: stderr.String()}
	}
	return string(out), nil
}

// Error carries the exit code and stderr of a failed tmux invocation.
type Error struct {
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("tmux %s: exit %d: %s", strings.Join(e.Args, " "), e.ExitCode, strings.TrimSpace(e.Stderr))
}

// Adapter manages panes within a single named tmux session.
type Adapter struct {
	SessionName string
	Runner      Runner
	// QueryTimeout bounds read-only calls (list/capture/display-message).
	QueryTimeout time.Duration
	// MutateTimeout bounds calls that change tmux state (split/kill/send).
	MutateTimeout time.Duration
}

func New(sessionName string) *Adapter {
	return &Adapter{
		SessionName:   sessionName,
		Runner:        ExecRunner{},
		QueryTimeout:  500 * time.Millisecond,
		MutateTimeout: 5 * time.Second,
	}
}

func (a *Adapter) query(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.QueryTimeout)
	defer cancel()
	return a.Runner.Run(ctx, args...)
}

func (a *Adapter) mutate(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.MutateTimeout)
	defer cancel()
	return a.Runner.Run(ctx, args...)
}

// EnsureSession creates the project's tmux session if it does not exist yet,
// and applies the one-time session options the spec calls out.
func (a *Adapter) EnsureSession(ctx context.Context, startDir string) (created bool, err error) {
	if _, err := a.query(ctx, "has-session", "-t="+a.SessionName); err == nil {
		return false, nil
	}
	if _, err := a.mutate(ctx, "new-session", "-d", "-s", a.SessionName, "-c", startDir); err != nil {
		return false, fmt.Errorf("failed to create tmux session %s: %w", a.SessionName, err)
	}
	if _, err := a.mutate(ctx, "set-option", "-t", a.SessionName, "pane-border-status", "top"); err != nil {
		return true, fmt.Errorf("failed to enable pane-border-status: %w", err)
	}
	return true, nil
}

// KillSession tears down the project's tmux session entirely, tolerating
// the "no such session" case (spec.md §7 "expected-missing").
func (a *Adapter) KillSession(ctx context.Context) error {
	if _, err := a.query(ctx, "has-session", "-t="+a.SessionName); err != nil {
		return nil
	}
	if _, err := a.mutate(ctx, "kill-session", "-t", a.SessionName); err != nil {
		var tErr *Error
		if errors.As(err, &tErr) && strings.Contains(tErr.Stderr, "can't find session") {
			return nil
		}
		return fmt.Errorf("failed to kill tmux session %s: %w", a.SessionName, err)
	}
	return nil
}

type SplitOptions struct {
	// StartDir is the working directory for the new pane.
	StartDir string
	// Title is applied via select-pane -T.
	Title string
	// Horizontal splits left/right instead of top/bottom.
	Horizontal bool
}

// SplitPane creates a new pane in the project session and returns its tmux
// pane id (e.g. "%37").
func (a *Adapter) SplitPane(ctx context.Context, opts SplitOptions) (string, error) {
	args := []string{"split-window", "-d", "-P", "-F", "#{pane_id}", "-t", a.SessionName}
	if opts.Horizontal {
		args = append(args, "-h")
	} else {
		args = append(args, "-v")
	}
	if opts.StartDir != "" {
		args = append(args, "-c", opts.StartDir)
	}
	out, err := a.mutate(ctx, args...)
	if err != nil {
		return "", fmt.Errorf("failed to split pane: %w", err)
	}
	paneID := strings.TrimSpace(out)
	if opts.Title != "" {
		_ = a.SetPaneTitle(ctx, paneID, opts.Title)
	}
	return paneID, nil
}

// KillPane kills paneID, tolerating the "pane already gone" case.
func (a *Adapter) KillPane(ctx context.Context, paneID string) error {
	_, err := a.mutate(ctx, "kill-pane", "-t", paneID)
	if err != nil && isMissingPane(err) {
		return nil
	}
	return err
}

func isMissingPane(err error) bool {
	var tErr *Error
	if errors.As(err, &tErr) {
		msg := strings.ToLower(tErr.Stderr)
		return strings.Contains(msg, "can't find pane") || strings.Contains(msg, "no such pane")
	}
	return false
}

// PaneInfo is one row of `list-panes`.
type PaneInfo struct {
	PaneID string
	Title  string
	Width  int
	Height int
}

// ListPanes lists every pane currently in the project session.
func (a *Adapter) ListPanes(ctx context.Context) ([]PaneInfo, error) {
	out, err := a.query(ctx, "list-panes", "-t", a.SessionName, "-F",
		"#{pane_id}\t#{pane_title}\t#{pane_width}\t#{pane_height}")
	if err != nil {
		return nil, fmt.Errorf("failed to list panes: %w", err)
	}
	var panes []PaneInfo
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			continue
		}
		w, _ := strconv.Atoi(fields[2])
		h, _ := strconv.Atoi(fields[3])
		panes = append(panes, PaneInfo{PaneID: fields[0], Title: fields[1], Width: w, Height: h})
	}
	return panes, nil
}

// CapturePane returns the last lastNLines of visible pane content, escape
// sequences preserved, wrapped lines joined (-e -p -J).
func (a *Adapter) CapturePane(ctx context.Context, paneID string, lastNLines int) (string, error) {
	start := "-"
	if lastNLines > 0 {
		start = fmt.Sprintf("-%d", lastNLines)
	}
	out, err := a.query(ctx, "capture-pane", "-p", "-e", "-J", "-t", paneID, "-S", start)
	if err != nil {
		return "", fmt.Errorf("failed to capture pane %s: %w", paneID, err)
	}
	return out, nil
}

// CursorPosition returns the 0-indexed cursor row/column for paneID.
func (a *Adapter) CursorPosition(ctx context.Context, paneID string) (row, col int, err error) {
	out, err := a.query(ctx, "display-message", "-p", "-t", paneID, "#{cursor_y},#{cursor_x}")
	if err != nil {
		return 0, 0, err
	}
	parts := strings.SplitN(strings.TrimSpace(out), ",", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("unexpected cursor position output %q", out)
	}
	row, _ = strconv.Atoi(parts[0])
	col, _ = strconv.Atoi(parts[1])
	return row, col, nil
}

// Geometry returns the pane's width/height.
func (a *Adapter) Geometry(ctx context.Context, paneID string) (width, height int, err error) {
	out, err := a.query(ctx, "display-message", "-p", "-t", paneID, "#{pane_width},#{pane_height}")
	if err != nil {
		return 0, 0, err
	}
	parts := strings.SplitN(strings.TrimSpace(out), ",", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("unexpected geometry output %q", out)
	}
	width, _ = strconv.Atoi(parts[0])
	height, _ = strconv.Atoi(parts[1])
	return width, height, nil
}

// SendShellCommand runs cmd in paneID as if typed and Enter pressed.
func (a *Adapter) SendShellCommand(ctx context.Context, paneID, cmd string) error {
	_, err := a.mutate(ctx, "send-keys", "-t", paneID, cmd, "Enter")
	return err
}

// SendKeys sends a raw key specification (tmux send-keys token syntax).
func (a *Adapter) SendKeys(ctx context.Context, paneID string, keys ...string) error {
	args := append([]string{"send-keys", "-t", paneID}, keys...)
	_, err := a.mutate(ctx, args...)
	return err
}

// SendLiteral sends text as literal characters (tmux -l), safe for
// arbitrary printable content including shell metacharacters.
func (a *Adapter) SendLiteral(ctx context.Context, paneID, text string) error {
	_, err := a.mutate(ctx, "send-keys", "-l", "-t", paneID, text)
	return err
}

func (a *Adapter) SelectPane(ctx context.Context, paneID string) error {
	_, err := a.mutate(ctx, "select-pane", "-t", paneID)
	return err
}

func (a *Adapter) SetPaneTitle(ctx context.Context, paneID, title string) error {
	_, err := a.mutate(ctx, "select-pane", "-t", paneID, "-T", title)
	return err
}

func (a *Adapter) SetGlobalOption(ctx context.Context, key, value string) error {
	_, err := a.mutate(ctx, "set-option", "-g", key, value)
	return err
}

func (a *Adapter) DisplayMessage(ctx context.Context, format string) (string, error) {
	return a.query(ctx, "display-message", "-p", format)
}

func (a *Adapter) RefreshClient(ctx context.Context) error {
	_, err := a.mutate(ctx, "refresh-client")
	return err
}

// LoadBuffer, PasteBuffer and DeleteBuffer move large text through tmux's
// paste buffers rather than the command line, avoiding shell-escaping
// limits for large agent prompts.
func (a *Adapter) LoadBuffer(ctx context.Context, bufferName, filePath string) error {
	_, err := a.mutate(ctx, "load-buffer", "-b", bufferName, filePath)
	return err
}

func (a *Adapter) PasteBuffer(ctx context.Context, bufferName, paneID string) error {
	_, err := a.mutate(ctx, "paste-buffer", "-b", bufferName, "-t", paneID)
	return err
}

func (a *Adapter) DeleteBuffer(ctx context.Context, bufferName string) error {
	_, err := a.mutate(ctx, "delete-buffer", "-b", bufferName)
	return err
}

// HashContent cheapens repeated-capture comparison the same way the
// original status monitor hashed pane output before comparing.
func HashContent(s string) [16]byte {
	return md5.Sum([]byte(s))
}

var trustPromptPatterns = []*regexp.Regexp{
	regexp.MustCompile(`Do you trust the files in this folder\?`),
	regexp.MustCompile(`Yes, proceed`),
}

// LooksLikeTrustPrompt reports whether content contains one of the agent's
// first-launch trust-prompt markers.
func LooksLikeTrustPrompt(content string) bool {
	for _, re := range trustPromptPatterns {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}

// AwaitTrustPrompt polls paneID's content for a trust-prompt marker and
// sends Enter once found, giving up after maxWait. Mirrors the original
// exponential-backoff poll used to auto-approve the trust screen.
func (a *Adapter) AwaitTrustPrompt(ctx context.Context, paneID string, maxWait time.Duration) (approved bool, err error) {
	deadline := time.Now().Add(maxWait)
	sleep := 100 * time.Millisecond
	for time.Now().Before(deadline) {
		content, cerr := a.CapturePane(ctx, paneID, 30)
		if cerr == nil && LooksLikeTrustPrompt(content) {
			if err := a.SendKeys(ctx, paneID, "Enter"); err != nil {
				return false, err
			}
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(sleep):
		}
		sleep = time.Duration(float64(sleep) * 1.2)
		if sleep > time.Second {
			sleep = time.Second
		}
	}
	return false, nil
}
