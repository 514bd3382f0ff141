package tmux

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
)

// Attached represents a live `tmux attach-session` running under a PTY, so
// the dmux CLI process itself can forward a real terminal's stdio into the
// shared project session (e.g. `dmux attach`, or a hook harness test that
// drives the session non-interactively) without re-implementing terminal
// control sequence handling.
type Attached struct {
	ptmx   *os.File
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Attach starts `tmux attach-session -t <session>` inside a PTY and copies
// stdout in one direction. The caller is responsible for forwarding stdin
// (Forward) and eventually calling Detach.
func (a *Adapter) Attach(ctx context.Context) (*Attached, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, "tmux", "attach-session", "-t", a.SessionName)
	ptmx, err := pty.Start(cmd)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to attach to tmux session %s: %w", a.SessionName, err)
	}
	at := &Attached{ptmx: ptmx, cancel: cancel}
	at.wg.Add(1)
	go func() {
		defer at.wg.Done()
		_, _ = io.Copy(os.Stdout, ptmx)
	}()
	return at, nil
}

// Forward copies r (typically os.Stdin) into the attached session until r
// returns an error or EOF.
func (at *Attached) Forward(r io.Reader) {
	_, _ = io.Copy(at.ptmx, r)
}

// Resize propagates a terminal size change to the underlying PTY.
func (at *Attached) Resize(cols, rows int) error {
	return pty.Setsize(at.ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

// Detach closes the PTY and waits for the output-copy goroutine to exit.
func (at *Attached) Detach() error {
	at.cancel()
	err := at.ptmx.Close()
	at.wg.Wait()
	return err
}
