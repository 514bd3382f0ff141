package store

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
)

// Watcher watches a project's dmux.config.json for changes and drives
// Store.UpdatePanes — the only writer of the in-memory pane list. The
// debounce-then-reread shape and the "ignore unchanged content" guard
// follow the same pattern used to watch a documentation tree for edits,
// generalized here from a directory of files to one JSON file.
type Watcher struct {
	store      *Store
	configPath string
	debounce   time.Duration

	lastHash [16]byte
	haveHash bool

	fw   *fsnotify.Watcher
	done chan struct{}
}

// NewWatcher constructs a Watcher for the pane file at path, with the
// spec's 100ms debounce window (spec.md §3).
func NewWatcher(st *Store, configPath string) *Watcher {
	return &Watcher{
		store:      st,
		configPath: configPath,
		debounce:   100 * time.Millisecond,
	}
}

// Start begins watching. It performs one synchronous initial read so the
// store is populated before Start returns.
func (w *Watcher) Start() (stop func(), err error) {
	if err := w.reread(); err != nil {
		return func() {}, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return func() {}, fmt.Errorf("failed to create config watcher: %w", err)
	}
	dir := filepath.Dir(w.configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fw.Close()
		return func() {}, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return func() {}, fmt.Errorf("failed to watch config directory: %w", err)
	}
	w.fw = fw
	w.done = make(chan struct{})

	go w.loop()

	return func() { close(w.done) }, nil
}

func (w *Watcher) loop() {
	defer w.fw.Close()
	timer := time.NewTimer(24 * time.Hour)
	timer.Stop()
	pending := false

	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.configPath) {
				continue
			}
			pending = true
			timer.Reset(w.debounce)

		case <-timer.C:
			if pending {
				_ = w.reread()
				pending = false
			}

		case <-w.fw.Errors:
			// Watcher errors, like reread errors above, are discarded and
			// not logged; the watcher keeps running on the last good snapshot.

		case <-w.done:
			return
		}
	}
}

// reread loads the pane file and, only if its content hash changed since
// the last successful read, pushes it into the store (spec.md §8 "config
// watcher is idempotent" — rereading unchanged content is a no-op).
func (w *Watcher) reread() error {
	data, err := os.ReadFile(w.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", w.configPath, err)
	}
	hash := md5.Sum(data)
	if w.haveHash && hash == w.lastHash {
		return nil
	}

	pf, err := ReadPaneFile(w.configPath)
	if err != nil {
		// Parse errors keep the last good snapshot (spec.md §4.3).
		return err
	}
	w.lastHash = hash
	w.haveHash = true
	w.store.UpdatePanes(pf.Panes, pf.ControlPaneID, pf.WelcomePaneID, time.UnixMilli(pf.LastUpdated))
	return nil
}

// lockPath is the single-writer file lock's location, sitting alongside
// the config file rather than inside it so lock acquisition never races a
// whole-file rewrite of the thing it's protecting.
func lockPath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), ".dmux.lock")
}

// WriteLocked acquires the project's single-writer file lock, performs the
// whole-file rewrite, and releases it. Any process — the long-running TUI
// or a short-lived hook-triggered HTTP PUT — must go through this to
// mutate dmux.config.json (spec.md §5 "shared-resource policy").
func WriteLocked(configPath string, pf PaneFile, now time.Time) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	fl := flock.New(lockPath(configPath))
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("failed to acquire config lock: %w", err)
	}
	defer fl.Unlock()

	return WritePaneFile(configPath, pf, now)
}
