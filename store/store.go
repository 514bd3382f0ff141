// Package store is the process-wide state store and config-file watcher:
// the single source of truth for panes, project identity, server port and
// settings, fanned out to subscribers on every mutation (spec.md §4.3).
// Logs and toasts are not held here; they live in package logsvc.
package store

import (
	"sync"
	"time"

	"dmux/config"
)

// Snapshot is an immutable clone handed to subscribers; callers must not
// mutate slices/maps inside it.
type Snapshot struct {
	Panes         []Pane
	ControlPaneID string
	WelcomePaneID string
	ProjectName   string
	ProjectRoot   string
	ServerPort    int
	Settings      config.Settings
	LastUpdated   time.Time
}

type subscriber struct {
	id int
	cb func(Snapshot)
}

// Store holds the current snapshot and notifies subscribers on every
// mutation. It is constructed once in main and injected everywhere else —
// a deliberate departure from a package-level singleton, because
// Subscribe/unsubscribe needs per-instance state a bare global can't model.
type Store struct {
	mu   sync.Mutex
	snap Snapshot

	subs   []subscriber
	nextID int

	paused    bool
	pendingFn func()
}

// New constructs a Store seeded with an initial snapshot.
func New(projectName, projectRoot string, settings config.Settings) *Store {
	return &Store{
		snap: Snapshot{
			ProjectName: projectName,
			ProjectRoot: projectRoot,
			Settings:    settings,
		},
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSnapshot(s.snap)
}

// Subscribe registers cb to be called with a cloned snapshot on every
// mutation, and returns a function that removes the subscription.
func (s *Store) Subscribe(cb func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs = append(s.subs, subscriber{id: id, cb: cb})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				break
			}
		}
	}
}

// Pause suppresses emission until Resume is called, so multi-step writers
// (the merge engine, lifecycle create/close) don't trigger a storm of
// self-triggered re-reads while they perform several file writes in a row.
func (s *Store) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// Resume un-suppresses emission and, if a mutation happened while paused,
// emits once for the accumulated state.
func (s *Store) Resume() {
	s.mu.Lock()
	s.paused = false
	pending := s.pendingFn
	s.pendingFn = nil
	s.mu.Unlock()
	if pending != nil {
		pending()
	}
}

// UpdatePanes replaces the in-memory pane list. Only the config watcher's
// callback should call this; all other writers persist to disk and let the
// watcher's re-read drive this call, guaranteeing a single ordering
// (spec.md §3 "every in-memory copy is a projection").
func (s *Store) UpdatePanes(panes []Pane, controlPaneID, welcomePaneID string, updated time.Time) {
	s.mu.Lock()
	s.snap.Panes = append([]Pane(nil), panes...)
	s.snap.ControlPaneID = controlPaneID
	s.snap.WelcomePaneID = welcomePaneID
	s.snap.LastUpdated = updated
	s.emitLocked()
	s.mu.Unlock()
}

// UpdateSettings replaces the in-memory settings (e.g. after a PATCH
// /api/settings round-trips through disk).
func (s *Store) UpdateSettings(settings config.Settings) {
	s.mu.Lock()
	s.snap.Settings = settings
	s.emitLocked()
	s.mu.Unlock()
}

// SetServerPort records the HTTP facade's bound port for /api/session.
func (s *Store) SetServerPort(port int) {
	s.mu.Lock()
	s.snap.ServerPort = port
	s.emitLocked()
	s.mu.Unlock()
}

// emitLocked must be called with s.mu held.
func (s *Store) emitLocked() {
	snap := cloneSnapshot(s.snap)
	fn := func() {
		s.mu.Lock()
		subs := append([]subscriber(nil), s.subs...)
		s.mu.Unlock()
		for _, sub := range subs {
			sub.cb(snap)
		}
	}
	if s.paused {
		s.pendingFn = fn
		return
	}
	// Release the lock before invoking subscriber callbacks so a callback
	// that calls back into the store (e.g. Snapshot()) cannot deadlock.
	go fn()
}

func cloneSnapshot(s Snapshot) Snapshot {
	out := s
	out.Panes = append([]Pane(nil), s.Panes...)
	return out
}
