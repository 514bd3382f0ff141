package logsvc

import (
	"time"

	"github.com/google/uuid"
)

type Severity int

const (
	SeverityInfo Severity = iota
	SeveritySuccess
	SeverityWarning
	SeverityError
)

// Toast is one queued notification. Unlike the multi-toast stack this is
// generalized from, dmux shows at most one at a time (spec.md §3), so the
// queue is a strict FIFO rather than a bounded newest-first stack.
type Toast struct {
	ID        string
	Message   string
	Severity  Severity
	CreatedAt time.Time
	Duration  time.Duration
}

// ToastQueue is a FIFO of pending toasts with exactly one "current" toast
// visible at a time.
type ToastQueue struct {
	ring    *Ring
	pending []Toast
}

func NewToastQueue(ring *Ring) *ToastQueue {
	return &ToastQueue{ring: ring}
}

const defaultToastDuration = 4 * time.Second

// Push enqueues a toast, assigning it a uuid (replacing the teacher's
// timestamp-string id scheme, which collides under higher event rates),
// and auto-logs it into the ring.
func (q *ToastQueue) Push(message string, severity Severity) Toast {
	t := Toast{
		ID:        uuid.New().String(),
		Message:   message,
		Severity:  severity,
		CreatedAt: time.Now(),
		Duration:  defaultToastDuration,
	}
	q.pending = append(q.pending, t)
	if q.ring != nil {
		q.ring.Push(levelForSeverity(severity), "toast", message, "", "")
	}
	return t
}

func levelForSeverity(s Severity) Level {
	switch s {
	case SeverityError:
		return LevelError
	case SeverityWarning:
		return LevelWarn
	default:
		return LevelInfo
	}
}

// Current returns the toast currently visible, or false if the queue is
// empty.
func (q *ToastQueue) Current() (Toast, bool) {
	if len(q.pending) == 0 {
		return Toast{}, false
	}
	return q.pending[0], true
}

// Advance drops the current toast, either because its duration elapsed or
// the user dismissed it, and returns whether a new toast is now current.
func (q *ToastQueue) Advance() (Toast, bool) {
	if len(q.pending) == 0 {
		return Toast{}, false
	}
	q.pending = q.pending[1:]
	return q.Current()
}

// Dismiss removes a specific toast by id, collapsing the queue if it was
// currently showing.
func (q *ToastQueue) Dismiss(id string) {
	for i, t := range q.pending {
		if t.ID == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}

// Expired reports whether the current toast's duration has elapsed.
func (q *ToastQueue) Expired() bool {
	t, ok := q.Current()
	if !ok {
		return false
	}
	return time.Since(t.CreatedAt) >= t.Duration
}
