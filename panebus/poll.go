package panebus

import (
	"context"
	"sync"
	"time"

	"dmux/tmux"
)

// MinPollInterval is the enforced floor on PollBus's interval.
const MinPollInterval = 1 * time.Second

// DefaultPollInterval is used when the caller specifies zero.
const DefaultPollInterval = 5 * time.Second

// PollBus snapshots tmux's pane list on an interval and diffs it against
// the prior snapshot, emitting only on change.
type PollBus struct {
	Adapter  *tmux.Adapter
	Interval time.Duration

	mu       sync.Mutex
	prior    map[string]bool
	force    chan struct{}
	cancel   context.CancelFunc
	onChange func(Event)
}

func (b *PollBus) Mode() string { return "poll" }

func (b *PollBus) Start(ctx context.Context, onChange func(Event)) error {
	interval := b.Interval
	if interval < MinPollInterval {
		if interval == 0 {
			interval = DefaultPollInterval
		} else {
			interval = MinPollInterval
		}
	}
	b.onChange = onChange
	b.force = make(chan struct{}, 1)

	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	go b.loop(runCtx, interval)
	return nil
}

func (b *PollBus) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
}

func (b *PollBus) ForceCheck() {
	select {
	case b.force <- struct{}{}:
	default:
	}
}

func (b *PollBus) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	b.check(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.check(ctx)
		case <-b.force:
			b.check(ctx)
		}
	}
}

func (b *PollBus) check(ctx context.Context) {
	panes, err := b.Adapter.ListPanes(ctx)
	if err != nil {
		return
	}
	current := make(map[string]bool, len(panes))
	for _, p := range panes {
		current[p.PaneID] = true
	}

	b.mu.Lock()
	prior := b.prior
	b.prior = current
	b.mu.Unlock()

	added, removed := diff(prior, current)
	if len(added) == 0 && len(removed) == 0 {
		return
	}
	b.onChange(Event{
		AddedIDs:   added,
		RemovedIDs: removed,
		Source:     "poll",
		Timestamp:  time.Now(),
	})
}

// diff reports ids present in current but not prior (added) and vice versa
// (removed). A nil prior (first check) never reports removals.
func diff(prior, current map[string]bool) (added, removed []string) {
	for id := range current {
		if prior == nil || !prior[id] {
			added = append(added, id)
		}
	}
	for id := range prior {
		if !current[id] {
			removed = append(removed, id)
		}
	}
	return added, removed
}
