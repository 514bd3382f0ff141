package panebus

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"dmux/tmux"
)

func TestDiffDetectsAddedAndRemoved(t *testing.T) {
	prior := map[string]bool{"%1": true, "%2": true}
	current := map[string]bool{"%2": true, "%3": true}

	added, removed := diff(prior, current)
	sort.Strings(added)
	sort.Strings(removed)

	if len(added) != 1 || added[0] != "%3" {
		t.Errorf("added = %v, want [%%3]", added)
	}
	if len(removed) != 1 || removed[0] != "%1" {
		t.Errorf("removed = %v, want [%%1]", removed)
	}
}

func TestDiffNilPriorReportsNoRemovals(t *testing.T) {
	current := map[string]bool{"%1": true}
	added, removed := diff(nil, current)
	if len(added) != 1 || added[0] != "%1" {
		t.Errorf("added = %v, want [%%1]", added)
	}
	if len(removed) != 0 {
		t.Errorf("removed = %v, want none on first check", removed)
	}
}

type fakeRunner struct {
	out string
	err error
}

func (f *fakeRunner) Run(ctx context.Context, args ...string) (string, error) {
	return f.out, f.err
}

func TestPollBusEmitsOnlyOnChange(t *testing.T) {
	runner := &fakeRunner{out: "%1\ttitle\t80\t24\n"}
	bus := &PollBus{
		Adapter:  &tmux.Adapter{SessionName: "dmux", Runner: runner},
		Interval: MinPollInterval,
	}

	events := make(chan Event, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := bus.Start(ctx, func(e Event) { events <- e }); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	select {
	case e := <-events:
		if len(e.AddedIDs) != 1 || e.AddedIDs[0] != "%1" {
			t.Errorf("first event AddedIDs = %v, want [%%1]", e.AddedIDs)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected an initial add event")
	}

	bus.ForceCheck()
	select {
	case e := <-events:
		t.Errorf("unexpected second event on unchanged content: %+v", e)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestPollBusToleratesAdapterErrors(t *testing.T) {
	runner := &fakeRunner{err: errors.New("tmux not running")}
	bus := &PollBus{Adapter: &tmux.Adapter{SessionName: "dmux", Runner: runner}, Interval: MinPollInterval}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	called := false
	if err := bus.Start(ctx, func(e Event) { called = true }); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if called {
		t.Error("onChange should not fire when ListPanes errors")
	}
}
