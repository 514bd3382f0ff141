package analyzer

import (
	"context"
	"sync"
	"testing"
	"time"

	"dmux/llm"
	"dmux/store"
	"dmux/tmux"
)

type fakeRunner struct {
	mu  sync.Mutex
	out string
	err error
}

func (f *fakeRunner) Run(ctx context.Context, args ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out, f.err
}

func (f *fakeRunner) setOutput(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = s
}

type scriptedProvider struct {
	replies []string
	i       int
	mu      sync.Mutex
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Call(ctx context.Context, prompt string, opts llm.CallOptions) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.i >= len(p.replies) {
		return "", nil
	}
	out := p.replies[p.i]
	p.i++
	return out, nil
}

func newTestAdapter(runner tmux.Runner) *tmux.Adapter {
	return &tmux.Adapter{SessionName: "dmux", Runner: runner}
}

func TestClassifyDetectsInProgressMarker(t *testing.T) {
	a := New(newTestAdapter(&fakeRunner{out: "(esc to interrupt)"}), &llm.Chain{Providers: []llm.Provider{&scriptedProvider{replies: []string{"in_progress"}}}}, nil)
	stage := a.classify(context.Background(), "doing work (esc to interrupt)")
	if stage != StageInProgress {
		t.Errorf("stage = %q, want in_progress", stage)
	}
}

func TestClassifyFallsBackToInProgressOnEmptyChain(t *testing.T) {
	a := New(newTestAdapter(&fakeRunner{}), &llm.Chain{}, nil)
	stage := a.classify(context.Background(), "anything")
	if stage != StageInProgress {
		t.Errorf("stage = %q, want in_progress fallback", stage)
	}
}

func TestNormaliseKeysAcceptsStringOrList(t *testing.T) {
	if got := normaliseKeys("y"); len(got) != 1 || got[0] != "y" {
		t.Errorf("normaliseKeys(string) = %v", got)
	}
	if got := normaliseKeys([]interface{}{"1", "Enter"}); len(got) != 2 {
		t.Errorf("normaliseKeys(list) = %v", got)
	}
	if got := normaliseKeys(nil); got != nil {
		t.Errorf("normaliseKeys(nil) = %v, want nil", got)
	}
}

func TestExtractOptionsParsesJSONAndNormalisesKeys(t *testing.T) {
	provider := &scriptedProvider{replies: []string{
		`{"question":"Proceed?","options":[{"action":"yes","keys":"y","description":"do it"}],"potential_harm":{"has_risk":false}}`,
	}}
	a := New(newTestAdapter(&fakeRunner{}), &llm.Chain{Providers: []llm.Provider{provider}}, nil)

	var result Result
	a.extractOptions(context.Background(), "1) yes\n2) no", &result)

	if result.OptionsQuestion != "Proceed?" {
		t.Errorf("question = %q", result.OptionsQuestion)
	}
	if len(result.Options) != 1 || result.Options[0].Keys[0] != "y" {
		t.Errorf("options = %+v", result.Options)
	}
	if result.PotentialHarm == nil || result.PotentialHarm.HasRisk {
		t.Errorf("potentialHarm = %+v", result.PotentialHarm)
	}
}

func TestStabilityFilterRequiresTwoConsecutiveAgreements(t *testing.T) {
	a := New(newTestAdapter(&fakeRunner{}), &llm.Chain{}, nil)
	st := &paneState{published: store.StatusWorking}

	var published []store.Status
	a.OnResult = func(_ string, r Result) { published = append(published, r.Status) }

	a.publish("p1", st, Result{Stage: StageOpenPrompt})
	if published[0] != store.StatusWorking {
		t.Errorf("single disagreeing sample should not flip published status, got %v", published[0])
	}

	a.publish("p1", st, Result{Stage: StageOpenPrompt})
	if published[1] != store.StatusIdle {
		t.Errorf("two agreeing samples should flip to idle, got %v", published[1])
	}
}

func TestAutopilotDispatchesDefaultOptionOnSafeWaiting(t *testing.T) {
	var sentKeys []string
	a := New(newTestAdapter(&fakeRunner{}), &llm.Chain{}, func(_ context.Context, _ string, keys ...string) error {
		sentKeys = keys
		return nil
	})
	st := &paneState{published: store.StatusWorking, autopilot: true}

	result := Result{
		Stage:         StageOptionDialog,
		PotentialHarm: &store.PotentialHarm{HasRisk: false},
		Options:       []store.Option{{Action: "yes", Keys: []string{"y"}}},
	}
	a.publish("p1", st, result)
	a.publish("p1", st, result)

	if len(sentKeys) != 1 || sentKeys[0] != "y" {
		t.Errorf("sentKeys = %v, want [y] dispatched once stability agrees", sentKeys)
	}
}

func TestAutopilotSkipsRiskyOption(t *testing.T) {
	called := false
	a := New(newTestAdapter(&fakeRunner{}), &llm.Chain{}, func(_ context.Context, _ string, keys ...string) error {
		called = true
		return nil
	})
	st := &paneState{published: store.StatusWorking, autopilot: true}

	result := Result{
		Stage:         StageOptionDialog,
		PotentialHarm: &store.PotentialHarm{HasRisk: true},
		Options:       []store.Option{{Action: "yes", Keys: []string{"y"}}},
	}
	a.publish("p1", st, result)
	a.publish("p1", st, result)

	if called {
		t.Error("autopilot must not dispatch when potential_harm.hasRisk is true")
	}
}

func TestCycleUsesCacheOnUnchangedContent(t *testing.T) {
	runner := &fakeRunner{out: "steady state"}
	provider := &scriptedProvider{replies: []string{"open_prompt", `{"summary":"did a thing"}`}}
	a := New(newTestAdapter(runner), &llm.Chain{Providers: []llm.Provider{provider}}, nil)

	st := &paneState{published: store.StatusUnknown}
	a.mu.Lock()
	a.states["p1"] = st
	a.mu.Unlock()

	ctx := context.Background()
	a.cycle(ctx, "p1", st)
	firstCalls := provider.i
	a.cycle(ctx, "p1", st)

	if provider.i != firstCalls {
		t.Errorf("expected cached second cycle to skip the LLM, provider calls went from %d to %d", firstCalls, provider.i)
	}
}

func TestTrackAndUntrackManageWorkerLifetime(t *testing.T) {
	a := New(newTestAdapter(&fakeRunner{out: "working (esc to interrupt)"}), &llm.Chain{}, nil)

	results := make(chan Result, 4)
	a.OnResult = func(_ string, r Result) { results <- r }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Track(ctx, "p1", false)

	select {
	case <-results:
	case <-time.After(2 * time.Second):
		t.Fatal("expected at least one published result")
	}

	a.Untrack("p1")
	a.mu.Lock()
	_, ok := a.states["p1"]
	a.mu.Unlock()
	if ok {
		t.Error("Untrack should remove pane state")
	}
}
