// Package analyzer is the status analyzer: it captures a pane's visible
// text, classifies what the agent inside it is doing, and — for dialogs —
// extracts the question being asked, following the capture/classify/extract
// pipeline spec.md §4.7 lays out.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"dmux/llm"
	"dmux/store"
	"dmux/tmux"
)

// Stage is the first-pass classification the LLM assigns to a pane's
// trailing lines.
type Stage string

const (
	StageOptionDialog Stage = "option_dialog"
	StageInProgress   Stage = "in_progress"
	StageOpenPrompt   Stage = "open_prompt"
)

// Result is one analysis cycle's published fields, ready to be merged into
// a store.Pane.
type Result struct {
	Stage           Stage
	Status          store.Status
	OptionsQuestion string
	Options         []store.Option
	PotentialHarm   *store.PotentialHarm
	AgentSummary    string
	AnalyzerError   string
}

func statusForStage(s Stage) store.Status {
	switch s {
	case StageOptionDialog:
		return store.StatusWaiting
	case StageOpenPrompt:
		return store.StatusIdle
	default:
		return store.StatusWorking
	}
}

const (
	captureLines       = 50
	classifyLines      = 10
	cacheCapacity      = 100
	cacheTTL           = 5 * time.Second
	workingInterval    = 1 * time.Second
	idleInterval       = 2 * time.Second
	stabilityWindowLen = 3
)

// SendKeysFunc lets the analyzer dispatch an autopilot keystroke without
// importing the lifecycle controller, which itself depends on analyzer's
// sibling packages — the callback keeps pane mutation behind a single
// writer (spec.md §4.7 last paragraph).
type SendKeysFunc func(ctx context.Context, paneID string, keys ...string) error

// Analyzer runs one adaptive-interval worker per tracked pane.
type Analyzer struct {
	Adapter  *tmux.Adapter
	Chain    *llm.Chain
	SendKeys SendKeysFunc
	OnResult func(paneID string, r Result)
	OnError  func(paneID string, err error)

	cache  *lruCache
	group  singleflight.Group
	mu     sync.Mutex
	states map[string]*paneState
}

type paneState struct {
	suspended bool
	window    []Stage
	published store.Status
	autopilot bool
	potential bool
	cancel    context.CancelFunc
}

// New constructs an Analyzer with its cache sized per spec.md §4.7.
func New(adapter *tmux.Adapter, chain *llm.Chain, sendKeys SendKeysFunc) *Analyzer {
	return &Analyzer{
		Adapter:  adapter,
		Chain:    chain,
		SendKeys: sendKeys,
		cache:    newLRUCache(cacheCapacity, cacheTTL),
		states:   make(map[string]*paneState),
	}
}

// Track starts (or restarts) the worker for paneID with the given initial
// autopilot flag.
func (a *Analyzer) Track(ctx context.Context, paneID string, autopilot bool) {
	a.mu.Lock()
	if existing, ok := a.states[paneID]; ok && existing.cancel != nil {
		existing.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	st := &paneState{published: store.StatusUnknown, autopilot: autopilot, cancel: cancel}
	a.states[paneID] = st
	a.mu.Unlock()

	go a.loop(runCtx, paneID)
}

// Untrack stops the worker for paneID and drops its stability-filter state.
func (a *Analyzer) Untrack(paneID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if st, ok := a.states[paneID]; ok && st.cancel != nil {
		st.cancel()
	}
	delete(a.states, paneID)
}

// Suspend/Resume pause and resume a pane's worker while a modal ActionResult
// is open for it, without tearing down its stability-filter window.
func (a *Analyzer) Suspend(paneID string) { a.setSuspended(paneID, true) }
func (a *Analyzer) Resume(paneID string)  { a.setSuspended(paneID, false) }

func (a *Analyzer) setSuspended(paneID string, v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if st, ok := a.states[paneID]; ok {
		st.suspended = v
	}
}

func (a *Analyzer) SetAutopilot(paneID string, v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if st, ok := a.states[paneID]; ok {
		st.autopilot = v
	}
}

func (a *Analyzer) loop(ctx context.Context, paneID string) {
	interval := idleInterval
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		a.mu.Lock()
		st, ok := a.states[paneID]
		a.mu.Unlock()
		if !ok {
			return
		}

		if !st.suspended {
			if next, ran := a.cycle(ctx, paneID, st); ran {
				interval = next
			}
		}
		timer.Reset(interval)
	}
}

// cycle runs one capture→classify→extract pass. It returns the interval to
// wait before the next cycle and whether a cycle actually ran (false when
// the capture or the analysis returned an error).
func (a *Analyzer) cycle(ctx context.Context, paneID string, st *paneState) (time.Duration, bool) {
	content, err := a.Adapter.CapturePane(ctx, paneID, captureLines)
	if err != nil {
		a.reportError(paneID, err)
		return idleInterval, false
	}

	hash := tmux.HashContent(content)
	key := fmt.Sprintf("%s:%x", paneID, hash)

	if cached, ok := a.cache.Get(key); ok {
		a.publish(paneID, st, cached)
		return intervalFor(cached.Status), true
	}

	resultAny, err, _ := a.group.Do(key, func() (interface{}, error) {
		return a.analyze(ctx, content), nil
	})
	if err != nil {
		a.reportError(paneID, err)
		return idleInterval, false
	}
	result := resultAny.(Result)
	a.cache.Put(key, result)
	a.publish(paneID, st, result)
	return intervalFor(result.Status), true
}

func intervalFor(s store.Status) time.Duration {
	if s == store.StatusWorking {
		return workingInterval
	}
	return idleInterval
}

// analyze runs stage A classification and, for option_dialog / open_prompt,
// the stage B extraction call.
func (a *Analyzer) analyze(ctx context.Context, content string) Result {
	lines := lastLines(content, classifyLines)
	stage := a.classify(ctx, lines)

	result := Result{Stage: stage, Status: statusForStage(stage)}
	switch stage {
	case StageOptionDialog:
		a.extractOptions(ctx, lines, &result)
	case StageOpenPrompt:
		a.extractSummary(ctx, lines, &result)
	}
	return result
}

const classifyPrompt = `Classify the terminal output below into exactly one of: option_dialog, in_progress, open_prompt.
A literal "(esc to interrupt)" marker means in_progress.
Numbered or lettered choices (1., 2., a), b)) mean option_dialog.
Otherwise, if the agent is waiting for free-form input, it is open_prompt.
Respond with only the single classification word.

%s`

func (a *Analyzer) classify(ctx context.Context, lines string) Stage {
	out, err := a.Chain.Call(ctx, fmt.Sprintf(classifyPrompt, lines), llm.CallOptions{MaxTokens: 16})
	if err != nil || out == "" {
		return StageInProgress
	}
	switch strings.TrimSpace(strings.ToLower(out)) {
	case string(StageOptionDialog):
		return StageOptionDialog
	case string(StageOpenPrompt):
		return StageOpenPrompt
	default:
		return StageInProgress
	}
}

const extractOptionsPrompt = `The terminal output below shows an agent presenting a choice. Return JSON
of the shape {"question": string, "options": [{"action": string, "keys": [string], "description": string}], "potential_harm": {"has_risk": bool, "description": string}}.
Normalise every option's keys into a list even if only one key applies.

%s`

func (a *Analyzer) extractOptions(ctx context.Context, lines string, result *Result) {
	out, err := a.Chain.Call(ctx, fmt.Sprintf(extractOptionsPrompt, lines), llm.CallOptions{JSON: true, MaxTokens: 512})
	if err != nil || out == "" {
		return
	}
	var parsed struct {
		Question string `json:"question"`
		Options  []struct {
			Action      string      `json:"action"`
			Keys        interface{} `json:"keys"`
			Description string      `json:"description"`
		} `json:"options"`
		PotentialHarm struct {
			HasRisk     bool   `json:"has_risk"`
			Description string `json:"description"`
		} `json:"potential_harm"`
	}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		return
	}
	result.OptionsQuestion = parsed.Question
	for _, o := range parsed.Options {
		result.Options = append(result.Options, store.Option{
			Action:      o.Action,
			Keys:        normaliseKeys(o.Keys),
			Description: o.Description,
		})
	}
	result.PotentialHarm = &store.PotentialHarm{
		HasRisk:     parsed.PotentialHarm.HasRisk,
		Description: parsed.PotentialHarm.Description,
	}
}

// normaliseKeys accepts either a single key string or a list and always
// returns a list, per spec.md §4.7 step 5's "keys must be normalised".
func normaliseKeys(v interface{}) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

const summarisePrompt = `Summarise, in the past tense and one or two sentences, what the agent in the
terminal output below just finished doing.

%s`

func (a *Analyzer) extractSummary(ctx context.Context, lines string, result *Result) {
	out, err := a.Chain.Call(ctx, fmt.Sprintf(summarisePrompt, lines), llm.CallOptions{MaxTokens: 128})
	if err != nil || out == "" {
		return
	}
	result.AgentSummary = strings.TrimSpace(out)
}

// publish applies the stability filter and, on a status change, fires
// OnResult and an autopilot dispatch if eligible.
func (a *Analyzer) publish(paneID string, st *paneState, result Result) {
	a.mu.Lock()
	st.window = append(st.window, result.Stage)
	if len(st.window) > stabilityWindowLen {
		st.window = st.window[len(st.window)-stabilityWindowLen:]
	}
	newStatus := st.published
	if len(st.window) >= 2 && st.window[len(st.window)-1] == st.window[len(st.window)-2] {
		newStatus = statusForStage(st.window[len(st.window)-1])
	}
	changed := newStatus != st.published
	st.published = newStatus
	autopilot := st.autopilot
	a.mu.Unlock()

	result.Status = newStatus
	if a.OnResult != nil {
		a.OnResult(paneID, result)
	}

	if changed && autopilot && newStatus == store.StatusWaiting &&
		result.PotentialHarm != nil && !result.PotentialHarm.HasRisk &&
		len(result.Options) > 0 && a.SendKeys != nil {
		_ = a.SendKeys(context.Background(), paneID, result.Options[0].Keys...)
	}
}

func (a *Analyzer) reportError(paneID string, err error) {
	if a.OnError != nil {
		a.OnError(paneID, err)
	}
}

// lastLines returns the last n lines of s (all of s when it has n or fewer);
// empty lines are kept and counted.
func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
