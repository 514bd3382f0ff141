package termstream

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"dmux/tmux"
)

// scriptedRunner answers tmux queries by inspecting the command name and,
// for display-message, which format string was requested, so a single fake
// can serve capture-pane, cursor and geometry queries distinctly.
type scriptedRunner struct {
	mu      sync.Mutex
	content string
	cursor  string
	geom    string
}

func (r *scriptedRunner) Run(ctx context.Context, args ...string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(args) == 0 {
		return "", nil
	}
	switch args[0] {
	case "capture-pane":
		return r.content, nil
	case "display-message":
		format := args[len(args)-1]
		if strings.Contains(format, "cursor") {
			return r.cursor, nil
		}
		return r.geom, nil
	default:
		return "", nil
	}
}

func (r *scriptedRunner) setContent(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.content = s
}

func newTestHub(runner *scriptedRunner) *Hub {
	return NewHub(&tmux.Adapter{SessionName: "dmux", Runner: runner})
}

func TestSubscribeReceivesInitMessageFirst(t *testing.T) {
	runner := &scriptedRunner{content: "hello", cursor: "0,5", geom: "80,24"}
	hub := newTestHub(runner)

	ch, unsubscribe := hub.Subscribe(context.Background(), "%1")
	defer unsubscribe()

	select {
	case msg := <-ch:
		if msg.Type != TypeInit {
			t.Fatalf("first message type = %s, want INIT", msg.Type)
		}
		var payload initPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			t.Fatal(err)
		}
		if payload.Content != "hello" || payload.Width != 80 || payload.Height != 24 || payload.CursorCol != 5 {
			t.Errorf("payload = %+v", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected an INIT message")
	}
}

func TestUnchangedContentEmitsNoPatch(t *testing.T) {
	runner := &scriptedRunner{content: "steady", cursor: "0,0", geom: "80,24"}
	hub := newTestHub(runner)

	ch, unsubscribe := hub.Subscribe(context.Background(), "%1")
	defer unsubscribe()

	<-ch // INIT

	hub.mu.Lock()
	c := hub.captures["%1"]
	hub.mu.Unlock()
	hub.tick(context.Background(), c, false)

	select {
	case msg := <-ch:
		t.Errorf("unexpected message on unchanged content: %+v", msg)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestChangedContentEmitsPatchWithTrimmedFragment(t *testing.T) {
	runner := &scriptedRunner{content: "hello world", cursor: "0,0", geom: "80,24"}
	hub := newTestHub(runner)

	ch, unsubscribe := hub.Subscribe(context.Background(), "%1")
	defer unsubscribe()
	<-ch // INIT

	runner.setContent("hello there world")
	hub.mu.Lock()
	c := hub.captures["%1"]
	hub.mu.Unlock()
	hub.tick(context.Background(), c, false)

	select {
	case msg := <-ch:
		if msg.Type != TypePatch {
			t.Fatalf("type = %s, want PATCH", msg.Type)
		}
		var payload patchPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			t.Fatal(err)
		}
		if payload.Fragment != "there " && payload.Fragment != " there" {
			t.Errorf("fragment = %q, want the inserted text", payload.Fragment)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a PATCH message")
	}
}

func TestResizeEmitsOnGeometryChange(t *testing.T) {
	runner := &scriptedRunner{content: "x", cursor: "0,0", geom: "80,24"}
	hub := newTestHub(runner)

	ch, unsubscribe := hub.Subscribe(context.Background(), "%1")
	defer unsubscribe()
	<-ch // INIT

	runner.mu.Lock()
	runner.geom = "100,40"
	runner.mu.Unlock()

	hub.mu.Lock()
	c := hub.captures["%1"]
	hub.mu.Unlock()
	hub.tick(context.Background(), c, false)

	select {
	case msg := <-ch:
		if msg.Type != TypeResize {
			t.Fatalf("type = %s, want RESIZE", msg.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a RESIZE message")
	}
}

func TestLastSubscriberDisconnectStopsCapture(t *testing.T) {
	runner := &scriptedRunner{content: "x", cursor: "0,0", geom: "80,24"}
	hub := newTestHub(runner)

	ch, unsubscribe := hub.Subscribe(context.Background(), "%1")
	<-ch // INIT
	unsubscribe()

	time.Sleep(50 * time.Millisecond)
	hub.mu.Lock()
	_, stillTracked := hub.captures["%1"]
	hub.mu.Unlock()
	if stillTracked {
		t.Error("capture should stop once the last subscriber disconnects")
	}
}

func TestGetStatsReportsSubscriberCount(t *testing.T) {
	runner := &scriptedRunner{content: "x", cursor: "0,0", geom: "80,24"}
	hub := newTestHub(runner)

	_, unsub1 := hub.Subscribe(context.Background(), "%1")
	defer unsub1()
	_, unsub2 := hub.Subscribe(context.Background(), "%1")
	defer unsub2()

	stats := hub.GetStats()
	if stats["%1"].Subscribers != 2 {
		t.Errorf("Subscribers = %d, want 2", stats["%1"].Subscribers)
	}
}

func TestDiffFragmentIsIdempotentOnUnchangedInput(t *testing.T) {
	prefix, fragment, suffix := diffFragment("abcdef", "abcdef")
	if diff := cmp.Diff("", fragment); diff != "" {
		t.Errorf("unexpected fragment on unchanged input (-want +got):\n%s", diff)
	}
	if prefix+suffix != "abcdef" {
		t.Errorf("prefix+suffix = %q, want full string reconstructed from trim", prefix+suffix)
	}
}
