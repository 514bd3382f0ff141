// Package termstream streams a pane's terminal content to any number of
// subscribers as a sequence of INIT/PATCH/RESIZE/HEARTBEAT messages, one
// capture goroutine shared across all of a pane's subscribers.
package termstream

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"dmux/tmux"
)

// MessageType is the wire discriminator: one line per message, formatted
// "TYPE:<json>" (spec.md §4.8).
type MessageType string

const (
	TypeInit      MessageType = "INIT"
	TypePatch     MessageType = "PATCH"
	TypeResize    MessageType = "RESIZE"
	TypeHeartbeat MessageType = "HEARTBEAT"
)

// Message is one line of a pane's stream, already carrying its own encoded
// payload so subscribers just write Type+":"+Payload.
type Message struct {
	Type    MessageType
	Payload json.RawMessage
}

type initPayload struct {
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Content   string `json:"content"`
	CursorRow int    `json:"cursorRow"`
	CursorCol int    `json:"cursorCol"`
}

type patchPayload struct {
	Prefix    string `json:"prefix,omitempty"`
	Fragment  string `json:"fragment"`
	Suffix    string `json:"suffix,omitempty"`
	CursorRow int    `json:"cursorRow"`
	CursorCol int    `json:"cursorCol"`
}

type resizePayload struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type heartbeatPayload struct {
	Timestamp int64 `json:"timestamp"`
}

const captureInterval = 500 * time.Millisecond
const heartbeatInterval = 30 * time.Second

// Stats is the point-in-time snapshot getStats() returns for one pane.
type Stats struct {
	Subscribers int
	Messages    int64
	Bytes       int64
}

// capture is the per-pane goroutine state: one capture drives N
// subscriber channels.
type capture struct {
	paneID string

	mu          sync.Mutex
	subscribers map[int]chan Message
	nextSubID   int

	lastContent string
	lastWidth   int
	lastHeight  int

	messages atomic.Int64
	bytes    atomic.Int64

	cancel context.CancelFunc
}

// Hub multiplexes capture goroutines across subscribers.
type Hub struct {
	Adapter *tmux.Adapter

	mu       sync.Mutex
	captures map[string]*capture
}

func NewHub(adapter *tmux.Adapter) *Hub {
	return &Hub{Adapter: adapter, captures: make(map[string]*capture)}
}

// Subscribe attaches to paneID's stream, starting its capture goroutine if
// this is the first subscriber. The returned unsubscribe func must be
// called exactly once.
func (h *Hub) Subscribe(ctx context.Context, paneID string) (<-chan Message, func()) {
	h.mu.Lock()
	c, ok := h.captures[paneID]
	if !ok {
		runCtx, cancel := context.WithCancel(context.Background())
		c = &capture{paneID: paneID, subscribers: make(map[int]chan Message), cancel: cancel}
		h.captures[paneID] = c
		go h.runCapture(runCtx, c)
	}
	h.mu.Unlock()

	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	ch := make(chan Message, 16)
	c.subscribers[id] = ch
	c.mu.Unlock()

	unsubscribe := func() {
		c.mu.Lock()
		_, present := c.subscribers[id]
		delete(c.subscribers, id)
		empty := len(c.subscribers) == 0
		c.mu.Unlock()
		if present {
			close(ch)
		}

		if empty {
			h.mu.Lock()
			if h.captures[paneID] == c {
				delete(h.captures, paneID)
			}
			h.mu.Unlock()
			c.cancel()
		}
	}
	return ch, unsubscribe
}

// Drop removes subscriber sub's channel after a failed write, and stops the
// capture goroutine once it was the last one (spec.md §4.8's
// last-subscriber-disconnect rule).
func (c *capture) drop(subID int) {
	c.mu.Lock()
	if ch, ok := c.subscribers[subID]; ok {
		delete(c.subscribers, subID)
		close(ch)
	}
	empty := len(c.subscribers) == 0
	c.mu.Unlock()
	if empty {
		c.cancel()
	}
}

func (c *capture) broadcast(msg Message) {
	c.messages.Add(1)
	c.bytes.Add(int64(len(msg.Payload)))

	c.mu.Lock()
	subs := make(map[int]chan Message, len(c.subscribers))
	for id, ch := range c.subscribers {
		subs[id] = ch
	}
	c.mu.Unlock()

	for id, ch := range subs {
		select {
		case ch <- msg:
		default:
			c.drop(id)
		}
	}
}

func encode(t MessageType, v interface{}) Message {
	payload, _ := json.Marshal(v)
	return Message{Type: t, Payload: payload}
}

func (h *Hub) runCapture(ctx context.Context, c *capture) {
	ticker := time.NewTicker(captureInterval)
	heartbeat := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	defer heartbeat.Stop()

	h.tick(ctx, c, true)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tick(ctx, c, false)
		case <-heartbeat.C:
			c.broadcast(encode(TypeHeartbeat, heartbeatPayload{Timestamp: time.Now().Unix()}))
		}
	}
}

func (h *Hub) tick(ctx context.Context, c *capture, initial bool) {
	content, err := h.Adapter.CapturePane(ctx, c.paneID, -1)
	if err != nil {
		return
	}
	row, col, err := h.Adapter.CursorPosition(ctx, c.paneID)
	if err != nil {
		row, col = 0, 0
	}
	width, height, err := h.Adapter.Geometry(ctx, c.paneID)
	if err != nil {
		width, height = c.lastWidth, c.lastHeight
	}

	c.mu.Lock()
	resized := !initial && (width != c.lastWidth || height != c.lastHeight)
	unchanged := !initial && content == c.lastContent
	prior := c.lastContent
	c.lastContent = content
	c.lastWidth = width
	c.lastHeight = height
	c.mu.Unlock()

	if initial {
		c.broadcast(encode(TypeInit, initPayload{Width: width, Height: height, Content: content, CursorRow: row, CursorCol: col}))
		return
	}
	if resized {
		c.broadcast(encode(TypeResize, resizePayload{Width: width, Height: height}))
	}
	if unchanged {
		return
	}
	prefix, fragment, suffix := diffFragment(prior, content)
	c.broadcast(encode(TypePatch, patchPayload{Prefix: prefix, Fragment: fragment, Suffix: suffix, CursorRow: row, CursorCol: col}))
}

// diffFragment trims the longest common prefix and suffix shared by old and
// new, returning what changed in between. It is not a minimal diff — the
// contract is "opaque escape-sequence text fragments", not a Myers diff.
func diffFragment(old, new string) (prefix, fragment, suffix string) {
	oldRunes := []rune(old)
	newRunes := []rune(new)

	p := 0
	for p < len(oldRunes) && p < len(newRunes) && oldRunes[p] == newRunes[p] {
		p++
	}

	s := 0
	for s < len(oldRunes)-p && s < len(newRunes)-p && oldRunes[len(oldRunes)-1-s] == newRunes[len(newRunes)-1-s] {
		s++
	}

	prefix = string(oldRunes[:p])
	suffix = string(oldRunes[len(oldRunes)-s:])
	fragment = string(newRunes[p : len(newRunes)-s])
	return prefix, fragment, suffix
}

// GetStats reports per-pane subscriber count and byte/message counters for
// every pane with an active capture goroutine.
func (h *Hub) GetStats() map[string]Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]Stats, len(h.captures))
	for id, c := range h.captures {
		c.mu.Lock()
		n := len(c.subscribers)
		c.mu.Unlock()
		out[id] = Stats{Subscribers: n, Messages: c.messages.Load(), Bytes: c.bytes.Load()}
	}
	return out
}
