package convai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

// convaiScript serves one scripted ConvAI websocket conversation.
type convaiScript struct {
	conversationID string
	sendError      string // error event after the metadata, if set
	closeAfter     time.Duration

	mu       sync.Mutex
	gotPong  bool
	messages []map[string]any
}

func (s *convaiScript) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		_ = conn.WriteJSON(map[string]any{
			"type": "conversation_initiation_metadata",
			"conversation_initiation_metadata_event": map[string]any{
				"conversation_id": s.conversationID,
			},
		})
		_ = conn.WriteJSON(map[string]any{
			"type":       "ping",
			"ping_event": map[string]any{"event_id": float64(7)},
		})
		if s.sendError != "" {
			_ = conn.WriteJSON(map[string]any{"type": "error", "message": s.sendError})
		}

		deadline := time.Now().Add(2 * time.Second)
		if s.closeAfter > 0 {
			deadline = time.Now().Add(s.closeAfter)
		}
		_ = conn.SetReadDeadline(deadline)
		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			s.mu.Lock()
			s.messages = append(s.messages, msg)
			if msg["type"] == "pong" {
				s.gotPong = true
			}
			s.mu.Unlock()
		}
	}
}

func (s *convaiScript) pongReceived() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gotPong
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

type recordedEvents struct {
	mu       sync.Mutex
	openedID string
	closed   string
	errs     []error
	openedCh chan struct{}
	closedCh chan struct{}
	errCh    chan struct{}
}

func newRecordedEvents() *recordedEvents {
	return &recordedEvents{
		openedCh: make(chan struct{}),
		closedCh: make(chan struct{}),
		errCh:    make(chan struct{}, 1),
	}
}

func (e *recordedEvents) callbacks() Callbacks {
	return Callbacks{
		OnOpened: func(id string) {
			e.mu.Lock()
			e.openedID = id
			e.mu.Unlock()
			close(e.openedCh)
		},
		OnClosed: func(reason string) {
			e.mu.Lock()
			e.closed = reason
			e.mu.Unlock()
			close(e.closedCh)
		},
		OnError: func(err error) {
			e.mu.Lock()
			e.errs = append(e.errs, err)
			e.mu.Unlock()
			select {
			case e.errCh <- struct{}{}:
			default:
			}
		},
	}
}

func TestElevenLabsDialerLifecycle(t *testing.T) {
	script := &convaiScript{conversationID: "conv-ws-1"}
	ts := httptest.NewServer(script.handler(t))
	defer ts.Close()

	events := newRecordedEvents()
	conv, err := NewElevenLabsDialer().Open(context.Background(), wsURL(ts), events.callbacks())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	select {
	case <-events.openedCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("OnOpened never fired")
	}
	if events.openedID != "conv-ws-1" {
		t.Fatalf("opened id = %q, want conv-ws-1", events.openedID)
	}
	if conv.ID() != "conv-ws-1" {
		t.Fatalf("conversation id = %q, want conv-ws-1", conv.ID())
	}

	// The dialer answers provider pings itself.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !script.pongReceived() {
		time.Sleep(10 * time.Millisecond)
	}
	if !script.pongReceived() {
		t.Fatalf("ping was not answered with a pong")
	}

	if err := conv.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case <-events.closedCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("OnClosed never fired")
	}
	if events.closed != "local" {
		t.Fatalf("close reason = %q, want local", events.closed)
	}

	// Closing again must not fire OnClosed a second time.
	_ = conv.Close()
}

func TestElevenLabsDialerRemoteClose(t *testing.T) {
	script := &convaiScript{conversationID: "conv-ws-2", closeAfter: 50 * time.Millisecond}
	ts := httptest.NewServer(script.handler(t))
	defer ts.Close()

	events := newRecordedEvents()
	conv, err := NewElevenLabsDialer().Open(context.Background(), wsURL(ts), events.callbacks())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conv.Close()

	select {
	case <-events.closedCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("OnClosed never fired after remote close")
	}
	if events.closed != "remote" {
		t.Fatalf("close reason = %q, want remote", events.closed)
	}
}

func TestElevenLabsDialerErrorEvent(t *testing.T) {
	script := &convaiScript{conversationID: "conv-ws-3", sendError: "agent crashed"}
	ts := httptest.NewServer(script.handler(t))
	defer ts.Close()

	events := newRecordedEvents()
	conv, err := NewElevenLabsDialer().Open(context.Background(), wsURL(ts), events.callbacks())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conv.Close()

	select {
	case <-events.errCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("OnError never fired")
	}
	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.errs) == 0 || !strings.Contains(events.errs[0].Error(), "agent crashed") {
		t.Fatalf("errors = %v", events.errs)
	}
}

func TestElevenLabsDialerDialFailure(t *testing.T) {
	_, err := NewElevenLabsDialer().Open(context.Background(), "ws://127.0.0.1:1/conv", Callbacks{})
	if err == nil {
		t.Fatalf("expected dial error")
	}
}
