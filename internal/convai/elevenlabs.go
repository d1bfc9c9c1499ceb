package convai

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// ElevenLabsDialer opens ConvAI conversations over the signed websocket URL
// handed out by the token exchange.
type ElevenLabsDialer struct {
	dialer *websocket.Dialer
}

func NewElevenLabsDialer() *ElevenLabsDialer {
	return &ElevenLabsDialer{dialer: websocket.DefaultDialer}
}

func (d *ElevenLabsDialer) Open(ctx context.Context, credential string, cb Callbacks) (Conversation, error) {
	conn, _, err := d.dialer.DialContext(ctx, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("dial conversation: %w", err)
	}

	c := &elevenConversation{conn: conn, cb: cb, opened: make(chan struct{})}
	go c.readLoop()
	return c, nil
}

type elevenConversation struct {
	conn      *websocket.Conn
	cb        Callbacks
	writeMu   sync.Mutex
	closeOnce sync.Once
	closedEvt sync.Once

	mu     sync.Mutex
	convID string
	muted  bool

	opened chan struct{}
}

func (c *elevenConversation) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.convID
}

func (c *elevenConversation) Mute(muted bool) error {
	c.mu.Lock()
	c.muted = muted
	c.mu.Unlock()
	// The provider keeps streaming; mute is a client-side input gate plus a
	// courtesy activity signal so the agent does not wait on silence forever.
	return c.writeJSON(map[string]any{"type": "user_activity"})
}

func (c *elevenConversation) Close() error {
	var retErr error
	c.closeOnce.Do(func() {
		retErr = c.conn.Close()
		c.emitClosed("local")
	})
	return retErr
}

func (c *elevenConversation) readLoop() {
	defer func() {
		c.closeOnce.Do(func() { _ = c.conn.Close() })
		c.emitClosed("remote")
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			continue
		}
		switch asString(raw["type"]) {
		case "conversation_initiation_metadata":
			meta, _ := raw["conversation_initiation_metadata_event"].(map[string]any)
			id := asString(meta["conversation_id"])
			c.mu.Lock()
			c.convID = id
			c.mu.Unlock()
			select {
			case <-c.opened:
			default:
				close(c.opened)
				if c.cb.OnOpened != nil {
					c.cb.OnOpened(id)
				}
			}
		case "ping":
			event, _ := raw["ping_event"].(map[string]any)
			_ = c.writeJSON(map[string]any{"type": "pong", "event_id": event["event_id"]})
		case "error":
			if c.cb.OnError != nil {
				c.cb.OnError(fmt.Errorf("conversation error: %s", asString(raw["message"])))
			}
		default:
			// Audio and agent events pass through the provider's own pipeline.
		}
	}
}

func (c *elevenConversation) emitClosed(reason string) {
	c.closedEvt.Do(func() {
		if c.cb.OnClosed != nil {
			c.cb.OnClosed(reason)
		}
	})
}

func (c *elevenConversation) writeJSON(payload map[string]any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(payload)
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
