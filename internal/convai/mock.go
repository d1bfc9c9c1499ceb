package convai

import (
	"context"
	"sync"
	"time"
)

// MockDialer is a scripted conversation provider for deterministic tests.
// Timings and failures are injected per instance; callbacks fire from their
// own goroutine the way a real transport would.
type MockDialer struct {
	ConversationID string
	OpenErr        error         // returned from Open before anything fires
	OpenedAfter    time.Duration // delay before OnOpened
	ClosedAfter    time.Duration // delay after OnOpened before a remote close; 0 means never
	ErrAfter       time.Duration // delay after OnOpened before OnError; 0 means never

	mu    sync.Mutex
	calls int
	open  []*MockConversation
}

func (d *MockDialer) Open(_ context.Context, _ string, cb Callbacks) (Conversation, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}

	id := d.ConversationID
	if id == "" {
		id = "conv-mock"
	}
	c := &MockConversation{id: id, cb: cb}
	d.mu.Lock()
	d.open = append(d.open, c)
	d.mu.Unlock()

	go func() {
		time.Sleep(d.OpenedAfter)
		if c.isClosed() {
			return
		}
		if cb.OnOpened != nil {
			cb.OnOpened(id)
		}
		if d.ErrAfter > 0 {
			time.Sleep(d.ErrAfter)
			if !c.isClosed() && cb.OnError != nil {
				cb.OnError(errMockConversation)
			}
			return
		}
		if d.ClosedAfter > 0 {
			time.Sleep(d.ClosedAfter)
			c.close("remote")
		}
	}()
	return c, nil
}

// OpenCalls reports how many credentials were spent on this dialer.
func (d *MockDialer) OpenCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type MockConversation struct {
	id string
	cb Callbacks

	mu     sync.Mutex
	closed bool
	muted  bool
}

func (c *MockConversation) ID() string { return c.id }

func (c *MockConversation) Mute(muted bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = muted
	return nil
}

func (c *MockConversation) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

func (c *MockConversation) Close() error {
	c.close("local")
	return nil
}

func (c *MockConversation) close(reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	if c.cb.OnClosed != nil {
		c.cb.OnClosed(reason)
	}
}

func (c *MockConversation) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

var errMockConversation = errConversation("mock conversation failure")

type errConversation string

func (e errConversation) Error() string { return string(e) }
