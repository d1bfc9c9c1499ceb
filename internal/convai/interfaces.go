package convai

import "context"

// Callbacks delivers conversation lifecycle events to the orchestrator.
// OnOpened carries the conversation id used later for transcript retrieval.
type Callbacks struct {
	OnOpened func(conversationID string)
	OnClosed func(reason string)
	OnError  func(err error)
}

// Conversation is one live provider-managed voice exchange.
type Conversation interface {
	ID() string
	Mute(muted bool) error
	Close() error
}

// Dialer opens a conversation from a short-lived credential. The credential
// is single-use: one Open per credential, a fresh one must be exchanged for
// any further attempt. Transport and codec are the provider's business.
type Dialer interface {
	Open(ctx context.Context, credential string, cb Callbacks) (Conversation, error)
}
