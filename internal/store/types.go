package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lmeynard/screenline/internal/screening"
)

var (
	ErrConfigNotFound  = errors.New("store: config not found")
	ErrSessionNotFound = errors.New("store: session not found")
	ErrLinkNotFound    = errors.New("store: link not found")
	ErrLinkExpired     = errors.New("store: link expired")
	ErrLinkUsed        = errors.New("store: link already used")
)

// ConsumedLink is the result of a successful single-use exchange.
type ConsumedLink struct {
	Link    screening.AccessLink
	Session screening.Session
	Config  screening.Config
}

// Completion holds everything the finalizer persists for a finished call.
type Completion struct {
	SessionID       string
	ConversationID  string
	Transcript      []screening.TranscriptEntry
	AISummary       string
	DurationSeconds int
}

// Store persists screening configs, sessions and access links.
//
// ConsumeLink is the single-use gate: it atomically marks the link used and
// the session in progress, and fails with ErrLinkExpired, ErrLinkUsed or
// ErrLinkNotFound so callers can tell the outcomes apart. CompleteSession is
// an idempotent upsert: a second call for the same session reports
// alreadyCompleted and leaves the record untouched.
type Store interface {
	CreateConfig(ctx context.Context, cfg screening.Config) (screening.Config, error)
	GetConfig(ctx context.Context, id string) (screening.Config, error)
	SetConfigAgentID(ctx context.Context, configID, agentID string) error

	CreateSession(ctx context.Context, s screening.Session) (screening.Session, error)
	GetSession(ctx context.Context, id string) (screening.Session, error)

	IssueLink(ctx context.Context, sessionID string, ttl time.Duration) (screening.AccessLink, error)
	ConsumeLink(ctx context.Context, token string) (ConsumedLink, error)

	CompleteSession(ctx context.Context, c Completion) (screening.Session, bool, error)
	SetAudioURL(ctx context.Context, sessionID, audioURL string) error

	Close() error
}

// NewStore creates a postgres-backed store when configured, otherwise in-memory.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
