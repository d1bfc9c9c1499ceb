package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lmeynard/screenline/internal/screening"
)

// InMemoryStore is a simple in-process store for local/dev use and tests.
type InMemoryStore struct {
	mu       sync.RWMutex
	configs  map[string]screening.Config
	sessions map[string]screening.Session
	links    map[string]screening.AccessLink // keyed by token
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		configs:  make(map[string]screening.Config),
		sessions: make(map[string]screening.Session),
		links:    make(map[string]screening.AccessLink),
	}
}

func (s *InMemoryStore) CreateConfig(_ context.Context, cfg screening.Config) (screening.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now
	if len(cfg.Questions) == 0 {
		cfg.Questions = screening.DefaultQuestions
	}
	s.configs[cfg.ID] = cfg
	return cfg, nil
}

func (s *InMemoryStore) GetConfig(_ context.Context, id string) (screening.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[id]
	if !ok {
		return screening.Config{}, ErrConfigNotFound
	}
	return cfg, nil
}

func (s *InMemoryStore) SetConfigAgentID(_ context.Context, configID, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[configID]
	if !ok {
		return ErrConfigNotFound
	}
	cfg.AgentID = agentID
	cfg.UpdatedAt = time.Now().UTC()
	s.configs[configID] = cfg
	return nil
}

func (s *InMemoryStore) CreateSession(_ context.Context, sess screening.Session) (screening.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.Status == "" {
		sess.Status = screening.StatusPending
	}
	if sess.Verification == "" {
		sess.Verification = screening.VerificationNone
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	s.sessions[sess.ID] = sess
	return sess, nil
}

func (s *InMemoryStore) GetSession(_ context.Context, id string) (screening.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return screening.Session{}, ErrSessionNotFound
	}
	return sess, nil
}

func (s *InMemoryStore) IssueLink(_ context.Context, sessionID string, ttl time.Duration) (screening.AccessLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return screening.AccessLink{}, ErrSessionNotFound
	}
	now := time.Now().UTC()
	link := screening.AccessLink{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Token:     NewToken(),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	s.links[link.Token] = link
	return link, nil
}

func (s *InMemoryStore) ConsumeLink(_ context.Context, token string) (ConsumedLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[token]
	if !ok {
		return ConsumedLink{}, ErrLinkNotFound
	}
	now := time.Now().UTC()
	if now.After(link.ExpiresAt) {
		return ConsumedLink{}, ErrLinkExpired
	}
	if link.UsedAt != nil {
		return ConsumedLink{}, ErrLinkUsed
	}

	sess, ok := s.sessions[link.SessionID]
	if !ok {
		return ConsumedLink{}, ErrSessionNotFound
	}
	if sess.Status == screening.StatusCompleted {
		return ConsumedLink{}, ErrLinkUsed
	}

	used := now
	link.UsedAt = &used
	s.links[token] = link

	sess.Status = screening.StatusInProgress
	started := now
	sess.StartedAt = &started
	s.sessions[sess.ID] = sess

	cfg := s.configs[sess.ConfigID]
	return ConsumedLink{Link: link, Session: sess, Config: cfg}, nil
}

func (s *InMemoryStore) CompleteSession(_ context.Context, c Completion) (screening.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[c.SessionID]
	if !ok {
		return screening.Session{}, false, ErrSessionNotFound
	}
	if sess.Status == screening.StatusCompleted {
		return sess, true, nil
	}

	now := time.Now().UTC()
	sess.Status = screening.StatusCompleted
	sess.ConversationID = c.ConversationID
	sess.Transcript = c.Transcript
	sess.AISummary = c.AISummary
	sess.DurationSeconds = c.DurationSeconds
	sess.CompletedAt = &now
	s.sessions[sess.ID] = sess
	return sess, false, nil
}

func (s *InMemoryStore) SetAudioURL(_ context.Context, sessionID, audioURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	sess.AudioURL = audioURL
	s.sessions[sessionID] = sess
	return nil
}

func (s *InMemoryStore) Close() error { return nil }

// NewToken builds an opaque single-use link token. Two stripped UUIDs keep it
// inside the 32-128 char contract while staying URL-safe.
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}
