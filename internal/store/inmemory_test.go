package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lmeynard/screenline/internal/screening"
)

func seedSession(t *testing.T, s *InMemoryStore, verification screening.VerificationType) (screening.Session, screening.Config) {
	t.Helper()
	ctx := context.Background()
	cfg, err := s.CreateConfig(ctx, screening.Config{Title: "Backend engineer screening"})
	if err != nil {
		t.Fatalf("CreateConfig: %v", err)
	}
	sess, err := s.CreateSession(ctx, screening.Session{
		ConfigID:      cfg.ID,
		CandidateName: "Ada",
		Verification:  verification,
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return sess, cfg
}

func TestConsumeLinkSingleUse(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	sess, cfg := seedSession(t, s, screening.VerificationNone)

	link, err := s.IssueLink(ctx, sess.ID, time.Hour)
	if err != nil {
		t.Fatalf("IssueLink: %v", err)
	}

	consumed, err := s.ConsumeLink(ctx, link.Token)
	if err != nil {
		t.Fatalf("first ConsumeLink: %v", err)
	}
	if consumed.Session.Status != screening.StatusInProgress {
		t.Fatalf("session status = %q, want %q", consumed.Session.Status, screening.StatusInProgress)
	}
	if consumed.Session.StartedAt == nil {
		t.Fatalf("StartedAt not stamped on consumption")
	}
	if consumed.Config.ID != cfg.ID {
		t.Fatalf("config id = %q, want %q", consumed.Config.ID, cfg.ID)
	}

	if _, err := s.ConsumeLink(ctx, link.Token); !errors.Is(err, ErrLinkUsed) {
		t.Fatalf("second ConsumeLink = %v, want ErrLinkUsed", err)
	}
}

func TestConsumeLinkExpired(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	sess, _ := seedSession(t, s, screening.VerificationNone)

	link, err := s.IssueLink(ctx, sess.ID, -time.Minute)
	if err != nil {
		t.Fatalf("IssueLink: %v", err)
	}
	if _, err := s.ConsumeLink(ctx, link.Token); !errors.Is(err, ErrLinkExpired) {
		t.Fatalf("ConsumeLink = %v, want ErrLinkExpired", err)
	}
}

func TestConsumeLinkUnknownToken(t *testing.T) {
	s := NewInMemoryStore()
	if _, err := s.ConsumeLink(context.Background(), NewToken()); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("ConsumeLink = %v, want ErrLinkNotFound", err)
	}
}

func TestConsumeLinkCompletedSession(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	sess, _ := seedSession(t, s, screening.VerificationProfile)

	link, err := s.IssueLink(ctx, sess.ID, time.Hour)
	if err != nil {
		t.Fatalf("IssueLink: %v", err)
	}
	if _, _, err := s.CompleteSession(ctx, Completion{SessionID: sess.ID, ConversationID: "conv-1"}); err != nil {
		t.Fatalf("CompleteSession: %v", err)
	}
	if _, err := s.ConsumeLink(ctx, link.Token); !errors.Is(err, ErrLinkUsed) {
		t.Fatalf("ConsumeLink on completed session = %v, want ErrLinkUsed", err)
	}
}

func TestCompleteSessionIdempotent(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	sess, _ := seedSession(t, s, screening.VerificationProfile)

	first, already, err := s.CompleteSession(ctx, Completion{
		SessionID:       sess.ID,
		ConversationID:  "conv-1",
		Transcript:      []screening.TranscriptEntry{{Role: "user", Message: "hello", Timestamp: 3.2}},
		AISummary:       "Short call.",
		DurationSeconds: 4,
	})
	if err != nil {
		t.Fatalf("CompleteSession: %v", err)
	}
	if already {
		t.Fatalf("first completion reported as already completed")
	}
	if first.Status != screening.StatusCompleted || first.CompletedAt == nil {
		t.Fatalf("completion did not settle: status=%q completedAt=%v", first.Status, first.CompletedAt)
	}

	second, already, err := s.CompleteSession(ctx, Completion{
		SessionID:       sess.ID,
		ConversationID:  "conv-other",
		AISummary:       "Should not overwrite.",
		DurationSeconds: 99,
	})
	if err != nil {
		t.Fatalf("repeat CompleteSession: %v", err)
	}
	if !already {
		t.Fatalf("repeat completion not flagged as already completed")
	}
	if second.ConversationID != "conv-1" || second.DurationSeconds != 4 {
		t.Fatalf("repeat completion overwrote the record: %+v", second)
	}
}

func TestCompleteSessionUnknown(t *testing.T) {
	s := NewInMemoryStore()
	if _, _, err := s.CompleteSession(context.Background(), Completion{SessionID: "nope"}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("CompleteSession = %v, want ErrSessionNotFound", err)
	}
}

func TestSetAudioURL(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	sess, _ := seedSession(t, s, screening.VerificationNone)

	if err := s.SetAudioURL(ctx, sess.ID, "recordings/x.webm"); err != nil {
		t.Fatalf("SetAudioURL: %v", err)
	}
	got, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.AudioURL != "recordings/x.webm" {
		t.Fatalf("audio url = %q", got.AudioURL)
	}
	if err := s.SetAudioURL(ctx, "nope", "x"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("SetAudioURL unknown = %v, want ErrSessionNotFound", err)
	}
}

func TestNewTokenShape(t *testing.T) {
	tok := NewToken()
	if err := screening.ValidateToken(tok); err != nil {
		t.Fatalf("generated token fails validation: %v", err)
	}
	if tok == NewToken() {
		t.Fatalf("tokens not unique")
	}
}
