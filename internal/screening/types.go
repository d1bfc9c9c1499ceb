package screening

import (
	"errors"
	"strings"
	"time"
)

// Status tracks one interview attempt from link issuance to archival.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// VerificationType governs whether completion fires automatically after the
// call. "none" sessions are completed later by an operator action.
type VerificationType string

const (
	VerificationNone    VerificationType = "none"
	VerificationProfile VerificationType = "profile"
	VerificationProject VerificationType = "project"
	VerificationCustom  VerificationType = "custom"
)

// Question is one interviewer prompt inside a screening config.
type Question struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	FollowUp string `json:"follow_up,omitempty"`
	Required bool   `json:"required"`
	Order    int    `json:"order"`
}

// Config is an operator-authored interview script. Immutable once a session
// references it.
type Config struct {
	ID                   string     `json:"id"`
	Title                string     `json:"title"`
	Description          string     `json:"description,omitempty"`
	Questions            []Question `json:"questions"`
	SystemPromptTemplate string     `json:"system_prompt_template,omitempty"`
	VoiceID              string     `json:"voice_id"`
	Language             string     `json:"language"`
	AgentID              string     `json:"agent_id,omitempty"`
	CreatedBy            string     `json:"created_by"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// TranscriptEntry is one utterance of the recorded conversation, ordered by
// time in call.
type TranscriptEntry struct {
	Role      string  `json:"role"` // "user" or "agent"
	Message   string  `json:"message"`
	Timestamp float64 `json:"timestamp,omitempty"` // seconds into the call
}

// Session is the durable record of one interview attempt. The orchestrator
// references it by id; only the completion path mutates transcript fields.
type Session struct {
	ID                 string            `json:"id"`
	ConfigID           string            `json:"config_id"`
	CandidateName      string            `json:"candidate_name"`
	CandidateEmail     string            `json:"candidate_email,omitempty"`
	Verification       VerificationType  `json:"verification_type"`
	VerificationTarget string            `json:"verification_target_id,omitempty"`
	ConversationID     string            `json:"conversation_id,omitempty"`
	Status             Status            `json:"status"`
	Transcript         []TranscriptEntry `json:"transcript,omitempty"`
	AISummary          string            `json:"ai_summary,omitempty"`
	AudioURL           string            `json:"audio_url,omitempty"`
	DurationSeconds    int               `json:"duration_seconds,omitempty"`
	StartedAt          *time.Time        `json:"started_at,omitempty"`
	CompletedAt        *time.Time        `json:"completed_at,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	CreatedBy          string            `json:"created_by"`
}

// AccessLink is the single-use expiring token gating one session. Once UsedAt
// is set or ExpiresAt has passed, exchange must fail with a distinguishable
// reason.
type AccessLink struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

const (
	tokenMinLen = 32
	tokenMaxLen = 128
)

var ErrInvalidToken = errors.New("screening: malformed access token")

// ValidateToken checks shape only: opaque, 32-128 chars, no whitespace.
func ValidateToken(token string) error {
	token = strings.TrimSpace(token)
	if len(token) < tokenMinLen || len(token) > tokenMaxLen {
		return ErrInvalidToken
	}
	if strings.ContainsAny(token, " \t\r\n") {
		return ErrInvalidToken
	}
	return nil
}
