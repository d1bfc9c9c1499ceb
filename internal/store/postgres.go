package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lmeynard/screenline/internal/screening"
)

// PostgresStore persists screening records in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS screening_configs (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			questions JSONB NOT NULL DEFAULT '[]',
			system_prompt_template TEXT NOT NULL DEFAULT '',
			voice_id TEXT NOT NULL DEFAULT '',
			language TEXT NOT NULL DEFAULT 'en',
			agent_id TEXT NOT NULL DEFAULT '',
			created_by TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS screening_sessions (
			id TEXT PRIMARY KEY,
			config_id TEXT NOT NULL DEFAULT '',
			candidate_name TEXT NOT NULL,
			candidate_email TEXT NOT NULL DEFAULT '',
			verification_type TEXT NOT NULL DEFAULT 'none',
			verification_target_id TEXT NOT NULL DEFAULT '',
			conversation_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			transcript JSONB,
			ai_summary TEXT NOT NULL DEFAULT '',
			audio_url TEXT NOT NULL DEFAULT '',
			duration_seconds INT NOT NULL DEFAULT 0,
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			created_by TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS screening_links (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES screening_sessions(id),
			token TEXT NOT NULL UNIQUE,
			expires_at TIMESTAMPTZ NOT NULL,
			used_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_screening_sessions_config ON screening_sessions (config_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateConfig(ctx context.Context, cfg screening.Config) (screening.Config, error) {
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

	questions, err := json.Marshal(cfg.Questions)
	if err != nil {
		return screening.Config{}, fmt.Errorf("marshal questions: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO screening_configs
		 (id, title, description, questions, system_prompt_template, voice_id, language, agent_id, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		cfg.ID, cfg.Title, cfg.Description, questions, cfg.SystemPromptTemplate,
		cfg.VoiceID, cfg.Language, cfg.AgentID, cfg.CreatedBy, cfg.CreatedAt, cfg.UpdatedAt,
	)
	if err != nil {
		return screening.Config{}, fmt.Errorf("insert config: %w", err)
	}
	return cfg, nil
}

func (s *PostgresStore) GetConfig(ctx context.Context, id string) (screening.Config, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, title, description, questions, system_prompt_template, voice_id, language, agent_id, created_by, created_at, updated_at
		 FROM screening_configs WHERE id=$1`, id)
	return scanConfig(row)
}

func (s *PostgresStore) SetConfigAgentID(ctx context.Context, configID, agentID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE screening_configs SET agent_id=$2, updated_at=now() WHERE id=$1`, configID, agentID)
	if err != nil {
		return fmt.Errorf("update config agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConfigNotFound
	}
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess screening.Session) (screening.Session, error) {
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

	_, err := s.pool.Exec(ctx,
		`INSERT INTO screening_sessions
		 (id, config_id, candidate_name, candidate_email, verification_type, verification_target_id, status, created_at, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sess.ID, sess.ConfigID, sess.CandidateName, sess.CandidateEmail,
		string(sess.Verification), sess.VerificationTarget, string(sess.Status), sess.CreatedAt, sess.CreatedBy,
	)
	if err != nil {
		return screening.Session{}, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (screening.Session, error) {
	row := s.pool.QueryRow(ctx, sessionSelect+` WHERE id=$1`, id)
	return scanSession(row)
}

func (s *PostgresStore) IssueLink(ctx context.Context, sessionID string, ttl time.Duration) (screening.AccessLink, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return screening.AccessLink{}, err
	}
	now := time.Now().UTC()
	link := screening.AccessLink{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Token:     NewToken(),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO screening_links (id, session_id, token, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		link.ID, link.SessionID, link.Token, link.ExpiresAt, link.CreatedAt,
	)
	if err != nil {
		return screening.AccessLink{}, fmt.Errorf("insert link: %w", err)
	}
	return link, nil
}

// ConsumeLink marks the link used and the session in progress in one
// transaction, so concurrent double-opens cannot both obtain a credential.
func (s *PostgresStore) ConsumeLink(ctx context.Context, token string) (ConsumedLink, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ConsumedLink{}, fmt.Errorf("begin consume: %w", err)
	}
	defer tx.Rollback(ctx)

	var link screening.AccessLink
	row := tx.QueryRow(ctx,
		`SELECT id, session_id, token, expires_at, used_at, created_at
		 FROM screening_links WHERE token=$1 FOR UPDATE`, token)
	if err := row.Scan(&link.ID, &link.SessionID, &link.Token, &link.ExpiresAt, &link.UsedAt, &link.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ConsumedLink{}, ErrLinkNotFound
		}
		return ConsumedLink{}, fmt.Errorf("lookup link: %w", err)
	}

	now := time.Now().UTC()
	if now.After(link.ExpiresAt) {
		return ConsumedLink{}, ErrLinkExpired
	}
	if link.UsedAt != nil {
		return ConsumedLink{}, ErrLinkUsed
	}

	sessRow := tx.QueryRow(ctx, sessionSelect+` WHERE id=$1 FOR UPDATE`, link.SessionID)
	sess, err := scanSession(sessRow)
	if err != nil {
		return ConsumedLink{}, err
	}
	if sess.Status == screening.StatusCompleted {
		return ConsumedLink{}, ErrLinkUsed
	}

	if _, err := tx.Exec(ctx,
		`UPDATE screening_links SET used_at=$2 WHERE id=$1 AND used_at IS NULL`, link.ID, now); err != nil {
		return ConsumedLink{}, fmt.Errorf("mark link used: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE screening_sessions SET status=$2, started_at=$3 WHERE id=$1`,
		sess.ID, string(screening.StatusInProgress), now); err != nil {
		return ConsumedLink{}, fmt.Errorf("mark session started: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return ConsumedLink{}, fmt.Errorf("commit consume: %w", err)
	}

	link.UsedAt = &now
	sess.Status = screening.StatusInProgress
	sess.StartedAt = &now

	var cfg screening.Config
	if sess.ConfigID != "" {
		cfg, err = s.GetConfig(ctx, sess.ConfigID)
		if err != nil && !errors.Is(err, ErrConfigNotFound) {
			return ConsumedLink{}, err
		}
	}
	return ConsumedLink{Link: link, Session: sess, Config: cfg}, nil
}

// CompleteSession upserts the call outcome. Rows already completed are left
// untouched and reported as such, which makes the completion call idempotent.
func (s *PostgresStore) CompleteSession(ctx context.Context, c Completion) (screening.Session, bool, error) {
	transcript, err := json.Marshal(c.Transcript)
	if err != nil {
		return screening.Session{}, false, fmt.Errorf("marshal transcript: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE screening_sessions
		 SET status=$2, conversation_id=$3, transcript=$4, ai_summary=$5, duration_seconds=$6, completed_at=now()
		 WHERE id=$1 AND status <> $2`,
		c.SessionID, string(screening.StatusCompleted), c.ConversationID, transcript, c.AISummary, c.DurationSeconds,
	)
	if err != nil {
		return screening.Session{}, false, fmt.Errorf("complete session: %w", err)
	}

	sess, err := s.GetSession(ctx, c.SessionID)
	if err != nil {
		return screening.Session{}, false, err
	}
	return sess, tag.RowsAffected() == 0, nil
}

func (s *PostgresStore) SetAudioURL(ctx context.Context, sessionID, audioURL string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE screening_sessions SET audio_url=$2 WHERE id=$1`, sessionID, audioURL)
	if err != nil {
		return fmt.Errorf("set audio url: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const sessionSelect = `SELECT id, config_id, candidate_name, candidate_email, verification_type, verification_target_id,
	conversation_id, status, transcript, ai_summary, audio_url, duration_seconds, started_at, completed_at, created_at, created_by
	FROM screening_sessions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (screening.Session, error) {
	var (
		sess         screening.Session
		verification string
		status       string
		transcript   []byte
	)
	err := row.Scan(
		&sess.ID, &sess.ConfigID, &sess.CandidateName, &sess.CandidateEmail, &verification, &sess.VerificationTarget,
		&sess.ConversationID, &status, &transcript, &sess.AISummary, &sess.AudioURL, &sess.DurationSeconds,
		&sess.StartedAt, &sess.CompletedAt, &sess.CreatedAt, &sess.CreatedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return screening.Session{}, ErrSessionNotFound
		}
		return screening.Session{}, fmt.Errorf("scan session: %w", err)
	}
	sess.Verification = screening.VerificationType(verification)
	sess.Status = screening.Status(status)
	if len(transcript) > 0 {
		if err := json.Unmarshal(transcript, &sess.Transcript); err != nil {
			return screening.Session{}, fmt.Errorf("decode transcript: %w", err)
		}
	}
	return sess, nil
}

func scanConfig(row rowScanner) (screening.Config, error) {
	var (
		cfg       screening.Config
		questions []byte
	)
	err := row.Scan(
		&cfg.ID, &cfg.Title, &cfg.Description, &questions, &cfg.SystemPromptTemplate,
		&cfg.VoiceID, &cfg.Language, &cfg.AgentID, &cfg.CreatedBy, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return screening.Config{}, ErrConfigNotFound
		}
		return screening.Config{}, fmt.Errorf("scan config: %w", err)
	}
	if len(questions) > 0 {
		if err := json.Unmarshal(questions, &cfg.Questions); err != nil {
			return screening.Config{}, fmt.Errorf("decode questions: %w", err)
		}
	}
	return cfg, nil
}
