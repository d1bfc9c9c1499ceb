package httpapi

import (
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lmeynard/screenline/internal/convai"
	"github.com/lmeynard/screenline/internal/screening"
	"github.com/lmeynard/screenline/internal/store"
	"github.com/lmeynard/screenline/internal/summary"
)

const maxUploadBytes = 64 << 20

type createConfigRequest struct {
	Title                string               `json:"title"`
	Description          string               `json:"description"`
	Questions            []screening.Question `json:"questions"`
	SystemPromptTemplate string               `json:"system_prompt_template"`
	VoiceID              string               `json:"voice_id"`
	Language             string               `json:"language"`
	CreatedBy            string               `json:"created_by"`
}

func (s *Server) handleCreateConfig(w http.ResponseWriter, r *http.Request) {
	var req createConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "title is required")
		return
	}
	if req.VoiceID == "" {
		req.VoiceID = s.cfg.DefaultVoiceID
	}
	if req.Language == "" {
		req.Language = s.cfg.DefaultLanguage
	}

	cfg, err := s.store.CreateConfig(r.Context(), screening.Config{
		Title:                req.Title,
		Description:          req.Description,
		Questions:            req.Questions,
		SystemPromptTemplate: req.SystemPromptTemplate,
		VoiceID:              req.VoiceID,
		Language:             req.Language,
		CreatedBy:            req.CreatedBy,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, cfg)
}

type createSessionRequest struct {
	ConfigID           string `json:"config_id"`
	CandidateName      string `json:"candidate_name"`
	CandidateEmail     string `json:"candidate_email"`
	VerificationType   string `json:"verification_type"`
	VerificationTarget string `json:"verification_target_id"`
	CreatedBy          string `json:"created_by"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.CandidateName) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "candidate_name is required")
		return
	}
	if req.ConfigID != "" {
		if _, err := s.store.GetConfig(r.Context(), req.ConfigID); err != nil {
			respondError(w, http.StatusNotFound, "config_not_found", err.Error())
			return
		}
	}

	sess, err := s.store.CreateSession(r.Context(), screening.Session{
		ConfigID:           req.ConfigID,
		CandidateName:      req.CandidateName,
		CandidateEmail:     req.CandidateEmail,
		Verification:       screening.VerificationType(req.VerificationType),
		VerificationTarget: req.VerificationTarget,
		CreatedBy:          req.CreatedBy,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	s.metrics.SessionEvents.WithLabelValues("created").Inc()
	respondJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

type issueLinkRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleIssueLink(w http.ResponseWriter, r *http.Request) {
	var req issueLinkRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	link, err := s.store.IssueLink(r.Context(), req.SessionID, s.cfg.LinkTTL)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			respondError(w, http.StatusNotFound, "session_not_found", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	s.metrics.SessionEvents.WithLabelValues("link_issued").Inc()
	respondJSON(w, http.StatusCreated, link)
}

type exchangeRequest struct {
	Token string `json:"token"`
}

type exchangeResponse struct {
	SignedURL      string `json:"signed_url"`
	AgentID        string `json:"agent_id"`
	SessionID      string `json:"session_id"`
	CandidateName  string `json:"candidate_name"`
	ConfigTitle    string `json:"config_title"`
	IsVerification bool   `json:"is_verification"`
}

// handleExchange is the single-use gate: it atomically consumes the link and
// hands back the short-lived conversation credential.
func (s *Server) handleExchange(w http.ResponseWriter, r *http.Request) {
	var req exchangeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := screening.ValidateToken(req.Token); err != nil {
		s.metrics.LinkExchanges.WithLabelValues("malformed").Inc()
		respondError(w, http.StatusBadRequest, "invalid_token", "malformed token")
		return
	}

	consumed, err := s.store.ConsumeLink(r.Context(), req.Token)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrLinkExpired):
		s.metrics.LinkExchanges.WithLabelValues("expired").Inc()
		respondError(w, http.StatusGone, "link_expired", "This link has expired. Contact the organizer for a new one.")
		return
	case errors.Is(err, store.ErrLinkUsed):
		s.metrics.LinkExchanges.WithLabelValues("used").Inc()
		respondError(w, http.StatusGone, "link_used", "This interview has already been taken.")
		return
	case errors.Is(err, store.ErrLinkNotFound), errors.Is(err, store.ErrSessionNotFound):
		s.metrics.LinkExchanges.WithLabelValues("not_found").Inc()
		respondError(w, http.StatusNotFound, "link_not_found", "Unknown link.")
		return
	default:
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	sess := consumed.Session
	cfg := consumed.Config
	if cfg.ID == "" {
		// Verification sessions can run without an operator config.
		cfg = screening.Config{
			Title:     "Verification interview",
			Questions: screening.DefaultQuestions,
			VoiceID:   s.cfg.DefaultVoiceID,
			Language:  s.cfg.DefaultLanguage,
		}
	}

	agentID := cfg.AgentID
	if agentID == "" {
		var err error
		agentID, err = s.provider.CreateAgent(r.Context(), convai.AgentSpec{
			Name:         fmt.Sprintf("Screening: %s - %s", cfg.Title, sess.CandidateName),
			SystemPrompt: screening.BuildSystemPrompt(cfg, sess.CandidateName),
			FirstMessage: screening.FirstMessage(cfg, sess.CandidateName),
			Language:     cfg.Language,
			VoiceID:      cfg.VoiceID,
		})
		if err != nil {
			s.metrics.ProviderErrors.WithLabelValues("elevenlabs", "create_agent").Inc()
			respondError(w, http.StatusBadGateway, "provider_error", "Could not prepare the voice interview.")
			return
		}
		if cfg.ID != "" {
			if err := s.store.SetConfigAgentID(r.Context(), cfg.ID, agentID); err != nil {
				log.Printf("httpapi: cache agent id: %v", err)
			}
		}
	}

	signedURL, err := s.provider.SignedURL(r.Context(), agentID)
	if err != nil {
		s.metrics.ProviderErrors.WithLabelValues("elevenlabs", "signed_url").Inc()
		respondError(w, http.StatusBadGateway, "provider_error", "Could not prepare the voice interview.")
		return
	}

	s.metrics.LinkExchanges.WithLabelValues("success").Inc()
	s.metrics.SessionEvents.WithLabelValues("started").Inc()
	respondJSON(w, http.StatusOK, exchangeResponse{
		SignedURL:      signedURL,
		AgentID:        agentID,
		SessionID:      sess.ID,
		CandidateName:  sess.CandidateName,
		ConfigTitle:    cfg.Title,
		IsVerification: sess.Verification != screening.VerificationNone,
	})
}

// handleUploadAudio archives the candidate's local recording. Public route:
// the candidate is not authenticated mid-call, the session id gates it.
func (s *Server) handleUploadAudio(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "audio file and session_id are required")
		return
	}
	sessionID := strings.TrimSpace(r.FormValue("session_id"))
	file, header, err := r.FormFile("audio")
	if sessionID == "" || err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "audio file and session_id are required")
		return
	}
	defer file.Close()

	if _, err := s.store.GetSession(r.Context(), sessionID); err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/webm"
	}
	audioURL, err := s.recordings.Save(sessionID, contentType, file)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "upload_failed", err.Error())
		return
	}
	if err := s.store.SetAudioURL(r.Context(), sessionID, audioURL); err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	s.metrics.UploadBytes.Observe(float64(header.Size))
	s.metrics.SessionEvents.WithLabelValues("audio_uploaded").Inc()
	respondJSON(w, http.StatusOK, map[string]string{"audio_url": audioURL})
}

type completeRequest struct {
	SessionID      string `json:"session_id"`
	ConversationID string `json:"conversation_id"`
}

type completeResponse struct {
	Session          screening.Session `json:"session"`
	AlreadyCompleted bool              `json:"already_completed"`
}

// handleComplete pulls the transcript and analysis for a finished
// conversation and persists the outcome. Idempotent: a repeat for the same
// session returns the stored record untouched.
func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.SessionID == "" || req.ConversationID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "session_id and conversation_id are required")
		return
	}

	sess, err := s.store.GetSession(r.Context(), req.SessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	if sess.Status == screening.StatusCompleted {
		respondJSON(w, http.StatusOK, completeResponse{Session: sess, AlreadyCompleted: true})
		return
	}

	details, err := s.provider.Details(r.Context(), req.ConversationID)
	if err != nil {
		s.metrics.ProviderErrors.WithLabelValues("elevenlabs", "conversation_details").Inc()
		respondError(w, http.StatusBadGateway, "provider_error", "Could not retrieve the conversation.")
		return
	}

	var cfgTitle string
	if sess.ConfigID != "" {
		if cfg, err := s.store.GetConfig(r.Context(), sess.ConfigID); err == nil {
			cfgTitle = cfg.Title
		}
	}

	aiSummary := details.Summary
	if aiSummary == "" && len(details.Transcript) > 0 {
		aiSummary, err = s.summarizer.Summarize(r.Context(), summary.Request{
			ProjectTitle:  cfgTitle,
			CandidateName: sess.CandidateName,
			Verification:  sess.Verification,
			Transcript:    details.Transcript,
		})
		if err != nil {
			// The transcript is the record of truth; the summary is a bonus.
			log.Printf("httpapi: summary generation failed: %v", err)
			aiSummary = ""
		}
	}

	updated, already, err := s.store.CompleteSession(r.Context(), store.Completion{
		SessionID:       req.SessionID,
		ConversationID:  req.ConversationID,
		Transcript:      details.Transcript,
		AISummary:       aiSummary,
		DurationSeconds: durationFromTranscript(details.Transcript),
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	if !already {
		s.metrics.SessionEvents.WithLabelValues("completed").Inc()
		s.metrics.ObserveCallDuration(time.Duration(updated.DurationSeconds) * time.Second)
	}
	respondJSON(w, http.StatusOK, completeResponse{Session: updated, AlreadyCompleted: already})
}

func durationFromTranscript(transcript []screening.TranscriptEntry) int {
	if len(transcript) == 0 {
		return 0
	}
	last := transcript[len(transcript)-1]
	return int(math.Ceil(last.Timestamp))
}
