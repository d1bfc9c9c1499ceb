package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lmeynard/screenline/internal/config"
	"github.com/lmeynard/screenline/internal/convai"
	"github.com/lmeynard/screenline/internal/observability"
	"github.com/lmeynard/screenline/internal/store"
	"github.com/lmeynard/screenline/internal/summary"
)

// ConversationProvider is the slice of the voice provider the server needs:
// agent setup, credential issuance, post-call transcript retrieval.
type ConversationProvider interface {
	CreateAgent(ctx context.Context, spec convai.AgentSpec) (string, error)
	SignedURL(ctx context.Context, agentID string) (string, error)
	Details(ctx context.Context, conversationID string) (convai.ConversationDetails, error)
}

type Server struct {
	cfg        config.Config
	store      store.Store
	recordings store.RecordingStore
	provider   ConversationProvider
	summarizer summary.Generator
	metrics    *observability.Metrics
}

func New(cfg config.Config, st store.Store, recordings store.RecordingStore, provider ConversationProvider, summarizer summary.Generator, metrics *observability.Metrics) *Server {
	if summarizer == nil {
		summarizer = summary.Noop{}
	}
	return &Server{
		cfg:        cfg,
		store:      st,
		recordings: recordings,
		provider:   provider,
		summarizer: summarizer,
		metrics:    metrics,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/screening/configs", s.handleCreateConfig)
	r.Post("/v1/screening/sessions", s.handleCreateSession)
	r.Get("/v1/screening/sessions/{id}", s.handleGetSession)
	r.Post("/v1/screening/links", s.handleIssueLink)

	r.Post("/v1/screening/agent", s.handleExchange)
	r.Post("/v1/screening/upload-audio", s.handleUploadAudio)
	r.Post("/v1/screening/verify/complete", s.handleComplete)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
