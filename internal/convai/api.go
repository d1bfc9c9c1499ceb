package convai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lmeynard/screenline/internal/screening"
)

// API is the provider's management surface: agent creation, credential
// issuance and post-call transcript retrieval.
type API struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

type APIConfig struct {
	APIKey  string
	BaseURL string
}

func NewAPI(cfg APIConfig) *API {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "https://api.elevenlabs.io"
	}
	return &API{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: base,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// AgentSpec describes the automated interviewer for one screening config.
type AgentSpec struct {
	Name         string
	SystemPrompt string
	FirstMessage string
	Language     string
	VoiceID      string
}

// CreateAgent registers a conversational agent and returns its id.
func (a *API) CreateAgent(ctx context.Context, spec AgentSpec) (string, error) {
	name := spec.Name
	if len(name) > 100 {
		name = name[:100]
	}
	payload := map[string]any{
		"name": name,
		"conversation_config": map[string]any{
			"agent": map[string]any{
				"prompt":        map[string]any{"prompt": spec.SystemPrompt},
				"first_message": spec.FirstMessage,
				"language":      spec.Language,
			},
			"tts": map[string]any{
				"model_id": "eleven_flash_v2_5",
				"voice_id": spec.VoiceID,
			},
		},
	}

	var out struct {
		AgentID string `json:"agent_id"`
	}
	if err := a.postJSON(ctx, "/v1/convai/agents/create", payload, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.AgentID) == "" {
		return "", fmt.Errorf("provider returned empty agent id")
	}
	return out.AgentID, nil
}

// SignedURL issues the short-lived conversation credential for an agent.
func (a *API) SignedURL(ctx context.Context, agentID string) (string, error) {
	endpoint := a.baseURL + "/v1/convai/conversation/get_signed_url?agent_id=" + url.QueryEscape(agentID)
	var out struct {
		SignedURL string `json:"signed_url"`
	}
	if err := a.getJSON(ctx, endpoint, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.SignedURL) == "" {
		return "", fmt.Errorf("provider returned empty signed url")
	}
	return out.SignedURL, nil
}

// ConversationDetails is the post-call record pulled from the provider.
type ConversationDetails struct {
	Transcript []screening.TranscriptEntry
	Status     string
	Summary    string
}

// Details fetches the transcript and analysis for a finished conversation.
func (a *API) Details(ctx context.Context, conversationID string) (ConversationDetails, error) {
	endpoint := a.baseURL + "/v1/convai/conversations/" + url.PathEscape(conversationID)
	var raw struct {
		Status     string `json:"status"`
		Transcript []struct {
			Role           string  `json:"role"`
			Message        string  `json:"message"`
			TimeInCallSecs float64 `json:"time_in_call_secs"`
		} `json:"transcript"`
		Analysis struct {
			TranscriptSummary string `json:"transcript_summary"`
		} `json:"analysis"`
	}
	if err := a.getJSON(ctx, endpoint, &raw); err != nil {
		return ConversationDetails{}, err
	}

	details := ConversationDetails{
		Status:  raw.Status,
		Summary: raw.Analysis.TranscriptSummary,
	}
	if details.Status == "" {
		details.Status = "unknown"
	}
	for _, entry := range raw.Transcript {
		role := "agent"
		if entry.Role == "user" {
			role = "user"
		}
		details.Transcript = append(details.Transcript, screening.TranscriptEntry{
			Role:      role,
			Message:   entry.Message,
			Timestamp: entry.TimeInCallSecs,
		})
	}
	return details, nil
}

func (a *API) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return a.do(req, out)
}

func (a *API) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return a.do(req, out)
}

func (a *API) do(req *http.Request, out any) error {
	req.Header.Set("xi-api-key", a.apiKey)

	res, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("provider http status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
