// Package client implements the call runner's server collaborators over the
// screenline HTTP API: token exchange, audio upload and completion.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/lmeynard/screenline/internal/call"
	"github.com/lmeynard/screenline/internal/capture"
)

// Client talks to one screenline server.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

type exchangeResponse struct {
	SignedURL      string `json:"signed_url"`
	SessionID      string `json:"session_id"`
	CandidateName  string `json:"candidate_name"`
	ConfigTitle    string `json:"config_title"`
	IsVerification bool   `json:"is_verification"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Exchange performs the one-time token exchange. A 410 maps to the
// distinguishable expired/used outcomes; anything else is a generic failure
// the user retries by reloading.
func (c *Client) Exchange(ctx context.Context, token string) (call.Grant, error) {
	body, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return call.Grant{}, fmt.Errorf("marshal exchange: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/screening/agent", bytes.NewReader(body))
	if err != nil {
		return call.Grant{}, fmt.Errorf("create exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return call.Grant{}, fmt.Errorf("exchange token: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusGone {
		var fail errorResponse
		_ = json.NewDecoder(res.Body).Decode(&fail)
		if fail.Code == "link_used" {
			return call.Grant{}, call.ErrLinkUsed
		}
		return call.Grant{}, call.ErrLinkExpired
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return call.Grant{}, fmt.Errorf("exchange http status %d: %s", res.StatusCode, strings.TrimSpace(string(payload)))
	}

	var out exchangeResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return call.Grant{}, fmt.Errorf("decode exchange response: %w", err)
	}
	return call.Grant{
		Credential:     out.SignedURL,
		SessionID:      out.SessionID,
		CandidateName:  out.CandidateName,
		ConfigTitle:    out.ConfigTitle,
		IsVerification: out.IsVerification,
	}, nil
}

// Upload posts the archival recording as multipart form data.
func (c *Client) Upload(ctx context.Context, sessionID string, rec capture.Recording) error {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if err := form.WriteField("session_id", sessionID); err != nil {
		return fmt.Errorf("build upload form: %w", err)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="audio"; filename="recording"`)
	contentType := rec.MIME
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	part, err := form.CreatePart(header)
	if err != nil {
		return fmt.Errorf("build upload part: %w", err)
	}
	if _, err := part.Write(rec.Data); err != nil {
		return fmt.Errorf("write audio: %w", err)
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("finish upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/screening/upload-audio", &buf)
	if err != nil {
		return fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload audio: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("upload http status %d: %s", res.StatusCode, strings.TrimSpace(string(payload)))
	}
	return nil
}

// Complete asks the server to pull the transcript for a finished
// conversation. Safe to call more than once for the same pair.
func (c *Client) Complete(ctx context.Context, sessionID, conversationID string) error {
	body, err := json.Marshal(map[string]string{
		"session_id":      sessionID,
		"conversation_id": conversationID,
	})
	if err != nil {
		return fmt.Errorf("marshal completion: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/screening/verify/complete", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("completion http status %d: %s", res.StatusCode, strings.TrimSpace(string(payload)))
	}
	return nil
}
