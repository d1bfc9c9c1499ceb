package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lmeynard/screenline/internal/call"
	"github.com/lmeynard/screenline/internal/capture"
)

func TestExchangeSuccess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/screening/agent" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["token"] == "" {
			t.Errorf("missing token in request")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"signed_url":      "wss://provider/conv",
			"session_id":      "sess-1",
			"candidate_name":  "Ada",
			"config_title":    "Backend role",
			"is_verification": true,
		})
	}))
	defer ts.Close()

	grant, err := New(ts.URL).Exchange(context.Background(), "tok-abcdefabcdefabcdefabcdefabcdef12")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if grant.Credential != "wss://provider/conv" || grant.SessionID != "sess-1" || !grant.IsVerification {
		t.Fatalf("grant = %+v", grant)
	}
}

func TestExchangeGoneMapping(t *testing.T) {
	cases := []struct {
		code string
		want error
	}{
		{"link_used", call.ErrLinkUsed},
		{"link_expired", call.ErrLinkExpired},
	}
	for _, tc := range cases {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusGone)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "gone", "code": tc.code})
		}))
		_, err := New(ts.URL).Exchange(context.Background(), "tok")
		ts.Close()
		if !errors.Is(err, tc.want) {
			t.Errorf("code %s: err = %v, want %v", tc.code, err, tc.want)
		}
	}
}

func TestExchangeServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := New(ts.URL).Exchange(context.Background(), "tok")
	if err == nil || errors.Is(err, call.ErrLinkUsed) || errors.Is(err, call.ErrLinkExpired) {
		t.Fatalf("err = %v, want generic failure", err)
	}
}

func TestUploadSendsMultipart(t *testing.T) {
	var gotSession, gotMIME string
	var gotAudio []byte
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		gotSession = r.FormValue("session_id")
		file, header, err := r.FormFile("audio")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer file.Close()
		gotMIME = header.Header.Get("Content-Type")
		gotAudio, _ = io.ReadAll(file)
		_ = json.NewEncoder(w).Encode(map[string]string{"audio_url": "recordings/x.webm"})
	}))
	defer ts.Close()

	rec := capture.Recording{Data: []byte("webm-bytes"), MIME: "audio/webm"}
	if err := New(ts.URL).Upload(context.Background(), "sess-1", rec); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if gotSession != "sess-1" {
		t.Fatalf("session_id = %q", gotSession)
	}
	if gotMIME != "audio/webm" {
		t.Fatalf("part content type = %q", gotMIME)
	}
	if string(gotAudio) != "webm-bytes" {
		t.Fatalf("audio = %q", gotAudio)
	}
}

func TestUploadFailureStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "full", http.StatusInsufficientStorage)
	}))
	defer ts.Close()

	err := New(ts.URL).Upload(context.Background(), "sess-1", capture.Recording{Data: []byte("x")})
	if err == nil {
		t.Fatalf("expected upload error")
	}
}

func TestComplete(t *testing.T) {
	var got map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/screening/verify/complete" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]any{"already_completed": false})
	}))
	defer ts.Close()

	if err := New(ts.URL).Complete(context.Background(), "sess-1", "conv-9"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got["session_id"] != "sess-1" || got["conversation_id"] != "conv-9" {
		t.Fatalf("payload = %v", got)
	}
}
