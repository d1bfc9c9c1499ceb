package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RecordingStore archives uploaded call audio. The filesystem implementation
// stands in for an object-store bucket; the interface stays narrow enough for
// one to slot in later.
type RecordingStore interface {
	Save(sessionID, contentType string, audio io.Reader) (string, error)
}

// FSRecordingStore writes recordings under a local directory.
type FSRecordingStore struct {
	dir string
}

func NewFSRecordingStore(dir string) (*FSRecordingStore, error) {
	if strings.TrimSpace(dir) == "" {
		dir = "recordings"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recordings dir: %w", err)
	}
	return &FSRecordingStore{dir: dir}, nil
}

func (s *FSRecordingStore) Save(sessionID, contentType string, audio io.Reader) (string, error) {
	name := fmt.Sprintf("%s_%d%s", sessionID, time.Now().UnixMilli(), extensionFor(contentType))
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create recording file: %w", err)
	}
	if _, err := io.Copy(f, audio); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write recording: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close recording: %w", err)
	}
	return path, nil
}

func extensionFor(contentType string) string {
	switch {
	case strings.Contains(contentType, "webm"):
		return ".webm"
	case strings.Contains(contentType, "mp4"):
		return ".mp4"
	case strings.Contains(contentType, "wav"):
		return ".wav"
	case strings.Contains(contentType, "ogg"):
		return ".ogg"
	default:
		return ".bin"
	}
}
