package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

type scriptStream struct {
	mu     sync.Mutex
	data   []byte
	pos    int
	err    error // returned once data is exhausted
	closed bool
}

func (s *scriptStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.data) {
		if s.err != nil {
			return 0, s.err
		}
		return 0, io.EOF
	}
	n := copy(p, s.data[s.pos:])
	s.pos += n
	return n, nil
}

func (s *scriptStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *scriptStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type scriptSource struct {
	stream *scriptStream
	mime   string
	err    error
}

func (s *scriptSource) Acquire(context.Context) (Stream, string, error) {
	if s.err != nil {
		return nil, "", s.err
	}
	return s.stream, s.mime, nil
}

func TestRecorderBuffersWholeStream(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB, 0xCD}, 4096)
	source := &scriptSource{stream: &scriptStream{data: payload}, mime: "audio/webm"}
	rec := NewRecorder(source, 5*time.Millisecond)

	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	got := rec.Stop()
	if !bytes.Equal(got.Data, payload) {
		t.Fatalf("buffered %d bytes, want %d", len(got.Data), len(payload))
	}
	if got.MIME != "audio/webm" {
		t.Fatalf("mime = %q, want audio/webm", got.MIME)
	}
	if !source.stream.Closed() {
		t.Fatalf("device not released on Stop")
	}
}

func TestRecorderStopIdempotent(t *testing.T) {
	payload := []byte("interview-audio")
	source := &scriptSource{stream: &scriptStream{data: payload}, mime: "audio/wav"}
	rec := NewRecorder(source, 5*time.Millisecond)

	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	first := rec.Stop()
	second := rec.Stop()
	if !bytes.Equal(first.Data, second.Data) {
		t.Fatalf("second Stop returned different data")
	}
	if second.MIME != "audio/wav" {
		t.Fatalf("mime lost on repeated Stop: %q", second.MIME)
	}
}

func TestRecorderSurfacesAcquisitionErrors(t *testing.T) {
	rec := NewRecorder(&scriptSource{err: ErrPermissionDenied}, 5*time.Millisecond)
	if err := rec.Start(context.Background()); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Start = %v, want ErrPermissionDenied", err)
	}
	if rec.Started() {
		t.Fatalf("recorder reports started after acquisition failure")
	}
}

func TestRecorderSwallowsReadErrors(t *testing.T) {
	payload := []byte("partial")
	source := &scriptSource{stream: &scriptStream{data: payload, err: errors.New("device unplugged")}}
	rec := NewRecorder(source, 5*time.Millisecond)

	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	got := rec.Stop()
	if !bytes.Equal(got.Data, payload) {
		t.Fatalf("buffered %q, want %q despite read error", got.Data, payload)
	}
}

func TestRecorderStopBeforeStart(t *testing.T) {
	rec := NewRecorder(&scriptSource{stream: &scriptStream{}}, 5*time.Millisecond)
	got := rec.Stop()
	if len(got.Data) != 0 {
		t.Fatalf("expected empty recording, got %d bytes", len(got.Data))
	}
}

func TestDeniedSource(t *testing.T) {
	_, _, err := DeniedSource{}.Acquire(context.Background())
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Acquire = %v, want ErrPermissionDenied", err)
	}
}

func TestToneSourceProducesWAV(t *testing.T) {
	stream, mime, err := ToneSource{Duration: 1}.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer stream.Close()
	if mime != "audio/wav" {
		t.Fatalf("mime = %q, want audio/wav", mime)
	}
	header := make([]byte, 12)
	if _, err := io.ReadFull(stream, header); err != nil {
		t.Fatalf("read header: %v", err)
	}
	if string(header[:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		t.Fatalf("not a WAV header: %q", header)
	}
}
