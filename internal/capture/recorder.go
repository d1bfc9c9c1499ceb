package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"
)

// ErrPermissionDenied reports that the audio device could not be acquired
// because the user refused access.
var ErrPermissionDenied = errors.New("capture: microphone permission denied")

// Stream is an open microphone handle. It is exclusively owned by the
// Recorder once acquired.
type Stream interface {
	io.Reader
	Close() error
}

// Source abstracts device acquisition, including the permission prompt.
type Source interface {
	Acquire(ctx context.Context) (Stream, string, error) // stream, MIME type
}

// Recording is the flushed archival audio for one call.
type Recording struct {
	Data []byte
	MIME string
}

// Recorder buffers the microphone stream in fixed-interval chunks for the
// whole call, independent of the live conversation pipeline. Read failures
// after acquisition are logged and swallowed: archival capture must never
// take the interview down.
type Recorder struct {
	source   Source
	interval time.Duration

	mu      sync.Mutex
	stream  Stream
	mime    string
	buf     bytes.Buffer
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
	stopped bool
}

func NewRecorder(source Source, interval time.Duration) *Recorder {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Recorder{source: source, interval: interval}
}

// Start acquires the device and begins buffering. Acquisition failure is the
// only error surfaced to the caller; the permission prompt happens here.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	stream, mime, err := r.source.Acquire(ctx)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r.stream = stream
	r.mime = mime
	r.cancel = cancel
	r.done = make(chan struct{})
	r.started = true

	go r.run(runCtx, stream)
	return nil
}

func (r *Recorder) run(ctx context.Context, stream Stream) {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	chunk := make([]byte, 32<<10)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := stream.Read(chunk)
			if n > 0 {
				r.mu.Lock()
				r.buf.Write(chunk[:n])
				r.mu.Unlock()
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					log.Printf("capture: read failed, keeping what we have: %v", err)
				}
				return
			}
		}
	}
}

// Stop flushes remaining audio, releases the device and returns the buffered
// recording. Safe to call more than once; later calls return the same data.
func (r *Recorder) Stop() Recording {
	r.mu.Lock()
	if !r.started || r.stopped {
		rec := Recording{Data: append([]byte(nil), r.buf.Bytes()...), MIME: r.mime}
		r.mu.Unlock()
		return rec
	}
	r.stopped = true
	cancel := r.cancel
	done := r.done
	stream := r.stream
	r.mu.Unlock()

	cancel()
	<-done

	// Drain whatever the device still holds before releasing it.
	tail, err := io.ReadAll(io.LimitReader(stream, 4<<20))
	if err != nil {
		log.Printf("capture: flush failed: %v", err)
	}
	if closeErr := stream.Close(); closeErr != nil {
		log.Printf("capture: release device: %v", closeErr)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf.Write(tail)
	return Recording{Data: append([]byte(nil), r.buf.Bytes()...), MIME: r.mime}
}

// Started reports whether a device was ever acquired.
func (r *Recorder) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}
