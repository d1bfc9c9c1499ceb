package capture

import (
	"bytes"
	"context"
	"math"
	"os"
	"strings"
)

// ToneSource synthesizes a sine tone as PCM16 WAV. It stands in for a real
// microphone in callprobe runs and tests.
type ToneSource struct {
	Freq       float64
	SampleRate int
	Duration   int // seconds of audio available
}

func (s ToneSource) Acquire(_ context.Context) (Stream, string, error) {
	freq := s.Freq
	if freq <= 0 {
		freq = 440
	}
	rate := s.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	seconds := s.Duration
	if seconds <= 0 {
		seconds = 60
	}

	pcm := make([]byte, 0, rate*seconds*2)
	for i := 0; i < rate*seconds; i++ {
		sample := int16(math.Sin(2*math.Pi*freq*float64(i)/float64(rate)) * 12000)
		pcm = append(pcm, byte(sample), byte(sample>>8))
	}
	wav, err := EncodeWAVPCM16LE(pcm, rate)
	if err != nil {
		return nil, "", err
	}
	return &readerStream{Reader: bytes.NewReader(wav)}, "audio/wav", nil
}

// FileSource replays a pre-recorded audio file.
type FileSource struct {
	Path string
}

func (s FileSource) Acquire(_ context.Context) (Stream, string, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, "", err
	}
	return f, mimeForPath(s.Path), nil
}

// DeniedSource simulates a refused microphone permission prompt.
type DeniedSource struct{}

func (DeniedSource) Acquire(_ context.Context) (Stream, string, error) {
	return nil, "", ErrPermissionDenied
}

type readerStream struct {
	*bytes.Reader
}

func (*readerStream) Close() error { return nil }

func mimeForPath(path string) string {
	switch {
	case strings.HasSuffix(path, ".wav"):
		return "audio/wav"
	case strings.HasSuffix(path, ".webm"):
		return "audio/webm"
	case strings.HasSuffix(path, ".mp4"), strings.HasSuffix(path, ".m4a"):
		return "audio/mp4"
	case strings.HasSuffix(path, ".ogg"):
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}
