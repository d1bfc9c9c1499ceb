// callprobe drives one full screening call against a screenline server from
// the terminal: token exchange, live conversation, archival capture and
// finalization. With -mock-conversation it skips the real provider and runs
// the lifecycle against a scripted conversation, which is handy for smoke
// testing a deployment's exchange/upload/complete endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lmeynard/screenline/internal/call"
	"github.com/lmeynard/screenline/internal/capture"
	"github.com/lmeynard/screenline/internal/client"
	"github.com/lmeynard/screenline/internal/convai"
)

type options struct {
	baseURL   string
	token     string
	audioFile string
	duration  time.Duration
	mock      bool
	denyMic   bool
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "callprobe: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "callprobe: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "screenline base URL")
	flag.StringVar(&cfg.token, "token", "", "access link token (required)")
	flag.StringVar(&cfg.audioFile, "audio-file", "", "audio file to replay instead of a synthetic tone")
	flag.DurationVar(&cfg.duration, "duration", 10*time.Second, "how long to stay in the call before hanging up")
	flag.BoolVar(&cfg.mock, "mock-conversation", false, "use a scripted conversation instead of the provider")
	flag.BoolVar(&cfg.denyMic, "deny-mic", false, "simulate a refused microphone permission")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if strings.TrimSpace(cfg.token) == "" {
		return options{}, fmt.Errorf("token is required")
	}
	if cfg.duration <= 0 {
		return options{}, fmt.Errorf("duration must be > 0")
	}
	return cfg, nil
}

func run(cfg options) error {
	api := client.New(cfg.baseURL)

	var dialer convai.Dialer = convai.NewElevenLabsDialer()
	if cfg.mock {
		dialer = &convai.MockDialer{ConversationID: "conv-probe", OpenedAfter: 300 * time.Millisecond}
	}

	var source capture.Source = capture.ToneSource{Duration: int(cfg.duration/time.Second) + 5}
	if cfg.audioFile != "" {
		source = capture.FileSource{Path: cfg.audioFile}
	}
	if cfg.denyMic {
		source = capture.DeniedSource{}
	}

	runner := call.NewRunner(cfg.token, api, dialer, source, api, api, call.Options{})
	defer runner.Close()

	watch := runner.Watch()
	go func() {
		for phase := range watch {
			fmt.Printf("phase: %s\n", phase)
		}
	}()

	ctx := context.Background()
	runner.Load(ctx)
	if runner.Phase() != call.PhaseReady {
		kind, reason := runner.Failure()
		return fmt.Errorf("exchange failed (%s): %s", kind, reason)
	}
	grant := runner.Grant()
	fmt.Printf("ready: session=%s candidate=%q config=%q verification=%v\n",
		grant.SessionID, grant.CandidateName, grant.ConfigTitle, grant.IsVerification)

	runner.StartCall(ctx)
	if runner.Phase() == call.PhaseError {
		_, reason := runner.Failure()
		return fmt.Errorf("start failed: %s", reason)
	}

	deadline := time.NewTimer(cfg.duration)
	defer deadline.Stop()
	poll := time.NewTicker(250 * time.Millisecond)
	defer poll.Stop()

wait:
	for {
		select {
		case <-deadline.C:
			runner.EndCall()
			break wait
		case <-poll.C:
			if runner.Phase().Terminal() {
				break wait
			}
		}
	}

	// Give the finalizer a chance to settle before reporting.
	if p := runner.Phase(); p == call.PhaseEnding || p == call.PhaseCompleted {
		select {
		case <-runner.FinalizeDone():
		case <-time.After(45 * time.Second):
		}
	}

	phase := runner.Phase()
	fmt.Printf("final phase: %s, elapsed: %ds, conversation: %s\n", phase, runner.Elapsed(), runner.ConversationID())
	if phase != call.PhaseCompleted {
		_, reason := runner.Failure()
		return fmt.Errorf("call did not complete: %s", reason)
	}
	return nil
}
