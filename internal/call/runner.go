package call

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/lmeynard/screenline/internal/capture"
	"github.com/lmeynard/screenline/internal/convai"
)

// Link exchange outcomes a Validator must distinguish. Both land the call in
// the expired phase; everything else is a generic retry-by-reload failure.
var (
	ErrLinkExpired = errors.New("call: link expired")
	ErrLinkUsed    = errors.New("call: link already used")
)

// Grant is the credential bundle returned by a successful token exchange.
type Grant struct {
	Credential     string
	SessionID      string
	CandidateName  string
	ConfigTitle    string
	IsVerification bool
}

// Validator exchanges the one-time access token for a conversation
// credential. Exactly one exchange per call instance; marking the link used
// is the server's job, atomic with issuing the credential.
type Validator interface {
	Exchange(ctx context.Context, token string) (Grant, error)
}

// Uploader archives the local recording. Best effort: failures are logged,
// never surfaced into the call flow.
type Uploader interface {
	Upload(ctx context.Context, sessionID string, rec capture.Recording) error
}

// Completer triggers the idempotent post-call transcript retrieval for
// verification sessions.
type Completer interface {
	Complete(ctx context.Context, sessionID, conversationID string) error
}

// FailureKind classifies user-visible call failures.
type FailureKind string

const (
	FailureNone             FailureKind = ""
	FailureLinkExpired      FailureKind = "link_expired"
	FailureLinkInvalid      FailureKind = "link_invalid"
	FailurePermissionDenied FailureKind = "permission_denied"
	FailureConversation     FailureKind = "conversation_error"
)

// Options tune the runner. Zero values get the production defaults; tests
// shrink the intervals.
type Options struct {
	TickInterval    time.Duration // elapsed-timer resolution, default 1s
	CaptureInterval time.Duration // recorder chunk interval, default 500ms
	FinalizeTimeout time.Duration // budget for upload + completion, default 30s
}

// Runner owns the call lifecycle for one token: it mediates between the
// validator, the local audio capture and the conversation client, and drives
// the elapsed timer. One Runner per interview attempt; it is not reusable.
type Runner struct {
	token     string
	validator Validator
	dialer    convai.Dialer
	source    capture.Source
	uploader  Uploader
	completer Completer
	opts      Options

	mu           sync.Mutex
	phase        Phase
	failure      FailureKind
	reason       string
	grant        Grant
	exchanged    bool
	conversation convai.Conversation
	convID       string
	recorder     *capture.Recorder
	seconds      int
	tickStop     chan struct{}
	watchers     []chan Phase
	finalizeDone chan struct{}

	finalizeOnce sync.Once
	closeOnce    sync.Once
}

func NewRunner(token string, validator Validator, dialer convai.Dialer, source capture.Source, uploader Uploader, completer Completer, opts Options) *Runner {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.CaptureInterval <= 0 {
		opts.CaptureInterval = 500 * time.Millisecond
	}
	if opts.FinalizeTimeout <= 0 {
		opts.FinalizeTimeout = 30 * time.Second
	}
	return &Runner{
		token:        token,
		validator:    validator,
		dialer:       dialer,
		source:       source,
		uploader:     uploader,
		completer:    completer,
		opts:         opts,
		phase:        PhaseLoading,
		finalizeDone: make(chan struct{}),
	}
}

// Phase returns the current lifecycle phase.
func (r *Runner) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Failure returns the classified failure and its human-readable reason.
func (r *Runner) Failure() (FailureKind, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failure, r.reason
}

// Grant returns the credential bundle captured during Load.
func (r *Runner) Grant() Grant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.grant
}

// Elapsed reports whole seconds spent in the active phase.
func (r *Runner) Elapsed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seconds
}

// ConversationID returns the id reported by the provider, if the
// conversation opened.
func (r *Runner) ConversationID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.convID
}

// Watch returns a channel receiving every phase transition from now on.
func (r *Runner) Watch() <-chan Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan Phase, 16)
	r.watchers = append(r.watchers, ch)
	return ch
}

// FinalizeDone is closed once the finalizer has settled (completed phase).
func (r *Runner) FinalizeDone() <-chan struct{} {
	return r.finalizeDone
}

// Load performs the single token exchange and moves the call to ready, or to
// a terminal failure phase.
func (r *Runner) Load(ctx context.Context) {
	r.mu.Lock()
	if r.phase != PhaseLoading || r.exchanged {
		r.mu.Unlock()
		return
	}
	r.exchanged = true
	r.mu.Unlock()

	grant, err := r.validator.Exchange(ctx, r.token)

	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case err == nil:
		r.grant = grant
		r.setPhaseLocked(PhaseReady)
	case errors.Is(err, ErrLinkExpired):
		r.failLocked(PhaseExpired, FailureLinkExpired, "This link has expired. Ask the organizer for a new one.")
	case errors.Is(err, ErrLinkUsed):
		r.failLocked(PhaseExpired, FailureLinkExpired, "This interview has already been taken.")
	default:
		log.Printf("call: token exchange failed: %v", err)
		r.failLocked(PhaseError, FailureLinkInvalid, "Could not prepare the interview. Reload the page to retry.")
	}
}

// StartCall begins the live call: microphone first, then the conversation.
// Only valid from ready; any later invocation is a no-op so a credential is
// never spent twice.
func (r *Runner) StartCall(ctx context.Context) {
	r.mu.Lock()
	if r.phase != PhaseReady {
		r.mu.Unlock()
		return
	}
	r.setPhaseLocked(PhaseConnecting)
	credential := r.grant.Credential
	r.mu.Unlock()

	recorder := capture.NewRecorder(r.source, r.opts.CaptureInterval)
	if err := recorder.Start(ctx); err != nil {
		if errors.Is(err, capture.ErrPermissionDenied) {
			r.mu.Lock()
			r.failLocked(PhaseError, FailurePermissionDenied,
				"Microphone access was denied. Allow microphone access in your browser settings and reload.")
			r.mu.Unlock()
			return
		}
		// Archival capture is optional; the interview goes on without it.
		log.Printf("call: archival capture unavailable: %v", err)
		recorder = nil
	}

	r.mu.Lock()
	if r.phase != PhaseConnecting {
		// Torn down while acquiring the microphone.
		r.mu.Unlock()
		if recorder != nil {
			recorder.Stop()
		}
		return
	}
	r.recorder = recorder
	r.mu.Unlock()

	conv, err := r.dialer.Open(ctx, credential, convai.Callbacks{
		OnOpened: r.onOpened,
		OnClosed: r.onClosed,
		OnError:  r.onError,
	})
	if err != nil {
		log.Printf("call: conversation open failed: %v", err)
		if recorder != nil {
			recorder.Stop()
		}
		r.mu.Lock()
		r.failLocked(PhaseError, FailureConversation, "Could not start the call. Reload the page to retry.")
		r.mu.Unlock()
		return
	}

	r.mu.Lock()
	if r.phase != PhaseConnecting && r.phase != PhaseActive {
		// Failed or ended while dialing; release the socket.
		r.mu.Unlock()
		_ = conv.Close()
		return
	}
	r.conversation = conv
	r.mu.Unlock()
}

// EndCall hangs up. Reentrant-safe: once the call is ending or terminal it
// has no effect.
func (r *Runner) EndCall() {
	r.mu.Lock()
	if r.phase != PhaseConnecting && r.phase != PhaseActive {
		r.mu.Unlock()
		return
	}
	conv := r.conversation
	r.mu.Unlock()

	if conv != nil {
		// Close triggers OnClosed, which drives the ending transition.
		_ = conv.Close()
		return
	}
	r.onClosed("local")
}

// Mute toggles the candidate's input on the live conversation.
func (r *Runner) Mute(muted bool) {
	r.mu.Lock()
	conv := r.conversation
	r.mu.Unlock()
	if conv != nil {
		if err := conv.Mute(muted); err != nil {
			log.Printf("call: mute: %v", err)
		}
	}
}

// Close releases every resource unconditionally: timer, device, socket. For
// teardown when the user navigates away; it does not advance the phase.
func (r *Runner) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.stopTickerLocked()
		conv := r.conversation
		recorder := r.recorder
		r.mu.Unlock()

		if conv != nil {
			_ = conv.Close()
		}
		if recorder != nil {
			recorder.Stop()
		}
	})
}

func (r *Runner) onOpened(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != PhaseConnecting {
		return
	}
	r.convID = conversationID
	r.setPhaseLocked(PhaseActive)
	r.startTickerLocked()
}

func (r *Runner) onClosed(string) {
	r.mu.Lock()
	if r.phase != PhaseConnecting && r.phase != PhaseActive {
		r.mu.Unlock()
		return
	}
	r.stopTickerLocked()
	r.setPhaseLocked(PhaseEnding)
	recorder := r.recorder
	sessionID := r.grant.SessionID
	isVerification := r.grant.IsVerification
	conversationID := r.convID
	r.mu.Unlock()

	r.finalizeOnce.Do(func() {
		go r.finalize(recorder, sessionID, conversationID, isVerification)
	})
}

func (r *Runner) onError(err error) {
	r.mu.Lock()
	if r.phase.Terminal() || r.phase == PhaseEnding {
		r.mu.Unlock()
		return
	}
	log.Printf("call: conversation error: %v", err)
	r.stopTickerLocked()
	recorder := r.recorder
	conv := r.conversation
	r.failLocked(PhaseError, FailureConversation, "Something went wrong during the call. Reload the page to retry.")
	r.mu.Unlock()

	// Conversation failure force-stops capture even when capture is healthy.
	if recorder != nil {
		recorder.Stop()
	}
	if conv != nil {
		_ = conv.Close()
	}
}

// finalize uploads the recording and, for verification sessions, issues the
// one completion call. The completed phase is declared only after both have
// settled; neither outcome can fail the call.
func (r *Runner) finalize(recorder *capture.Recorder, sessionID, conversationID string, isVerification bool) {
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.FinalizeTimeout)
	defer cancel()

	if recorder != nil {
		rec := recorder.Stop()
		if len(rec.Data) > 0 && r.uploader != nil {
			if err := r.uploader.Upload(ctx, sessionID, rec); err != nil {
				log.Printf("call: audio upload failed: %v", err)
			}
		}
	}

	if isVerification && conversationID != "" && r.completer != nil {
		if err := r.completer.Complete(ctx, sessionID, conversationID); err != nil {
			log.Printf("call: completion failed (single attempt, no retry): %v", err)
		}
	}

	r.mu.Lock()
	if r.phase == PhaseEnding {
		r.setPhaseLocked(PhaseCompleted)
	}
	r.mu.Unlock()
	close(r.finalizeDone)
}

func (r *Runner) startTickerLocked() {
	stop := make(chan struct{})
	r.tickStop = stop
	go func() {
		ticker := time.NewTicker(r.opts.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				r.mu.Lock()
				if r.phase != PhaseActive {
					r.mu.Unlock()
					return
				}
				r.seconds++
				r.mu.Unlock()
			}
		}
	}()
}

func (r *Runner) stopTickerLocked() {
	if r.tickStop != nil {
		close(r.tickStop)
		r.tickStop = nil
	}
}

func (r *Runner) failLocked(phase Phase, kind FailureKind, reason string) {
	r.failure = kind
	r.reason = reason
	r.setPhaseLocked(phase)
}

func (r *Runner) setPhaseLocked(to Phase) {
	if r.phase == to {
		return
	}
	if !canTransition(r.phase, to) {
		log.Printf("call: refusing transition %s -> %s", r.phase, to)
		return
	}
	r.phase = to
	for _, ch := range r.watchers {
		select {
		case ch <- to:
		default:
			// Slow watcher; the phase accessor still tells the truth.
		}
	}
}
