package call

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/callio-ai/callio/pkg/core"
)

// ReplyClient is the interface for the assistant-reply collaborator.
type ReplyClient interface {
	// Reply sends the user message and returns the assistant's answer.
	Reply(ctx context.Context, conversationID, message string) (string, error)
}

// Session is the main orchestrator for a voice call. It coordinates the
// voice activity monitor, segment recorder, transcription gate, reply
// collaborator, and playback sequencer.
type Session struct {
	config SessionConfig

	// Components
	meter     *LevelMeter
	monitor   *VoiceActivityMonitor
	recorder  *SegmentRecorder
	gate      *TranscriptionGate
	sequencer *PlaybackSequencer
	reply     ReplyClient

	// State
	mu           sync.RWMutex
	state        SessionState
	sessionID    string
	micEnabled   bool
	lastEnergy   time.Time
	eventsClosed bool

	// Channels
	events chan Event
	closed atomic.Bool

	// Context for cancellation
	ctx        context.Context
	cancel     context.CancelFunc
	turnCancel context.CancelFunc

	// Debug logging
	debugEnabled bool
}

// NewSession creates a call session over the given device and
// collaborators.
func NewSession(
	config SessionConfig,
	device CaptureDevice,
	transcriber Transcriber,
	synth Synthesizer,
	player AudioPlayer,
	reply ReplyClient,
) *Session {
	if config.EventBufferSize <= 0 {
		config.EventBufferSize = 256
	}

	meter := &LevelMeter{}
	s := &Session{
		config:    config,
		meter:     meter,
		monitor:   NewVoiceActivityMonitor(config.VAD, meter),
		recorder:  NewSegmentRecorder(config.Recorder, config.Audio, device, meter),
		gate:      NewTranscriptionGate(config.Gate, transcriber),
		sequencer: NewPlaybackSequencer(config.Playback, synth, player),
		reply:     reply,
		state:     StateIdle,
		sessionID: generateSessionID(),
		events:    make(chan Event, config.EventBufferSize),
	}
	return s
}

// EnableDebug turns on debug logging to stderr.
func (s *Session) EnableDebug() {
	s.debugEnabled = true
}

// SessionID returns the session identifier.
func (s *Session) SessionID() string {
	return s.sessionID
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// MicrophoneEnabled reports whether the microphone is on.
func (s *Session) MicrophoneEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.micEnabled
}

// Events returns the channel for receiving session events.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Start acquires the capture device and begins listening.
// Device acquisition failure is fatal: the error is returned and the
// session never leaves idle.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return fmt.Errorf("session already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.recorder.SetDeviceErrorCallback(func(err *core.Error) {
		s.emit(NewErrorEvent(err))
		_ = s.Stop()
	})

	if err := s.recorder.Acquire(); err != nil {
		return err
	}

	s.mu.Lock()
	s.micEnabled = true
	s.mu.Unlock()

	s.monitor.SetCallbacks(
		func() { s.onSpeechStart() },
		func() { s.onSpeechEnd() },
		func(rms float64) { s.onEnergy(rms) },
	)
	s.sequencer.SetCallbacks(
		func(chunks int, inline bool) { s.emit(&PlaybackStartedEvent{Chunks: chunks, Inline: inline}) },
		func(index, total int) { s.emit(&PlaybackChunkStartedEvent{Index: index, Total: total}) },
		func(index int, err error) { s.onChunkSkipped(index, err) },
		func() { s.onPlaybackComplete() },
		func(err *core.Error) { s.onPlaybackError(err) },
	)
	s.monitor.Start(s.ctx)

	s.setState(StateListening)
	s.emit(&SessionStartedEvent{SessionID: s.sessionID})
	s.debug("SESSION", "Session started")
	return nil
}

// Interrupt manually cuts off assistant playback, same as speaking over
// it would.
func (s *Session) Interrupt() error {
	if s.closed.Load() {
		return fmt.Errorf("session closed")
	}
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state != StateAssistantSpeaking {
		return fmt.Errorf("nothing to interrupt")
	}

	s.interruptPlayback("manual")
	s.setState(StateListening)
	return nil
}

// ToggleMicrophone flips the microphone and returns its new state.
// Turning it off mid-segment discards the partial recording; assistant
// playback is unaffected either way.
func (s *Session) ToggleMicrophone() (bool, error) {
	if s.closed.Load() {
		return false, fmt.Errorf("session closed")
	}

	s.mu.Lock()
	s.micEnabled = !s.micEnabled
	enabled := s.micEnabled
	state := s.state
	ctx := s.ctx
	s.mu.Unlock()

	if enabled {
		if err := s.recorder.Acquire(); err != nil {
			s.emit(NewErrorEvent(core.AsError(err)))
			_ = s.Stop()
			return false, err
		}
		if ctx != nil {
			s.monitor.Start(ctx)
		}
		s.emit(&MicrophoneToggledEvent{Enabled: true})
		s.emit(&NoticeEvent{Message: NoticeMicrophoneOn})
		s.debug("MIC", "Microphone enabled")
		return true, nil
	}

	if state == StateUserSpeaking {
		s.recorder.Abort()
		s.monitor.Reset()
		s.setState(StateListening)
	}
	// Polling stops entirely while the mic is off; no energy events are
	// emitted until the mic comes back.
	s.monitor.Stop()
	s.recorder.Release()
	s.emit(&MicrophoneToggledEvent{Enabled: false})
	s.emit(&NoticeEvent{Message: NoticeMicrophoneOff})
	s.debug("MIC", "Microphone disabled")
	return false, nil
}

// Stop tears the session down: playback cancelled, device released,
// monitor stopped, events channel closed. Idempotent and safe to call
// from any state or goroutine.
func (s *Session) Stop() error {
	if s.closed.Swap(true) {
		return nil // Already stopped
	}

	s.debug("SESSION", "Stopping session")

	s.mu.Lock()
	if s.turnCancel != nil {
		s.turnCancel()
	}
	cancel := s.cancel
	s.mu.Unlock()

	s.sequencer.Cancel()
	s.monitor.Stop()
	s.recorder.Release()
	if cancel != nil {
		cancel()
	}

	s.setState(StateClosed)
	s.emit(&SessionStoppedEvent{Reason: "stopped"})

	s.mu.Lock()
	s.eventsClosed = true
	close(s.events)
	s.mu.Unlock()
	return nil
}

func (s *Session) onEnergy(rms float64) {
	if s.closed.Load() {
		return
	}
	s.mu.Lock()
	if time.Since(s.lastEnergy) < 100*time.Millisecond {
		s.mu.Unlock()
		return
	}
	s.lastEnergy = time.Now()
	s.mu.Unlock()

	s.emit(&EnergyLevelEvent{RMS: rms, Peak: s.meter.Peak()})
}

func (s *Session) onSpeechStart() {
	if s.closed.Load() {
		return
	}
	s.mu.Lock()
	state := s.state
	micEnabled := s.micEnabled
	s.mu.Unlock()

	if !micEnabled {
		return
	}

	switch state {
	case StateListening:
		s.recorder.Begin()
		s.setState(StateUserSpeaking)
		s.emit(&SpeechStartedEvent{})
		s.debug("VAD", "Speech started")
	case StateAssistantSpeaking:
		// Barge-in: the user talks over the assistant.
		s.interruptPlayback("speech")
		s.recorder.Begin()
		s.setState(StateUserSpeaking)
		s.emit(&SpeechStartedEvent{})
		s.debug("VAD", "Speech started (barge-in)")
	default:
		// Already recording, or mid-turn; nothing to open.
	}
}

func (s *Session) onSpeechEnd() {
	if s.closed.Load() {
		return
	}
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state != StateUserSpeaking {
		return
	}

	s.emit(&SpeechEndedEvent{})
	s.debug("VAD", "Speech ended")

	seg, err := s.recorder.End()
	if err != nil {
		if errors.Is(err, ErrSegmentTooShort) {
			s.emit(&SegmentDiscardedEvent{DurationMs: seg.DurationMs()})
			s.emit(&NoticeEvent{Message: NoticeSegmentTooShort})
			s.debug("RECORDER", fmt.Sprintf("Segment discarded: %dms", seg.DurationMs()))
			s.setState(StateListening)
			return
		}
		s.recoverable(core.AsError(err))
		return
	}

	s.setState(StateTranscribing)

	s.mu.Lock()
	turnCtx, turnCancel := context.WithCancel(s.ctx)
	s.turnCancel = turnCancel
	s.mu.Unlock()

	go s.processSegment(turnCtx, seg)
}

// processSegment runs one user turn: gate the transcript, fetch the
// reply, start playback.
func (s *Session) processSegment(ctx context.Context, seg *AudioSegment) {
	result, err := s.gate.Submit(ctx, seg)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.recoverable(core.AsError(err))
		return
	}

	if !result.Accepted {
		s.emit(&TranscriptRejectedEvent{Text: result.Text, Reason: result.Reason})
		s.emit(&NoticeEvent{Message: NoticeUnrecognized})
		s.debug("GATE", fmt.Sprintf("Transcript rejected (%s): %q", result.Reason, result.Text))
		s.setState(StateListening)
		return
	}

	s.emit(&TranscriptAcceptedEvent{Text: result.Text})
	s.debug("GATE", fmt.Sprintf("Transcript accepted: %q", result.Text))
	s.setState(StateAwaitingReply)

	replyText, err := s.reply.Reply(ctx, s.config.ConversationID, result.Text)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if ce := core.AsError(err); ce.Type == core.ErrReply {
			s.recoverable(ce)
		} else {
			s.recoverable(core.NewReplyError("failed to get assistant reply", err))
		}
		return
	}
	if s.closed.Load() || ctx.Err() != nil {
		return
	}

	s.emit(&ReplyReceivedEvent{Text: replyText})
	s.setState(StateAssistantSpeaking)
	s.sequencer.Play(s.ctx, replyText)
}

func (s *Session) interruptPlayback(source string) {
	s.sequencer.Cancel()
	s.emit(&InterruptedEvent{Source: source})
	s.emit(&NoticeEvent{Message: NoticeInterrupted})
	s.debug("PLAYBACK", "Playback interrupted: "+source)
}

func (s *Session) onChunkSkipped(index int, err error) {
	if s.closed.Load() {
		return
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.emit(&PlaybackChunkSkippedEvent{Index: index, Message: msg})
	s.debug("PLAYBACK", fmt.Sprintf("Chunk %d skipped: %v", index, err))
}

func (s *Session) onPlaybackComplete() {
	if s.closed.Load() {
		return
	}
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state != StateAssistantSpeaking {
		return
	}

	s.emit(&PlaybackCompletedEvent{})
	s.emit(&NoticeEvent{Message: NoticeContinueSpeaking})
	s.debug("PLAYBACK", "Playback complete")
	s.setState(StateListening)
}

func (s *Session) onPlaybackError(err *core.Error) {
	if s.closed.Load() {
		return
	}
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state != StateAssistantSpeaking {
		return
	}
	s.recoverable(err)
}

// recoverable reports a non-fatal error and returns the session to
// listening.
func (s *Session) recoverable(err *core.Error) {
	if err.IsFatal() {
		s.emit(NewErrorEvent(err))
		_ = s.Stop()
		return
	}
	s.emit(NewErrorEvent(err))
	s.debug("ERROR", err.Error())
	s.setState(StateListening)
}

func (s *Session) setState(newState SessionState) {
	s.mu.Lock()
	oldState := s.state
	s.state = newState
	s.mu.Unlock()

	if oldState != newState {
		s.debug("SESSION", fmt.Sprintf("State: %s -> %s", oldState, newState))
		s.emit(&StateChangedEvent{From: oldState, To: newState})
	}
}

// emit sends an event to the events channel without blocking.
// Callers must not hold s.mu.
func (s *Session) emit(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eventsClosed {
		return
	}
	select {
	case s.events <- event:
	default:
		// Channel full, drop event
	}
}

// debug logs a debug message if debug mode is enabled.
func (s *Session) debug(category, message string) {
	if s.debugEnabled {
		timestamp := time.Now().Format("15:04:05.000")
		fmt.Fprintf(os.Stderr, "\033[90m%s\033[0m [\033[36m%-9s\033[0m] %s\n", timestamp, category, message)
	}
}

// generateSessionID creates a unique session identifier.
func generateSessionID() string {
	return "call_" + uuid.NewString()
}
