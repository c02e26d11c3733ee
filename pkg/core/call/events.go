package call

import (
	"github.com/callio-ai/callio/pkg/core"
)

// Event is the interface for all call session events.
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// SessionStartedEvent is emitted when the session acquires its device
// and begins listening.
type SessionStartedEvent struct {
	SessionID string `json:"session_id"`
}

func (e *SessionStartedEvent) EventType() string { return "session.started" }

// SessionStoppedEvent is the terminal event of every session.
type SessionStoppedEvent struct {
	Reason string `json:"reason,omitempty"`
}

func (e *SessionStoppedEvent) EventType() string { return "session.stopped" }

// StateChangedEvent is emitted when the session state changes.
type StateChangedEvent struct {
	From SessionState `json:"from"`
	To   SessionState `json:"to"`
}

func (e *StateChangedEvent) EventType() string { return "state.changed" }

// EnergyLevelEvent is emitted periodically with microphone energy.
// Drives client-side volume meters.
type EnergyLevelEvent struct {
	RMS  float64 `json:"rms"`
	Peak float64 `json:"peak"`
}

func (e *EnergyLevelEvent) EventType() string { return "energy.level" }

// SpeechStartedEvent is emitted when the monitor opens a speech segment.
type SpeechStartedEvent struct{}

func (e *SpeechStartedEvent) EventType() string { return "speech.started" }

// SpeechEndedEvent is emitted when sustained silence closes the segment.
type SpeechEndedEvent struct{}

func (e *SpeechEndedEvent) EventType() string { return "speech.ended" }

// SegmentDiscardedEvent is emitted when a segment is under the minimum
// recording duration and dropped.
type SegmentDiscardedEvent struct {
	DurationMs int `json:"duration_ms"`
}

func (e *SegmentDiscardedEvent) EventType() string { return "segment.discarded" }

// TranscriptRejectedEvent is emitted when the gate filters a transcript.
type TranscriptRejectedEvent struct {
	Text   string       `json:"text,omitempty"`
	Reason RejectReason `json:"reason"`
}

func (e *TranscriptRejectedEvent) EventType() string { return "transcript.rejected" }

// TranscriptAcceptedEvent is emitted when a transcript passes the gate.
type TranscriptAcceptedEvent struct {
	Text string `json:"text"`
}

func (e *TranscriptAcceptedEvent) EventType() string { return "transcript.accepted" }

// ReplyReceivedEvent is emitted when the assistant reply arrives.
type ReplyReceivedEvent struct {
	Text string `json:"text"`
}

func (e *ReplyReceivedEvent) EventType() string { return "reply.received" }

// PlaybackStartedEvent is emitted when reply playback begins.
type PlaybackStartedEvent struct {
	Chunks int  `json:"chunks"`
	Inline bool `json:"inline"` // whole reply synthesized in one call
}

func (e *PlaybackStartedEvent) EventType() string { return "playback.started" }

// PlaybackChunkStartedEvent is emitted as each chunk starts playing.
type PlaybackChunkStartedEvent struct {
	Index int `json:"index"`
	Total int `json:"total"`
}

func (e *PlaybackChunkStartedEvent) EventType() string { return "playback.chunk_started" }

// PlaybackChunkSkippedEvent is emitted when a chunk fails and playback
// continues with the next one.
type PlaybackChunkSkippedEvent struct {
	Index   int    `json:"index"`
	Message string `json:"message,omitempty"`
}

func (e *PlaybackChunkSkippedEvent) EventType() string { return "playback.chunk_skipped" }

// InterruptedEvent is emitted when assistant playback is cut off.
type InterruptedEvent struct {
	Source string `json:"source"` // "speech" or "manual"
}

func (e *InterruptedEvent) EventType() string { return "interrupted" }

// PlaybackCompletedEvent is emitted after the last chunk finishes.
type PlaybackCompletedEvent struct{}

func (e *PlaybackCompletedEvent) EventType() string { return "playback.completed" }

// MicrophoneToggledEvent is emitted when the microphone is switched.
type MicrophoneToggledEvent struct {
	Enabled bool `json:"enabled"`
}

func (e *MicrophoneToggledEvent) EventType() string { return "microphone.toggled" }

// NoticeEvent carries operator-facing status text.
type NoticeEvent struct {
	Message string `json:"message"`
}

func (e *NoticeEvent) EventType() string { return "notice" }

// ErrorEvent is emitted when an error occurs. Fatal errors are followed
// by SessionStoppedEvent.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Fatal   bool   `json:"fatal,omitempty"`
}

func (e *ErrorEvent) EventType() string { return "error" }

// NewErrorEvent builds an ErrorEvent from an engine error.
func NewErrorEvent(err *core.Error) *ErrorEvent {
	return &ErrorEvent{
		Code:    string(err.Type),
		Message: err.Message,
		Fatal:   err.IsFatal(),
	}
}

// Session notices shown to the user, matching the deployed UI strings.
const (
	NoticeSegmentTooShort  = "声音过短，请说长一点"
	NoticeUnrecognized     = "未能识别有效语音，请重试"
	NoticeInterrupted      = "AI回复已被打断"
	NoticeContinueSpeaking = "请继续说话..."
	NoticeMicrophoneOff    = "麦克风已关闭"
	NoticeMicrophoneOn     = "麦克风已开启"
)
