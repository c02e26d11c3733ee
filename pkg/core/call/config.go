package call

// SessionState represents the current state of a call session.
type SessionState int

const (
	// StateIdle is the initial state before the session is started.
	StateIdle SessionState = iota
	// StateListening is when the monitor is active and waiting for speech.
	StateListening
	// StateUserSpeaking is when a speech segment is being recorded.
	StateUserSpeaking
	// StateTranscribing is when a finished segment is at the transcription gate.
	StateTranscribing
	// StateAwaitingReply is when the assistant reply is being generated.
	StateAwaitingReply
	// StateAssistantSpeaking is when reply audio is being played.
	StateAssistantSpeaking
	// StateClosed is when the session has been torn down.
	StateClosed
)

// String returns a human-readable state name.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateUserSpeaking:
		return "USER_SPEAKING"
	case StateTranscribing:
		return "TRANSCRIBING"
	case StateAwaitingReply:
		return "AWAITING_REPLY"
	case StateAssistantSpeaking:
		return "ASSISTANT_SPEAKING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// SessionConfig holds all configuration for a call session.
type SessionConfig struct {
	// VAD configures voice activity detection.
	VAD VADConfig `json:"vad"`

	// Recorder configures speech segment recording.
	Recorder RecorderConfig `json:"recorder"`

	// Gate configures transcript filtering.
	Gate GateConfig `json:"gate"`

	// Playback configures reply chunking and playback.
	Playback PlaybackConfig `json:"playback"`

	// Audio is the capture audio format. Default: 16000 Hz mono s16le.
	Audio AudioConfig `json:"audio"`

	// ConversationID identifies the conversation for the reply collaborator.
	ConversationID string `json:"conversation_id,omitempty"`

	// Voice is the synthesis voice identifier passed to the TTS collaborator.
	Voice string `json:"voice,omitempty"`

	// EventBufferSize is the capacity of the session event channel.
	// Default: 256.
	EventBufferSize int `json:"event_buffer_size,omitempty"`
}

// DefaultSessionConfig returns a SessionConfig with sensible defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		VAD:             DefaultVADConfig(),
		Recorder:        DefaultRecorderConfig(),
		Gate:            DefaultGateConfig(),
		Playback:        DefaultPlaybackConfig(),
		Audio:           DefaultAudioConfig(),
		EventBufferSize: 256,
	}
}

// VADConfig configures energy-based voice activity detection.
type VADConfig struct {
	// MinVolumeThreshold is the normalized RMS energy at or above which
	// audio counts as speech. Range: 0.0 to 1.0. Default: 0.05
	MinVolumeThreshold float64 `json:"min_volume_threshold"`

	// SilenceThreshold is a legacy tuning knob kept for configuration
	// compatibility. The decision logic does not consult it.
	// Default: 0.01
	SilenceThreshold float64 `json:"silence_threshold"`

	// SilenceDurationMs is how long energy must stay below
	// MinVolumeThreshold before an open speech segment is closed.
	// Default: 1000
	SilenceDurationMs int `json:"silence_duration_ms"`

	// PollIntervalMs is the energy sampling period. Default: 16 (~60 Hz).
	PollIntervalMs int `json:"poll_interval_ms"`
}

// DefaultVADConfig returns a VADConfig with sensible defaults.
func DefaultVADConfig() VADConfig {
	return VADConfig{
		MinVolumeThreshold: 0.05,
		SilenceThreshold:   0.01,
		SilenceDurationMs:  1000,
		PollIntervalMs:     16,
	}
}

// RecorderConfig configures speech segment recording.
type RecorderConfig struct {
	// MinRecordingDurationMs is the shortest segment worth keeping.
	// Shorter segments are discarded as accidental noise. Default: 600
	MinRecordingDurationMs int `json:"min_recording_duration_ms"`

	// MaxSegmentDurationMs caps a single segment to bound memory.
	// Default: 120000 (2 minutes).
	MaxSegmentDurationMs int `json:"max_segment_duration_ms"`

	// PrerollDurationMs is how much already-captured audio is prepended
	// to a new segment, so the syllable that tripped the detector is not
	// lost. 0 disables pre-roll. Default: 300
	PrerollDurationMs int `json:"preroll_duration_ms"`
}

// DefaultRecorderConfig returns a RecorderConfig with sensible defaults.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		MinRecordingDurationMs: 600,
		MaxSegmentDurationMs:   120000,
		PrerollDurationMs:      300,
	}
}

// GateConfig configures transcript filtering before the assistant sees it.
type GateConfig struct {
	// MinSpeechLength is the minimum rune count of a trimmed transcript.
	// Default: 2
	MinSpeechLength int `json:"min_speech_length"`
}

// DefaultGateConfig returns a GateConfig with sensible defaults.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		MinSpeechLength: 2,
	}
}

// PlaybackConfig configures reply chunking and sequential playback.
type PlaybackConfig struct {
	// MaxChunkLength is the target chunk size in runes. Default: 300
	MaxChunkLength int `json:"max_chunk_length"`

	// BoundaryWindow is how far (in runes) to search around the target
	// cut for a sentence terminator. Default: 100
	BoundaryWindow int `json:"boundary_window"`

	// InlineChunkLimit is the chunk count at or below which the whole
	// reply is synthesized in a single call. Default: 3
	InlineChunkLimit int `json:"inline_chunk_limit"`
}

// DefaultPlaybackConfig returns a PlaybackConfig with sensible defaults.
func DefaultPlaybackConfig() PlaybackConfig {
	return PlaybackConfig{
		MaxChunkLength:   300,
		BoundaryWindow:   100,
		InlineChunkLimit: 3,
	}
}

// AudioConfig specifies audio format parameters.
type AudioConfig struct {
	// SampleRate in Hz. Common values: 16000, 24000, 44100, 48000.
	SampleRate int `json:"sample_rate"`

	// Channels: 1 for mono, 2 for stereo.
	Channels int `json:"channels"`

	// BitsPerSample: typically 16 for PCM.
	BitsPerSample int `json:"bits_per_sample"`
}

// DefaultAudioConfig returns the standard capture configuration.
func DefaultAudioConfig() AudioConfig {
	return AudioConfig{
		SampleRate:    16000,
		Channels:      1,
		BitsPerSample: 16,
	}
}

// BytesPerSecond returns the audio byte rate.
func (c AudioConfig) BytesPerSecond() int {
	return c.SampleRate * c.Channels * (c.BitsPerSample / 8)
}

// DurationMs returns the duration in milliseconds for the given byte count.
func (c AudioConfig) DurationMs(bytes int) int {
	if c.BytesPerSecond() == 0 {
		return 0
	}
	return (bytes * 1000) / c.BytesPerSecond()
}

// BytesForDurationMs returns the byte count for the given duration in milliseconds.
func (c AudioConfig) BytesForDurationMs(ms int) int {
	return (c.BytesPerSecond() * ms) / 1000
}
