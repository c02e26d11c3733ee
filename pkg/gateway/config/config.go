package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/callio-ai/callio/pkg/core/call"
)

type ReplyBackend string

const (
	ReplyBackendConversation ReplyBackend = "conversation"
	ReplyBackendGemini       ReplyBackend = "gemini"
)

type Config struct {
	Addr string

	// CORS origin allowlist for websocket upgrades. Empty => browser
	// origins are rejected; non-browser clients send no Origin header.
	CORSAllowedOrigins map[string]struct{}

	// Live WebSocket mode (/v1/call).
	LiveMaxAudioFrameBytes  int
	LiveMaxJSONMessageBytes int64
	LiveHandshakeTimeout    time.Duration
	LiveWSPingInterval      time.Duration
	LiveWSWriteTimeout      time.Duration
	OutboundQueueSize       int

	// Per-client call admission. Zero values disable the check.
	CallRPS                     float64
	CallBurst                   int
	MaxConcurrentCallsPerClient int

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration

	// Speech-to-text collaborator.
	WhisperAPIKey   string
	WhisperBaseURL  string
	WhisperModel    string
	WhisperLanguage string

	// Text-to-speech collaborator.
	EdgeTTSBaseURL string
	Voice          string

	// Assistant reply collaborator.
	ReplyBackend        ReplyBackend
	ConversationBaseURL string
	GeminiAPIKey        string
	GeminiModel         string
	GeminiSystemPrompt  string

	// Engine tuning. Zero values fall back to engine defaults.
	Session call.SessionConfig
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                    envOr("CALLIO_ADDR", ":8080"),
		CORSAllowedOrigins:      make(map[string]struct{}),
		LiveMaxAudioFrameBytes:  envIntOr("CALLIO_LIVE_MAX_AUDIO_FRAME_BYTES", 8192),
		LiveMaxJSONMessageBytes: envInt64Or("CALLIO_LIVE_MAX_JSON_MESSAGE_BYTES", 64*1024),
		LiveHandshakeTimeout:    envDurationOr("CALLIO_LIVE_HANDSHAKE_TIMEOUT", 5*time.Second),
		LiveWSPingInterval:      envDurationOr("CALLIO_LIVE_WS_PING_INTERVAL", 20*time.Second),
		LiveWSWriteTimeout:      envDurationOr("CALLIO_LIVE_WS_WRITE_TIMEOUT", 5*time.Second),
		OutboundQueueSize:       envIntOr("CALLIO_LIVE_OUTBOUND_QUEUE_SIZE", 128),

		CallRPS:                     envFloat64Or("CALLIO_CALL_RPS", 1),
		CallBurst:                   envIntOr("CALLIO_CALL_BURST", 3),
		MaxConcurrentCallsPerClient: envIntOr("CALLIO_MAX_CALLS_PER_CLIENT", 2),

		ReadHeaderTimeout:   envDurationOr("CALLIO_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:         envDurationOr("CALLIO_READ_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod: envDurationOr("CALLIO_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		WhisperAPIKey:       strings.TrimSpace(os.Getenv("CALLIO_WHISPER_API_KEY")),
		WhisperBaseURL:      envOr("CALLIO_WHISPER_BASE_URL", ""),
		WhisperModel:        envOr("CALLIO_WHISPER_MODEL", ""),
		WhisperLanguage:     envOr("CALLIO_WHISPER_LANGUAGE", "zh"),
		EdgeTTSBaseURL:      envOr("CALLIO_EDGE_TTS_BASE_URL", "http://localhost:5050"),
		Voice:               envOr("CALLIO_VOICE", "zh-CN-XiaoxiaoNeural"),
		ReplyBackend:        ReplyBackend(envOr("CALLIO_REPLY_BACKEND", string(ReplyBackendConversation))),
		ConversationBaseURL: envOr("CALLIO_CONVERSATION_BASE_URL", "http://localhost:3000"),
		GeminiAPIKey:        strings.TrimSpace(os.Getenv("CALLIO_GEMINI_API_KEY")),
		GeminiModel:         envOr("CALLIO_GEMINI_MODEL", ""),
		GeminiSystemPrompt:  strings.TrimSpace(os.Getenv("CALLIO_GEMINI_SYSTEM_PROMPT")),
		Session:             call.DefaultSessionConfig(),
	}

	for _, origin := range splitCSV(os.Getenv("CALLIO_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if v := envFloat64Or("CALLIO_VAD_MIN_VOLUME", 0); v > 0 {
		cfg.Session.VAD.MinVolumeThreshold = v
	}
	if v := envIntOr("CALLIO_VAD_SILENCE_MS", 0); v > 0 {
		cfg.Session.VAD.SilenceDurationMs = v
	}
	if v := envIntOr("CALLIO_MIN_RECORDING_MS", 0); v > 0 {
		cfg.Session.Recorder.MinRecordingDurationMs = v
	}
	if v := envIntOr("CALLIO_MAX_CHUNK_LENGTH", 0); v > 0 {
		cfg.Session.Playback.MaxChunkLength = v
	}
	cfg.Session.Voice = cfg.Voice

	if cfg.LiveMaxAudioFrameBytes <= 0 {
		return Config{}, fmt.Errorf("CALLIO_LIVE_MAX_AUDIO_FRAME_BYTES must be > 0")
	}
	if cfg.LiveMaxJSONMessageBytes <= 0 {
		return Config{}, fmt.Errorf("CALLIO_LIVE_MAX_JSON_MESSAGE_BYTES must be > 0")
	}
	if cfg.LiveHandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("CALLIO_LIVE_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.LiveWSPingInterval <= 0 {
		return Config{}, fmt.Errorf("CALLIO_LIVE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.LiveWSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("CALLIO_LIVE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.OutboundQueueSize <= 0 {
		return Config{}, fmt.Errorf("CALLIO_LIVE_OUTBOUND_QUEUE_SIZE must be > 0")
	}
	if cfg.CallRPS < 0 {
		return Config{}, fmt.Errorf("CALLIO_CALL_RPS must be >= 0")
	}
	if cfg.CallBurst < 0 {
		return Config{}, fmt.Errorf("CALLIO_CALL_BURST must be >= 0")
	}
	if cfg.MaxConcurrentCallsPerClient < 0 {
		return Config{}, fmt.Errorf("CALLIO_MAX_CALLS_PER_CLIENT must be >= 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("CALLIO_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("CALLIO_READ_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("CALLIO_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if strings.TrimSpace(cfg.EdgeTTSBaseURL) == "" {
		return Config{}, fmt.Errorf("CALLIO_EDGE_TTS_BASE_URL must not be empty")
	}

	switch cfg.ReplyBackend {
	case ReplyBackendConversation:
		if strings.TrimSpace(cfg.ConversationBaseURL) == "" {
			return Config{}, fmt.Errorf("CALLIO_CONVERSATION_BASE_URL must not be empty")
		}
	case ReplyBackendGemini:
		if cfg.GeminiAPIKey == "" {
			return Config{}, fmt.Errorf("CALLIO_GEMINI_API_KEY must be set when CALLIO_REPLY_BACKEND=gemini")
		}
	default:
		return Config{}, fmt.Errorf("CALLIO_REPLY_BACKEND must be one of conversation|gemini")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
