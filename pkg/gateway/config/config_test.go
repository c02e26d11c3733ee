package config

import (
	"testing"
	"time"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}

	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.ReplyBackend != ReplyBackendConversation {
		t.Errorf("ReplyBackend = %q", cfg.ReplyBackend)
	}
	if cfg.Voice != "zh-CN-XiaoxiaoNeural" {
		t.Errorf("Voice = %q", cfg.Voice)
	}
	if cfg.LiveHandshakeTimeout != 5*time.Second {
		t.Errorf("LiveHandshakeTimeout = %v", cfg.LiveHandshakeTimeout)
	}
	if cfg.Session.VAD.MinVolumeThreshold != 0.05 {
		t.Errorf("VAD threshold = %v", cfg.Session.VAD.MinVolumeThreshold)
	}
	if cfg.Session.Recorder.MinRecordingDurationMs != 600 {
		t.Errorf("min recording = %v", cfg.Session.Recorder.MinRecordingDurationMs)
	}
	if cfg.Session.Voice != cfg.Voice {
		t.Errorf("session voice %q not synced with %q", cfg.Session.Voice, cfg.Voice)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("CALLIO_ADDR", ":9090")
	t.Setenv("CALLIO_VAD_MIN_VOLUME", "0.1")
	t.Setenv("CALLIO_VAD_SILENCE_MS", "1500")
	t.Setenv("CALLIO_MIN_RECORDING_MS", "800")
	t.Setenv("CALLIO_MAX_CHUNK_LENGTH", "200")
	t.Setenv("CALLIO_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}

	if cfg.Addr != ":9090" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.Session.VAD.MinVolumeThreshold != 0.1 {
		t.Errorf("VAD threshold = %v", cfg.Session.VAD.MinVolumeThreshold)
	}
	if cfg.Session.VAD.SilenceDurationMs != 1500 {
		t.Errorf("silence ms = %v", cfg.Session.VAD.SilenceDurationMs)
	}
	if cfg.Session.Recorder.MinRecordingDurationMs != 800 {
		t.Errorf("min recording = %v", cfg.Session.Recorder.MinRecordingDurationMs)
	}
	if cfg.Session.Playback.MaxChunkLength != 200 {
		t.Errorf("max chunk = %v", cfg.Session.Playback.MaxChunkLength)
	}
	if _, ok := cfg.CORSAllowedOrigins["https://a.example"]; !ok {
		t.Errorf("missing first origin")
	}
	if _, ok := cfg.CORSAllowedOrigins["https://b.example"]; !ok {
		t.Errorf("missing second origin")
	}
}

func TestLoadFromEnv_GeminiRequiresKey(t *testing.T) {
	t.Setenv("CALLIO_REPLY_BACKEND", "gemini")
	t.Setenv("CALLIO_GEMINI_API_KEY", "")

	if _, err := LoadFromEnv(); err == nil {
		t.Fatalf("expected error when gemini backend has no key")
	}

	t.Setenv("CALLIO_GEMINI_API_KEY", "test-key")
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.ReplyBackend != ReplyBackendGemini {
		t.Errorf("ReplyBackend = %q", cfg.ReplyBackend)
	}
}

func TestLoadFromEnv_InvalidBackend(t *testing.T) {
	t.Setenv("CALLIO_REPLY_BACKEND", "carrier_pigeon")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatalf("expected error for unknown reply backend")
	}
}

func TestLoadFromEnv_InvalidDurationFallsBack(t *testing.T) {
	t.Setenv("CALLIO_LIVE_HANDSHAKE_TIMEOUT", "not-a-duration")
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.LiveHandshakeTimeout != 5*time.Second {
		t.Errorf("LiveHandshakeTimeout = %v, want default", cfg.LiveHandshakeTimeout)
	}
}
