package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/callio-ai/callio/pkg/gateway/config"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config      config.Config
	Draining    func() bool
	ActiveCalls func() int
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK           bool     `json:"ok"`
		ReplyBackend string   `json:"reply_backend"`
		Draining     bool     `json:"draining"`
		ActiveCalls  int      `json:"active_calls"`
		Issues       []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)
	draining := h.Draining != nil && h.Draining()
	if draining {
		issues = append(issues, "gateway is draining")
	}

	switch h.Config.ReplyBackend {
	case config.ReplyBackendConversation:
		if strings.TrimSpace(h.Config.ConversationBaseURL) == "" {
			issues = append(issues, "conversation base url is not configured")
		}
	case config.ReplyBackendGemini:
		if strings.TrimSpace(h.Config.GeminiAPIKey) == "" {
			issues = append(issues, "gemini api key is not configured")
		}
	default:
		issues = append(issues, "invalid reply backend")
	}

	if strings.TrimSpace(h.Config.EdgeTTSBaseURL) == "" {
		issues = append(issues, "edge tts base url is not configured")
	}
	if h.Config.LiveMaxAudioFrameBytes <= 0 {
		issues = append(issues, "live max audio frame bytes must be > 0")
	}
	if h.Config.ShutdownGracePeriod <= 0 {
		issues = append(issues, "shutdown grace period must be > 0")
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	active := 0
	if h.ActiveCalls != nil {
		active = h.ActiveCalls()
	}
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:           ok,
		ReplyBackend: string(h.Config.ReplyBackend),
		Draining:     draining,
		ActiveCalls:  active,
		Issues:       issues,
	})
}
