package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/callio-ai/callio/pkg/core"
	"github.com/callio-ai/callio/pkg/core/call"
	"github.com/callio-ai/callio/pkg/core/reply"
	"github.com/callio-ai/callio/pkg/core/voice/stt"
	"github.com/callio-ai/callio/pkg/core/voice/tts"
	"github.com/callio-ai/callio/pkg/gateway/config"
	"github.com/callio-ai/callio/pkg/gateway/live/protocol"
	livesession "github.com/callio-ai/callio/pkg/gateway/live/session"
	"github.com/callio-ai/callio/pkg/gateway/live/sessions"
	"github.com/callio-ai/callio/pkg/gateway/mw"
	"github.com/callio-ai/callio/pkg/gateway/ratelimit"
)

type TranscriberFactory func(cfg config.Config, client *http.Client) call.Transcriber

type SynthesizerFactory func(cfg config.Config, client *http.Client, voice string) call.Synthesizer

type ReplyFactory func(ctx context.Context, cfg config.Config) (call.ReplyClient, error)

// LiveHandler handles /v1/call websocket sessions.
type LiveHandler struct {
	Config     config.Config
	Logger     *slog.Logger
	HTTPClient *http.Client
	Draining   func() bool
	Limiter    *ratelimit.Limiter
	Calls      *sessions.Tracker

	NewTranscriber TranscriberFactory
	NewSynthesizer SynthesizerFactory
	NewReply       ReplyFactory
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorJSON(w, http.StatusMethodNotAllowed, core.NewInvalidRequestError("method not allowed"))
		return
	}
	if h.Draining != nil && h.Draining() {
		writeErrorJSON(w, http.StatusServiceUnavailable, core.NewInternalError("gateway is draining", nil))
		return
	}
	if !h.originAllowed(r) {
		writeErrorJSON(w, http.StatusForbidden, core.NewInvalidRequestError("origin is not allowed"))
		return
	}

	if h.Limiter != nil {
		decision := h.Limiter.AcquireCall(ratelimit.ClientKeyFromRemoteAddr(r.RemoteAddr), time.Now())
		if !decision.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfter))
			writeErrorJSON(w, http.StatusTooManyRequests, &core.Error{
				Type:    core.ErrInvalidRequest,
				Message: "too many calls from this client",
				Code:    "rate_limited",
			})
			return
		}
		defer decision.Permit.Release()
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if h.Config.LiveMaxJSONMessageBytes > 0 {
		conn.SetReadLimit(h.Config.LiveMaxJSONMessageBytes)
	}

	handshakeTimeout := h.Config.LiveHandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = 5 * time.Second
	}
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	messageType, firstFrame, err := conn.ReadMessage()
	if err != nil {
		h.writeWSError(conn, "session", "bad_request", "failed to read hello", true)
		return
	}
	if messageType != websocket.TextMessage {
		h.writeWSError(conn, "session", "bad_request", "first frame must be hello", true)
		return
	}

	decoded, err := protocol.DecodeClientMessage(firstFrame)
	if err != nil {
		h.writeWSError(conn, "session", "bad_request", "invalid hello frame", true)
		return
	}
	hello, ok := decoded.(protocol.ClientHello)
	if !ok {
		h.writeWSError(conn, "session", "bad_request", "first frame must be hello", true)
		return
	}
	if strings.TrimSpace(hello.ProtocolVersion) != protocol.ProtocolVersion1 {
		h.writeWSError(conn, "session", "unsupported_version", "unsupported protocol_version", true)
		return
	}
	if strings.TrimSpace(hello.AudioIn.Encoding) != "pcm_s16le" || hello.AudioIn.SampleRateHz != 16000 || hello.AudioIn.Channels != 1 {
		h.writeWSError(conn, "session", "unsupported", "audio_in must be pcm_s16le @16000Hz mono", true)
		return
	}

	transport := strings.TrimSpace(hello.Features.AudioTransport)
	if transport == "" {
		transport = protocol.AudioTransportBase64JSON
	}

	voice := strings.TrimSpace(hello.Voice)
	if voice == "" {
		voice = h.Config.Voice
	}

	httpClient := h.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	replyClient, err := h.newReply(r.Context(), httpClient)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("failed to initialize reply backend", "error", err)
		}
		h.writeWSError(conn, "session", "internal", "failed to initialize reply backend", true)
		return
	}

	audioOut := protocol.AudioFormat{Encoding: "pcm_s16le", SampleRateHz: 16000, Channels: 1}

	sessionConfig := h.Config.Session
	sessionConfig.ConversationID = strings.TrimSpace(hello.ConversationID)
	sessionConfig.Voice = voice

	device := livesession.NewRemoteDevice(64)
	bridge := livesession.New(conn, livesession.Config{
		MaxAudioFrameBytes: h.Config.LiveMaxAudioFrameBytes,
		OutboundQueueSize:  h.Config.OutboundQueueSize,
		PingInterval:       h.Config.LiveWSPingInterval,
		WriteTimeout:       h.Config.LiveWSWriteTimeout,
		BinaryTransport:    transport == protocol.AudioTransportBinary,
		WantEnergy:         hello.Features.WantEnergy,
		AudioOut:           audioOut,
	}, h.Logger)

	callSession := call.NewSession(
		sessionConfig,
		device,
		h.newTranscriber(httpClient),
		h.newSynthesizer(httpClient, voice),
		bridge.Player(),
		replyClient,
	)

	ack := protocol.ServerHelloAck{
		Type:            "hello_ack",
		ProtocolVersion: protocol.ProtocolVersion1,
		SessionID:       callSession.SessionID(),
		AudioIn:         hello.AudioIn,
		AudioOut:        audioOut,
		AudioTransport:  transport,
		Limits: &protocol.HelloAckLimits{
			MaxAudioFrameBytes:  h.Config.LiveMaxAudioFrameBytes,
			MaxJSONMessageBytes: h.Config.LiveMaxJSONMessageBytes,
		},
	}
	if err := conn.WriteJSON(ack); err != nil {
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	if err := callSession.Start(r.Context()); err != nil {
		h.writeWSError(conn, "session", "device_error", "failed to start call session", true)
		return
	}

	if h.Calls != nil {
		unregister := h.Calls.Register(callSession.SessionID(), sessions.Handle{
			Stop:   func() { _ = callSession.Stop() },
			Notify: bridge.Notify,
		})
		defer unregister()
	}

	if err := bridge.Run(callSession, device); err != nil {
		if h.Logger != nil {
			h.Logger.Warn("call session ended with error",
				"session_id", callSession.SessionID(),
				"request_id", requestIDFromContext(r.Context()),
				"error", err,
			)
		}
	}
}

func (h LiveHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if len(h.Config.CORSAllowedOrigins) == 0 {
		return false
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}

func (h LiveHandler) newTranscriber(client *http.Client) call.Transcriber {
	if h.NewTranscriber != nil {
		return h.NewTranscriber(h.Config, client)
	}
	provider := stt.NewWhisperWithClient(h.Config.WhisperAPIKey, client)
	if h.Config.WhisperBaseURL != "" {
		provider = provider.WithBaseURL(h.Config.WhisperBaseURL)
	}
	return call.ProviderTranscriber{
		Provider: provider,
		Options: stt.TranscribeOptions{
			Model:    h.Config.WhisperModel,
			Language: h.Config.WhisperLanguage,
		},
	}
}

func (h LiveHandler) newSynthesizer(client *http.Client, voice string) call.Synthesizer {
	if h.NewSynthesizer != nil {
		return h.NewSynthesizer(h.Config, client, voice)
	}
	return call.ProviderSynthesizer{
		Provider: tts.NewEdgeWithClient(h.Config.EdgeTTSBaseURL, client),
		Options: tts.SynthesizeOptions{
			Voice:      voice,
			Format:     "pcm",
			SampleRate: 16000,
		},
	}
}

func (h LiveHandler) newReply(ctx context.Context, client *http.Client) (call.ReplyClient, error) {
	if h.NewReply != nil {
		return h.NewReply(ctx, h.Config)
	}
	switch h.Config.ReplyBackend {
	case config.ReplyBackendGemini:
		g, err := reply.NewGemini(ctx, h.Config.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		if h.Config.GeminiModel != "" {
			g = g.WithModel(h.Config.GeminiModel)
		}
		if h.Config.GeminiSystemPrompt != "" {
			g = g.WithSystemPrompt(h.Config.GeminiSystemPrompt)
		}
		return g, nil
	default:
		return reply.NewConversationWithClient(h.Config.ConversationBaseURL, client), nil
	}
}

func (h LiveHandler) writeWSError(conn *websocket.Conn, scope, code, message string, closeConn bool) {
	_ = conn.WriteJSON(protocol.ServerError{Type: "error", Scope: scope, Code: code, Message: message, Close: closeConn})
	if closeConn {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message), time.Now().Add(2*time.Second))
	}
}

type errorEnvelope struct {
	Error *core.Error `json:"error"`
}

func writeErrorJSON(w http.ResponseWriter, status int, err *core.Error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: err})
}

func requestIDFromContext(ctx context.Context) string {
	if id, ok := mw.RequestIDFrom(ctx); ok {
		return id
	}
	return ""
}
