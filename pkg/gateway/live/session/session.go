package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/callio-ai/callio/pkg/core/call"
	"github.com/callio-ai/callio/pkg/gateway/live/protocol"
)

// Config tunes one websocket call bridge.
type Config struct {
	MaxAudioFrameBytes int
	OutboundQueueSize  int
	PingInterval       time.Duration
	WriteTimeout       time.Duration
	BinaryTransport    bool
	WantEnergy         bool
	AudioOut           protocol.AudioFormat
}

const priorityQueueSize = 16

// Bridge pumps one websocket connection: inbound frames feed the call
// session, engine events and assistant audio flow back out through a
// single writer goroutine.
type Bridge struct {
	conn   *websocket.Conn
	logger *slog.Logger
	cfg    Config

	priority chan outboundFrame
	normal   chan outboundFrame
	player   *RemotePlayer
}

// New creates a bridge over an upgraded connection. The returned
// bridge's Player is handed to the call session as its audio sink.
func New(conn *websocket.Conn, cfg Config, logger *slog.Logger) *Bridge {
	if cfg.OutboundQueueSize <= 0 {
		cfg.OutboundQueueSize = 128
	}
	b := &Bridge{
		conn:     conn,
		logger:   logger,
		cfg:      cfg,
		priority: make(chan outboundFrame, priorityQueueSize),
		normal:   make(chan outboundFrame, cfg.OutboundQueueSize),
	}
	b.player = newRemotePlayer(b.normal, cfg.AudioOut, cfg.MaxAudioFrameBytes, cfg.BinaryTransport)
	return b
}

// Player returns the audio sink for the call session.
func (b *Bridge) Player() *RemotePlayer {
	return b.player
}

// Notify pushes an advisory message to the client outside the engine's
// event stream. The frame is dropped if the outbound queue is full.
func (b *Bridge) Notify(message string) error {
	select {
	case b.normal <- outboundFrame{textPayload: mustMarshal(protocol.ServerNotice{Type: "notice", Message: message})}:
		return nil
	default:
		return errors.New("outbound queue is full")
	}
}

// Run serves the connection until the client leaves or the session
// stops. It blocks; the caller owns session startup and the handshake.
func (b *Bridge) Run(s *call.Session, device *RemoteDevice) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	writer := &outboundWriter{
		ws:           b.conn,
		ctx:          ctx,
		pingInterval: b.cfg.PingInterval,
		writeTimeout: b.cfg.WriteTimeout,
		priority:     b.priority,
		normal:       b.normal,
		isCanceled:   b.player.isCanceled,
	}
	writerDone := make(chan error, 1)
	go func() {
		err := writer.Run()
		// A dead writer means a dead connection; unblock the read loop
		// and the event pump.
		cancel()
		_ = b.conn.Close()
		writerDone <- err
	}()

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		b.pumpEvents(ctx, s)
	}()

	b.readLoop(s, device)

	// The read loop only returns once the peer is gone or said bye.
	_ = s.Stop()
	<-pumpDone
	cancel()
	err := <-writerDone
	if err != nil && b.logger != nil {
		b.logger.Warn("call writer ended with error", "session_id", s.SessionID(), "error", err)
	}
	return err
}

func (b *Bridge) readLoop(s *call.Session, device *RemoteDevice) {
	for {
		messageType, data, err := b.conn.ReadMessage()
		if err != nil {
			return
		}

		if messageType == websocket.BinaryMessage {
			if b.cfg.MaxAudioFrameBytes > 0 && len(data) > b.cfg.MaxAudioFrameBytes {
				b.sendError("audio", "frame_too_large", "audio frame exceeds negotiated limit", false)
				continue
			}
			device.Push(data)
			continue
		}
		if messageType != websocket.TextMessage {
			continue
		}

		decoded, err := protocol.DecodeClientMessage(data)
		if err != nil {
			code := "bad_request"
			if de, ok := err.(*protocol.DecodeError); ok {
				code = de.Code
			}
			b.sendError("session", code, err.Error(), false)
			continue
		}

		switch decoded.(type) {
		case protocol.ClientMicToggle:
			if _, err := s.ToggleMicrophone(); err != nil {
				b.sendError("session", "mic_toggle_failed", err.Error(), false)
			}
		case protocol.ClientInterrupt:
			// Interrupting with nothing playing is a no-op, not an error.
			_ = s.Interrupt()
		case protocol.ClientBye:
			return
		case protocol.ClientHello:
			b.sendError("session", "bad_request", "hello is only valid as the first frame", false)
		}
	}
}

// pumpEvents translates engine events into protocol frames. It exits
// when the session's event channel closes.
func (b *Bridge) pumpEvents(ctx context.Context, s *call.Session) {
	for event := range s.Events() {
		switch ev := event.(type) {
		case *call.StateChangedEvent:
			b.sendNormal(ctx, mustMarshal(protocol.ServerState{Type: "state", State: ev.To.String()}))
		case *call.EnergyLevelEvent:
			if b.cfg.WantEnergy {
				// Energy is advisory; drop rather than stall on a slow client.
				select {
				case b.normal <- outboundFrame{textPayload: mustMarshal(protocol.ServerEnergy{Type: "energy", RMS: ev.RMS, Peak: ev.Peak})}:
				default:
				}
			}
		case *call.NoticeEvent:
			b.sendNormal(ctx, mustMarshal(protocol.ServerNotice{Type: "notice", Message: ev.Message}))
		case *call.TranscriptAcceptedEvent:
			b.sendNormal(ctx, mustMarshal(protocol.ServerTranscript{Type: "transcript", Text: ev.Text, Accepted: true}))
		case *call.TranscriptRejectedEvent:
			b.sendNormal(ctx, mustMarshal(protocol.ServerTranscript{Type: "transcript", Text: ev.Text, Accepted: false, Reason: string(ev.Reason)}))
		case *call.ReplyReceivedEvent:
			b.sendNormal(ctx, mustMarshal(protocol.ServerReply{Type: "reply", Text: ev.Text}))
		case *call.MicrophoneToggledEvent:
			b.sendNormal(ctx, mustMarshal(protocol.ServerMicState{Type: "mic_state", Enabled: ev.Enabled}))
		case *call.InterruptedEvent:
			b.sendPriority(ctx, mustMarshal(protocol.ServerInterrupted{Type: "interrupted", Source: ev.Source}))
		case *call.PlaybackCompletedEvent:
			b.sendNormal(ctx, mustMarshal(protocol.ServerPlaybackDone{Type: "playback_done"}))
		case *call.ErrorEvent:
			b.sendPriority(ctx, mustMarshal(protocol.ServerError{
				Type:    "error",
				Scope:   "session",
				Code:    ev.Code,
				Message: ev.Message,
				Close:   ev.Fatal,
			}))
		case *call.SessionStoppedEvent:
			b.sendPriority(ctx, mustMarshal(protocol.ServerBye{Type: "bye", Reason: ev.Reason}))
		}
	}
}

func (b *Bridge) sendNormal(ctx context.Context, payload []byte) {
	select {
	case b.normal <- outboundFrame{textPayload: payload}:
	case <-ctx.Done():
	}
}

func (b *Bridge) sendPriority(ctx context.Context, payload []byte) {
	select {
	case b.priority <- outboundFrame{textPayload: payload}:
	case <-ctx.Done():
	}
}

func (b *Bridge) sendError(scope, code, message string, closeConn bool) {
	frame := outboundFrame{textPayload: mustMarshal(protocol.ServerError{
		Type: "error", Scope: scope, Code: code, Message: message, Close: closeConn,
	})}
	select {
	case b.priority <- frame:
	default:
	}
}
