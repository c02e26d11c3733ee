package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	ProtocolVersion1 = "1"

	AudioTransportBinary     = "binary"
	AudioTransportBase64JSON = "base64_json"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// AudioFormat describes the negotiated audio shape on one direction of
// the connection.
type AudioFormat struct {
	Encoding     string `json:"encoding"`
	SampleRateHz int    `json:"sample_rate_hz"`
	Channels     int    `json:"channels"`
}

type HelloClient struct {
	Name     string `json:"name,omitempty"`
	Version  string `json:"version,omitempty"`
	Platform string `json:"platform,omitempty"`
}

type HelloFeatures struct {
	AudioTransport string `json:"audio_transport,omitempty"`
	WantEnergy     bool   `json:"want_energy,omitempty"`
}

// ClientHello opens a call. It must be the first frame on the socket.
type ClientHello struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	Client          HelloClient   `json:"client,omitempty"`
	ConversationID  string        `json:"conversation_id"`
	Voice           string        `json:"voice,omitempty"`
	AudioIn         AudioFormat   `json:"audio_in"`
	Features        HelloFeatures `json:"features,omitempty"`
}

// ClientMicToggle flips the microphone without ending the call.
type ClientMicToggle struct {
	Type string `json:"type"`
}

// ClientInterrupt cuts off assistant playback.
type ClientInterrupt struct {
	Type string `json:"type"`
}

// ClientBye ends the call.
type ClientBye struct {
	Type string `json:"type"`
}

// DecodeClientMessage parses a text frame from the client. Binary
// frames carry raw PCM and never reach this function.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "hello":
		var msg ClientHello
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid hello frame", "")
		}
		if err := ValidateHello(msg); err != nil {
			return nil, err
		}
		return msg, nil
	case "mic":
		var msg ClientMicToggle
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid mic frame", "")
		}
		return msg, nil
	case "interrupt":
		var msg ClientInterrupt
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid interrupt frame", "")
		}
		return msg, nil
	case "bye":
		var msg ClientBye
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid bye frame", "")
		}
		return msg, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

func ValidateHello(msg ClientHello) error {
	if strings.TrimSpace(msg.ProtocolVersion) == "" {
		return badRequest("hello.protocol_version is required", "protocol_version")
	}
	if strings.TrimSpace(msg.ConversationID) == "" {
		return badRequest("hello.conversation_id is required", "conversation_id")
	}
	if strings.TrimSpace(msg.AudioIn.Encoding) == "" {
		return badRequest("hello.audio_in.encoding is required", "audio_in.encoding")
	}
	if msg.AudioIn.SampleRateHz <= 0 {
		return badRequest("hello.audio_in.sample_rate_hz must be > 0", "audio_in.sample_rate_hz")
	}
	if msg.AudioIn.Channels <= 0 {
		return badRequest("hello.audio_in.channels must be > 0", "audio_in.channels")
	}

	transport := strings.TrimSpace(msg.Features.AudioTransport)
	switch transport {
	case "", AudioTransportBinary, AudioTransportBase64JSON:
		return nil
	default:
		return unsupported("unsupported audio transport", "features.audio_transport")
	}
}

type HelloAckLimits struct {
	MaxAudioFrameBytes  int   `json:"max_audio_frame_bytes"`
	MaxJSONMessageBytes int64 `json:"max_json_message_bytes"`
}

type ServerHelloAck struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	SessionID       string          `json:"session_id"`
	AudioIn         AudioFormat     `json:"audio_in"`
	AudioOut        AudioFormat     `json:"audio_out"`
	AudioTransport  string          `json:"audio_transport"`
	Limits          *HelloAckLimits `json:"limits,omitempty"`
}

// ServerState reports engine state transitions.
type ServerState struct {
	Type  string `json:"type"`
	State string `json:"state"`
}

// ServerEnergy reports the current microphone energy level. Sent only
// when the client asked for it in hello.features.
type ServerEnergy struct {
	Type string  `json:"type"`
	RMS  float64 `json:"rms"`
	Peak float64 `json:"peak"`
}

// ServerNotice carries a user-facing status message.
type ServerNotice struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ServerMicState confirms a mic toggle.
type ServerMicState struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

// ServerTranscript reports the outcome of a recognized utterance.
// Rejected transcripts carry the reject reason.
type ServerTranscript struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// ServerReply carries the assistant's text answer.
type ServerReply struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ServerAudioStart struct {
	Type        string      `json:"type"`
	UtteranceID string      `json:"utterance_id"`
	Format      AudioFormat `json:"format"`
}

type ServerAudioChunk struct {
	Type        string `json:"type"`
	UtteranceID string `json:"utterance_id"`
	Seq         int64  `json:"seq"`
	AudioB64    string `json:"audio_b64,omitempty"`
}

// ServerAudioChunkHeader precedes a binary frame when the negotiated
// transport is binary.
type ServerAudioChunkHeader struct {
	Type        string `json:"type"`
	UtteranceID string `json:"utterance_id"`
	Seq         int64  `json:"seq"`
	Bytes       int    `json:"bytes"`
}

type ServerAudioEnd struct {
	Type        string `json:"type"`
	UtteranceID string `json:"utterance_id"`
}

// ServerInterrupted tells the client to drop any buffered assistant
// audio immediately. Source is "speech" or "manual".
type ServerInterrupted struct {
	Type   string `json:"type"`
	Source string `json:"source"`
}

type ServerPlaybackDone struct {
	Type string `json:"type"`
}

type ServerError struct {
	Type    string         `json:"type"`
	Scope   string         `json:"scope,omitempty"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Close   bool           `json:"close,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

type ServerBye struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}
