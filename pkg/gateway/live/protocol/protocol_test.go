package protocol

import (
	"testing"
)

func validHelloJSON() string {
	return `{
		"type": "hello",
		"protocol_version": "1",
		"conversation_id": "conv_1",
		"voice": "zh-CN-XiaoxiaoNeural",
		"audio_in": {"encoding": "pcm_s16le", "sample_rate_hz": 16000, "channels": 1}
	}`
}

func TestDecodeClientMessage_Hello(t *testing.T) {
	decoded, err := DecodeClientMessage([]byte(validHelloJSON()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	hello, ok := decoded.(ClientHello)
	if !ok {
		t.Fatalf("decoded %T, want ClientHello", decoded)
	}
	if hello.ProtocolVersion != ProtocolVersion1 {
		t.Errorf("protocol_version = %q", hello.ProtocolVersion)
	}
	if hello.ConversationID != "conv_1" {
		t.Errorf("conversation_id = %q", hello.ConversationID)
	}
	if hello.AudioIn.Encoding != "pcm_s16le" || hello.AudioIn.SampleRateHz != 16000 || hello.AudioIn.Channels != 1 {
		t.Errorf("audio_in = %+v", hello.AudioIn)
	}
}

func TestDecodeClientMessage_ControlFrames(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"mic", `{"type":"mic"}`},
		{"interrupt", `{"type":"interrupt"}`},
		{"bye", `{"type":"bye"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := DecodeClientMessage([]byte(tt.data))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			switch decoded.(type) {
			case ClientMicToggle:
				if tt.name != "mic" {
					t.Errorf("decoded %T for %s", decoded, tt.name)
				}
			case ClientInterrupt:
				if tt.name != "interrupt" {
					t.Errorf("decoded %T for %s", decoded, tt.name)
				}
			case ClientBye:
				if tt.name != "bye" {
					t.Errorf("decoded %T for %s", decoded, tt.name)
				}
			default:
				t.Errorf("decoded %T", decoded)
			}
		})
	}
}

func TestDecodeClientMessage_Errors(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		wantCode string
	}{
		{"invalid json", `{`, "bad_request"},
		{"missing type", `{"foo":"bar"}`, "bad_request"},
		{"unknown type", `{"type":"dance"}`, "bad_request"},
		{"hello missing version", `{"type":"hello","conversation_id":"c","audio_in":{"encoding":"pcm_s16le","sample_rate_hz":16000,"channels":1}}`, "bad_request"},
		{"hello missing conversation", `{"type":"hello","protocol_version":"1","audio_in":{"encoding":"pcm_s16le","sample_rate_hz":16000,"channels":1}}`, "bad_request"},
		{"hello missing encoding", `{"type":"hello","protocol_version":"1","conversation_id":"c","audio_in":{"sample_rate_hz":16000,"channels":1}}`, "bad_request"},
		{"hello bad transport", `{"type":"hello","protocol_version":"1","conversation_id":"c","audio_in":{"encoding":"pcm_s16le","sample_rate_hz":16000,"channels":1},"features":{"audio_transport":"carrier_pigeon"}}`, "unsupported"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeClientMessage([]byte(tt.data))
			if err == nil {
				t.Fatalf("expected error")
			}
			de, ok := err.(*DecodeError)
			if !ok {
				t.Fatalf("error is %T, want *DecodeError", err)
			}
			if de.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", de.Code, tt.wantCode)
			}
		})
	}
}

func TestValidateHello_TransportDefaults(t *testing.T) {
	hello := ClientHello{
		Type:            "hello",
		ProtocolVersion: "1",
		ConversationID:  "c",
		AudioIn:         AudioFormat{Encoding: "pcm_s16le", SampleRateHz: 16000, Channels: 1},
	}
	if err := ValidateHello(hello); err != nil {
		t.Fatalf("empty transport must validate: %v", err)
	}
	hello.Features.AudioTransport = AudioTransportBinary
	if err := ValidateHello(hello); err != nil {
		t.Fatalf("binary transport must validate: %v", err)
	}
}

func TestDecodeError_Error(t *testing.T) {
	err := badRequest("bad thing", "field")
	if got := err.Error(); got != "bad thing (field)" {
		t.Errorf("Error() = %q", got)
	}
	err = badRequest("bad thing", "")
	if got := err.Error(); got != "bad thing" {
		t.Errorf("Error() = %q", got)
	}
}
