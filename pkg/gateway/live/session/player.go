package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/callio-ai/callio/pkg/gateway/live/protocol"
)

// RemotePlayer streams assistant audio to the client as paced
// websocket frames. Play blocks for roughly the audio duration so the
// engine's playback state tracks what the client hears.
type RemotePlayer struct {
	queue          chan<- outboundFrame
	format         protocol.AudioFormat
	maxFrameBytes  int
	bytesPerSecond int
	binary         bool

	mu           sync.Mutex
	counter      int64
	lastCanceled int64
	playCancel   context.CancelFunc
}

func newRemotePlayer(queue chan<- outboundFrame, format protocol.AudioFormat, maxFrameBytes int, binary bool) *RemotePlayer {
	bps := format.SampleRateHz * format.Channels * 2 // s16le
	if bps <= 0 {
		bps = 32000
	}
	if maxFrameBytes <= 0 {
		maxFrameBytes = 8192
	}
	return &RemotePlayer{
		queue:          queue,
		format:         format,
		maxFrameBytes:  maxFrameBytes,
		bytesPerSecond: bps,
		binary:         binary,
	}
}

// Play implements the engine's audio player contract.
func (p *RemotePlayer) Play(ctx context.Context, audio []byte) error {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.counter++
	utterance := p.counter
	p.playCancel = cancel
	p.mu.Unlock()
	defer cancel()

	uid := fmt.Sprintf("utt_%d", utterance)

	start := mustMarshal(protocol.ServerAudioStart{Type: "audio_start", UtteranceID: uid, Format: p.format})
	if err := p.enqueue(ctx, outboundFrame{isAudio: true, utterance: utterance, textPayload: start}); err != nil {
		return err
	}

	for offset := 0; offset < len(audio); {
		end := offset + p.maxFrameBytes
		if end > len(audio) {
			end = len(audio)
		}
		chunk := audio[offset:end]
		seq := int64(offset / p.maxFrameBytes)

		var frame outboundFrame
		if p.binary {
			header := mustMarshal(protocol.ServerAudioChunkHeader{Type: "audio_chunk", UtteranceID: uid, Seq: seq, Bytes: len(chunk)})
			frame = outboundFrame{isAudio: true, utterance: utterance, binaryPair: &binaryPair{header: header, data: chunk}}
		} else {
			payload := mustMarshal(protocol.ServerAudioChunk{
				Type:        "audio_chunk",
				UtteranceID: uid,
				Seq:         seq,
				AudioB64:    base64.StdEncoding.EncodeToString(chunk),
			})
			frame = outboundFrame{isAudio: true, utterance: utterance, textPayload: payload}
		}
		if err := p.enqueue(ctx, frame); err != nil {
			return err
		}
		offset = end

		// Pace at realtime so the engine finishes when the client does.
		wait := time.Duration(len(chunk)) * time.Second / time.Duration(p.bytesPerSecond)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	end := mustMarshal(protocol.ServerAudioEnd{Type: "audio_end", UtteranceID: uid})
	return p.enqueue(ctx, outboundFrame{isAudio: true, utterance: utterance, textPayload: end})
}

// Stop aborts the current utterance and marks its queued frames stale
// so the writer drops them instead of flushing buffered audio.
func (p *RemotePlayer) Stop() {
	p.mu.Lock()
	p.lastCanceled = p.counter
	cancel := p.playCancel
	p.playCancel = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (p *RemotePlayer) isCanceled(utterance int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return utterance <= p.lastCanceled
}

func (p *RemotePlayer) enqueue(ctx context.Context, frame outboundFrame) error {
	select {
	case p.queue <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// All protocol frames are plain structs; this cannot fail.
		panic(err)
	}
	return data
}
