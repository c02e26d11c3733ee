package call

import (
	"bytes"
	"context"

	"github.com/callio-ai/callio/pkg/core/voice/stt"
	"github.com/callio-ai/callio/pkg/core/voice/tts"
)

// ProviderTranscriber adapts an stt.Provider to the Transcriber
// interface, wrapping raw segment PCM in a WAV container.
type ProviderTranscriber struct {
	Provider stt.Provider
	Options  stt.TranscribeOptions
}

// Transcribe implements Transcriber.
func (t ProviderTranscriber) Transcribe(ctx context.Context, segment *AudioSegment) (string, error) {
	opts := t.Options
	opts.Format = "wav"
	opts.SampleRate = segment.Audio.SampleRate

	wav := stt.WAVFromPCM(segment.PCM, segment.Audio.SampleRate, segment.Audio.Channels, segment.Audio.BitsPerSample)
	transcript, err := t.Provider.Transcribe(ctx, bytes.NewReader(wav), opts)
	if err != nil {
		return "", err
	}
	return transcript.Text, nil
}

// ProviderSynthesizer adapts a tts.Provider to the Synthesizer
// interface.
type ProviderSynthesizer struct {
	Provider tts.Provider
	Options  tts.SynthesizeOptions
}

// Synthesize implements Synthesizer.
func (s ProviderSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	synthesis, err := s.Provider.Synthesize(ctx, text, s.Options)
	if err != nil {
		return nil, err
	}
	return synthesis.Audio, nil
}
