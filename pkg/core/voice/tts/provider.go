// Package tts provides text-to-speech functionality.
package tts

import (
	"context"
)

// Provider is the interface for text-to-speech services.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Synthesize converts text to audio.
	Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error)
}

// SynthesizeOptions configures synthesis.
type SynthesizeOptions struct {
	Voice      string  // Provider-specific voice identifier
	Format     string  // Output format (mp3, wav, pcm_s16le)
	SampleRate int     // Output sample rate in Hz
	Speed      float64 // Speaking rate multiplier; 0 means default
}

// Synthesis is the result of converting text to audio.
type Synthesis struct {
	Audio      []byte // Encoded audio bytes
	Format     string // Format of Audio
	SampleRate int    // Sample rate of Audio, when known
}
