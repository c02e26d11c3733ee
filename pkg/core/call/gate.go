package call

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/callio-ai/callio/pkg/core"
)

// Transcriber converts a recorded segment to text. Implementations wrap
// the speech-to-text collaborator.
type Transcriber interface {
	Transcribe(ctx context.Context, segment *AudioSegment) (string, error)
}

// RejectReason classifies why a transcript was filtered out.
type RejectReason string

const (
	// RejectTooShort means the trimmed transcript was under the minimum length.
	RejectTooShort RejectReason = "too_short"
	// RejectMeaningless means the transcript was interjections or punctuation only.
	RejectMeaningless RejectReason = "meaningless"
)

// Interjection-only and punctuation-only transcripts carry no intent
// and are filtered before reaching the assistant.
var (
	interjectionOnly = regexp.MustCompile(`^[啊哦嗯呃嘿哼唔嘻呀]+$`)
	punctuationOnly  = regexp.MustCompile(`^[\s,.!?;:，。！？；：]+$`)
)

// GateResult is the outcome of running a segment through the gate.
type GateResult struct {
	// Text is the trimmed transcript. Set whether or not it was accepted.
	Text string
	// Accepted reports whether the transcript should reach the assistant.
	Accepted bool
	// Reason is set when Accepted is false.
	Reason RejectReason
}

// TranscriptionGate transcribes segments and filters out results not
// worth sending to the assistant. Rejections are outcomes, not errors;
// only collaborator failures return an error.
type TranscriptionGate struct {
	config      GateConfig
	transcriber Transcriber
}

// NewTranscriptionGate creates a gate over the given transcriber.
func NewTranscriptionGate(config GateConfig, transcriber Transcriber) *TranscriptionGate {
	return &TranscriptionGate{
		config:      config,
		transcriber: transcriber,
	}
}

// Submit transcribes the segment and applies the filters.
func (g *TranscriptionGate) Submit(ctx context.Context, segment *AudioSegment) (*GateResult, error) {
	text, err := g.transcriber.Transcribe(ctx, segment)
	if err != nil {
		if ce := core.AsError(err); ce.Type == core.ErrTranscription {
			return nil, ce
		}
		return nil, core.NewTranscriptionError("transcription failed", err)
	}
	return g.Filter(text), nil
}

// Filter applies the length and pattern checks to a raw transcript.
func (g *TranscriptionGate) Filter(text string) *GateResult {
	trimmed := strings.TrimSpace(text)

	if utf8.RuneCountInString(trimmed) < g.config.MinSpeechLength {
		return &GateResult{Text: trimmed, Reason: RejectTooShort}
	}
	if interjectionOnly.MatchString(trimmed) || punctuationOnly.MatchString(trimmed) {
		return &GateResult{Text: trimmed, Reason: RejectMeaningless}
	}
	return &GateResult{Text: trimmed, Accepted: true}
}
