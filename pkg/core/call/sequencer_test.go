package call

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/callio-ai/callio/pkg/core"
)

// mockSynth implements Synthesizer with scripted failures.
type mockSynth struct {
	mu      sync.Mutex
	calls   []string
	failOn  map[int]bool // call index -> fail
	failAll bool
	delay   time.Duration
}

func (m *mockSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	index := len(m.calls)
	m.calls = append(m.calls, text)
	fail := m.failAll || m.failOn[index]
	m.mu.Unlock()

	if fail {
		return nil, fmt.Errorf("synth backend error")
	}
	return []byte(text), nil
}

func (m *mockSynth) callTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// mockPlayer implements AudioPlayer, recording what it played.
type mockPlayer struct {
	mu      sync.Mutex
	played  []string
	stopped bool
	block   chan struct{} // when set, Play waits for Stop
}

func (m *mockPlayer) Play(ctx context.Context, audio []byte) error {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.played = append(m.played, string(audio))
	return nil
}

func (m *mockPlayer) Stop() {
	m.mu.Lock()
	m.stopped = true
	block := m.block
	m.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		default:
			close(block)
		}
	}
}

func (m *mockPlayer) playedTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.played...)
}

type sequencerHarness struct {
	seq      *PlaybackSequencer
	synth    *mockSynth
	player   *mockPlayer
	complete chan struct{}
	errs     chan *core.Error
}

func newSequencerHarness(config PlaybackConfig) *sequencerHarness {
	h := &sequencerHarness{
		synth:    &mockSynth{failOn: map[int]bool{}},
		player:   &mockPlayer{},
		complete: make(chan struct{}, 4),
		errs:     make(chan *core.Error, 4),
	}
	h.seq = NewPlaybackSequencer(config, h.synth, h.player)
	h.seq.SetCallbacks(
		nil,
		nil,
		nil,
		func() { h.complete <- struct{}{} },
		func(err *core.Error) { h.errs <- err },
	)
	return h
}

func (h *sequencerHarness) waitComplete(t *testing.T) {
	t.Helper()
	select {
	case <-h.complete:
	case err := <-h.errs:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("playback never completed")
	}
}

func TestSequencer_InlineShortReply(t *testing.T) {
	config := PlaybackConfig{MaxChunkLength: 10, BoundaryWindow: 4, InlineChunkLimit: 3}
	h := newSequencerHarness(config)

	// Splits into 2 chunks, under the inline limit: one synthesis call
	// with the full text.
	text := "abcdefgh. ijklmnop."
	h.seq.Play(context.Background(), text)
	h.waitComplete(t)

	calls := h.synth.callTexts()
	if len(calls) != 1 || calls[0] != text {
		t.Fatalf("expected a single whole-text synthesis call, got %v", calls)
	}
	if played := h.player.playedTexts(); len(played) != 1 || played[0] != text {
		t.Fatalf("expected a single utterance, got %v", played)
	}
}

func TestSequencer_SequentialLongReply(t *testing.T) {
	config := PlaybackConfig{MaxChunkLength: 10, BoundaryWindow: 4, InlineChunkLimit: 3}
	h := newSequencerHarness(config)

	// 5 chunks: per-chunk synthesis, in-order playback.
	text := strings.Repeat("abcdefgh. ", 5)
	chunks := SplitChunks(text, config)
	if len(chunks) <= config.InlineChunkLimit {
		t.Fatalf("test text too short: %d chunks", len(chunks))
	}

	h.seq.Play(context.Background(), text)
	h.waitComplete(t)

	calls := h.synth.callTexts()
	if len(calls) != len(chunks) {
		t.Fatalf("expected %d synthesis calls, got %d", len(chunks), len(calls))
	}
	played := h.player.playedTexts()
	if strings.Join(played, "") != text {
		t.Fatalf("playback out of order or lossy: %v", played)
	}
}

func TestSequencer_SkipsFailedChunks(t *testing.T) {
	config := PlaybackConfig{MaxChunkLength: 10, BoundaryWindow: 4, InlineChunkLimit: 3}
	h := newSequencerHarness(config)
	h.synth.failOn[1] = true

	var skippedMu sync.Mutex
	var skipped []int
	h.seq.SetCallbacks(
		nil,
		nil,
		func(index int, err error) {
			skippedMu.Lock()
			skipped = append(skipped, index)
			skippedMu.Unlock()
		},
		func() { h.complete <- struct{}{} },
		func(err *core.Error) { h.errs <- err },
	)

	text := strings.Repeat("abcdefgh. ", 5)
	h.seq.Play(context.Background(), text)
	h.waitComplete(t)

	skippedMu.Lock()
	defer skippedMu.Unlock()
	if len(skipped) != 1 || skipped[0] != 1 {
		t.Fatalf("expected chunk 1 skipped, got %v", skipped)
	}
	chunks := SplitChunks(text, config)
	if played := h.player.playedTexts(); len(played) != len(chunks)-1 {
		t.Fatalf("expected %d played chunks, got %d", len(chunks)-1, len(played))
	}
}

func TestSequencer_AllChunksFailedIsError(t *testing.T) {
	config := PlaybackConfig{MaxChunkLength: 10, BoundaryWindow: 4, InlineChunkLimit: 3}
	h := newSequencerHarness(config)
	h.synth.failAll = true

	h.seq.Play(context.Background(), strings.Repeat("abcdefgh. ", 5))

	select {
	case err := <-h.errs:
		if err.Type != core.ErrSynthesis {
			t.Errorf("expected synthesis error, got %v", err)
		}
	case <-h.complete:
		t.Fatalf("expected failure, got completion")
	case <-time.After(2 * time.Second):
		t.Fatalf("no outcome reported")
	}
}

func TestSequencer_InlineSynthesisFailure(t *testing.T) {
	config := PlaybackConfig{MaxChunkLength: 10, BoundaryWindow: 4, InlineChunkLimit: 3}
	h := newSequencerHarness(config)
	h.synth.failAll = true

	h.seq.Play(context.Background(), "short text")

	select {
	case err := <-h.errs:
		if err.Type != core.ErrSynthesis {
			t.Errorf("expected synthesis error, got %v", err)
		}
	case <-h.complete:
		t.Fatalf("expected failure, got completion")
	case <-time.After(2 * time.Second):
		t.Fatalf("no outcome reported")
	}
}

func TestSequencer_CancelStopsPlayerAndDropsCompletion(t *testing.T) {
	config := PlaybackConfig{MaxChunkLength: 10, BoundaryWindow: 4, InlineChunkLimit: 3}
	h := newSequencerHarness(config)
	h.player.block = make(chan struct{})

	h.seq.Play(context.Background(), "hello there")

	// Give the run goroutine time to reach Play.
	time.Sleep(50 * time.Millisecond)
	h.seq.Cancel()

	select {
	case <-h.complete:
		t.Fatalf("cancelled generation must not complete")
	case <-time.After(200 * time.Millisecond):
	}

	h.player.mu.Lock()
	stopped := h.player.stopped
	h.player.mu.Unlock()
	if !stopped {
		t.Errorf("expected player stopped on cancel")
	}
}

// ctxCaptureSynth records the context it was called with.
type ctxCaptureSynth struct {
	mu  sync.Mutex
	ctx context.Context
}

func (s *ctxCaptureSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	return []byte(text), nil
}

func TestSequencer_CompletionReleasesRunContext(t *testing.T) {
	config := PlaybackConfig{MaxChunkLength: 10, BoundaryWindow: 4, InlineChunkLimit: 3}
	synth := &ctxCaptureSynth{}
	player := &mockPlayer{}
	seq := NewPlaybackSequencer(config, synth, player)
	complete := make(chan struct{}, 1)
	seq.SetCallbacks(nil, nil, nil,
		func() { complete <- struct{}{} },
		nil,
	)

	seq.Play(context.Background(), "short text")
	select {
	case <-complete:
	case <-time.After(2 * time.Second):
		t.Fatalf("playback never completed")
	}

	// The per-run context must be cancelled once the run ends, not held
	// until the next Play.
	deadline := time.After(2 * time.Second)
	for {
		synth.mu.Lock()
		ctx := synth.ctx
		synth.mu.Unlock()
		if ctx != nil && ctx.Err() != nil {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("run context still live after completion")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// stallSynth synthesizes instantly until call stallAt, which blocks on
// the context. reached is closed when the stalled call begins.
type stallSynth struct {
	mu      sync.Mutex
	calls   []string
	stallAt int
	reached chan struct{}
}

func (s *stallSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	s.mu.Lock()
	index := len(s.calls)
	s.calls = append(s.calls, text)
	s.mu.Unlock()

	if index == s.stallAt {
		close(s.reached)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return []byte(text), nil
}

func (s *stallSynth) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func TestSequencer_CancelMidSynthesisStopsPipeline(t *testing.T) {
	config := PlaybackConfig{MaxChunkLength: 10, BoundaryWindow: 4, InlineChunkLimit: 3}
	text := strings.Repeat("abcdefgh. ", 5)
	chunks := SplitChunks(text, config)
	if len(chunks) != 5 {
		t.Fatalf("test text must split into 5 chunks, got %d", len(chunks))
	}

	synth := &stallSynth{stallAt: 1, reached: make(chan struct{})}
	player := &mockPlayer{}
	seq := NewPlaybackSequencer(config, synth, player)
	complete := make(chan struct{}, 1)
	seq.SetCallbacks(nil, nil, nil,
		func() { complete <- struct{}{} },
		nil,
	)

	seq.Play(context.Background(), text)

	select {
	case <-synth.reached:
	case <-time.After(2 * time.Second):
		t.Fatalf("second chunk synthesis never started")
	}
	seq.Cancel()

	// Let the cancelled run wind down.
	time.Sleep(100 * time.Millisecond)

	if n := synth.callCount(); n != 2 {
		t.Errorf("chunks after the cancelled one must never be requested, got %d calls", n)
	}
	for _, played := range player.playedTexts() {
		if played != chunks[0] {
			t.Errorf("late chunk reached the player: %q", played)
		}
	}
	select {
	case <-complete:
		t.Errorf("cancelled generation must not complete")
	default:
	}
}

func TestSequencer_StaleGenerationDropped(t *testing.T) {
	config := PlaybackConfig{MaxChunkLength: 10, BoundaryWindow: 4, InlineChunkLimit: 3}
	h := newSequencerHarness(config)
	h.synth.delay = 100 * time.Millisecond

	gen1 := h.seq.Play(context.Background(), "first reply")
	h.seq.Cancel()
	gen2 := h.seq.Play(context.Background(), "second one")

	if gen2 <= gen1 {
		t.Fatalf("generation must increase: %d then %d", gen1, gen2)
	}

	h.waitComplete(t)
	for _, played := range h.player.playedTexts() {
		if played == "first reply" {
			t.Fatalf("stale generation audio reached the player")
		}
	}
}
