package call

import (
	"context"
	"sync"

	"github.com/callio-ai/callio/pkg/core"
)

// Synthesizer converts reply text to encoded audio. Implementations
// wrap the text-to-speech collaborator.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// AudioPlayer plays one utterance of encoded audio. Play blocks until
// playback finishes or Stop is called from another goroutine.
type AudioPlayer interface {
	Play(ctx context.Context, audio []byte) error
	Stop()
}

// PlaybackSequencer splits reply text, synthesizes it, and plays the
// chunks in order. Each Play starts a new generation; Cancel
// invalidates the current generation so results that arrive late are
// dropped without touching the player.
type PlaybackSequencer struct {
	config PlaybackConfig
	synth  Synthesizer
	player AudioPlayer

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc

	// Callbacks for events
	onStarted    func(chunks int, inline bool)
	onChunkStart func(index, total int)
	onChunkSkip  func(index int, err error)
	onComplete   func()
	onError      func(err *core.Error)
}

// NewPlaybackSequencer creates a sequencer over the given collaborators.
func NewPlaybackSequencer(config PlaybackConfig, synth Synthesizer, player AudioPlayer) *PlaybackSequencer {
	return &PlaybackSequencer{
		config: config,
		synth:  synth,
		player: player,
	}
}

// SetCallbacks sets the event callbacks for the sequencer.
func (p *PlaybackSequencer) SetCallbacks(
	onStarted func(chunks int, inline bool),
	onChunkStart func(index, total int),
	onChunkSkip func(index int, err error),
	onComplete func(),
	onError func(err *core.Error),
) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onStarted = onStarted
	p.onChunkStart = onChunkStart
	p.onChunkSkip = onChunkSkip
	p.onComplete = onComplete
	p.onError = onError
}

// Play starts playback of the given reply text and returns the new
// generation number. It does not block; completion or failure is
// reported through the callbacks.
func (p *PlaybackSequencer) Play(ctx context.Context, text string) uint64 {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.generation++
	gen := p.generation
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	// Release the run context once the run ends so a finished generation
	// does not hold it until the next Play or Cancel.
	go func() {
		defer cancel()
		p.run(runCtx, gen, text)
	}()
	return gen
}

// Cancel invalidates the current generation and stops the player
// immediately. Safe to call when nothing is playing.
func (p *PlaybackSequencer) Cancel() {
	p.mu.Lock()
	p.generation++
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.mu.Unlock()

	p.player.Stop()
}

// Generation returns the current generation number.
func (p *PlaybackSequencer) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation
}

func (p *PlaybackSequencer) isCurrent(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation == gen
}

type synthResult struct {
	index int
	audio []byte
	err   error
}

func (p *PlaybackSequencer) run(ctx context.Context, gen uint64, text string) {
	chunks := SplitChunks(text, p.config)
	if len(chunks) == 0 {
		p.finish(gen)
		return
	}

	inline := len(chunks) <= p.config.InlineChunkLimit
	p.mu.Lock()
	onStarted := p.onStarted
	p.mu.Unlock()
	if onStarted != nil {
		onStarted(len(chunks), inline)
	}

	// Short replies go to the collaborator in one call and play as a
	// single utterance.
	if inline {
		audio, err := p.synth.Synthesize(ctx, text)
		if err == nil && len(audio) == 0 {
			err = core.NewSynthesisError("synthesizer returned empty audio", nil)
		}
		if !p.isCurrent(gen) {
			return
		}
		if err != nil {
			p.fail(gen, core.NewSynthesisError("synthesis failed", err))
			return
		}
		p.playChunk(ctx, gen, 0, 1, audio)
		p.finish(gen)
		return
	}

	// Long replies pipeline: synthesis runs ahead while earlier chunks
	// play, and playback consumes strictly in order.
	results := make(chan synthResult, len(chunks))
	go func() {
		defer close(results)
		for i, chunk := range chunks {
			if ctx.Err() != nil {
				return
			}
			audio, err := p.synth.Synthesize(ctx, chunk)
			if err == nil && len(audio) == 0 {
				err = core.NewSynthesisError("synthesizer returned empty audio", nil)
			}
			select {
			case results <- synthResult{index: i, audio: audio, err: err}:
			case <-ctx.Done():
				return
			}
		}
	}()

	played := 0
	for res := range results {
		if ctx.Err() != nil || !p.isCurrent(gen) {
			return
		}
		if res.err != nil {
			// Skip the failed chunk and keep going.
			p.mu.Lock()
			onSkip := p.onChunkSkip
			p.mu.Unlock()
			if onSkip != nil {
				onSkip(res.index, res.err)
			}
			continue
		}
		if !p.playChunk(ctx, gen, res.index, len(chunks), res.audio) {
			return
		}
		played++
	}

	if ctx.Err() != nil || !p.isCurrent(gen) {
		return
	}
	if played == 0 {
		p.fail(gen, core.NewSynthesisError("all chunks failed to synthesize", nil))
		return
	}
	p.finish(gen)
}

// playChunk plays one chunk, returning false when the run became stale.
func (p *PlaybackSequencer) playChunk(ctx context.Context, gen uint64, index, total int, audio []byte) bool {
	p.mu.Lock()
	onStart := p.onChunkStart
	p.mu.Unlock()
	if onStart != nil {
		onStart(index, total)
	}

	err := p.player.Play(ctx, audio)
	if !p.isCurrent(gen) || ctx.Err() != nil {
		return false
	}
	if err != nil {
		p.mu.Lock()
		onSkip := p.onChunkSkip
		p.mu.Unlock()
		if onSkip != nil {
			onSkip(index, err)
		}
	}
	return true
}

func (p *PlaybackSequencer) finish(gen uint64) {
	if !p.isCurrent(gen) {
		return
	}
	p.mu.Lock()
	onComplete := p.onComplete
	p.mu.Unlock()
	if onComplete != nil {
		onComplete()
	}
}

func (p *PlaybackSequencer) fail(gen uint64, err *core.Error) {
	if !p.isCurrent(gen) {
		return
	}
	p.mu.Lock()
	onError := p.onError
	p.mu.Unlock()
	if onError != nil {
		onError(err)
	}
}
