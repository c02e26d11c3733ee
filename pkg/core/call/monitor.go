package call

import (
	"context"
	"sync"
	"time"
)

// EnergySource provides the current normalized audio energy in [0,1].
// LevelMeter satisfies this interface.
type EnergySource interface {
	Level() float64
}

// VoiceActivityMonitor watches an energy source and detects speech
// boundaries with hysteresis:
//  1. Energy at or above MinVolumeThreshold opens a speech segment.
//  2. Energy below the threshold for SilenceDurationMs closes it.
//
// Any above-threshold sample while a segment is open resets the
// silence timer.
type VoiceActivityMonitor struct {
	config VADConfig
	source EnergySource

	mu           sync.Mutex
	ctx          context.Context
	cancel       context.CancelFunc
	running      bool
	speaking     bool
	silenceStart time.Time

	// Callbacks for events
	onSpeechStart func()
	onSpeechEnd   func()
	onEnergy      func(rms float64)
}

// NewVoiceActivityMonitor creates a monitor over the given energy source.
func NewVoiceActivityMonitor(config VADConfig, source EnergySource) *VoiceActivityMonitor {
	return &VoiceActivityMonitor{
		config: config,
		source: source,
	}
}

// SetCallbacks sets the event callbacks for the monitor.
func (m *VoiceActivityMonitor) SetCallbacks(
	onSpeechStart func(),
	onSpeechEnd func(),
	onEnergy func(rms float64),
) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSpeechStart = onSpeechStart
	m.onSpeechEnd = onSpeechEnd
	m.onEnergy = onEnergy
}

// Start begins the polling goroutine.
func (m *VoiceActivityMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	go m.pollLoop()
}

// Stop stops the polling goroutine. Idempotent.
func (m *VoiceActivityMonitor) Stop() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	m.running = false
	m.mu.Unlock()
}

// Reset clears the hysteresis state without firing callbacks.
// Used when a segment is abandoned (mic toggled off mid-speech).
func (m *VoiceActivityMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speaking = false
	m.silenceStart = time.Time{}
}

// IsSpeaking reports whether a speech segment is currently open.
func (m *VoiceActivityMonitor) IsSpeaking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speaking
}

func (m *VoiceActivityMonitor) pollLoop() {
	interval := time.Duration(m.config.PollIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.sample(time.Now())
		}
	}
}

// sample runs one hysteresis step. Split out from pollLoop so tests can
// drive the clock directly.
func (m *VoiceActivityMonitor) sample(now time.Time) {
	energy := m.source.Level()

	m.mu.Lock()
	onEnergy := m.onEnergy
	var fire func()

	if energy >= m.config.MinVolumeThreshold {
		m.silenceStart = time.Time{}
		if !m.speaking {
			m.speaking = true
			fire = m.onSpeechStart
		}
	} else if m.speaking {
		if m.silenceStart.IsZero() {
			m.silenceStart = now
		} else if now.Sub(m.silenceStart) >= time.Duration(m.config.SilenceDurationMs)*time.Millisecond {
			m.speaking = false
			m.silenceStart = time.Time{}
			fire = m.onSpeechEnd
		}
	}
	m.mu.Unlock()

	if onEnergy != nil {
		onEnergy(energy)
	}
	if fire != nil {
		fire()
	}
}
