package call

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/callio-ai/callio/pkg/core"
)

// ErrSegmentTooShort reports a finished segment below the minimum
// recording duration. It is a filtering outcome, not a failure: callers
// discard the segment and keep listening.
var ErrSegmentTooShort = errors.New("segment too short")

// CaptureDevice is a microphone-like PCM source. Implementations own
// the underlying OS or network resource; Open acquires it, Close
// releases it. Read blocks until PCM data is available.
type CaptureDevice interface {
	Open() error
	Read(p []byte) (int, error)
	Close() error
}

// AudioSegment is one recorded stretch of user speech.
type AudioSegment struct {
	PCM       []byte
	Audio     AudioConfig
	StartedAt time.Time
	EndedAt   time.Time
}

// DurationMs returns the wall-clock duration of the segment.
func (s *AudioSegment) DurationMs() int {
	if s == nil || s.EndedAt.Before(s.StartedAt) {
		return 0
	}
	return int(s.EndedAt.Sub(s.StartedAt) / time.Millisecond)
}

// SegmentRecorder owns the capture device and accumulates one speech
// segment at a time. All captured audio feeds the level meter so the
// voice activity monitor sees energy whether or not a segment is open.
type SegmentRecorder struct {
	config RecorderConfig
	audio  AudioConfig
	device CaptureDevice
	meter  *LevelMeter

	mu        sync.Mutex
	acquired  bool
	recording bool
	buf       *AudioBuffer
	preroll   *AudioBuffer
	startedAt time.Time
	done      chan struct{}

	onDeviceError func(err *core.Error)
}

// NewSegmentRecorder creates a recorder over the given device.
func NewSegmentRecorder(config RecorderConfig, audio AudioConfig, device CaptureDevice, meter *LevelMeter) *SegmentRecorder {
	r := &SegmentRecorder{
		config: config,
		audio:  audio,
		device: device,
		meter:  meter,
		buf:    NewAudioBuffer(audio, config.MaxSegmentDurationMs),
	}
	if config.PrerollDurationMs > 0 {
		r.preroll = NewAudioBuffer(audio, config.PrerollDurationMs)
	}
	return r
}

// SetDeviceErrorCallback sets the handler for mid-stream device failures.
func (r *SegmentRecorder) SetDeviceErrorCallback(fn func(err *core.Error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDeviceError = fn
}

// Acquire opens the capture device and starts the read pump.
// Failure to open is fatal for the session.
func (r *SegmentRecorder) Acquire() error {
	r.mu.Lock()
	if r.acquired {
		r.mu.Unlock()
		return nil
	}
	if err := r.device.Open(); err != nil {
		r.mu.Unlock()
		return core.NewDeviceError("failed to open capture device", err)
	}
	r.acquired = true
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	go r.pump(done)
	return nil
}

// Release stops the read pump and closes the device. Idempotent.
// A partial segment in progress is discarded.
func (r *SegmentRecorder) Release() {
	r.mu.Lock()
	if !r.acquired {
		r.mu.Unlock()
		return
	}
	r.acquired = false
	r.recording = false
	r.buf.Clear()
	if r.preroll != nil {
		r.preroll.Clear()
	}
	close(r.done)
	r.mu.Unlock()

	_ = r.device.Close()
	if r.meter != nil {
		r.meter.Reset()
	}
}

// IsAcquired reports whether the device is currently held.
func (r *SegmentRecorder) IsAcquired() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.acquired
}

// Begin opens a new speech segment. The segment is seeded with the
// pre-roll window so the onset that tripped the detector is included;
// audio read from the device from now until End accumulates after it.
func (r *SegmentRecorder) Begin() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf.Clear()
	if r.preroll != nil {
		r.buf.Write(r.preroll.ReadLast(r.config.PrerollDurationMs))
	}
	r.recording = true
	r.startedAt = time.Now()
}

// End closes the open segment. Returns ErrSegmentTooShort when the
// segment is under the minimum recording duration.
func (r *SegmentRecorder) End() (*AudioSegment, error) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return nil, ErrSegmentTooShort
	}
	r.recording = false
	startedAt := r.startedAt
	pcm := r.buf.Read()
	r.buf.Clear()
	r.mu.Unlock()

	seg := &AudioSegment{
		PCM:       pcm,
		Audio:     r.audio,
		StartedAt: startedAt,
		EndedAt:   time.Now(),
	}
	if seg.DurationMs() < r.config.MinRecordingDurationMs {
		return seg, ErrSegmentTooShort
	}
	return seg, nil
}

// Abort discards the open segment without producing one.
func (r *SegmentRecorder) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recording = false
	r.buf.Clear()
}

// IsRecording reports whether a segment is open.
func (r *SegmentRecorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

func (r *SegmentRecorder) pump(done chan struct{}) {
	frame := make([]byte, r.audio.BytesForDurationMs(20))
	if len(frame) == 0 {
		frame = make([]byte, 640)
	}

	for {
		select {
		case <-done:
			return
		default:
		}

		n, err := r.device.Read(frame)
		if n > 0 {
			if r.meter != nil {
				r.meter.Push(frame[:n])
			}
			r.mu.Lock()
			if r.recording {
				r.buf.Write(frame[:n])
			}
			// The pre-roll ring fills continuously so the next Begin
			// always sees the most recent audio.
			if r.preroll != nil {
				r.preroll.Write(frame[:n])
			}
			r.mu.Unlock()
		}
		if err != nil {
			select {
			case <-done:
				// Expected during Release.
				return
			default:
			}
			r.mu.Lock()
			onErr := r.onDeviceError
			r.mu.Unlock()
			if onErr != nil && !errors.Is(err, io.EOF) {
				onErr(core.NewDeviceError("capture device read failed", err))
			}
			return
		}
	}
}
