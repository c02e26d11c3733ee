package call

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/callio-ai/callio/pkg/core"
)

// fakeDevice implements CaptureDevice over a frame channel.
type fakeDevice struct {
	mu      sync.Mutex
	frames  chan []byte
	opened  bool
	closed  bool
	openErr error
	readErr error
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{frames: make(chan []byte, 64)}
}

func (d *fakeDevice) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return d.openErr
	}
	if d.closed {
		d.frames = make(chan []byte, 64)
	}
	d.opened = true
	d.closed = false
	return nil
}

func (d *fakeDevice) Read(p []byte) (int, error) {
	d.mu.Lock()
	readErr := d.readErr
	frames := d.frames
	d.mu.Unlock()
	if readErr != nil {
		return 0, readErr
	}
	frame, ok := <-frames
	if !ok {
		return 0, io.EOF
	}
	n := copy(p, frame)
	return n, nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		close(d.frames)
	}
	return nil
}

func (d *fakeDevice) wasClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func TestRecorder_OpenFailureIsDeviceError(t *testing.T) {
	dev := newFakeDevice()
	dev.openErr = fmt.Errorf("no such device")
	rec := NewSegmentRecorder(DefaultRecorderConfig(), DefaultAudioConfig(), dev, nil)

	err := rec.Acquire()
	if err == nil {
		t.Fatalf("expected error")
	}
	var ce *core.Error
	if !errors.As(err, &ce) || ce.Type != core.ErrDevice {
		t.Fatalf("expected device error, got %v", err)
	}
	if !ce.IsFatal() {
		t.Errorf("device errors must be fatal")
	}
}

func TestRecorder_TooShortSegment(t *testing.T) {
	dev := newFakeDevice()
	rec := NewSegmentRecorder(DefaultRecorderConfig(), DefaultAudioConfig(), dev, nil)
	if err := rec.Acquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer rec.Release()

	rec.Begin()
	seg, err := rec.End()
	if !errors.Is(err, ErrSegmentTooShort) {
		t.Fatalf("expected ErrSegmentTooShort, got %v", err)
	}
	if seg == nil {
		t.Fatalf("discarded segment still reports its duration")
	}
	if seg.DurationMs() >= DefaultRecorderConfig().MinRecordingDurationMs {
		t.Errorf("segment unexpectedly long: %dms", seg.DurationMs())
	}
}

func TestRecorder_RecordsFrames(t *testing.T) {
	dev := newFakeDevice()
	meter := &LevelMeter{}
	config := RecorderConfig{MinRecordingDurationMs: 50, MaxSegmentDurationMs: 10000}
	rec := NewSegmentRecorder(config, DefaultAudioConfig(), dev, meter)
	if err := rec.Acquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer rec.Release()

	rec.Begin()
	if !rec.IsRecording() {
		t.Fatalf("expected recording after Begin")
	}

	frame := pcmFromSamples([]int16{16384, 16384, 16384, 16384})
	for i := 0; i < 4; i++ {
		dev.frames <- frame
	}

	// Wait for the pump to drain the frames into the segment buffer.
	deadline := time.After(time.Second)
	for {
		if meter.Level() > 0.4 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("pump never processed frames")
		case <-time.After(5 * time.Millisecond):
		}
	}

	time.Sleep(60 * time.Millisecond) // clear the duration floor
	seg, err := rec.End()
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if len(seg.PCM) == 0 {
		t.Fatalf("expected captured PCM in the segment")
	}
	if rec.IsRecording() {
		t.Errorf("expected recording stopped after End")
	}
}

func TestRecorder_PrerollSeedsSegment(t *testing.T) {
	dev := newFakeDevice()
	meter := &LevelMeter{}
	config := RecorderConfig{MinRecordingDurationMs: 10, MaxSegmentDurationMs: 10000, PrerollDurationMs: 300}
	rec := NewSegmentRecorder(config, DefaultAudioConfig(), dev, meter)
	if err := rec.Acquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer rec.Release()

	// Audio arriving before Begin goes into the pre-roll ring.
	onset := pcmFromSamples([]int16{100, 200, 300, 400})
	dev.frames <- onset

	deadline := time.After(time.Second)
	for meter.Level() == 0 {
		select {
		case <-deadline:
			t.Fatalf("pump never processed the onset frame")
		case <-time.After(5 * time.Millisecond):
		}
	}
	time.Sleep(20 * time.Millisecond) // let the pump finish the write

	rec.Begin()
	time.Sleep(20 * time.Millisecond) // clear the duration floor
	seg, err := rec.End()
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if len(seg.PCM) < len(onset) {
		t.Fatalf("expected pre-roll audio in the segment, got %d bytes", len(seg.PCM))
	}
	for i, b := range onset {
		if seg.PCM[i] != b {
			t.Fatalf("segment must start with the pre-roll audio, byte %d = %d", i, seg.PCM[i])
		}
	}
}

func TestRecorder_AbortDiscardsSegment(t *testing.T) {
	dev := newFakeDevice()
	rec := NewSegmentRecorder(DefaultRecorderConfig(), DefaultAudioConfig(), dev, nil)
	if err := rec.Acquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer rec.Release()

	rec.Begin()
	rec.Abort()
	if rec.IsRecording() {
		t.Fatalf("expected Abort to stop recording")
	}
	if _, err := rec.End(); !errors.Is(err, ErrSegmentTooShort) {
		t.Errorf("End after Abort should report nothing to keep, got %v", err)
	}
}

func TestRecorder_ReleaseIdempotent(t *testing.T) {
	dev := newFakeDevice()
	rec := NewSegmentRecorder(DefaultRecorderConfig(), DefaultAudioConfig(), dev, nil)
	if err := rec.Acquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	rec.Begin()
	rec.Release()
	rec.Release()

	if rec.IsAcquired() {
		t.Fatalf("expected device released")
	}
	if !dev.wasClosed() {
		t.Fatalf("expected underlying device closed")
	}
	if rec.IsRecording() {
		t.Errorf("partial segment must be discarded on Release")
	}

	// Re-acquire works after Release.
	if err := rec.Acquire(); err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	rec.Release()
}

func TestRecorder_ReadFailureReportsDeviceError(t *testing.T) {
	dev := newFakeDevice()
	rec := NewSegmentRecorder(DefaultRecorderConfig(), DefaultAudioConfig(), dev, nil)

	errCh := make(chan *core.Error, 1)
	rec.SetDeviceErrorCallback(func(err *core.Error) {
		select {
		case errCh <- err:
		default:
		}
	})

	if err := rec.Acquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer rec.Release()

	dev.mu.Lock()
	dev.readErr = fmt.Errorf("device unplugged")
	dev.mu.Unlock()
	// Unblock a pump that is already waiting on the frame channel; the
	// next Read after this frame surfaces the failure.
	dev.frames <- pcmFromSamples([]int16{0, 0})

	select {
	case ce := <-errCh:
		if ce.Type != core.ErrDevice {
			t.Errorf("expected device error, got %v", ce)
		}
	case <-time.After(time.Second):
		t.Fatalf("device error never reported")
	}
}
