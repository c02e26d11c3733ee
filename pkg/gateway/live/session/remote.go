package session

import (
	"io"
	"sync"
)

// RemoteDevice adapts inbound websocket PCM frames to the engine's
// capture device interface. The websocket read loop pushes frames in;
// the recorder pump reads them out.
type RemoteDevice struct {
	mu     sync.Mutex
	frames chan []byte
	queue  int
	open   bool

	pending []byte
}

// NewRemoteDevice creates a device buffering up to queue frames.
func NewRemoteDevice(queue int) *RemoteDevice {
	if queue <= 0 {
		queue = 64
	}
	return &RemoteDevice{queue: queue}
}

// Open implements the capture device contract. Reopening after Close
// starts with a fresh frame queue.
func (d *RemoteDevice) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		return nil
	}
	d.frames = make(chan []byte, d.queue)
	d.pending = nil
	d.open = true
	return nil
}

// Push hands an inbound frame to the device. Frames arriving while the
// device is closed or the queue is full are dropped; real-time audio
// is better dropped than delayed.
func (d *RemoteDevice) Push(frame []byte) bool {
	buf := make([]byte, len(frame))
	copy(buf, frame)

	// The send must stay under the lock: Close closes d.frames, and a
	// send racing that close panics. The send is non-blocking, so the
	// lock is never held for long.
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return false
	}
	select {
	case d.frames <- buf:
		return true
	default:
		return false
	}
}

func (d *RemoteDevice) Read(p []byte) (int, error) {
	d.mu.Lock()
	if len(d.pending) > 0 {
		n := copy(p, d.pending)
		d.pending = d.pending[n:]
		d.mu.Unlock()
		return n, nil
	}
	frames := d.frames
	d.mu.Unlock()

	if frames == nil {
		return 0, io.EOF
	}
	frame, ok := <-frames
	if !ok {
		return 0, io.EOF
	}
	n := copy(p, frame)
	if n < len(frame) {
		d.mu.Lock()
		d.pending = frame[n:]
		d.mu.Unlock()
	}
	return n, nil
}

func (d *RemoteDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return nil
	}
	d.open = false
	close(d.frames)
	return nil
}
