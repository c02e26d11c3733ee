package sessions

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestTracker_RegisterUnregister(t *testing.T) {
	tr := NewTracker()
	if tr.Count() != 0 {
		t.Fatalf("initial count=%d, want 0", tr.Count())
	}

	u1 := tr.Register("call_1", Handle{})
	u2 := tr.Register("call_2", Handle{})
	if tr.Count() != 2 {
		t.Fatalf("count=%d, want 2", tr.Count())
	}

	u1()
	if tr.Count() != 1 {
		t.Fatalf("count=%d, want 1", tr.Count())
	}

	// Unregister is idempotent.
	u1()
	if tr.Count() != 1 {
		t.Fatalf("count after double unregister=%d, want 1", tr.Count())
	}

	u2()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if !tr.Wait(ctx) {
		t.Fatalf("expected Wait to return true")
	}
}

func TestTracker_ReplaceSameID(t *testing.T) {
	tr := NewTracker()
	u1 := tr.Register("call_1", Handle{})
	u2 := tr.Register("call_1", Handle{})
	if tr.Count() != 1 {
		t.Fatalf("count=%d, want 1", tr.Count())
	}
	u1()
	if tr.Count() != 1 {
		t.Fatalf("count after stale unregister=%d, want 1", tr.Count())
	}
	u2()
	if tr.Count() != 0 {
		t.Fatalf("count=%d, want 0", tr.Count())
	}
}

func TestTracker_NotifyAll(t *testing.T) {
	tr := NewTracker()
	var got atomic.Int32
	defer tr.Register("call_1", Handle{Notify: func(string) error {
		got.Add(1)
		return nil
	}})()
	defer tr.Register("call_2", Handle{Notify: func(string) error {
		got.Add(1)
		return errors.New("client gone")
	}})()
	defer tr.Register("call_3", Handle{})()

	if sent := tr.NotifyAll("shutting down"); sent != 2 {
		t.Fatalf("sent=%d, want 2", sent)
	}
	if got.Load() != 2 {
		t.Fatalf("notified=%d, want 2", got.Load())
	}
}

func TestTracker_StopAll(t *testing.T) {
	tr := NewTracker()
	var stopped atomic.Int32
	defer tr.Register("call_1", Handle{Stop: func() { stopped.Add(1) }})()
	defer tr.Register("call_2", Handle{Stop: func() { stopped.Add(1) }})()

	if n := tr.StopAll(); n != 2 {
		t.Fatalf("StopAll=%d, want 2", n)
	}
	if stopped.Load() != 2 {
		t.Fatalf("stopped=%d, want 2", stopped.Load())
	}
}

func TestTracker_WaitTimesOut(t *testing.T) {
	tr := NewTracker()
	unregister := tr.Register("call_1", Handle{})
	defer unregister()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if tr.Wait(ctx) {
		t.Fatalf("expected Wait to time out with an active call")
	}
}
