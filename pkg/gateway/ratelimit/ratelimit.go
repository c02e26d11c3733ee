// Package ratelimit guards call admission per client. Each client gets
// a token bucket for call starts and a cap on concurrent calls.
package ratelimit

import (
	"math"
	"net"
	"sync"
	"time"
)

type Config struct {
	// CallsPerSecond refills the per-client start bucket. Zero disables
	// the rate check.
	CallsPerSecond float64
	// Burst is the bucket capacity. Zero disables the rate check.
	Burst int

	// MaxConcurrentCalls caps simultaneous calls per client. Zero
	// disables the cap.
	MaxConcurrentCalls int

	// Operational bounds for the in-memory map (single-process only).
	MaxEntries int
	EntryTTL   time.Duration
}

type Limiter struct {
	cfg Config

	mu sync.Mutex
	m  map[string]*clientLimiter
}

type clientLimiter struct {
	mu sync.Mutex

	tb      tokenBucket
	callSem chan struct{}

	lastSeen time.Time
}

type tokenBucket struct {
	tokens float64
	last   time.Time
}

func New(cfg Config) *Limiter {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10_000
	}
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = 30 * time.Minute
	}
	return &Limiter{
		cfg: cfg,
		m:   make(map[string]*clientLimiter),
	}
}

// ClientKeyFromRemoteAddr derives the limiter key from a host:port
// remote address. Sessions are anonymous, so the client IP is the best
// available identity.
func ClientKeyFromRemoteAddr(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil || host == "" {
		return remoteAddr
	}
	return host
}

// Permit is a held concurrency slot. Release returns it; Release is
// safe to call more than once.
type Permit struct {
	release func()
}

func (p *Permit) Release() {
	if p == nil || p.release == nil {
		return
	}
	p.release()
	p.release = nil
}

type Decision struct {
	Allowed    bool
	RetryAfter int
	Permit     *Permit
}

// AcquireCall admits or rejects a new call for the client. On success
// the decision carries a permit that must be released when the call
// ends.
func (l *Limiter) AcquireCall(client string, now time.Time) Decision {
	if client == "" {
		client = "anonymous"
	}

	cl := l.getOrCreate(client, now)
	cl.touch(now)

	if l.cfg.CallsPerSecond > 0 && l.cfg.Burst > 0 {
		ok, retryAfter := cl.allowToken(now, l.cfg.CallsPerSecond, l.cfg.Burst)
		if !ok {
			return Decision{Allowed: false, RetryAfter: retryAfter}
		}
	}

	if l.cfg.MaxConcurrentCalls > 0 {
		select {
		case cl.callSem <- struct{}{}:
			return Decision{
				Allowed: true,
				Permit:  &Permit{release: func() { <-cl.callSem }},
			}
		default:
			return Decision{Allowed: false, RetryAfter: 1}
		}
	}

	return Decision{Allowed: true, Permit: &Permit{release: func() {}}}
}

func (l *Limiter) getOrCreate(client string, now time.Time) *clientLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cl, ok := l.m[client]; ok {
		return cl
	}

	if len(l.m) >= l.cfg.MaxEntries {
		l.evictLocked(now)
	}

	cl := &clientLimiter{
		tb:       tokenBucket{tokens: float64(l.cfg.Burst), last: now},
		lastSeen: now,
	}
	if l.cfg.MaxConcurrentCalls > 0 {
		cl.callSem = make(chan struct{}, l.cfg.MaxConcurrentCalls)
	}
	l.m[client] = cl
	return cl
}

// evictLocked drops idle entries; if nothing is idle it drops the
// stalest entry so the map stays bounded.
func (l *Limiter) evictLocked(now time.Time) {
	var (
		oldestKey  string
		oldestSeen time.Time
		evicted    bool
	)
	for key, cl := range l.m {
		cl.mu.Lock()
		seen := cl.lastSeen
		cl.mu.Unlock()

		if now.Sub(seen) > l.cfg.EntryTTL {
			delete(l.m, key)
			evicted = true
			continue
		}
		if oldestKey == "" || seen.Before(oldestSeen) {
			oldestKey = key
			oldestSeen = seen
		}
	}
	if !evicted && oldestKey != "" {
		delete(l.m, oldestKey)
	}
}

func (cl *clientLimiter) touch(now time.Time) {
	cl.mu.Lock()
	cl.lastSeen = now
	cl.mu.Unlock()
}

func (cl *clientLimiter) allowToken(now time.Time, rate float64, burst int) (bool, int) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	capacity := float64(burst)
	elapsed := now.Sub(cl.tb.last).Seconds()
	if elapsed > 0 {
		cl.tb.tokens = math.Min(capacity, cl.tb.tokens+elapsed*rate)
	}
	cl.tb.last = now

	if cl.tb.tokens >= 1 {
		cl.tb.tokens--
		return true, 0
	}

	retryAfter := int(math.Ceil((1 - cl.tb.tokens) / rate))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return false, retryAfter
}
