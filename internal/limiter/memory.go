package limiter

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	fails        int
	updated      time.Time
	blockedUntil time.Time
}

// Memory is an in-process limiter with the same window and lockout rules as PG.
type Memory struct {
	mu       sync.Mutex
	entries  map[string]*entry
	window   time.Duration
	maxFails int
	blockFor time.Duration
	now      func() time.Time
}

// NewMemory constructs an in-process limiter.
func NewMemory(window time.Duration, maxFails int, blockFor time.Duration) *Memory {
	if maxFails <= 0 {
		maxFails = 5
	}
	return &Memory{entries: make(map[string]*entry), window: window, maxFails: maxFails, blockFor: blockFor, now: time.Now}
}

// Allow reports whether scannerHash may attempt a scan and, if locked out, for how long.
func (l *Memory) Allow(_ context.Context, scannerHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[string(scannerHash)]
	if !ok {
		return true, 0, nil
	}
	if now := l.now(); e.blockedUntil.After(now) {
		return false, e.blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Success clears the failure history of scannerHash.
func (l *Memory) Success(_ context.Context, scannerHash []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, string(scannerHash))
	return nil
}

// Failure counts a failed scan within the window and reports whether it triggered a lockout.
func (l *Memory) Failure(_ context.Context, scannerHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	e, ok := l.entries[string(scannerHash)]
	switch {
	case !ok:
		e = &entry{}
		l.entries[string(scannerHash)] = e
		e.fails = 1
	case now.Sub(e.updated) > l.window:
		e.fails = 1
	default:
		e.fails++
	}
	e.updated = now
	if e.fails < l.maxFails {
		return false, 0, nil
	}
	e.blockedUntil = now.Add(l.blockFor)
	return true, l.blockFor, nil
}
