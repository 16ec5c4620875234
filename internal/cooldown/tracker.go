// Package cooldown rate-limits users by remembering when each one last had a
// request accepted.
package cooldown

import (
	"fmt"
	"math"
	"sync"
	"time"
)

const (
	DefaultWindow    = 5 * time.Second
	DefaultRetention = 10 * time.Minute
)

// Result is the outcome of a cooldown check.
type Result struct {
	Allowed   bool
	Remaining time.Duration
}

// RemainingSeconds rounds the remaining wait up to whole seconds.
func (r Result) RemainingSeconds() int {
	if r.Allowed || r.Remaining <= 0 {
		return 0
	}
	return int(math.Ceil(r.Remaining.Seconds()))
}

// Error reports that a user is still cooling down.
type Error struct {
	Remaining time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("on cooldown, try again in %ds", Result{Remaining: e.Remaining}.RemainingSeconds())
}

// RemainingSeconds is the wait in whole seconds, rounded up.
func (e *Error) RemainingSeconds() int {
	return Result{Remaining: e.Remaining}.RemainingSeconds()
}

// Err converts a rejected result into an *Error (nil when allowed).
func (r Result) Err() error {
	if r.Allowed {
		return nil
	}
	return &Error{Remaining: r.Remaining}
}

type timer interface {
	Stop() bool
}

type entry struct {
	lastRequestAt time.Time
	expiry        timer
	gen           uint64
}

// Tracker is safe for concurrent use. Expiry timers only bound memory: the
// check always compares against the stored timestamp.
type Tracker struct {
	mu        sync.Mutex
	window    time.Duration
	retention time.Duration
	entries   map[string]*entry
	closed    bool

	now       func() time.Time
	afterFunc func(time.Duration, func()) timer
}

// Option customises a Tracker.
type Option func(*Tracker)

// WithRetention sets how long an entry survives after its last use.
func WithRetention(d time.Duration) Option {
	return func(t *Tracker) { t.retention = d }
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New returns a tracker with the given window. A window <= 0 disables cooldowns.
func New(window time.Duration, opts ...Option) *Tracker {
	t := &Tracker{
		window:    window,
		retention: DefaultRetention,
		entries:   make(map[string]*entry),
		now:       time.Now,
		afterFunc: func(d time.Duration, f func()) timer { return time.AfterFunc(d, f) },
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.retention < t.window {
		t.retention = t.window
	}
	return t
}

// Window returns the configured cooldown window.
func (t *Tracker) Window() time.Duration { return t.window }

// Check reports whether userID may make a request now. It does not record anything.
func (t *Tracker) Check(userID string) Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.checkLocked(userID, t.now())
}

// Record marks userID as having just made an accepted request.
func (t *Tracker) Record(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recordLocked(userID, t.now())
}

// Acquire checks and, when allowed, records in one step so that two
// concurrent requests from the same user cannot both pass.
func (t *Tracker) Acquire(userID string) Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	res := t.checkLocked(userID, now)
	if res.Allowed {
		t.recordLocked(userID, now)
	}
	return res
}

// Len returns the number of tracked users.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Close stops all pending expiry timers. The tracker keeps answering checks.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for _, e := range t.entries {
		if e.expiry != nil {
			e.expiry.Stop()
			e.expiry = nil
		}
	}
}

func (t *Tracker) checkLocked(userID string, now time.Time) Result {
	e, ok := t.entries[userID]
	if !ok || t.window <= 0 {
		return Result{Allowed: true}
	}
	readyAt := e.lastRequestAt.Add(t.window)
	if !now.Before(readyAt) {
		return Result{Allowed: true}
	}
	return Result{Remaining: readyAt.Sub(now)}
}

func (t *Tracker) recordLocked(userID string, now time.Time) {
	e, ok := t.entries[userID]
	if !ok {
		e = &entry{}
		t.entries[userID] = e
	}
	e.lastRequestAt = now
	e.gen++

	if e.expiry != nil {
		e.expiry.Stop()
		e.expiry = nil
	}
	if t.closed {
		return
	}
	gen := e.gen
	e.expiry = t.afterFunc(t.retention, func() { t.expire(userID, gen) })
}

func (t *Tracker) expire(userID string, gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[userID]; ok && e.gen == gen {
		delete(t.entries, userID)
	}
}
