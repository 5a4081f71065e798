// Package timer implements a one-shot, restartable, mutex-guarded
// timer: a *time.Timer created lazily via time.AfterFunc, reset in
// place on restart rather than recreated. Used for the
// poll-retransmit, reassembly, and status-prohibit timers, each of
// which is exactly this shape: start on some trigger, restart clears
// and reschedules, fire invokes a callback under the owning entity's
// lock.
package timer

import (
	"sync"
	"time"
)

// Timer wraps time.AfterFunc with Start/Stop/Running suited to a
// protocol entity that starts, restarts, and stops a handful of named
// timers from under its own lock.
type Timer struct {
	mu      sync.Mutex
	d       time.Duration
	fn      func()
	t       *time.Timer
	running bool
}

// New returns a Timer that, once started, waits d and then calls fn.
// fn runs on its own goroutine, as with time.AfterFunc; callers whose
// fn touches shared state must take their own lock inside fn.
func New(d time.Duration, fn func()) *Timer {
	return &Timer{d: d, fn: fn}
}

// Start (re)schedules the timer to fire after its configured duration,
// replacing any previously scheduled fire. Per §6's configuration
// rules, a duration of zero means this timer is disabled: Start is
// then a no-op (any previously scheduled fire is cancelled, and
// Running reports false) rather than firing immediately.
func (tm *Timer) Start() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.d <= 0 {
		if tm.t != nil {
			tm.t.Stop()
		}
		tm.running = false
		return
	}
	if tm.t == nil {
		tm.t = time.AfterFunc(tm.d, tm.fn)
	} else {
		tm.t.Reset(tm.d)
	}
	tm.running = true
}

// Stop cancels a pending fire, if any. Per time.Timer.Stop's own
// semantics, a fire already in flight is not interrupted.
func (tm *Timer) Stop() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.t != nil {
		tm.t.Stop()
	}
	tm.running = false
}

// Running reports whether Start has been called more recently than
// Stop (or, for a timer built with NewAuto, a natural fire; a timer
// built with New keeps reporting true after it fires). This is
// advisory: it does not guarantee the callback has not already begun
// running.
func (tm *Timer) Running() bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.running
}

// SetDuration updates the interval used by future Start calls. It does
// not affect an already-scheduled fire; call Start again to apply it.
func (tm *Timer) SetDuration(d time.Duration) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.d = d
}

func (tm *Timer) fired() {
	tm.mu.Lock()
	tm.running = false
	tm.mu.Unlock()
}

// NewAuto is like New but additionally clears Running() on natural
// expiry, not just on an explicit Stop. Entities that poll Running()
// (e.g. the reassembly timer, whose maintenance branches on whether
// it's still running, or the status-prohibit timer gating STATUS)
// should use NewAuto.
func NewAuto(d time.Duration, fn func()) *Timer {
	tm := &Timer{d: d}
	tm.fn = func() {
		tm.fired()
		fn()
	}
	return tm
}
