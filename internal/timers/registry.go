// Package timers keeps the live timer handles of a component under string keys.
//
// Installing a timer under a key always stops the handle already there, so a
// key never has two live timers. A callback whose handle was superseded or
// cancelled before it ran is dropped, even if the underlying clock already
// fired it.
package timers

import (
	"sync"
	"time"

	"github.com/facebookgo/clock"
)

type entry struct {
	timer *clock.Timer
	token uint64
}

// Registry maps keys to live timers.
type Registry struct {
	mu     sync.Mutex
	clock  clock.Clock
	timers map[string]*entry
	next   uint64
	closed bool
}

// New returns a registry scheduling on clk.
func New(clk clock.Clock) *Registry {
	if clk == nil {
		clk = clock.New()
	}
	return &Registry{clock: clk, timers: make(map[string]*entry)}
}

// Install schedules fn to run after d under key, stopping any timer already
// installed there. fn is never run synchronously by Install.
func (r *Registry) Install(key string, d time.Duration, fn func()) {
	if d <= 0 {
		d = time.Nanosecond
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	if prev, ok := r.timers[key]; ok {
		prev.timer.Stop()
	}

	r.next++
	token := r.next
	e := &entry{token: token}
	r.timers[key] = e
	e.timer = r.clock.AfterFunc(d, func() {
		if !r.claim(key, token) {
			return
		}
		fn()
	})
}

// claim removes the entry for key if it is still the installation identified
// by token, reporting whether the callback should run.
func (r *Registry) claim(key string, token uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.timers[key]
	if !ok || e.token != token {
		return false
	}
	delete(r.timers, key)
	return true
}

// Cancel stops the timer under key. Cancelling an absent key is a no-op.
func (r *Registry) Cancel(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.timers[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(r.timers, key)
	return true
}

// CancelAll stops every live timer.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, e := range r.timers {
		e.timer.Stop()
		delete(r.timers, key)
	}
}

// Close cancels everything and refuses further installs.
func (r *Registry) Close() {
	r.CancelAll()
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

// Pending reports whether key has a live timer.
func (r *Registry) Pending(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.timers[key]
	return ok
}
