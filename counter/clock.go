// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package counter

import (
	"sort"
	"sync"
	"time"
)

// Timer is a pending deferred call that can be cancelled.
type Timer interface {
	// Stop prevents the timer from firing. It returns false if the
	// timer has already fired or been stopped.
	Stop() bool
}

// Clock schedules deferred calls.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemClock is the Clock backed by the time package.
var SystemClock Clock = systemClock{}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// VirtualClock is a deterministic Clock. Deferred calls are only made
// by Advance, Step or Run, on the calling goroutine, in order of their
// due time and then in order of scheduling. The zero value is ready to
// use.
type VirtualClock struct {
	mu      sync.Mutex
	now     time.Duration
	seq     uint64
	pending []*virtualTimer
}

type virtualTimer struct {
	clock *VirtualClock
	at    time.Duration
	seq   uint64
	f     func()
}

// AfterFunc schedules f to be called when the clock has advanced by d.
// A negative d is treated as zero.
func (c *VirtualClock) AfterFunc(d time.Duration, f func()) Timer {
	if d < 0 {
		d = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &virtualTimer{clock: c, at: c.now + d, seq: c.seq, f: f}
	c.pending = append(c.pending, t)
	return t
}

func (t *virtualTimer) Stop() bool {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, p := range c.pending {
		if p == t {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return true
		}
	}
	return false
}

// Now returns the time elapsed on the clock since its creation.
func (c *VirtualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Pending returns the number of scheduled calls that have not been made.
func (c *VirtualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Step advances the clock to the next due call and makes it. It returns
// false if there was no pending call.
func (c *VirtualClock) Step() bool {
	c.mu.Lock()
	t := c.next()
	if t == nil {
		c.mu.Unlock()
		return false
	}
	if t.at > c.now {
		c.now = t.at
	}
	c.mu.Unlock()
	t.f()
	return true
}

// Advance moves the clock forward by d, making every call that falls due
// on the way, including calls scheduled by those calls.
func (c *VirtualClock) Advance(d time.Duration) {
	c.mu.Lock()
	end := c.now + d
	c.mu.Unlock()
	for {
		c.mu.Lock()
		if len(c.pending) == 0 || c.earliest().at > end {
			c.now = end
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		c.Step()
	}
}

// Run makes pending calls until none remain or limit calls have been
// made. A limit less than one is no limit. It returns the number of calls
// made.
func (c *VirtualClock) Run(limit int) int {
	var n int
	for limit < 1 || n < limit {
		if !c.Step() {
			break
		}
		n++
	}
	return n
}

// earliest returns the next due timer without removing it. It must be
// called with c.mu held and at least one timer pending.
func (c *VirtualClock) earliest() *virtualTimer {
	sort.SliceStable(c.pending, func(i, j int) bool {
		a, b := c.pending[i], c.pending[j]
		if a.at != b.at {
			return a.at < b.at
		}
		return a.seq < b.seq
	})
	return c.pending[0]
}

// next removes and returns the next due timer. It must be called with
// c.mu held.
func (c *VirtualClock) next() *virtualTimer {
	if len(c.pending) == 0 {
		return nil
	}
	t := c.earliest()
	c.pending = c.pending[1:]
	return t
}
