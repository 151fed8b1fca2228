// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package counter provides a numeric display animator that counts from its
// current value toward a target value in discrete, timed steps.
//
// Each change of target starts a run from the currently displayed value.
// A run advances by (to-from)/Steps, or by CountBy if it is set, on each
// tick, waiting for a delay given by the Timing function between ticks,
// and finishes when a tick reaches or passes the target. The final tick
// is clamped to the target.
//
// Ticks reschedule themselves until the run finishes. When an Animator is
// configured as HostDriven, a tick does not reschedule and the run only
// continues when the host calls Resume or SetTarget after each update.
package counter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Defaults used for zero Config fields.
const (
	DefaultSteps    = 45
	DefaultInterval = 14 * time.Millisecond
)

// ErrStopped is returned by Wait when the Animator was stopped before the
// run settled.
var ErrStopped = errors.New("animator stopped")

// Config holds the parameters of an Animator. Zero fields take their
// default values.
type Config struct {
	// Steps is the number of equal steps taken by a full run.
	// The default is DefaultSteps.
	Steps float64
	// CountBy is a fixed step magnitude that overrides the step
	// derived from Steps when it is not zero.
	CountBy float64
	// Interval is the base delay passed to Timing.
	// The default is DefaultInterval.
	Interval time.Duration
	// Timing returns the delay before each tick.
	// The default is Linear.
	Timing Timing
	// Formatter maps the animated value to its displayed value.
	// The default is the identity.
	Formatter func(float64) float64

	// OnProgress is called on each tick with the value before the
	// tick and the new value.
	OnProgress func(prev, next float64)
	// OnFinish is called once at the end of each run with the final
	// value and its formatted value.
	OnFinish func(final, formatted float64)
	// OnUpdate is called with the committed state after each tick.
	OnUpdate func(State)

	// HostDriven disables tick self-scheduling. When it is set the
	// host must call Resume or SetTarget after each update for a
	// run to continue.
	HostDriven bool

	// Clock schedules ticks. The default is SystemClock.
	Clock Clock
	// Log is the Animator's logger. If it is nil, logging is
	// discarded.
	Log *slog.Logger
}

func (c Config) withDefaults() (Config, error) {
	switch {
	case math.IsNaN(c.Steps), math.IsInf(c.Steps, 0), c.Steps < 0:
		return c, fmt.Errorf("invalid steps: %v", c.Steps)
	case math.IsNaN(c.CountBy), math.IsInf(c.CountBy, 0):
		return c, fmt.Errorf("invalid count by: %v", c.CountBy)
	case c.Interval < 0:
		return c, fmt.Errorf("invalid interval: %v", c.Interval)
	}
	if c.Steps == 0 {
		c.Steps = DefaultSteps
	}
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	if c.Timing == nil {
		c.Timing = Linear
	}
	if c.Formatter == nil {
		c.Formatter = identity
	}
	if c.Clock == nil {
		c.Clock = SystemClock
	}
	if c.Log == nil {
		c.Log = slog.New(slog.DiscardHandler)
	}
	return c, nil
}

func identity(v float64) float64 { return v }

// Animator is a counting animation state machine. Its methods are safe
// for concurrent use. Callbacks are called sequentially and may call
// back into the Animator.
type Animator struct {
	// emit serialises ticks so that callbacks
	// are never run concurrently.
	emit sync.Mutex

	mu      sync.Mutex
	cfg     Config
	state   State
	target  float64
	gen     uint64 // incremented when pending ticks become stale
	pending Timer
	stopped bool
	settled chan struct{}
}

// New returns a new idle Animator at the initial value.
func New(initial float64, cfg Config) (*Animator, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	settled := make(chan struct{})
	close(settled)
	return &Animator{
		cfg:     cfg,
		state:   idle(initial, cfg.Formatter),
		target:  initial,
		settled: settled,
	}, nil
}

// Start starts a run toward target. It is intended to be called once
// when the display is first able to present values so that a target
// that differs from the initial value is animated without an explicit
// change of target. Subsequent calls start a new run as SetTarget does
// for a changed target.
func (a *Animator) Start(target float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped || !finite(target) {
		return
	}
	a.target = target
	a.begin(target)
}

// SetTarget notifies the Animator of the current target. If target differs
// from the previous target a new run is started from the current value,
// superseding any run in progress. Otherwise an interrupted run that
// still needs steps to reach target is resumed. Non-finite targets are
// ignored.
func (a *Animator) SetTarget(target float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	if !finite(target) {
		a.cfg.Log.LogAttrs(context.Background(), slog.LevelWarn, "ignore target", slog.Float64("target", target))
		return
	}
	if target != a.target {
		a.target = target
		a.begin(target)
		return
	}
	a.resume()
}

// Resume resumes an interrupted run toward the current target. It is a
// no-op if the Animator is idle or a tick is already pending.
func (a *Animator) Resume() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	a.resume()
}

func (a *Animator) resume() {
	if a.pending != nil || !a.state.resumable(a.target) {
		return
	}
	a.schedule()
}

// begin starts a new run to target. It must be called with a.mu held.
func (a *Animator) begin(target float64) {
	a.cancel()
	select {
	case <-a.settled:
		a.settled = make(chan struct{})
	default:
	}
	a.state = a.state.retarget(target, uuid.New())
	a.cfg.Log.LogAttrs(context.Background(), slog.LevelDebug, "start run",
		slog.String("run", a.state.Run.String()),
		slog.Float64("from", a.state.From),
		slog.Float64("to", a.state.To),
	)
	a.schedule()
}

// cancel cancels any pending tick and invalidates ticks that have fired
// but not yet been committed. It must be called with a.mu held.
func (a *Animator) cancel() {
	a.gen++
	if a.pending != nil {
		a.pending.Stop()
		a.pending = nil
	}
}

// schedule schedules the next tick of the current run. It must be called
// with a.mu held.
func (a *Animator) schedule() {
	gen := a.gen
	d := delay(a.cfg.Timing, a.cfg.Interval, a.state.progress())
	a.pending = a.cfg.Clock.AfterFunc(d, func() { a.tick(gen) })
}

// tick advances the run started in generation gen by one step.
func (a *Animator) tick(gen uint64) {
	a.emit.Lock()
	defer a.emit.Unlock()

	a.mu.Lock()
	if a.stopped || gen != a.gen {
		a.mu.Unlock()
		return
	}
	a.pending = nil
	next, t := a.state.advance(params{
		steps:   a.cfg.Steps,
		countBy: a.cfg.CountBy,
		format:  a.cfg.Formatter,
	})
	a.state = next
	cfg := a.cfg
	a.mu.Unlock()

	if t.finished {
		cfg.Log.LogAttrs(context.Background(), slog.LevelDebug, "finish run",
			slog.String("run", next.Run.String()),
			slog.Float64("value", next.Value),
			slog.Int("ticks", next.Ticks),
		)
		if cfg.OnFinish != nil {
			cfg.OnFinish(next.To, next.Display)
		}
	}
	if cfg.OnProgress != nil {
		cfg.OnProgress(t.prev, t.next)
	}
	if cfg.OnUpdate != nil {
		cfg.OnUpdate(next)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped || gen != a.gen {
		return
	}
	if !a.state.Dirty {
		a.settle()
		return
	}
	if !a.cfg.HostDriven && a.pending == nil {
		a.schedule()
	}
}

// settle releases Wait callers. It must be called with a.mu held.
func (a *Animator) settle() {
	select {
	case <-a.settled:
	default:
		close(a.settled)
	}
}

// Stop cancels any pending tick. After Stop returns no further ticks
// are committed and calls to Start, SetTarget and Resume are no-ops.
// Stop is idempotent.
func (a *Animator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	a.stopped = true
	a.cancel()
	a.settle()
}

// State returns the current state of the Animator.
func (a *Animator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Target returns the most recently requested target.
func (a *Animator) Target() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.target
}

// Wait blocks until the current run has settled or the context is done.
// It returns ErrStopped if the Animator was stopped during a run.
func (a *Animator) Wait(ctx context.Context) error {
	a.mu.Lock()
	settled := a.settled
	a.mu.Unlock()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-settled:
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.Dirty {
		return ErrStopped
	}
	return nil
}

// Reconfigure replaces the step, timing and formatting parameters used by
// subsequent ticks. Callbacks, the clock, the logger and HostDriven are
// retained from the existing configuration. The displayed value is
// recomputed with the new formatter and published. Reconfigure must not
// be called from a callback.
func (a *Animator) Reconfigure(cfg Config) error {
	a.mu.Lock()
	cfg.OnProgress = a.cfg.OnProgress
	cfg.OnFinish = a.cfg.OnFinish
	cfg.OnUpdate = a.cfg.OnUpdate
	cfg.HostDriven = a.cfg.HostDriven
	cfg.Clock = a.cfg.Clock
	cfg.Log = a.cfg.Log
	cfg, err := cfg.withDefaults()
	if err != nil {
		a.mu.Unlock()
		return err
	}
	a.cfg = cfg
	a.state.Display = cfg.Formatter(a.state.Value)
	state := a.state
	a.mu.Unlock()

	if cfg.OnUpdate != nil {
		a.emit.Lock()
		cfg.OnUpdate(state)
		a.emit.Unlock()
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
