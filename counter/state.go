// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package counter

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Direction is the direction of travel of a run.
type Direction int8

const (
	Unknown Direction = iota // No run has ticked.
	Up
	Down
)

func (d Direction) String() string {
	switch d {
	case Unknown:
		return "unknown"
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return fmt.Sprintf("Direction(%d)", int8(d))
	}
}

func (d Direction) MarshalText() ([]byte, error) {
	switch d {
	case Unknown, Up, Down:
		return []byte(d.String()), nil
	default:
		return nil, fmt.Errorf("invalid direction: %d", int8(d))
	}
}

func (d *Direction) UnmarshalText(text []byte) error {
	switch string(text) {
	case "unknown":
		*d = Unknown
	case "up":
		*d = Up
	case "down":
		*d = Down
	default:
		return fmt.Errorf("invalid direction: %q", text)
	}
	return nil
}

// State is the state of an Animator.
type State struct {
	// Value is the value reached by the animation.
	Value float64 `json:"value"`
	// Display is the formatted Value.
	Display float64 `json:"display"`
	// From and To are the bounds of the current run.
	From float64 `json:"from"`
	To   float64 `json:"to"`
	// Direction is the direction of the most recent tick.
	Direction Direction `json:"direction"`
	// Dirty is true while a run is in progress.
	Dirty bool `json:"dirty"`
	// Ticks is the number of ticks committed in the current run.
	Ticks int `json:"ticks"`
	// Run identifies the current run. It is the zero UUID
	// before the first run.
	Run uuid.UUID `json:"run"`
}

// tolerance is the fraction of a run's span within which a candidate
// value is considered to have reached the end of the run. It absorbs
// accumulated rounding when the span is not an exact multiple of the
// step.
const tolerance = 1e-9

// idle returns an idle state at v.
func idle(v float64, format func(float64) float64) State {
	return State{
		Value:   v,
		Display: format(v),
		From:    v,
		To:      v,
	}
}

// retarget returns the state starting a new run from the current value
// to target.
func (s State) retarget(target float64, run uuid.UUID) State {
	s.From = s.Value
	s.To = target
	s.Dirty = true
	s.Ticks = 0
	s.Run = run
	return s
}

// progress returns the fraction of the current run that has been
// completed. It is NaN when the run has zero span.
func (s State) progress() float64 {
	return (s.Value - s.From) / (s.To - s.From)
}

// resumable returns whether a dirty run still needs steps to reach target
// given the direction of its last tick.
func (s State) resumable(target float64) bool {
	if !s.Dirty {
		return false
	}
	switch s.Direction {
	case Up:
		return s.Value <= target
	case Down:
		return s.Value >= target
	default:
		return false
	}
}

// params are the per-tick parameters of an Animator.
type params struct {
	steps   float64
	countBy float64
	format  func(float64) float64
}

// tick is the outcome of a single advance.
type tick struct {
	prev, next float64
	finished   bool
}

// advance returns the state after one tick of the current run.
func (s State) advance(p params) (State, tick) {
	span := s.To - s.From
	step := span / p.steps
	if p.countBy != 0 {
		step = sign(step) * math.Abs(p.countBy)
	}

	prev := s.Value
	candidate := s.Value + step
	if step > 0 {
		s.Direction = Up
	} else {
		s.Direction = Down
	}
	if reached(s.Direction, step, candidate, s.To, span) {
		candidate = s.To
		s.Dirty = false
	}

	s.Value = candidate
	s.Display = p.format(candidate)
	s.Ticks++
	return s, tick{prev: prev, next: candidate, finished: !s.Dirty}
}

// reached returns whether candidate has reached or passed the end of the
// run. A zero or non-finite step can never converge, so it is treated as
// having reached the end.
func reached(dir Direction, step, candidate, to, span float64) bool {
	if step == 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return true
	}
	tol := tolerance * math.Abs(span)
	if dir == Up {
		return candidate >= to-tol
	}
	return candidate <= to+tol
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
