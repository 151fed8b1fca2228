// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package counter

import (
	"math"
	"time"
)

// Timing returns the delay before the next tick given the base interval
// and the fraction of the current run that has been completed.
type Timing func(interval time.Duration, progress float64) time.Duration

const halfPi = math.Pi / 2

// Linear is a constant delay timing.
func Linear(interval time.Duration, _ float64) time.Duration {
	return interval
}

// EaseOut slows the run down as it progresses. The delay at the start of
// a run is zero and at the end is five times the interval.
func EaseOut(interval time.Duration, progress float64) time.Duration {
	return scale(interval, math.Sin(halfPi*progress)*5)
}

// EaseIn speeds the run up as it progresses. The delay at the start of
// a run is five times the interval and at the end is zero.
func EaseIn(interval time.Duration, progress float64) time.Duration {
	return scale(interval, math.Sin(halfPi-halfPi*progress)*5)
}

func scale(d time.Duration, f float64) time.Duration {
	return time.Duration(math.Round(float64(d) * f))
}

// Timing names recognised by ParseTiming.
const (
	LinearName  = "linear"
	EaseOutName = "easeOut"
	EaseInName  = "easeIn"
)

var timings = map[string]Timing{
	LinearName:  Linear,
	EaseOutName: EaseOut,
	EaseInName:  EaseIn,
}

// ParseTiming returns the named timing function and whether the name
// was recognised. Unrecognised names return Linear.
func ParseTiming(name string) (Timing, bool) {
	fn, ok := timings[name]
	if !ok {
		return Linear, false
	}
	return fn, true
}

// TimingByName returns the named timing function, falling back to Linear.
func TimingByName(name string) Timing {
	fn, _ := ParseTiming(name)
	return fn
}

// delay returns the sanitised delay for the given progress. Progress
// that is not finite is treated as zero and is clamped to [0, 1]. A
// negative result is treated as zero.
func delay(fn Timing, interval time.Duration, progress float64) time.Duration {
	switch {
	case math.IsNaN(progress), math.IsInf(progress, 0):
		progress = 0
	case progress < 0:
		progress = 0
	case progress > 1:
		progress = 1
	}
	d := fn(interval, progress)
	if d < 0 {
		return 0
	}
	return d
}
