// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package counter

import (
	"math"
	"testing"
	"time"
)

var timingTests = []struct {
	name     string
	progress float64
	want     time.Duration
}{
	{name: LinearName, progress: 0, want: 14 * time.Millisecond},
	{name: LinearName, progress: 1, want: 14 * time.Millisecond},
	{name: EaseOutName, progress: 0, want: 0},
	{name: EaseOutName, progress: 1, want: 70 * time.Millisecond},
	{name: EaseInName, progress: 0, want: 70 * time.Millisecond},
	{name: EaseInName, progress: 1, want: 0},
	{name: "bounce", progress: 0.5, want: 14 * time.Millisecond},
}

func TestTiming(t *testing.T) {
	for _, test := range timingTests {
		fn := TimingByName(test.name)
		got := fn(14*time.Millisecond, test.progress)
		if got != test.want {
			t.Errorf("unexpected delay for %s at %v: got:%v want:%v", test.name, test.progress, got, test.want)
		}
	}
	if _, ok := ParseTiming("bounce"); ok {
		t.Error("unexpected recognition of unknown timing")
	}
	if _, ok := ParseTiming(EaseOutName); !ok {
		t.Error("failed to recognise ease out timing")
	}
}

func TestDelaySanitised(t *testing.T) {
	var got []float64
	probe := func(interval time.Duration, progress float64) time.Duration {
		got = append(got, progress)
		return -interval
	}
	for _, p := range []float64{math.NaN(), math.Inf(1), -0.5, 2, 0.5} {
		d := delay(probe, time.Second, p)
		if d != 0 {
			t.Errorf("unexpected delay for negative timing result: %v", d)
		}
	}
	want := []float64{0, 0, 0, 1, 0.5}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("unexpected progress passed to timing for input %d: got:%v want:%v", i, got[i], want[i])
		}
	}
}
