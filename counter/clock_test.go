// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package counter

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestVirtualClock(t *testing.T) {
	var (
		clock VirtualClock
		got   []string
	)
	record := func(s string) func() {
		return func() { got = append(got, s) }
	}
	clock.AfterFunc(20*time.Millisecond, record("c"))
	clock.AfterFunc(10*time.Millisecond, record("a"))
	clock.AfterFunc(10*time.Millisecond, record("b"))
	stopped := clock.AfterFunc(15*time.Millisecond, record("x"))
	clock.AfterFunc(-time.Second, func() {
		got = append(got, "now")
		clock.AfterFunc(5*time.Millisecond, record("nested"))
	})

	if !stopped.Stop() {
		t.Error("expected stop of pending timer to succeed")
	}
	if stopped.Stop() {
		t.Error("unexpected success stopping stopped timer")
	}
	if n := clock.Pending(); n != 4 {
		t.Errorf("unexpected pending count: got:%d want:4", n)
	}

	clock.Advance(12 * time.Millisecond)
	if want := []string{"now", "nested", "a", "b"}; !cmp.Equal(got, want) {
		t.Errorf("unexpected call order: got:%v want:%v", got, want)
	}
	if now := clock.Now(); now != 12*time.Millisecond {
		t.Errorf("unexpected time: got:%v want:12ms", now)
	}

	if n := clock.Run(0); n != 1 {
		t.Errorf("unexpected number of calls: got:%d want:1", n)
	}
	if now := clock.Now(); now != 20*time.Millisecond {
		t.Errorf("unexpected time: got:%v want:20ms", now)
	}
	if clock.Step() {
		t.Error("unexpected step with no pending calls")
	}
}
