// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package notify

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/google/go-cmp/cmp"

	"github.com/kortschak/countup/counter"
)

type fakeObject struct {
	calls [][]any
	ids   []uint32
	err   error
}

func (o *fakeObject) Call(method string, flags dbus.Flags, args ...any) *dbus.Call {
	o.calls = append(o.calls, append([]any{method}, args...))
	if o.err != nil {
		return &dbus.Call{Err: o.err}
	}
	id := o.ids[0]
	o.ids = o.ids[1:]
	return &dbus.Call{Body: []any{id}}
}

func TestNotifier(t *testing.T) {
	obj := &fakeObject{ids: []uint32{7, 7}}
	n := &Notifier{app: "countup", obj: obj, log: slog.New(slog.DiscardHandler)}
	ctx := context.Background()

	s := counter.State{Value: 90, Display: 90, To: 90, Direction: counter.Up, Ticks: 45}
	for i := 0; i < 2; i++ {
		err := n.Notify(ctx, "score", s)
		if err != nil {
			t.Fatalf("unexpected error notifying: %v", err)
		}
	}
	want := [][]any{
		{method, "countup", uint32(0), "", "score: 90", "counted up from 0 to 90 in 45 ticks", []string{}, map[string]dbus.Variant{}, expire},
		{method, "countup", uint32(7), "", "score: 90", "counted up from 0 to 90 in 45 ticks", []string{}, map[string]dbus.Variant{}, expire},
	}
	if !cmp.Equal(want, obj.calls) {
		t.Errorf("unexpected calls:\n--- want:\n+++ got:\n%s", cmp.Diff(want, obj.calls))
	}

	obj.err = errors.New("no notification daemon")
	err := n.Notify(ctx, "score", s)
	if !errors.Is(err, obj.err) {
		t.Errorf("unexpected error: got:%v want:%v", err, obj.err)
	}

	err = n.Close()
	if err != nil {
		t.Errorf("unexpected error closing notifier: %v", err)
	}
	err = n.Notify(ctx, "score", s)
	if err == nil {
		t.Error("expected error notifying after close")
	}
}
