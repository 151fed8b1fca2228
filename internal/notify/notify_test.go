// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package notify

import (
	"testing"

	"github.com/kortschak/countup/counter"
)

var textTests = []struct {
	name        string
	state       counter.State
	wantSummary string
	wantBody    string
}{
	{
		name:        "score",
		state:       counter.State{Value: 90, Display: 90, From: 0, To: 90, Direction: counter.Up, Ticks: 45},
		wantSummary: "score: 90",
		wantBody:    "counted up from 0 to 90 in 45 ticks",
	},
	{
		name:        "temp",
		state:       counter.State{Value: -2.5, Display: -3, From: 10, To: -2.5, Direction: counter.Down, Ticks: 5},
		wantSummary: "temp: -3",
		wantBody:    "counted down from 10 to -2.5 in 5 ticks",
	},
	{
		name:        "idle",
		state:       counter.State{Value: 1, Display: 1, From: 1, To: 1},
		wantSummary: "idle: 1",
		wantBody:    "settled from 1 to 1 in 0 ticks",
	},
}

func TestText(t *testing.T) {
	for _, test := range textTests {
		t.Run(test.name, func(t *testing.T) {
			summary, body := Text(test.name, test.state)
			if summary != test.wantSummary {
				t.Errorf("unexpected summary: got:%q want:%q", summary, test.wantSummary)
			}
			if body != test.wantBody {
				t.Errorf("unexpected body: got:%q want:%q", body, test.wantBody)
			}
		})
	}
}
