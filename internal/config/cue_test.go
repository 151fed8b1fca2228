// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var vetTests = []struct {
	name      string
	config    *Counter
	wantPaths [][]string
}{
	{
		name:   "minimal",
		config: &Counter{Value: ptr(90.0)},
	},
	{
		name: "complete",
		config: &Counter{
			Name:         "score",
			Value:        ptr(90.0),
			DefaultValue: ptr(0.0),
			Steps:        45,
			CountBy:      2,
			Interval:     Duration(14 * time.Millisecond),
			Timing:       "easeOut",
			TimingExpr:   "interval",
			Formatter:    "round(value)",
			Persist:      ptr(false),
			Notify:       true,
			LogLevel:     ptr(slog.LevelDebug),
			Display: &Display{
				Kind:   "deck",
				PID:    0x0080,
				Serial: "CL01",
				Row:    1,
				Col:    2,
				FG:     "#ffffff",
				BG:     "#000000",
			},
		},
	},
	{
		// An unknown timing name is valid and is treated
		// as linear when the counter is built.
		name:   "unknown_timing",
		config: &Counter{Value: ptr(1.0), Timing: "bounce"},
	},
	{
		name:      "missing_value",
		config:    &Counter{Steps: 10},
		wantPaths: [][]string{{"value"}},
	},
	{
		name:      "negative_steps",
		config:    &Counter{Value: ptr(1.0), Steps: -1},
		wantPaths: [][]string{{"steps"}},
	},
	{
		name:      "negative_interval",
		config:    &Counter{Value: ptr(1.0), Interval: Duration(-time.Second)},
		wantPaths: [][]string{{"interval"}},
	},
	{
		name:      "invalid_name",
		config:    &Counter{Name: "my counter", Value: ptr(1.0)},
		wantPaths: [][]string{{"name"}},
	},
	{
		name:      "invalid_log_level",
		config:    &Counter{Value: ptr(1.0), LogLevel: ptr(slog.Level(2))},
		wantPaths: [][]string{{"log_level"}},
	},
	{
		name:      "invalid_display_kind",
		config:    &Counter{Value: ptr(1.0), Display: &Display{Kind: "lcd"}},
		wantPaths: [][]string{{"display", "kind"}},
	},
	{
		name:   "named_colours",
		config: &Counter{Value: ptr(1.0), Display: &Display{Kind: "term", FG: "hiyellow", BG: "blue"}},
	},
	{
		name:      "invalid_colour",
		config:    &Counter{Value: ptr(1.0), Display: &Display{FG: "mauve"}},
		wantPaths: [][]string{{"display", "fg"}},
	},
	{
		name:      "negative_row",
		config:    &Counter{Value: ptr(1.0), Display: &Display{Kind: "deck", Row: -1}},
		wantPaths: [][]string{{"display", "row"}},
	},
	{
		name:   "multiple",
		config: &Counter{Value: ptr(1.0), Steps: -1, Display: &Display{BG: "#12345"}},
		wantPaths: [][]string{
			{"display", "bg"},
			{"steps"},
		},
	},
}

func TestVet(t *testing.T) {
	for _, test := range vetTests {
		t.Run(test.name, func(t *testing.T) {
			err := Vet(test.config)
			if (err != nil) != (test.wantPaths != nil) {
				t.Fatalf("unexpected error: %v", err)
			}
			if err == nil {
				return
			}
			var invalid *InvalidError
			if !errors.As(err, &invalid) {
				t.Fatalf("unexpected error type: %T", err)
			}
			if !cmp.Equal(test.wantPaths, invalid.Paths) {
				t.Errorf("unexpected paths:\n--- want:\n+++ got:\n%s", cmp.Diff(test.wantPaths, invalid.Paths))
			}
		})
	}
}

var uniqueTests = []struct {
	paths [][]string
	want  [][]string
}{
	{
		paths: nil,
		want:  nil,
	},
	{
		paths: [][]string{{"value"}},
		want:  [][]string{{"value"}},
	},
	{
		paths: [][]string{{"value"}, {"display", "fg"}, {"value"}, {"display"}},
		want:  [][]string{{"display"}, {"display", "fg"}, {"value"}},
	},
}

func TestUnique(t *testing.T) {
	for _, test := range uniqueTests {
		got := unique(test.paths)
		if !cmp.Equal(test.want, got) {
			t.Errorf("unexpected result:\n--- want:\n+++ got:\n%s", cmp.Diff(test.want, got))
		}
	}
}
