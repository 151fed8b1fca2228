// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config provides countup configuration types and schemas.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kortschak/ardilla"
)

// Counter is a complete counter configuration.
type Counter struct {
	// Name identifies the counter for persistence and logging.
	// The default name is DefaultName.
	Name string `json:"name,omitempty" toml:"name" yaml:"name"`
	// Value is the target value of the counter.
	Value *float64 `json:"value" toml:"value" yaml:"value"`
	// DefaultValue is the initial value of the counter. If it is
	// nil the persisted value is used if present, otherwise the
	// counter starts at Value.
	DefaultValue *float64 `json:"default_value,omitempty" toml:"default_value" yaml:"default_value"`

	Steps    float64  `json:"steps,omitempty" toml:"steps" yaml:"steps"`
	CountBy  float64  `json:"count_by,omitempty" toml:"count_by" yaml:"count_by"`
	Interval Duration `json:"interval,omitempty" toml:"interval" yaml:"interval"`
	// Timing is the name of a built-in timing function.
	// Unknown names are treated as "linear".
	Timing string `json:"timing,omitempty" toml:"timing" yaml:"timing"`
	// TimingExpr is a CEL expression computing the delay before
	// a tick in milliseconds from the interval in milliseconds and
	// the progress of the run. It takes precedence over Timing.
	TimingExpr string `json:"timing_expr,omitempty" toml:"timing_expr" yaml:"timing_expr"`
	// Formatter is a CEL expression mapping value to the
	// displayed value.
	Formatter string `json:"formatter,omitempty" toml:"formatter" yaml:"formatter"`

	// Persist indicates that settled values should be stored
	// and used as the initial value on restart. The default
	// is true.
	Persist *bool `json:"persist,omitempty" toml:"persist" yaml:"persist"`
	// Notify indicates that a desktop notification should be
	// sent when a run finishes.
	Notify   bool        `json:"notify,omitempty" toml:"notify" yaml:"notify"`
	LogLevel *slog.Level `json:"log_level,omitempty" toml:"log_level" yaml:"log_level"`

	Display *Display `json:"display,omitempty" toml:"display" yaml:"display"`
}

// DefaultName is the name used for counters without a configured name.
const DefaultName = "counter"

// CounterName returns the configured name of the counter or DefaultName.
func (c *Counter) CounterName() string {
	if c == nil || c.Name == "" {
		return DefaultName
	}
	return c.Name
}

// PersistValues returns whether settled values should be persisted.
func (c *Counter) PersistValues() bool {
	return c != nil && (c.Persist == nil || *c.Persist)
}

// Display is the rendering configuration for a counter.
type Display struct {
	// Kind is the display sink: "text", "term" or "deck".
	Kind string `json:"kind,omitempty" toml:"kind" yaml:"kind"`
	// PID is the product ID of the Stream Deck device.
	// Zero is the first available device.
	PID ardilla.PID `json:"pid,omitempty" toml:"pid" yaml:"pid"`
	// Serial is the Stream Deck serial number.
	Serial string `json:"serial,omitempty" toml:"serial" yaml:"serial"`
	// Row and Col are the position of the key showing the
	// counter on a Stream Deck.
	Row int `json:"row,omitempty" toml:"row" yaml:"row"`
	Col int `json:"col,omitempty" toml:"col" yaml:"col"`
	// FG and BG are the foreground and background colours
	// of the counter as #rrggbb web colours or ANSI colour
	// names.
	FG string `json:"fg,omitempty" toml:"fg" yaml:"fg"`
	BG string `json:"bg,omitempty" toml:"bg" yaml:"bg"`
}

// Display kinds.
const (
	TextDisplay = "text"
	TermDisplay = "term"
	DeckDisplay = "deck"
)

// DisplayKind returns the configured display kind or TextDisplay.
func (c *Counter) DisplayKind() string {
	if c == nil || c.Display == nil || c.Display.Kind == "" {
		return TextDisplay
	}
	return c.Display.Kind
}

// Duration is a time.Duration that is represented in configuration
// files as a duration string.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	*d = Duration(v)
	return nil
}

// Schema is the schema for a valid configuration.
const Schema = `
{
	name?:          =~"^[A-Za-z0-9_.-]+$"
	value:          number
	default_value?: number
	steps?:         >=0
	count_by?:      number
	interval?:      _#duration
	timing?:        string
	timing_expr?:   string
	formatter?:     string
	persist?:       bool
	notify?:        bool
	log_level?:     _#log_level
	display?:       _#display
}

_#display: {
	kind:    *"text" | "term" | "deck"
	pid?:    uint16
	serial?: string
	row?:    uint
	col?:    uint
	fg?:     _#color
	bg?:     _#color
}

_#duration:  =~"^(?:[0-9]+(?:\\.[0-9]*)?(?:ns|us|µs|ms|s|m|h))+$"
_#color: =~"^#[0-9a-fA-F]{6}$" | "black" | "red" | "green" | "yellow" | "blue" | "magenta" | "cyan" | "white" |
	"hiblack" | "hired" | "higreen" | "hiyellow" | "hiblue" | "himagenta" | "hicyan" | "hiwhite"
_#log_level: =~"(?i)^(?:debug|info|warn|error)$"
`
