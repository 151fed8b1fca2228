// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config provides configuration loading, validation and live
// reloading functions.
package config

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/kortschak/countup/config"
	"github.com/kortschak/countup/counter"
	"github.com/kortschak/countup/internal/celext"
)

// Alias the publicly visible types.
type (
	Counter  = config.Counter
	Display  = config.Display
	Duration = config.Duration
)

// Display kinds.
const (
	TextDisplay = config.TextDisplay
	TermDisplay = config.TermDisplay
	DeckDisplay = config.DeckDisplay
)

// Decode decodes a counter configuration from b using the format indicated
// by the extension of name. TOML and YAML are supported.
func Decode(name string, b []byte) (*Counter, error) {
	var (
		cfg Counter
		err error
	)
	switch ext := filepath.Ext(name); ext {
	case ".toml":
		var md toml.MetaData
		md, err = toml.Decode(string(b), &cfg)
		if err == nil {
			if undecoded := md.Undecoded(); len(undecoded) != 0 {
				err = fmt.Errorf("unknown fields: %v", undecoded)
			}
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		err = dec.Decode(&cfg)
		if errors.Is(err, io.EOF) {
			// Treat an empty document as an empty configuration
			// and leave the absence of a value to validation.
			err = nil
		}
	default:
		return nil, fmt.Errorf("unsupported configuration format: %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return &cfg, nil
}

// InvalidError is returned when a configuration does not conform to
// config.Schema.
type InvalidError struct {
	// Paths are the paths of the invalid fields.
	Paths [][]string
	Err   error
}

func (e *InvalidError) Error() string { return e.Err.Error() }
func (e *InvalidError) Unwrap() error { return e.Err }

// Vet validates cfg against config.Schema.
func Vet(cfg *Counter) error {
	paths, err := Validate(config.Schema, cfg)
	if err != nil {
		return &InvalidError{Paths: paths, Err: err}
	}
	return nil
}

// Load reads, decodes and validates the configuration held in the file at
// path, returning the configuration and its semantic hash.
func Load(path string) (*Counter, Sum, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, Sum{}, err
	}
	return unmarshalConfig(path, b)
}

// unmarshalConfig returns a configuration and its semantic hash from the
// provided raw data. Invalid configurations are returned with their hash
// and an *InvalidError.
func unmarshalConfig(name string, b []byte) (*Counter, Sum, error) {
	cfg, err := Decode(name, b)
	if err != nil {
		return nil, Sum{}, err
	}
	sum, err := hash(cfg)
	if err != nil {
		return nil, Sum{}, err
	}
	return cfg, sum, Vet(cfg)
}

func hash(cfg *Counter) (Sum, error) {
	h := sha1.New()
	err := json.NewEncoder(h).Encode(cfg)
	if err != nil {
		return Sum{}, err
	}
	return Sum(h.Sum(nil)), nil
}

// Build returns the counter.Config described by cfg. Callbacks, the clock
// and HostDriven are left for the caller to set.
func Build(cfg *Counter, log *slog.Logger) (counter.Config, error) {
	c := counter.Config{
		Steps:    cfg.Steps,
		CountBy:  cfg.CountBy,
		Interval: time.Duration(cfg.Interval),
		Log:      log,
	}
	switch {
	case cfg.TimingExpr != "":
		fn, err := celext.Timing(cfg.TimingExpr, log)
		if err != nil {
			return c, fmt.Errorf("invalid timing expression: %w", err)
		}
		c.Timing = fn
	case cfg.Timing != "":
		fn, ok := counter.ParseTiming(cfg.Timing)
		if !ok && log != nil {
			log.LogAttrs(context.Background(), slog.LevelWarn, "unknown timing function", slog.String("name", cfg.Timing), slog.String("using", counter.LinearName))
		}
		c.Timing = fn
	}
	if cfg.Formatter != "" {
		fn, err := celext.Formatter(cfg.Formatter, log)
		if err != nil {
			return c, fmt.Errorf("invalid formatter expression: %w", err)
		}
		c.Formatter = fn
	}
	return c, nil
}

// Sum is a comparable SHA-1 sum.
type Sum [sha1.Size]byte

func (s Sum) String() string {
	return hex.EncodeToString(s[:])
}

func (s *Sum) UnmarshalText(text []byte) error {
	if len(text) != hex.EncodedLen(len(s)) {
		return fmt.Errorf("invalid length: %d != %d", len(text), hex.EncodedLen(len(s)))
	}
	_, err := hex.Decode(s[:], text)
	if err != nil {
		return err
	}
	return nil
}

func (s Sum) MarshalText() (text []byte, err error) {
	text = make([]byte, hex.EncodedLen(len(s)))
	hex.Encode(text, s[:])
	return text, nil
}
