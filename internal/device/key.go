// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package device provides a counter display on an El Gato Stream Deck key.
package device

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"sync"

	"github.com/kortschak/ardilla"

	"github.com/kortschak/countup/counter"
	"github.com/kortschak/countup/internal/animation"
)

// cacheSize is the number of raw key frames held by a Key.
const cacheSize = 256

// Deck is the set of Stream Deck operations used by a Key. It is satisfied
// by [ardilla.Deck].
type Deck interface {
	Layout() (rows, cols int)
	Bounds() (image.Rectangle, error)
	RawImage(img image.Image) (*ardilla.RawImage, error)
	SetImage(row, col int, img image.Image) error
	Reset() error
	Close() error
}

// Key is a counter display on a single Stream Deck key.
type Key struct {
	mu       sync.Mutex
	deck     Deck
	row, col int
	render   *animation.Renderer
	cache    *animation.Cache
	shown    string
	closed   bool

	log *slog.Logger
}

// Open opens the Stream Deck identified by pid and serial and returns a Key
// displaying counter values at row and col. The pid and serial parameters
// are interpreted according to the documentation for [ardilla.NewDeck].
func Open(pid ardilla.PID, serial string, row, col int, fg, bg color.Color, label string, log *slog.Logger) (*Key, error) {
	deck, err := ardilla.NewDeck(pid, serial)
	if err != nil {
		return nil, err
	}
	if serial == "" {
		serial, err = deck.Serial()
		if err != nil {
			deck.Close()
			return nil, err
		}
	}
	log = log.With(slog.String("serial", serial))
	k, err := NewKey(deck, row, col, fg, bg, label, log)
	if err != nil {
		deck.Close()
		return nil, err
	}
	return k, nil
}

// NewKey returns a Key displaying counter values on the provided deck at
// row and col.
func NewKey(deck Deck, row, col int, fg, bg color.Color, label string, log *slog.Logger) (*Key, error) {
	rows, cols := deck.Layout()
	if row < 0 || rows <= row || col < 0 || cols <= col {
		return nil, fmt.Errorf("key out of bounds: row=%d col=%d layout=%dx%d", row, col, rows, cols)
	}
	bounds, err := deck.Bounds()
	if err != nil {
		return nil, err
	}
	return &Key{
		deck:   deck,
		row:    row,
		col:    col,
		render: animation.NewRenderer(bounds, fg, bg, label),
		cache:  animation.NewCache(deck, cacheSize),
		log:    log.With(slog.String("component", "device")),
	}, nil
}

// Update draws the display value of s to the key. Updates that would not
// change the drawn image are ignored.
func (k *Key) Update(s counter.State) {
	ctx := context.Background()
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return
	}
	key := k.render.Key(s.Display)
	if key == k.shown {
		return
	}
	img, err := k.cache.Get(key, func() image.Image { return k.render.Frame(s.Display) })
	if err != nil {
		k.log.LogAttrs(ctx, slog.LevelError, "make raw image", slog.Int("row", k.row), slog.Int("col", k.col), slog.Any("error", err))
		return
	}
	err = k.deck.SetImage(k.row, k.col, img)
	if err != nil {
		k.log.LogAttrs(ctx, slog.LevelError, "set image", slog.Int("row", k.row), slog.Int("col", k.col), slog.Any("error", err))
		return
	}
	k.shown = key
}

// Close resets and closes the device.
func (k *Key) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true
	k.deck.Reset()
	return k.deck.Close()
}
