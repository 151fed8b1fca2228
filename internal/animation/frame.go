// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package animation

import (
	"image"
	"image/color"
	"sync"

	"github.com/kortschak/ardilla"
	"golang.org/x/image/draw"
	"golang.org/x/image/font/basicfont"

	"github.com/kortschak/countup/internal/text"
)

// Palette indexes of the background and foreground colours used by a
// Renderer.
const (
	Background = 0
	Foreground = 1
)

// Renderer renders counter values to images.
type Renderer struct {
	bounds image.Rectangle
	pal    color.Palette
	label  string
}

// NewRenderer returns a Renderer that renders display values within bounds
// in the fg colour on a bg background. If label is not empty it is drawn
// below the value.
func NewRenderer(bounds image.Rectangle, fg, bg color.Color, label string) *Renderer {
	return &Renderer{
		bounds: bounds,
		pal:    color.Palette{Background: bg, Foreground: fg},
		label:  label,
	}
}

// Bounds returns the bounds of rendered frames.
func (r *Renderer) Bounds() image.Rectangle { return r.bounds }

// Palette returns the palette of rendered frames.
func (r *Renderer) Palette() color.Palette { return r.pal }

// Key returns the text rendered for the display value. Display values with
// the same key render identical frames.
func (r *Renderer) Key(display float64) string {
	return text.Number(display)
}

// Frame returns an image of the display value.
func (r *Renderer) Frame(display float64) *image.Paletted {
	fnt := basicfont.Face7x13
	dst := image.NewPaletted(r.bounds, r.pal)
	draw.Draw(dst, dst.Bounds(), &image.Uniform{r.pal[Background]}, image.Point{}, draw.Src)

	value := r.bounds
	if r.label != "" {
		// Reserve a single line at the bottom for the label.
		split := value.Max.Y - fnt.Height - 2
		if split > value.Min.Y+fnt.Height {
			label := value
			label.Min.Y = split
			value.Max.Y = split
			text.Draw(text.Shrink{Image: dst.SubImage(label).(*image.Paletted), Margin: 1}, r.label, r.pal[Foreground], fnt, 0.5, 0.5, false)
		}
	}
	text.Draw(text.Shrink{Image: dst.SubImage(value).(*image.Paletted), Margin: 1}, r.Key(display), r.pal[Foreground], fnt, 0.5, 0.5, false)
	return dst
}

// Cache is an ardilla.RawImage cache of rendered frames keyed by their
// display text. A nil *Cache is valid and does not cache.
type Cache struct {
	miss func(image.Image) (*ardilla.RawImage, error)
	max  int

	mu    sync.Mutex
	cache map[string]*ardilla.RawImage
}

// RawImager wraps the RawImage method.
type RawImager interface {
	RawImage(img image.Image) (*ardilla.RawImage, error)
}

// NewCache returns a frame cache holding up to max raw images converted
// by deck. If max is less than one, the cache is unbounded.
func NewCache(deck RawImager, max int) *Cache {
	return &Cache{
		miss:  deck.RawImage,
		max:   max,
		cache: make(map[string]*ardilla.RawImage),
	}
}

// Get returns the cached image for key. If the key is not held, render is
// called and its result is converted to the device format and cached.
func (c *Cache) Get(key string, render func() image.Image) (image.Image, error) {
	if c == nil {
		return render(), nil
	}
	c.mu.Lock()
	r, ok := c.cache[key]
	c.mu.Unlock()
	if ok {
		return r, nil
	}
	r, err := c.miss(render())
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.max > 0 && len(c.cache) >= c.max {
		// Drop the working set.
		clear(c.cache)
	}
	c.cache[key] = r
	c.mu.Unlock()
	return r, nil
}

// Len returns the number of cached frames.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}
