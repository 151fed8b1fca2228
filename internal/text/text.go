// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package text provides functions for rendering counter values and labels
// with [basicfont.Face] fonts.
package text

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"
	"strings"

	"github.com/bbrks/wrap/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Number returns the text presentation of a displayed counter value.
// Values are rounded to six decimal places so that accumulated step
// error is not shown.
func Number(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	r := math.Round(v*1e6) / 1e6
	if r == 0 {
		// Avoid presenting -0.
		r = 0
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

// Size returns the size, in font rows and columns, of the bounding rectangle.
func Size(bound image.Rectangle, fnt *basicfont.Face) (rows, cols int) {
	rows = bound.Dy() / fnt.Height
	cols = bound.Dx() / fnt.Advance
	return rows, cols
}

// Lines lays out text in at most rows lines of at most cols columns. If
// words is true, text spanning lines is broken at word boundaries where
// possible. Text that does not fit is truncated with an ellipsis.
func Lines(text string, rows, cols int, words bool) []string {
	if rows < 1 || cols < 1 {
		return nil
	}
	var lines []string
	if words {
		wrapper := wrap.NewWrapper()
		wrapper.StripTrailingNewline = true
		wrapper.CutLongWords = true
		lines = strings.Split(wrapper.Wrap(text, cols), "\n")
		for i, l := range lines {
			lines[i] = strings.TrimSpace(l)
		}
	} else {
		t := []rune(text)
		for len(t) != 0 {
			n := min(cols, len(t))
			lines = append(lines, string(t[:n]))
			t = t[n:]
		}
	}

	if len(lines) > rows {
		lines = lines[:rows]
		last := []rune(lines[rows-1])
		if n := cols - len("..."); len(last) > n {
			last = last[:max(n, 0)]
		}
		lines[rows-1] = string(last) + "..."
	}
	return lines
}

// Draw draws the provided text to the destination in the provided color.
// Relative position of the text is specified by dx and dy which must be
// in the range [0, 1]. If words is true, text spanning lines will be broken
// at word boundaries where possible.
func Draw(dst draw.Image, text string, col color.Color, fnt *basicfont.Face, dx, dy float64, words bool) {
	rows, cols := Size(dst.Bounds(), fnt)
	lines := Lines(text, rows, cols, words)
	if len(lines) == 0 {
		return
	}

	if dx != 0 || dy != 0 {
		mp := newBounds(dst)
		min := dst.Bounds().Min
		for i, l := range lines {
			mp.drawString(l, fnt, fixed.P(min.X, min.Y+fnt.Ascent+fnt.Height*i))
		}
		dst = mp.offset(dst, dx, dy)
	}
	fg := &image.Uniform{col}
	min := dst.Bounds().Min
	for i, l := range lines {
		drawer := font.Drawer{
			Dst:  dst,
			Src:  fg,
			Face: fnt,
			Dot:  fixed.P(min.X, min.Y+fnt.Ascent+fnt.Height*i),
		}
		drawer.DrawString(l)
	}
}

// Shrink reduces the bounds of an Image by a margin.
type Shrink struct {
	draw.Image

	// Margin is the margin size in pixels.
	Margin int
}

func (s Shrink) Bounds() image.Rectangle {
	b := s.Image.Bounds()
	b.Min = b.Min.Add(image.Point{X: s.Margin, Y: s.Margin})
	b.Max = b.Max.Sub(image.Point{X: s.Margin, Y: s.Margin})
	return b
}

// bounds is the rectangle covered by drawn glyphs.
type bounds image.Rectangle

func newBounds(dst draw.Image) *bounds {
	b := bounds(image.Rectangle{Min: dst.Bounds().Max, Max: dst.Bounds().Min})
	return &b
}

func (b *bounds) drawString(s string, fnt font.Face, dot fixed.Point26_6) {
	prevC := rune(-1)
	for _, c := range s {
		if prevC >= 0 {
			dot.X += fnt.Kern(prevC, c)
		}
		dr, _, _, advance, ok := fnt.Glyph(dot, c)
		if !ok {
			continue
		}
		b.set(dr.Min.X, dr.Min.Y)
		b.set(dr.Max.X, dr.Max.Y)
		dot.X += advance
		prevC = c
	}
}

func (b *bounds) set(x, y int) {
	b.Min.X = min(b.Min.X, x)
	b.Min.Y = min(b.Min.Y, y)
	b.Max.X = max(b.Max.X, x)
	b.Max.Y = max(b.Max.Y, y)
}

// offset returns img shifted so that the glyph bounds sit at the relative
// position (dx, dy) in the space left between the glyphs and the image
// edges.
func (b *bounds) offset(img draw.Image, dx, dy float64) draw.Image {
	ib := img.Bounds()
	free := image.Point{
		X: ib.Dx() - (b.Max.X - b.Min.X),
		Y: ib.Dy() - (b.Max.Y - b.Min.Y),
	}
	want := image.Point{X: ib.Min.X + int(float64(free.X)*dx), Y: ib.Min.Y + int(float64(free.Y)*dy)}
	return offset{Image: img, offset: want.Sub(b.Min)}
}

type offset struct {
	draw.Image
	offset image.Point
}

func (o offset) Set(x, y int, c color.Color) {
	o.Image.Set(x+o.offset.X, y+o.offset.Y, c)
}

func (o offset) At(x, y int) color.Color {
	return o.Image.At(x+o.offset.X, y+o.offset.Y)
}

// Color returns the colour described by val. Colours are either #rrggbb
// web colours or ANSI colour names.
func Color(val string) (color.Color, error) {
	if strings.HasPrefix(val, "#") {
		return webColor(val)
	}
	col, ok := ansiColor[val]
	if !ok {
		return nil, fmt.Errorf("invalid color name: %s", val)
	}
	return col, nil
}

var ansiColor = map[string]color.RGBA{
	"black":     {R: 0x00, G: 0x00, B: 0x00, A: 0xff},
	"red":       {R: 0x80, G: 0x00, B: 0x00, A: 0xff},
	"green":     {R: 0x00, G: 0x80, B: 0x00, A: 0xff},
	"yellow":    {R: 0x80, G: 0x80, B: 0x00, A: 0xff},
	"blue":      {R: 0x00, G: 0x00, B: 0x80, A: 0xff},
	"magenta":   {R: 0x80, G: 0x00, B: 0x80, A: 0xff},
	"cyan":      {R: 0x00, G: 0x80, B: 0x80, A: 0xff},
	"white":     {R: 0xc0, G: 0xc0, B: 0xc0, A: 0xff},
	"hiblack":   {R: 0x80, G: 0x80, B: 0x80, A: 0xff},
	"hired":     {R: 0xff, G: 0x00, B: 0x00, A: 0xff},
	"higreen":   {R: 0x00, G: 0xff, B: 0x00, A: 0xff},
	"hiyellow":  {R: 0xff, G: 0xff, B: 0x00, A: 0xff},
	"hiblue":    {R: 0x00, G: 0x00, B: 0xff, A: 0xff},
	"himagenta": {R: 0xff, G: 0x00, B: 0xff, A: 0xff},
	"hicyan":    {R: 0x00, G: 0xff, B: 0xff, A: 0xff},
	"hiwhite":   {R: 0xff, G: 0xff, B: 0xff, A: 0xff},
}

func webColor(val string) (color.Color, error) {
	hex, ok := strings.CutPrefix(val, "#")
	if !ok || len(hex) != 6 {
		return nil, fmt.Errorf("invalid web color: %s", val)
	}
	c, err := strconv.ParseUint(hex, 16, 24)
	if err != nil {
		return nil, fmt.Errorf("invalid web color: %s: %w", val, err)
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(c))
	return color.RGBA{R: b[1], G: b[2], B: b[3], A: 0xff}, nil
}
