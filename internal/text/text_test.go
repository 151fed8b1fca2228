// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package text

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/image/font/basicfont"
)

var numberTests = []struct {
	v    float64
	want string
}{
	{v: 0, want: "0"},
	{v: math.Copysign(0, -1), want: "0"},
	{v: 90, want: "90"},
	{v: -2.5, want: "-2.5"},
	{v: 20.000000000000004, want: "20"},
	{v: 1.0 / 3, want: "0.333333"},
	{v: 1e7, want: "10000000"},
	{v: math.Inf(1), want: "+Inf"},
	{v: math.NaN(), want: "NaN"},
}

func TestNumber(t *testing.T) {
	for _, test := range numberTests {
		got := Number(test.v)
		if got != test.want {
			t.Errorf("unexpected result for %v: got:%q want:%q", test.v, got, test.want)
		}
	}
}

func TestSize(t *testing.T) {
	rows, cols := Size(image.Rect(0, 0, 72, 40), basicfont.Face7x13)
	if rows != 3 || cols != 10 {
		t.Errorf("unexpected size: got:%dx%d want:3x10", rows, cols)
	}
}

var linesTests = []struct {
	name  string
	text  string
	rows  int
	cols  int
	words bool
	want  []string
}{
	{
		name: "fits",
		text: "90", rows: 2, cols: 10,
		want: []string{"90"},
	},
	{
		name: "runes",
		text: "0123456789", rows: 3, cols: 4,
		want: []string{"0123", "4567", "89"},
	},
	{
		name: "words",
		text: "lap count", rows: 3, cols: 6, words: true,
		want: []string{"lap", "count"},
	},
	{
		name: "truncated",
		text: "0123456789abcdef", rows: 2, cols: 5,
		want: []string{"01234", "56..."},
	},
	{
		name: "truncated_words",
		text: "one two three four", rows: 2, cols: 5, words: true,
		want: []string{"one", "tw..."},
	},
	{
		name: "no_space",
		text: "90", rows: 0, cols: 10,
		want: nil,
	},
}

func TestLines(t *testing.T) {
	for _, test := range linesTests {
		t.Run(test.name, func(t *testing.T) {
			got := Lines(test.text, test.rows, test.cols, test.words)
			if !cmp.Equal(test.want, got) {
				t.Errorf("unexpected lines:\n--- want:\n+++ got:\n%s", cmp.Diff(test.want, got))
			}
		})
	}
}

var drawTests = []struct {
	name   string
	text   string
	rect   image.Rectangle
	dx, dy float64
	margin int
}{
	{name: "origin", text: "90", rect: image.Rect(0, 0, 72, 72)},
	{name: "centred", text: "90", rect: image.Rect(0, 0, 72, 72), dx: 0.5, dy: 0.5},
	{name: "bottom_right", text: "-12.5", rect: image.Rect(0, 0, 72, 72), dx: 1, dy: 1},
	{name: "offset_rect", text: "1234", rect: image.Rect(10, 20, 82, 92), dx: 0.5, dy: 0.5},
	{name: "margin", text: "score 100", rect: image.Rect(0, 0, 72, 72), dx: 0.5, dy: 0.9, margin: 4},
}

func TestDraw(t *testing.T) {
	for _, test := range drawTests {
		t.Run(test.name, func(t *testing.T) {
			img := image.NewRGBA(test.rect)
			dst := Shrink{Image: img, Margin: test.margin}
			Draw(dst, test.text, color.White, basicfont.Face7x13, test.dx, test.dy, true)

			ink := inked(img)
			if ink.Empty() {
				t.Fatal("no text drawn")
			}
			if !ink.In(dst.Bounds()) {
				t.Errorf("text drawn outside bounds: %v not in %v", ink, dst.Bounds())
			}
			if test.dx == 0.5 && test.dy == 0.5 {
				b := dst.Bounds()
				left, right := ink.Min.X-b.Min.X, b.Max.X-ink.Max.X
				top, bottom := ink.Min.Y-b.Min.Y, b.Max.Y-ink.Max.Y
				if abs(left-right) > basicfont.Face7x13.Advance || abs(top-bottom) > basicfont.Face7x13.Height {
					t.Errorf("text not centred: ink=%v bounds=%v", ink, b)
				}
			}
		})
	}
}

// inked returns the bounding rectangle of non-transparent pixels in img.
func inked(img *image.RGBA) image.Rectangle {
	var r image.Rectangle
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.RGBAAt(x, y).A == 0 {
				continue
			}
			r = r.Union(image.Rect(x, y, x+1, y+1))
		}
	}
	return r
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

var colorTests = []struct {
	val     string
	want    color.Color
	wantErr bool
}{
	{val: "#ff8000", want: color.RGBA{R: 0xff, G: 0x80, A: 0xff}},
	{val: "#000000", want: color.RGBA{A: 0xff}},
	{val: "hiwhite", want: color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}},
	{val: "#fff", wantErr: true},
	{val: "#gggggg", wantErr: true},
	{val: "mauve", wantErr: true},
}

func TestColor(t *testing.T) {
	for _, test := range colorTests {
		got, err := Color(test.val)
		if (err != nil) != test.wantErr {
			t.Errorf("unexpected error for %q: got:%v want error:%t", test.val, err, test.wantErr)
			continue
		}
		if err == nil && got != test.want {
			t.Errorf("unexpected colour for %q: got:%v want:%v", test.val, got, test.want)
		}
	}
}
