// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package animation

import (
	"fmt"
	"image"
	"image/gif"
	"io"
	"time"

	"github.com/kortschak/countup/counter"
)

// MaxFrames is the maximum number of ticks rendered by RunGIF.
const MaxFrames = 10000

// frame is a rendered display value and the clock time it was committed.
type frame struct {
	display float64
	at      time.Duration
}

// RunGIF returns an animated GIF of a counter run from initial to target
// using the step, timing and formatting parameters in cfg. The run is
// simulated on a counter.VirtualClock so the frame delays follow the
// timing function without waiting in real time. The final frame is held
// for the hold duration. Consecutive ticks that display the same value
// are merged into a single frame.
//
// Callbacks in cfg are called as they would be for a live run.
func RunGIF(initial, target float64, cfg counter.Config, r *Renderer, hold time.Duration) (*gif.GIF, error) {
	clock := &counter.VirtualClock{}
	var frames []frame
	onUpdate := cfg.OnUpdate
	cfg.OnUpdate = func(s counter.State) {
		if onUpdate != nil {
			onUpdate(s)
		}
		if n := len(frames); n != 0 && r.Key(frames[n-1].display) == r.Key(s.Display) {
			return
		}
		frames = append(frames, frame{display: s.Display, at: clock.Now()})
	}
	cfg.Clock = clock
	cfg.HostDriven = false
	a, err := counter.New(initial, cfg)
	if err != nil {
		return nil, err
	}
	defer a.Stop()

	frames = append(frames, frame{display: a.State().Display})
	a.Start(target)
	clock.Run(MaxFrames)
	if clock.Pending() != 0 {
		return nil, fmt.Errorf("run exceeds %d frames", MaxFrames)
	}
	end := clock.Now()

	g := &gif.GIF{
		Image: make([]*image.Paletted, 0, len(frames)),
		Delay: make([]int, 0, len(frames)),
		Config: image.Config{
			ColorModel: r.Palette(),
			Width:      r.Bounds().Dx(),
			Height:     r.Bounds().Dy(),
		},
		BackgroundIndex: Background,
		LoopCount:       -1,
	}
	for i, f := range frames {
		next := end + hold
		if i+1 < len(frames) {
			next = frames[i+1].at
		}
		g.Image = append(g.Image, r.Frame(f.display))
		g.Delay = append(g.Delay, centiseconds(next)-centiseconds(f.at))
	}
	return g, nil
}

// centiseconds returns d in GIF delay units, rounded to the nearest unit.
// Delays are computed from differences between rounded absolute times so
// that rounding error does not accumulate over a run.
func centiseconds(d time.Duration) int {
	return int((d + 5*time.Millisecond) / (10 * time.Millisecond))
}

// WriteRunGIF writes the GIF returned by RunGIF to w.
func WriteRunGIF(w io.Writer, initial, target float64, cfg counter.Config, r *Renderer, hold time.Duration) error {
	g, err := RunGIF(initial, target, cfg, r, hold)
	if err != nil {
		return err
	}
	return gif.EncodeAll(w, g)
}
