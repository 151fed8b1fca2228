// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package term provides a counter display on a terminal screen.
package term

import (
	"context"
	"image/color"
	"log/slog"
	"sync"

	"github.com/gdamore/tcell/v2"

	"github.com/kortschak/countup/counter"
	"github.com/kortschak/countup/internal/text"
)

// Screen is a counter display that shows the current value centred on a
// terminal screen.
type Screen struct {
	mu     sync.Mutex
	screen tcell.Screen
	style  tcell.Style
	label  string
	shown  string
	closed bool

	log *slog.Logger
}

// Open returns a Screen displaying on the controlling terminal.
func Open(fg, bg color.Color, label string, log *slog.Logger) (*Screen, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	return New(screen, fg, bg, label, log)
}

// New initialises screen and returns a Screen displaying on it.
func New(screen tcell.Screen, fg, bg color.Color, label string, log *slog.Logger) (*Screen, error) {
	err := screen.Init()
	if err != nil {
		return nil, err
	}
	style := tcell.StyleDefault.Foreground(tcell.FromImageColor(fg)).Background(tcell.FromImageColor(bg))
	screen.SetStyle(style)
	screen.HideCursor()
	screen.Clear()
	return &Screen{
		screen: screen,
		style:  style,
		label:  label,
		log:    log.With(slog.String("component", "term")),
	}, nil
}

// Update draws the display value of s.
func (s *Screen) Update(st counter.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.shown = text.Number(st.Display)
	s.draw()
}

// draw renders the current value. It must be called with s.mu held.
func (s *Screen) draw() {
	s.screen.Clear()
	w, h := s.screen.Size()
	mid := h / 2
	s.centre(s.shown, w, mid)
	if s.label != "" && mid+1 < h {
		s.centre(s.label, w, mid+1)
	}
	s.screen.Show()
}

func (s *Screen) centre(str string, w, y int) {
	r := []rune(str)
	x := max((w-len(r))/2, 0)
	for i, c := range r {
		if x+i >= w {
			break
		}
		s.screen.SetContent(x+i, y, c, nil, s.style)
	}
}

// Run handles terminal events until the Screen is closed or ctx is
// cancelled. The screen is redrawn when the terminal is resized, and quit
// is called when the user presses Ctrl-C, Escape or q.
func (s *Screen) Run(ctx context.Context, quit func()) {
	events := make(chan tcell.Event)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			ev := s.screen.PollEvent()
			if ev == nil {
				close(events)
				return
			}
			select {
			case events <- ev:
			case <-done:
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev := ev.(type) {
			case *tcell.EventResize:
				s.mu.Lock()
				if !s.closed {
					s.screen.Sync()
					s.draw()
				}
				s.mu.Unlock()
			case *tcell.EventKey:
				if ev.Key() == tcell.KeyCtrlC || ev.Key() == tcell.KeyEscape || ev.Rune() == 'q' {
					s.log.LogAttrs(ctx, slog.LevelDebug, "quit", slog.String("key", ev.Name()))
					quit()
				}
			}
		}
	}
}

// Close restores the terminal.
func (s *Screen) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.screen.Fini()
	return nil
}
