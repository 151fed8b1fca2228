// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"image/color"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/kortschak/countup/counter"
	"github.com/kortschak/countup/internal/config"
	"github.com/kortschak/countup/internal/device"
	"github.com/kortschak/countup/internal/notify"
	"github.com/kortschak/countup/internal/state"
	"github.com/kortschak/countup/internal/term"
	"github.com/kortschak/countup/internal/text"
)

// sink is a counter display.
type sink interface {
	Update(counter.State)
	Close() error
}

// daemon is a configured counter with its display, persistence and
// notification.
type daemon struct {
	name     string
	animator *counter.Animator
	sink     sink

	// display is the display kind given on the command line.
	// It overrides the kind in reloaded configurations.
	display string

	mu      sync.Mutex
	cfg     *config.Counter
	store   *state.DB
	notify  *notify.Notifier
	persist bool
	settled bool

	level *slog.LevelVar
	log   *slog.Logger
}

func newDaemon(ctx context.Context, cfg *config.Counter, store *state.DB, display string, level *slog.LevelVar, log *slog.Logger, cancel context.CancelFunc) (*daemon, error) {
	d := &daemon{
		name:    cfg.CounterName(),
		display: display,
		cfg:     cfg,
		store:   store,
		persist: cfg.PersistValues(),
		level:   level,
		log:     log.With(slog.String("component", "countup.daemon"), slog.String("name", cfg.CounterName())),
	}

	ccfg, err := config.Build(cfg, log.With(slog.String("component", "counter"), slog.String("name", d.name)))
	if err != nil {
		return nil, err
	}
	ccfg.OnProgress = d.progress
	ccfg.OnFinish = d.finish
	ccfg.OnUpdate = d.update

	d.sink, err = openSink(ctx, cfg, log, cancel)
	if err != nil {
		return nil, err
	}
	if cfg.Notify {
		d.notify, err = notify.New("countup", log)
		if err != nil {
			d.log.LogAttrs(ctx, slog.LevelWarn, "notifications unavailable", slog.Any("error", err))
		}
	}

	initial := initialValue(ctx, cfg, store, d.log)
	d.animator, err = counter.New(initial, ccfg)
	if err != nil {
		d.sink.Close()
		return nil, err
	}
	d.sink.Update(d.animator.State())
	return d, nil
}

// openSink returns the display configured in cfg. A terminal display
// calls cancel when the user quits.
func openSink(ctx context.Context, cfg *config.Counter, log *slog.Logger, cancel context.CancelFunc) (sink, error) {
	label := cfg.Name
	switch kind := cfg.DisplayKind(); kind {
	case config.TextDisplay:
		return &lineSink{w: os.Stdout}, nil
	case config.TermDisplay:
		fg, bg, err := colors(cfg.Display)
		if err != nil {
			return nil, err
		}
		s, err := term.Open(fg, bg, label, log)
		if err != nil {
			return nil, err
		}
		go s.Run(ctx, cancel)
		return s, nil
	case config.DeckDisplay:
		fg, bg, err := colors(cfg.Display)
		if err != nil {
			return nil, err
		}
		dc := cfg.Display
		return device.Open(dc.PID, dc.Serial, dc.Row, dc.Col, fg, bg, label, log)
	default:
		return nil, fmt.Errorf("invalid display kind: %q", kind)
	}
}

// overrideDisplay sets the display kind of cfg to kind unless kind is
// empty.
func overrideDisplay(cfg *config.Counter, kind string) {
	if kind == "" {
		return
	}
	if cfg.Display == nil {
		cfg.Display = &config.Display{}
	}
	cfg.Display.Kind = kind
}

// colors returns the foreground and background colours configured in dc,
// defaulting to white on black.
func colors(dc *config.Display) (fg, bg color.Color, err error) {
	fg, bg = color.White, color.Black
	if dc == nil {
		return fg, bg, nil
	}
	if dc.FG != "" {
		fg, err = text.Color(dc.FG)
		if err != nil {
			return nil, nil, err
		}
	}
	if dc.BG != "" {
		bg, err = text.Color(dc.BG)
		if err != nil {
			return nil, nil, err
		}
	}
	return fg, bg, nil
}

// start starts the first run toward the configured value.
func (d *daemon) start() {
	d.mu.Lock()
	target := *d.cfg.Value
	d.mu.Unlock()
	d.animator.Start(target)
}

func (d *daemon) progress(prev, next float64) {
	d.log.LogAttrs(context.Background(), slog.LevelDebug, "progress", slog.Float64("prev", prev), slog.Float64("next", next))
}

func (d *daemon) update(s counter.State) {
	d.sink.Update(s)

	d.mu.Lock()
	settled := d.settled
	d.settled = false
	d.mu.Unlock()
	if settled {
		d.record(s)
	}
}

// finish marks the end of a run. The run is recorded by the update
// that follows it in the same tick.
func (d *daemon) finish(_, _ float64) {
	d.mu.Lock()
	d.settled = true
	d.mu.Unlock()
}

// record persists and announces the settled state s. A run started by a
// callback of the final tick does not alter s.
func (d *daemon) record(s counter.State) {
	ctx := context.Background()
	d.log.LogAttrs(ctx, slog.LevelInfo, "settled",
		slog.Float64("value", s.Value),
		slog.Float64("display", s.Display),
		slog.Int("ticks", s.Ticks),
		slog.String("run", s.Run.String()),
	)

	d.mu.Lock()
	persist, n := d.persist, d.notify
	d.mu.Unlock()

	if persist && d.store != nil {
		old, written, err := d.store.Put(d.name, s)
		if err != nil {
			d.log.LogAttrs(ctx, slog.LevelError, "failed to persist value", slog.Any("error", err))
		} else if written {
			d.log.LogAttrs(ctx, slog.LevelDebug, "persisted value", slog.Float64("old", old.Value), slog.Float64("new", s.Value))
		}
		err = d.store.AddRun(d.name, s)
		if err != nil {
			d.log.LogAttrs(ctx, slog.LevelError, "failed to record run", slog.Any("error", err))
		}
	}
	if n != nil {
		err := n.Notify(ctx, d.name, s)
		if err != nil {
			d.log.LogAttrs(ctx, slog.LevelWarn, "failed to notify", slog.Any("error", err))
		}
	}
}

// apply applies a configuration change to the running counter. Changes
// to the name or display of the counter take effect on restart.
func (d *daemon) apply(ctx context.Context, change config.Change) {
	switch {
	case change.Err != nil:
		d.log.LogAttrs(ctx, slog.LevelWarn, "config change error", slog.Any("error", change.Err))
		return
	case change.Removed():
		d.log.LogAttrs(ctx, slog.LevelWarn, "config removed, keeping current configuration")
		return
	}
	d.log.LogAttrs(ctx, slog.LevelInfo, "config change", slog.Any("change", config.ChangeValue{Change: change}))
	cfg := change.Config
	overrideDisplay(cfg, d.display)

	ccfg, err := config.Build(cfg, d.log)
	if err != nil {
		d.log.LogAttrs(ctx, slog.LevelWarn, "invalid config change", slog.Any("error", err))
		return
	}
	if cfg.CounterName() != d.name {
		d.log.LogAttrs(ctx, slog.LevelWarn, "counter name change requires restart", slog.String("new", cfg.CounterName()))
	}
	d.mu.Lock()
	kind := d.cfg.DisplayKind()
	d.mu.Unlock()
	if cfg.DisplayKind() != kind {
		d.log.LogAttrs(ctx, slog.LevelWarn, "display change requires restart", slog.String("new", cfg.DisplayKind()))
	}
	err = d.animator.Reconfigure(ccfg)
	if err != nil {
		d.log.LogAttrs(ctx, slog.LevelWarn, "failed to reconfigure counter", slog.Any("error", err))
		return
	}
	if cfg.LogLevel != nil {
		d.level.Set(*cfg.LogLevel)
	}

	d.mu.Lock()
	d.cfg = cfg
	d.persist = cfg.PersistValues()
	switch {
	case cfg.Notify && d.notify == nil:
		d.notify, err = notify.New("countup", d.log)
		if err != nil {
			d.log.LogAttrs(ctx, slog.LevelWarn, "notifications unavailable", slog.Any("error", err))
		}
	case !cfg.Notify && d.notify != nil:
		d.notify.Close()
		d.notify = nil
	}
	d.mu.Unlock()

	d.animator.SetTarget(*cfg.Value)
}

func (d *daemon) close() {
	d.animator.Stop()
	err := d.sink.Close()
	if err != nil {
		d.log.LogAttrs(context.Background(), slog.LevelWarn, "failed to close display", slog.Any("error", err))
	}
	d.mu.Lock()
	if d.notify != nil {
		d.notify.Close()
	}
	d.mu.Unlock()
}

// lineSink writes each distinct displayed value to w on its own line.
type lineSink struct {
	mu    sync.Mutex
	w     io.Writer
	shown string
	ok    bool
}

func (s *lineSink) Update(st counter.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txt := text.Number(st.Display)
	if s.ok && txt == s.shown {
		return
	}
	s.shown, s.ok = txt, true
	fmt.Fprintln(s.w, txt)
}

func (*lineSink) Close() error { return nil }
