// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileDebounce is the default duration we wait for the contents to have
// stabilised to work around some editors writing an empty file and then the
// buffer.
const FileDebounce = 10 * time.Millisecond

// Change is a configuration change identified by a Watcher. If the
// configuration file was removed, Config is nil and Err is nil.
type Change struct {
	Event  []fsnotify.Event
	Config *Counter
	Sum    Sum
	Err    error
}

// Removed returns whether the change is the removal of the configuration
// file.
func (c Change) Removed() bool {
	return c.Config == nil && c.Err == nil
}

// Op returns an aggregated fsnotify.Op for all elements of the receivers'
// Event field.
func (c Change) Op() fsnotify.Op {
	switch len(c.Event) {
	case 0:
		return 0
	case 1:
		return c.Event[0].Op
	default:
		var op fsnotify.Op
		for _, o := range c.Event {
			op |= o.Op
		}
		return op
	}
}

// Watcher collects raw fsnotify.Events for a single configuration file and
// filters them for semantically meaningful configuration changes.
//
// The file's directory is watched rather than the file so that editors
// that save by writing a new file and renaming it over the old file are
// followed.
type Watcher struct {
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	changes  chan<- Change
	sum      Sum
	log      *slog.Logger
}

// NewWatcher returns a Watcher for the configuration file at path, sending
// change events on the changes channel. Changes are only sent when the
// semantic hash of the configuration differs from that of the last loaded
// configuration, which is initially sum. The debounce parameter specifies
// how long to wait after an fsnotify.Event before reading the file to
// ensure that writes will be reflected in the hash. If it is less than
// zero, FileDebounce is used.
func NewWatcher(path string, sum Sum, changes chan<- Change, debounce time.Duration, log *slog.Logger) (*Watcher, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	err = watcher.Add(filepath.Dir(path))
	if err != nil {
		watcher.Close()
		return nil, err
	}
	if debounce < 0 {
		debounce = FileDebounce
	}
	return &Watcher{
		path:     path,
		debounce: debounce,
		watcher:  watcher,
		changes:  changes,
		sum:      sum,
		log:      log.With(slog.String("component", "config_watcher")),
	}, nil
}

// Watch processes file events until ctx is cancelled or the Watcher is
// closed.
func (w *Watcher) Watch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			w.process(ctx, ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			if !w.send(ctx, Change{Err: err}) {
				return ctx.Err()
			}
		}
	}
}

func (w *Watcher) process(ctx context.Context, ev fsnotify.Event) {
	switch {
	// Renames over the watched file are seen as a create for the
	// watched path, so writes and creates are handled the same way.
	case ev.Has(fsnotify.Write), ev.Has(fsnotify.Create):
		w.log.LogAttrs(ctx, slog.LevelDebug, "write", slog.String("name", ev.Name), slog.String("op", ev.Op.String()))
		time.Sleep(w.debounce)

		b, err := os.ReadFile(w.path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// Moved away while we waited; the remove
				// or rename event will follow.
				return
			}
			w.log.LogAttrs(ctx, slog.LevelError, "read file", slog.Any("error", err))
			w.send(ctx, Change{Event: []fsnotify.Event{ev}, Err: err})
			return
		}
		cfg, sum, err := unmarshalConfig(w.path, b)
		if cfg == nil {
			w.send(ctx, Change{Event: []fsnotify.Event{ev}, Err: err})
			return
		}
		if sum == w.sum {
			w.log.LogAttrs(ctx, slog.LevelDebug, "no change", slog.Any("sum", sum))
			return
		}
		w.log.LogAttrs(ctx, slog.LevelDebug, "set hash", slog.Any("sum", sum), slog.Any("previous", w.sum))
		w.sum = sum
		w.send(ctx, Change{
			Event:  []fsnotify.Event{ev},
			Config: cfg,
			Sum:    sum,
			Err:    err,
		})

	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.log.LogAttrs(ctx, slog.LevelDebug, "remove", slog.String("name", ev.Name), slog.String("op", ev.Op.String()))
		w.sum = Sum{}
		w.send(ctx, Change{Event: []fsnotify.Event{ev}})
	}
}

func (w *Watcher) send(ctx context.Context, c Change) bool {
	select {
	case <-ctx.Done():
		return false
	case w.changes <- c:
		return true
	}
}

// Close releases the Watcher's resources. Watch returns after Close is
// called.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
