// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The countup executable animates a counter toward a configured target,
// displaying the counted values on stdout, a terminal screen or a Stream
// Deck key. A running countup daemon may be controlled with countctl.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/kortschak/countup/internal/animation"
	"github.com/kortschak/countup/internal/config"
	"github.com/kortschak/countup/internal/mtls"
	"github.com/kortschak/countup/internal/slogext"
	"github.com/kortschak/countup/internal/state"
	"github.com/kortschak/countup/internal/version"
	"github.com/kortschak/countup/internal/xdg"
	"github.com/kortschak/countup/rpc"
)

// Exit status codes.
const (
	success       = 0
	internalError = 1 << (iota - 1)
	invocationError
)

// gifBounds is the size of rendered GIF frames, matching a Stream Deck
// MK.2 key.
var gifBounds = image.Rect(0, 0, 72, 72)

func main() { os.Exit(Main()) }

func Main() int {
	cfgPath := flag.String("config", "", "path to the counter configuration (default $XDG_CONFIG_HOME/countup/config.{toml,yaml})")
	logging := flag.String("log", "info", "logging level (debug, info, warn or error)")
	lines := flag.Bool("lines", false, "display source line details in logs")
	v := flag.Bool("version", false, "print version and exit")
	network := flag.String("network", "unix", "network for control (unix or tcp)")
	addr := flag.String("addr", "", "address for control (default $XDG_RUNTIME_DIR/countup/<name>.sock for unix)")
	statePath := flag.String("state", "", "path to the state database (default $XDG_STATE_HOME/countup/state.sqlite3)")
	once := flag.Bool("once", false, "exit after the first run settles")
	gifPath := flag.String("gif", "", "render a simulated run to an animated GIF and exit")
	hold := flag.Duration("hold", time.Second, "duration to hold the final GIF frame")
	display := flag.String("display", "", "display kind overriding the configuration (text, term or deck)")
	var tlsFiles mtls.Files
	flag.StringVar(&tlsFiles.Root, "tls_root", "", "path to a CA certificate for verifying control clients (PEM)")
	flag.StringVar(&tlsFiles.Cert, "tls_cert", "", "path to the control server certificate (PEM)")
	flag.StringVar(&tlsFiles.Key, "tls_key", "", "path to the control server key (PEM)")
	flag.Parse()
	if *v {
		err := version.Print(os.Stdout)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return internalError
		}
		return success
	}

	switch *network {
	case "unix":
	case "tcp":
		if *addr == "" && !*once && *gifPath == "" {
			fmt.Fprintln(os.Stderr, "missing tcp address")
			flag.Usage()
			return invocationError
		}
	default:
		flag.Usage()
		return invocationError
	}
	switch *display {
	case "", config.TextDisplay, config.TermDisplay, config.DeckDisplay:
	default:
		fmt.Fprintf(os.Stderr, "invalid display kind: %q\n", *display)
		flag.Usage()
		return invocationError
	}

	var level slog.LevelVar
	err := level.UnmarshalText([]byte(*logging))
	if err != nil {
		flag.Usage()
		return invocationError
	}
	addSource := slogext.NewAtomicBool(*lines)

	// log is the root logger.
	log := slog.New(slogext.GoID{Handler: slogext.NewJSONHandler(os.Stderr, &slogext.HandlerOptions{
		Level:     &level,
		AddSource: addSource,
	})})
	// mlog is the logger for main.
	mlog := log.With(slog.String("component", "countup.main"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *cfgPath == "" {
		*cfgPath, err = findConfig()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return invocationError
		}
	}
	cfg, sum, err := config.Load(*cfgPath)
	if err != nil {
		mlog.LogAttrs(ctx, slog.LevelError, "invalid configuration", slog.String("path", *cfgPath), slog.Any("error", err))
		return invocationError
	}
	if cfg.LogLevel != nil {
		level.Set(*cfg.LogLevel)
	}
	overrideDisplay(cfg, *display)
	name := cfg.CounterName()
	mlog.LogAttrs(ctx, slog.LevelInfo, "config", slog.String("path", *cfgPath), slog.String("name", name), slog.String("sum", sum.String()))

	if *gifPath != "" {
		err = writeGIF(*gifPath, cfg, *hold, log)
		if err != nil {
			mlog.LogAttrs(ctx, slog.LevelError, "failed to render gif", slog.Any("error", err))
			return internalError
		}
		return success
	}

	runtimeDir, _, err := xdg.Ensure(rpc.RuntimeDir, xdg.RuntimeDir, 0o700)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return internalError
	}
	pidFile := filepath.Join(runtimeDir, name+".pid")
	fl := flock.New(pidFile)
	ok, err := fl.TryLock()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return internalError
	}
	if !ok {
		fmt.Fprintf(os.Stderr, "counter %s is already running\n", name)
		return internalError
	}
	defer func() {
		fl.Unlock()
		os.Remove(pidFile)
	}()
	pid := fmt.Sprintln(os.Getpid())
	err = os.WriteFile(pidFile, []byte(pid), 0o600)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return internalError
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c)
	go func() {
		select {
		case <-c:
			mlog.LogAttrs(ctx, slog.LevelInfo, "terminating")
			cancel()
		case <-ctx.Done():
		}
	}()

	if *statePath == "" {
		datadir, created, err := xdg.Ensure(rpc.RuntimeDir, xdg.StateHome, 0o755)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return internalError
		}
		if created {
			mlog.LogAttrs(ctx, slog.LevelInfo, "created data dir", slog.String("path", datadir))
		}
		*statePath = filepath.Join(datadir, "state.sqlite3")
	}
	mlog.LogAttrs(ctx, slog.LevelInfo, "state", slog.String("path", *statePath))
	store, err := state.Open(*statePath, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open data store: %v\n", err)
		return internalError
	}
	defer store.Close()

	d, err := newDaemon(ctx, cfg, store, *display, &level, log, cancel)
	if err != nil {
		mlog.LogAttrs(ctx, slog.LevelError, "failed to start counter", slog.Any("error", err))
		var invalid *config.InvalidError
		if errors.As(err, &invalid) {
			return invocationError
		}
		return internalError
	}
	defer d.close()

	d.start()
	if *once {
		err = d.animator.Wait(ctx)
		if err != nil {
			mlog.LogAttrs(ctx, slog.LevelError, "run did not settle", slog.Any("error", err))
			return internalError
		}
		return success
	}

	if *addr == "" {
		*addr, err = rpc.SocketPath(name)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return internalError
		}
	}
	if *network == "unix" {
		// Remove a socket left behind by a crashed daemon. We hold
		// the lock, so no live daemon owns it.
		os.Remove(*addr)
	}
	tlsConfig, err := tlsFiles.ServerConfig()
	if err != nil {
		mlog.LogAttrs(ctx, slog.LevelError, "invalid tls configuration", slog.Any("error", err))
		return invocationError
	}
	srv, err := rpc.NewServer(ctx, *network, *addr, tlsConfig, rpc.UID{Module: rpc.Module, Service: name}, d.animator, cancel, log)
	if err != nil {
		mlog.LogAttrs(ctx, slog.LevelError, "failed to start server", slog.Any("error", err))
		return internalError
	}
	defer func() {
		// Release any callers waiting for a run to settle
		// before the server waits for its connections.
		d.animator.Stop()
		err := srv.Close()
		if err != nil && !errors.Is(err, net.ErrClosed) {
			mlog.LogAttrs(ctx, slog.LevelWarn, "failed to close server", slog.Any("error", err))
		}
	}()
	mlog.LogAttrs(ctx, slog.LevelInfo, "serving", slog.String("network", *network), slog.String("addr", srv.Addr().String()))

	changes := make(chan config.Change)
	watcher, err := config.NewWatcher(*cfgPath, sum, changes, -1, log)
	if err != nil {
		mlog.LogAttrs(ctx, slog.LevelError, "failed to watch configuration", slog.Any("error", err))
		return internalError
	}
	defer watcher.Close()
	go func() {
		err := watcher.Watch(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			mlog.LogAttrs(ctx, slog.LevelError, "config watcher", slog.Any("error", err))
			cancel()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			mlog.LogAttrs(ctx, slog.LevelInfo, "exit")
			return success
		case change := <-changes:
			d.apply(ctx, change)
		}
	}
}

// findConfig returns the path to the first countup configuration file
// found in the XDG config directories.
func findConfig() (string, error) {
	for _, name := range []string{"config.toml", "config.yaml", "config.yml"} {
		path, err := xdg.Config(filepath.Join(rpc.RuntimeDir, name), false)
		if err == nil {
			return path, nil
		}
	}
	return "", errors.New("no configuration file found")
}

// writeGIF renders a simulated run described by cfg to the GIF file at
// path. The run starts from the configured default value, or zero.
func writeGIF(path string, cfg *config.Counter, hold time.Duration, log *slog.Logger) error {
	ccfg, err := config.Build(cfg, log.With(slog.String("component", "counter")))
	if err != nil {
		return err
	}
	fg, bg, err := colors(cfg.Display)
	if err != nil {
		return err
	}
	var initial float64
	if cfg.DefaultValue != nil {
		initial = *cfg.DefaultValue
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	r := animation.NewRenderer(gifBounds, fg, bg, cfg.CounterName())
	err = animation.WriteRunGIF(f, initial, *cfg.Value, ccfg, r, hold)
	if err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// initialValue returns the value a counter starts from: the configured
// default value, the persisted value if persistence is enabled and a
// value has been stored, or the configured target.
func initialValue(ctx context.Context, cfg *config.Counter, store *state.DB, log *slog.Logger) float64 {
	if cfg.DefaultValue != nil {
		return *cfg.DefaultValue
	}
	if store != nil && cfg.PersistValues() {
		rec, err := store.Get(cfg.CounterName())
		switch {
		case err == nil:
			return rec.Value
		case errors.Is(err, state.ErrNotFound):
		default:
			log.LogAttrs(ctx, slog.LevelWarn, "failed to get persisted value", slog.Any("error", err))
		}
	}
	return *cfg.Value
}
