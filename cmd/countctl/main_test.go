// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rogpeppe/go-internal/testscript"

	"github.com/kortschak/countup/counter"
	"github.com/kortschak/countup/internal/state"
	"github.com/kortschak/countup/rpc"
)

var (
	update = flag.Bool("update", false, "update tests")
	keep   = flag.Bool("keep", false, "keep $WORK directory after tests")
)

func TestMain(m *testing.M) {
	os.Exit(testscript.RunMain(m, map[string]func() int{
		"countctl": Main,
	}))
}

func TestScripts(t *testing.T) {
	t.Parallel()

	p := testscript.Params{
		Dir:           filepath.Join("testdata"),
		UpdateScripts: *update,
		TestWork:      *keep,
		Setup: func(e *testscript.Env) error {
			e.Setenv("XDG_RUNTIME_DIR", filepath.Join(e.WorkDir, "run"))
			e.Setenv("XDG_STATE_HOME", filepath.Join(e.WorkDir, "state"))
			err := seed(filepath.Join(e.WorkDir, "state.sqlite3"))
			if err != nil {
				return err
			}
			return serve(e)
		},
	}
	testscript.Run(t, p)
}

// serve starts a counter daemon for the script environment listening on
// $WORK/ctl.sock.
func serve(e *testscript.Env) error {
	log := slog.New(slog.DiscardHandler)
	a, err := counter.New(0, counter.Config{Steps: 4, Interval: time.Millisecond})
	if err != nil {
		return err
	}
	ctx := context.Background()
	srv, err := rpc.NewServer(ctx, "unix", filepath.Join(e.WorkDir, "ctl.sock"), nil, rpc.UID{Module: rpc.Module, Service: "score"}, a, a.Stop, log)
	if err != nil {
		return err
	}
	e.Defer(func() {
		a.Stop()
		err := srv.Close()
		if err != nil && !errors.Is(err, net.ErrClosed) {
			e.T().Log(err)
		}
	})
	return nil
}

// seed writes a persisted value and run history for the score counter.
func seed(path string) error {
	db, err := state.Open(path, slog.New(slog.DiscardHandler))
	if err != nil {
		return err
	}
	runs := []counter.State{
		{Value: 3, Display: 3, From: 0, To: 3, Direction: counter.Up, Ticks: 3, Run: uuid.MustParse("8d0d2fd4-5f6c-4a0e-9a4b-7c1e6f0a2b31")},
		{Value: 1, Display: 1, From: 3, To: 1, Direction: counter.Down, Ticks: 2, Run: uuid.MustParse("1f7e5c2a-0b9d-4c3e-8f6a-2d4b9e7c1a05")},
	}
	for _, s := range runs {
		_, _, err = db.Put("score", s)
		if err != nil {
			db.Close()
			return err
		}
		err = db.AddRun("score", s)
		if err != nil {
			db.Close()
			return err
		}
	}
	return db.Close()
}
