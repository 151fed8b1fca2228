// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The countctl executable controls a running countup daemon and reports
// on persisted counter state.
//
// Usage:
//
//	countctl [-network n] [-addr a] [-name counter] [-tls_root ca.pem -tls_cert c.pem -tls_key c.key] set [-wait=false] <value>
//	countctl [-network n] [-addr a] [-name counter] state
//	countctl [-network n] [-addr a] [-name counter] stop
//	countctl [-network n] [-addr a] [-name counter] who
//	countctl [-state path] [-name counter] history [n]
//	countctl [-state path] dump
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/kortschak/countup/config"
	"github.com/kortschak/countup/internal/mtls"
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

func main() { os.Exit(Main()) }

func Main() int {
	network := flag.String("network", "unix", "network for communication (unix or tcp)")
	addr := flag.String("addr", "", "address for communication (default $XDG_RUNTIME_DIR/countup/<name>.sock for unix)")
	name := flag.String("name", config.DefaultName, "counter name")
	statePath := flag.String("state", "", "path to the state database (default $XDG_STATE_HOME/countup/state.sqlite3)")
	timeout := flag.Duration("timeout", time.Minute, "time limit for daemon calls")
	v := flag.Bool("version", false, "print version and exit")
	var tlsFiles mtls.Files
	flag.StringVar(&tlsFiles.Root, "tls_root", "", "path to a CA certificate for verifying the daemon (PEM)")
	flag.StringVar(&tlsFiles.Cert, "tls_cert", "", "path to the client certificate (PEM)")
	flag.StringVar(&tlsFiles.Key, "tls_key", "", "path to the client key (PEM)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), `Usage of %s:
  %[1]s [options] set [-wait=false] <value>
  %[1]s [options] state
  %[1]s [options] stop
  %[1]s [options] who
  %[1]s [options] history [n]
  %[1]s [options] dump

`, filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()
	if *v {
		err := version.Print(os.Stdout)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return internalError
		}
		return success
	}
	if flag.NArg() == 0 {
		flag.Usage()
		return invocationError
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "history", "dump":
		return local(cmd, args, *statePath, *name)
	case "set", "state", "stop", "who":
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		flag.Usage()
		return invocationError
	}

	switch *network {
	case "unix":
		if *addr == "" {
			var err error
			*addr, err = rpc.SocketPath(*name)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return internalError
			}
		}
	case "tcp":
		if *addr == "" {
			fmt.Fprintln(os.Stderr, "missing tcp address")
			return invocationError
		}
	default:
		flag.Usage()
		return invocationError
	}

	// Parse the command's arguments before connecting.
	var (
		target float64
		wait   bool
	)
	if cmd == "set" {
		fs := flag.NewFlagSet("set", flag.ContinueOnError)
		fs.BoolVar(&wait, "wait", true, "wait for the run to settle")
		err := fs.Parse(args)
		if err != nil {
			return invocationError
		}
		if fs.NArg() != 1 {
			fmt.Fprintln(os.Stderr, "usage: set [-wait=false] <value>")
			return invocationError
		}
		target, err = strconv.ParseFloat(fs.Arg(0), 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid value: %v\n", err)
			return invocationError
		}
	} else if len(args) != 0 {
		fmt.Fprintf(os.Stderr, "unexpected arguments for %s: %q\n", cmd, args)
		return invocationError
	}

	tlsConfig, err := tlsFiles.ClientConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid tls configuration: %v\n", err)
		return invocationError
	}
	client, err := rpc.Dial(ctx, *network, *addr, tlsConfig, rpc.UID{Module: "countctl"}, net.Dialer{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to %s: %v\n", *addr, err)
		return internalError
	}
	defer client.Close()

	var result any
	switch cmd {
	case "set":
		result, err = client.Set(ctx, target, wait)
	case "state":
		result, err = client.State(ctx)
	case "stop":
		err = client.Stop(ctx)
		if err == nil {
			return success
		}
	case "who":
		var (
			uid rpc.UID
			ver string
		)
		uid, ver, err = client.Who(ctx)
		result = struct {
			UID     rpc.UID `json:"uid"`
			Version string  `json:"version"`
		}{UID: uid, Version: ver}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed %s: %v\n", cmd, err)
		return internalError
	}
	return printJSON(result)
}

// local runs commands that inspect the state database.
func local(cmd string, args []string, path, name string) int {
	n := 10
	switch {
	case cmd == "history" && len(args) == 1:
		var err error
		n, err = strconv.Atoi(args[0])
		if err != nil || n < 1 {
			fmt.Fprintf(os.Stderr, "invalid history length: %q\n", args[0])
			return invocationError
		}
	case len(args) != 0:
		fmt.Fprintf(os.Stderr, "unexpected arguments for %s: %q\n", cmd, args)
		return invocationError
	}

	if path == "" {
		dir, ok := xdg.StateHome()
		if !ok {
			fmt.Fprintln(os.Stderr, "no xdg state directory")
			return internalError
		}
		path = filepath.Join(dir, rpc.RuntimeDir, "state.sqlite3")
	}
	_, err := os.Stat(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, os.ErrNotExist) {
			return invocationError
		}
		return internalError
	}
	db, err := state.Open(path, slog.New(slog.DiscardHandler))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open data store: %v\n", err)
		return internalError
	}
	defer db.Close()

	switch cmd {
	case "history":
		runs, err := db.History(name, n)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed history: %v\n", err)
			return internalError
		}
		return printJSON(runs)
	default:
		d, err := db.Dump()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed dump: %v\n", err)
			return internalError
		}
		b, err := state.JSON(d)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed dump: %v\n", err)
			return internalError
		}
		fmt.Printf("%s\n", b)
		return success
	}
}

func printJSON(v any) int {
	b, err := json.MarshalIndent(v, "", "\t")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to format result: %v\n", err)
		return internalError
	}
	fmt.Printf("%s\n", b)
	return success
}
