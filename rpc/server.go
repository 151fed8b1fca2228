// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rpc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"path/filepath"

	"github.com/kortschak/jsonrpc2"

	"github.com/kortschak/countup/counter"
	"github.com/kortschak/countup/internal/slogext"
	"github.com/kortschak/countup/internal/version"
	"github.com/kortschak/countup/internal/xdg"
)

// RuntimeDir is the path within XDG_RUNTIME_DIR that unix sockets
// are created in if the unix network is used for communication.
const RuntimeDir = "countup"

// Module is the UID module of countup daemons.
const Module = "countup"

// SocketPath returns the path of the unix socket for the named counter,
// creating the runtime directory if necessary.
func SocketPath(name string) (string, error) {
	dir, _, err := xdg.Ensure(RuntimeDir, xdg.RuntimeDir, 0o700)
	if err != nil {
		return "", fmt.Errorf("failed to create runtime directory: %w", err)
	}
	return filepath.Join(dir, name+".sock"), nil
}

// Controller is the counter controlled by a Server. It is satisfied by
// [counter.Animator].
type Controller interface {
	SetTarget(target float64)
	State() counter.State
	Wait(ctx context.Context) error
}

// Server is a JSON RPC 2 server controlling a counter.
type Server struct {
	listener *listener
	server   *jsonrpc2.Server
	network  string

	uid  UID
	ctrl Controller
	stop func()

	log *slog.Logger
}

// NewServer returns a new Server listening on the provided network and
// address for control of ctrl. The network may be either "unix" or "tcp".
// If tlsConfig is not nil, connections use TLS. The stop function is
// called when a stop request is received.
func NewServer(ctx context.Context, network, addr string, tlsConfig *tls.Config, uid UID, ctrl Controller, stop func(), log *slog.Logger) (*Server, error) {
	s := Server{
		network: network,
		uid:     uid,
		ctrl:    ctrl,
		stop:    stop,
		log:     log.With(slog.String("component", "rpc")),
	}
	var err error
	s.listener, err = newListener(ctx, network, addr, tlsConfig)
	if err != nil {
		return nil, err
	}
	s.server = jsonrpc2.NewServer(ctx, s.listener, &s)

	s.log.LogAttrs(ctx, slog.LevelDebug, "new server", slog.String("network", network), slog.Any("addr", slogext.Stringer{Stringer: s.listener.Addr()}), slog.Bool("tls", tlsConfig != nil))
	return &s, nil
}

// Addr returns the listener address of the server.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Bind binds the server's handler to a connection.
func (s *Server) Bind(ctx context.Context, conn *jsonrpc2.Connection) jsonrpc2.ConnectionOptions {
	s.log.LogAttrs(ctx, slog.LevelDebug, "binding")
	return jsonrpc2.ConnectionOptions{
		Handler: s,
	}
}

// Handle is the server's message handler.
func (s *Server) Handle(ctx context.Context, req *jsonrpc2.Request) (any, error) {
	s.log.LogAttrs(ctx, slog.LevelDebug, "handle", slog.Any("req", slogext.Request{Request: req}))

	switch req.Method {
	case Who:
		if !req.IsCall() {
			return nil, jsonrpc2.ErrNotHandled
		}
		v, err := version.String()
		if err != nil {
			v = err.Error()
		}
		return NewMessage(s.uid, v), nil

	case Set:
		var m Message[Target]
		err := UnmarshalMessage(req.Params, &m)
		if err != nil {
			s.log.LogAttrs(ctx, slog.LevelError, req.Method, slog.Any("error", err))
			return nil, err
		}
		return s.set(ctx, req, m)

	case State:
		if !req.IsCall() {
			return nil, jsonrpc2.ErrNotHandled
		}
		var m Message[None]
		err := UnmarshalMessage(req.Params, &m)
		if err != nil {
			s.log.LogAttrs(ctx, slog.LevelError, req.Method, slog.Any("error", err))
			return nil, err
		}
		return NewMessage(s.uid, s.ctrl.State()), nil

	case Stop:
		s.log.LogAttrs(ctx, slog.LevelInfo, "stop requested", slog.Bool("call", req.IsCall()))
		s.stop()
		if req.IsCall() {
			return NewMessage(s.uid, "ok"), nil
		}
		return nil, nil

	default:
		return nil, jsonrpc2.ErrNotHandled
	}
}

func (s *Server) set(ctx context.Context, req *jsonrpc2.Request, m Message[Target]) (any, error) {
	v := m.Body.Value
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, NewError(ErrCodeInvalidData, "target not finite", map[string]any{
			"type": ErrCodeNotFinite,
		})
	}
	s.log.LogAttrs(ctx, slog.LevelInfo, "set target", slog.Any("uid", m.UID), slog.Float64("value", v), slog.Bool("wait", m.Body.Wait))
	s.ctrl.SetTarget(v)
	if !req.IsCall() {
		return nil, nil
	}
	if m.Body.Wait {
		err := s.ctrl.Wait(ctx)
		switch {
		case err == nil:
		case errors.Is(err, counter.ErrStopped):
			return nil, NewError(ErrCodeInternal, err.Error(), map[string]any{
				"type": ErrCodeStopped,
			})
		default:
			return nil, err
		}
	}
	return NewMessage(s.uid, s.ctrl.State()), nil
}

// Close stops the server and waits for its connections to close.
func (s *Server) Close() error {
	s.log.LogAttrs(context.Background(), slog.LevelDebug, "close")
	s.server.Shutdown()
	return s.server.Wait()
}
