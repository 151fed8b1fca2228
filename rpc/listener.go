// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rpc

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"os"

	"github.com/kortschak/jsonrpc2"
)

// newListener returns a jsonrpc2.Listener accepting connections on the
// provided network and address. If cfg is not nil, accepted connections
// are TLS connections using cfg.
func newListener(ctx context.Context, network, address string, cfg *tls.Config) (*listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, network, address)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		ln = tls.NewListener(ln, cfg)
	}
	return &listener{net: ln}, nil
}

// listener is a jsonrpc2.Listener for a net.Listener. Unix sockets are
// removed when the listener is closed.
type listener struct {
	net net.Listener
}

func (l *listener) Addr() net.Addr {
	return l.net.Addr()
}

func (l *listener) Accept(context.Context) (io.ReadWriteCloser, error) {
	return l.net.Accept()
}

// Close stops the listener. Accepted connections are not closed.
func (l *listener) Close() error {
	addr := l.net.Addr()
	err := l.net.Close()
	if addr.Network() == "unix" {
		rerr := os.Remove(addr.String())
		if rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}

func (l *listener) Dialer() jsonrpc2.Dialer {
	return nil
}

// dialer is a jsonrpc2.Dialer for TLS connections.
type dialer struct {
	network, addr string
	tls           tls.Dialer
}

func (d dialer) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	return d.tls.DialContext(ctx, d.network, d.addr)
}
