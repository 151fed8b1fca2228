// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rpc

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/kortschak/jsonrpc2"

	"github.com/kortschak/countup/counter"
)

// Client is a connection to a countup daemon.
type Client struct {
	uid  UID
	conn *jsonrpc2.Connection
}

// Dial returns a new client connected to the daemon at the given network
// address. If tlsConfig is not nil, the connection uses TLS. Messages sent
// by the client carry uid.
func Dial(ctx context.Context, network, addr string, tlsConfig *tls.Config, uid UID, nd net.Dialer) (*Client, error) {
	var d jsonrpc2.Dialer = jsonrpc2.NetDialer(network, addr, nd)
	if tlsConfig != nil {
		d = dialer{network: network, addr: addr, tls: tls.Dialer{NetDialer: &nd, Config: tlsConfig}}
	}
	conn, err := jsonrpc2.Dial(ctx, d, jsonrpc2.ConnectionOptions{})
	if err != nil {
		return nil, err
	}
	return &Client{uid: uid, conn: conn}, nil
}

// Who returns the UID and version of the daemon.
func (c *Client) Who(ctx context.Context) (UID, string, error) {
	var resp Message[string]
	err := c.conn.Call(ctx, Who, NewMessage(c.uid, None{})).Await(ctx, &resp)
	return resp.UID, resp.Body, err
}

// Set sets the target of the daemon's counter and returns the counter's
// state. If wait is true, Set returns after the run has settled.
func (c *Client) Set(ctx context.Context, target float64, wait bool) (counter.State, error) {
	var resp Message[counter.State]
	err := c.conn.Call(ctx, Set, NewMessage(c.uid, Target{Value: target, Wait: wait})).Await(ctx, &resp)
	return resp.Body, err
}

// State returns the state of the daemon's counter.
func (c *Client) State(ctx context.Context) (counter.State, error) {
	var resp Message[counter.State]
	err := c.conn.Call(ctx, State, NewMessage(c.uid, None{})).Await(ctx, &resp)
	return resp.Body, err
}

// Stop asks the daemon to stop.
func (c *Client) Stop(ctx context.Context) error {
	return c.conn.Notify(ctx, Stop, NewMessage(c.uid, None{}))
}

// Close closes the client's connection.
// See [jsonrpc2.Connection.Close].
func (c *Client) Close() error {
	return c.conn.Close()
}
