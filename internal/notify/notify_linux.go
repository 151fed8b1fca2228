// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/kortschak/countup/counter"
)

const (
	dest   = "org.freedesktop.Notifications"
	path   = "/org/freedesktop/Notifications"
	method = "org.freedesktop.Notifications.Notify"

	// expire is the notification timeout in milliseconds.
	// A value of -1 leaves the choice to the server.
	expire = int32(-1)
)

// caller is the dbus.BusObject method used to send notifications.
type caller interface {
	Call(method string, flags dbus.Flags, args ...any) *dbus.Call
}

// Notifier sends desktop notifications via the session DBus. Successive
// notifications replace earlier ones. It is safe for concurrent use.
type Notifier struct {
	mu   sync.Mutex
	app  string
	conn *dbus.Conn
	obj  caller
	id   uint32

	log *slog.Logger
}

// New returns a Notifier sending notifications as the named application.
func New(app string, log *slog.Logger) (*Notifier, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, err
	}
	return &Notifier{
		app:  app,
		conn: conn,
		obj:  conn.Object(dest, dbus.ObjectPath(path)),
		log:  log.With(slog.String("component", "notify")),
	}, nil
}

// Notify sends a notification for the finished run of the named counter
// described by s.
func (n *Notifier) Notify(ctx context.Context, name string, s counter.State) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.obj == nil {
		return errors.New("closed")
	}
	summary, body := Text(name, s)
	c := n.obj.Call(method, 0,
		n.app,
		n.id,
		"",
		summary,
		body,
		[]string{},
		map[string]dbus.Variant{},
		expire,
	)
	var id uint32
	err := c.Store(&id)
	if err != nil {
		n.log.LogAttrs(ctx, slog.LevelError, "notify", slog.String("name", name), slog.Any("error", err))
		return err
	}
	n.id = id
	n.log.LogAttrs(ctx, slog.LevelDebug, "notify", slog.String("name", name), slog.String("summary", summary), slog.Any("id", id))
	return nil
}

// Close releases the connection to the session DBus.
func (n *Notifier) Close() error {
	n.mu.Lock()
	var err error
	if n.conn != nil {
		err = n.conn.Close()
		n.conn = nil
	}
	n.obj = nil
	n.mu.Unlock()
	return err
}
