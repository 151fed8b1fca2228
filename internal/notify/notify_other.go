// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux

package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kortschak/countup/counter"
)

var errUnsupported = errors.New("notifications not supported")

// Notifier sends desktop notifications. Notifications are only supported
// on linux.
type Notifier struct{}

// New returns an error on this platform.
func New(app string, log *slog.Logger) (*Notifier, error) {
	return nil, errUnsupported
}

// Notify returns an error on this platform.
func (*Notifier) Notify(ctx context.Context, name string, s counter.State) error {
	return errUnsupported
}

// Close is a no-op.
func (*Notifier) Close() error { return nil }
