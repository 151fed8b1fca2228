// Copyright ©2024 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package notify provides desktop notifications of finished counter runs.
package notify

import (
	"fmt"

	"github.com/kortschak/countup/counter"
	"github.com/kortschak/countup/internal/text"
)

// Text returns the summary and body of a notification for the finished
// run of the named counter described by s.
func Text(name string, s counter.State) (summary, body string) {
	summary = fmt.Sprintf("%s: %s", name, text.Number(s.Display))
	var verb string
	switch s.Direction {
	case counter.Up:
		verb = "counted up"
	case counter.Down:
		verb = "counted down"
	default:
		verb = "settled"
	}
	body = fmt.Sprintf("%s from %s to %s in %d ticks", verb, text.Number(s.From), text.Number(s.To), s.Ticks)
	return summary, body
}
