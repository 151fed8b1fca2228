// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"log/slog"
)

// ChangeValue implements slog.LogValuer for Change.
type ChangeValue struct {
	Change
}

func (v ChangeValue) LogValue() slog.Value {
	events := make([]eventValue, len(v.Event))
	for i, e := range v.Event {
		events[i] = eventValue{
			Name: e.Name,
			Op:   e.Op.String(),
			Code: int(e.Op),
		}
	}
	var errText string
	if v.Err != nil {
		errText = v.Err.Error()
	}
	return slog.AnyValue(struct {
		Event  []eventValue `json:"event"`
		Config *Counter     `json:"config"`
		Sum    Sum          `json:"sum"`
		Err    string       `json:"err,omitempty"`
	}{
		Event:  events,
		Config: v.Config,
		Sum:    v.Sum,
		Err:    errText,
	})
}

type eventValue struct {
	Name string `json:"name"`
	Op   string `json:"op"`
	Code int    `json:"op_code"`
}
