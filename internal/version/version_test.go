// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package version

import (
	"runtime/debug"
	"testing"
)

var formatTests = []struct {
	settings []debug.BuildSetting
	want     string
}{
	{
		want: "v1.2.3",
	},
	{
		settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "abcdef"},
			{Key: "vcs.modified", Value: "false"},
		},
		want: "v1.2.3 abcdef",
	},
	{
		settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "abcdef"},
			{Key: "vcs.modified", Value: "true"},
		},
		want: "v1.2.3 abcdef (modified)",
	},
	{
		settings: []debug.BuildSetting{
			{Key: "vcs.modified", Value: "true"},
		},
		want: "v1.2.3",
	},
}

func TestFormat(t *testing.T) {
	for _, test := range formatTests {
		bi := &debug.BuildInfo{
			Main:     debug.Module{Version: "v1.2.3"},
			Settings: test.settings,
		}
		got := format(bi)
		if got != test.want {
			t.Errorf("unexpected version string: got:%q want:%q", got, test.want)
		}
	}
}
