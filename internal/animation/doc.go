// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package animation renders counter values to key images and renders whole
// counter runs to animated GIFs.
package animation
