// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/encoding/gocode/gocodec"
	"golang.org/x/exp/constraints"
)

// Schema is a compiled CUE schema. A Schema is safe for concurrent use.
type Schema struct {
	mu     sync.Mutex
	schema cue.Value
	codec  *gocodec.Codec
}

// CompileSchema compiles the CUE source in src.
func CompileSchema(src string) (*Schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &Schema{schema: v, codec: gocodec.New(ctx, nil)}, nil
}

// Validate performs a validation of the provided configuration value,
// returning a list of invalid paths and a CUE errors.Error explaining the
// issues found if the configuration is invalid according to the schema.
func (s *Schema) Validate(cfg any) (paths [][]string, err error) {
	// Values from a single cue.Context may not be
	// built concurrently.
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.codec.Decode(cfg)
	if err != nil {
		return nil, err
	}

	u := s.schema.Unify(w)
	err = u.Validate(cue.Concrete(true), cue.Final())
	errs := cerrors.Errors(err)
	if len(errs) != 0 {
		paths = make([][]string, 0, len(errs))
		err = cerrors.Append(
			cerrors.Promote(err, ""),
			cerrors.Promote(fmt.Errorf("%s", u), "not concrete"),
		)
	}
	for _, err := range errs {
		p := cerrors.Path(err)
		if p != nil {
			paths = append(paths, p)
		}
	}

	return unique(paths), err
}

var schemas sync.Map // map[string]*Schema

// Validate validates cfg against the CUE schema in src, caching the
// compiled schema for subsequent calls. See [Schema.Validate].
func Validate(src string, cfg any) (paths [][]string, err error) {
	s, ok := schemas.Load(src)
	if !ok {
		c, err := CompileSchema(src)
		if err != nil {
			return nil, err
		}
		s, _ = schemas.LoadOrStore(src, c)
	}
	return s.(*Schema).Validate(cfg)
}

// unique returns paths lexically sorted in ascending order and with repeated
// and nil elements omitted.
func unique(paths [][]string) [][]string {
	if len(paths) < 2 {
		return paths
	}
	sort.Slice(paths, func(i, j int) bool {
		return compare(paths[i], paths[j]) < 0
	})
	curr := 0
	for i, p := range paths {
		if compare(p, paths[curr]) == 0 {
			continue
		}
		curr++
		if curr < i {
			paths[curr], paths[i] = paths[i], nil
		}
	}
	// Remove any nil paths.
	var s int
	for i, p := range paths {
		if p != nil {
			s = i
			break
		}
	}
	return paths[s : curr+1]
}

// compare returns the lexical ordering of a and b.
func compare[T constraints.Ordered](a, b []T) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		switch e1, e2 := a[i], b[i]; {
		case e1 < e2:
			return -1
		case e1 > e2:
			return +1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return +1
	default:
		return 0
	}
}
