// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package celext provides CEL extensions for writing counter timing and
// formatting expressions.
package celext

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/kortschak/countup/counter"
)

// Lib returns a cel.EnvOption to configure extended functions for
// numeric expressions.
//
// # Pi
//
// The constant pi is declared as a double.
//
// # Trigonometric Functions
//
//	sin(<double>) -> <double>
//	cos(<double>) -> <double>
//
// Examples:
//
//	sin(pi/2.0)  // return 1.0
//	cos(0.0)     // return 1.0
//
// # Rounding
//
//	round(<double>) -> <double>
//	floor(<double>) -> <double>
//	ceil(<double>) -> <double>
//
// Examples:
//
//	round(2.5)  // return 3.0
//	floor(2.5)  // return 2.0
//	ceil(2.1)   // return 3.0
//
// # Abs
//
//	abs(<double>) -> <double>
//
// Examples:
//
//	abs(-2.5)  // return 2.5
//
// # Clamp
//
// Returns the first parameter limited to the closed interval given by
// the second and third parameters:
//
//	clamp(<double>, <double>, <double>) -> <double>
//
// Examples:
//
//	clamp(1.5, 0.0, 1.0)  // return 1.0
//
// # Debug
//
// The second parameter is returned unaltered and the value is logged to the
// lib's logger:
//
//	debug(<string>, <dyn>) -> <dyn>
//
// Examples:
//
//	debug("tag", expr) // return expr even if it is an error and logs with "tag".
func Lib(log *slog.Logger) cel.EnvOption {
	return cel.Lib(lib{log: log})
}

type lib struct {
	log *slog.Logger
}

func (l lib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		cel.Constant("pi", cel.DoubleType, types.Double(math.Pi)),
		unary("sin", math.Sin),
		unary("cos", math.Cos),
		unary("round", math.Round),
		unary("floor", math.Floor),
		unary("ceil", math.Ceil),
		unary("abs", math.Abs),
		cel.Function("clamp",
			cel.Overload(
				"clamp_double_double_double",
				[]*cel.Type{cel.DoubleType, cel.DoubleType, cel.DoubleType},
				cel.DoubleType,
				cel.FunctionBinding(clamp),
			),
		),
		cel.Function("debug",
			cel.Overload(
				"debug_string_dyn",
				[]*cel.Type{cel.StringType, cel.DynType},
				cel.DynType,
				cel.BinaryBinding(l.logDebug),
				cel.OverloadIsNonStrict(),
			),
		),
	}
}

func (lib) ProgramOptions() []cel.ProgramOption { return nil }

func unary(name string, fn func(float64) float64) cel.EnvOption {
	return cel.Function(name,
		cel.Overload(
			name+"_double",
			[]*cel.Type{cel.DoubleType},
			cel.DoubleType,
			cel.UnaryBinding(func(arg ref.Val) ref.Val {
				x, ok := arg.(types.Double)
				if !ok {
					return types.ValOrErr(x, "no such overload")
				}
				return types.Double(fn(float64(x)))
			}),
		),
	)
}

func clamp(args ...ref.Val) ref.Val {
	if len(args) != 3 {
		return types.NewErr("no such overload")
	}
	var v [3]float64
	for i, a := range args {
		x, ok := a.(types.Double)
		if !ok {
			return types.ValOrErr(a, "no such overload")
		}
		v[i] = float64(x)
	}
	x, lo, hi := v[0], v[1], v[2]
	if lo > hi {
		return types.NewErr("invalid clamp interval: [%v, %v]", lo, hi)
	}
	return types.Double(math.Min(math.Max(x, lo), hi))
}

func (l lib) logDebug(arg0, arg1 ref.Val) ref.Val {
	tag, ok := arg0.(types.String)
	if !ok {
		return types.ValOrErr(tag, "no such overload")
	}
	if l.log == nil {
		return arg1
	}
	val, err := arg1.ConvertToNative(reflect.TypeOf((*structpb.Value)(nil)))
	if err != nil {
		l.log.LogAttrs(context.Background(), slog.LevelError, "cel debug log error", slog.String("tag", string(tag)), slog.Any("error", err))
	} else {
		l.log.LogAttrs(context.Background(), slog.LevelDebug, "cel debug log", slog.String("tag", string(tag)), slog.Any("value", val))
	}
	return arg1
}

// Timing returns a counter.Timing that evaluates the CEL expression src.
// The expression is evaluated with the double variables interval, the
// base interval in milliseconds, and progress, the completed fraction of
// the run, and must return the delay in milliseconds as a number. If
// evaluation fails at run time the failure is logged and the base
// interval is used.
func Timing(src string, log *slog.Logger) (counter.Timing, error) {
	prg, err := compile(src, log, "interval", "progress")
	if err != nil {
		return nil, err
	}
	return func(interval time.Duration, progress float64) time.Duration {
		ms := float64(interval) / float64(time.Millisecond)
		d, err := eval(prg, map[string]any{
			"interval": ms,
			"progress": progress,
		})
		if err != nil {
			logError(log, "timing expression", err)
			return interval
		}
		return time.Duration(math.Round(d * float64(time.Millisecond)))
	}, nil
}

// Formatter returns a formatting function that evaluates the CEL expression
// src with the double variable value. If evaluation fails at run time the
// failure is logged and the value is returned unaltered.
func Formatter(src string, log *slog.Logger) (func(float64) float64, error) {
	prg, err := compile(src, log, "value")
	if err != nil {
		return nil, err
	}
	return func(v float64) float64 {
		f, err := eval(prg, map[string]any{"value": v})
		if err != nil {
			logError(log, "formatter expression", err)
			return v
		}
		return f
	}, nil
}

// compile compiles src as a numeric expression of the named double
// variables.
func compile(src string, log *slog.Logger, vars ...string) (cel.Program, error) {
	opts := []cel.EnvOption{Lib(log)}
	for _, v := range vars {
		opts = append(opts, cel.Variable(v, cel.DoubleType))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create env: %w", err)
	}
	ast, iss := env.Compile(src)
	if iss.Err() != nil {
		return nil, fmt.Errorf("failed compilation: %w", iss.Err())
	}
	switch typ := ast.OutputType(); {
	case typ.IsExactType(cel.DoubleType), typ.IsExactType(cel.IntType), typ.IsExactType(cel.DynType):
	default:
		return nil, fmt.Errorf("expression result is %s, not a number", typ)
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed program instantiation: %w", err)
	}
	return prg, nil
}

// errNotNumber is returned by eval when the expression result is not
// a finite number.
var errNotNumber = errors.New("result is not a finite number")

func eval(prg cel.Program, input map[string]any) (float64, error) {
	out, _, err := prg.Eval(input)
	if err != nil {
		return 0, err
	}
	var f float64
	switch out := out.(type) {
	case types.Double:
		f = float64(out)
	case types.Int:
		f = float64(out)
	case types.Uint:
		f = float64(out)
	default:
		return 0, fmt.Errorf("%w: %v", errNotNumber, out.Type())
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %v", errNotNumber, f)
	}
	return f, nil
}

func logError(log *slog.Logger, msg string, err error) {
	if log == nil {
		return
	}
	log.LogAttrs(context.Background(), slog.LevelWarn, msg, slog.Any("error", err))
}
