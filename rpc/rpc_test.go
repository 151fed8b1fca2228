// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rpc

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/kortschak/jsonrpc2"

	"github.com/kortschak/countup/counter"
	"github.com/kortschak/countup/internal/locked"
	"github.com/kortschak/countup/internal/mtls/mtlstest"
	"github.com/kortschak/countup/internal/slogext"
)

var (
	verbose = flag.Bool("verbose_log", false, "print full logging")
	lines   = flag.Bool("show_lines", false, "log source code position")
)

func newLogger(t *testing.T) *slog.Logger {
	var logBuf locked.BytesBuffer
	log := slog.New(slogext.NewJSONHandler(&logBuf, &slogext.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: slogext.NewAtomicBool(*lines),
	}))
	t.Cleanup(func() {
		if *verbose {
			t.Logf("log:\n%s\n", &logBuf)
		}
	})
	return log
}

// serve starts a server on network controlling ctrl and returns a client
// connected to it and a channel that is closed when a stop is requested.
// The server and client use TLS if srvTLS and cliTLS are not nil.
func serve(t *testing.T, network string, srvTLS, cliTLS *tls.Config, ctrl Controller) (*Client, net.Addr, <-chan struct{}) {
	t.Helper()
	log := newLogger(t)
	ctx := context.Background()

	addr := "localhost:0"
	if network == "unix" {
		addr = filepath.Join(t.TempDir(), "counter.sock")
	}
	stopped := make(chan struct{})
	srv, err := NewServer(ctx, network, addr, srvTLS, UID{Module: Module, Service: "score"}, ctrl, func() { close(stopped) }, log)
	if err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	client, err := Dial(ctx, network, srv.Addr().String(), cliTLS, UID{Module: "testing"}, net.Dialer{})
	if err != nil {
		srv.Close()
		t.Fatalf("failed to dial server: %v", err)
	}
	t.Cleanup(func() {
		err := client.Close()
		if err != nil {
			t.Errorf("failed to close client: %v", err)
		}
		err = srv.Close()
		if err != nil && !errors.Is(err, net.ErrClosed) {
			t.Errorf("failed to close server: %v", err)
		}
	})
	return client, srv.Addr(), stopped
}

func TestServer(t *testing.T) {
	for _, network := range []string{"unix", "tcp"} {
		t.Run(network, func(t *testing.T) {
			a, err := counter.New(0, counter.Config{Steps: 5, Interval: time.Millisecond})
			if err != nil {
				t.Fatalf("failed to make counter: %v", err)
			}
			defer a.Stop()
			client, _, stopped := serve(t, network, nil, nil, a)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			t.Run("who", func(t *testing.T) {
				uid, _, err := client.Who(ctx)
				if err != nil {
					t.Fatalf("failed who call: %v", err)
				}
				if want := (UID{Module: Module, Service: "score"}); uid != want {
					t.Errorf("unexpected uid: got:%v want:%v", uid, want)
				}
			})

			t.Run("state", func(t *testing.T) {
				got, err := client.State(ctx)
				if err != nil {
					t.Fatalf("failed state call: %v", err)
				}
				want := counter.State{}
				if !cmp.Equal(want, got) {
					t.Errorf("unexpected state:\n--- want:\n+++ got:\n%s", cmp.Diff(want, got))
				}
			})

			t.Run("set_wait", func(t *testing.T) {
				got, err := client.Set(ctx, 10, true)
				if err != nil {
					t.Fatalf("failed set call: %v", err)
				}
				if got.Value != 10 || got.Display != 10 || got.Dirty || got.Ticks != 5 || got.Direction != counter.Up {
					t.Errorf("unexpected settled state: %+v", got)
				}
			})

			t.Run("set_notify", func(t *testing.T) {
				err := client.conn.Notify(ctx, Set, NewMessage(UID{Module: "testing"}, Target{Value: -5}))
				if err != nil {
					t.Fatalf("failed set notify: %v", err)
				}
				for {
					got, err := client.State(ctx)
					if err != nil {
						t.Fatalf("failed state call: %v", err)
					}
					if got.To == -5 && !got.Dirty {
						if got.Value != -5 || got.Direction != counter.Down {
							t.Errorf("unexpected settled state: %+v", got)
						}
						break
					}
					time.Sleep(time.Millisecond)
				}
			})

			t.Run("invalid_message", func(t *testing.T) {
				params := json.RawMessage(`{"time":"2006-01-02T15:04:05Z","body":{"velue":1}}`)
				err := client.conn.Call(ctx, Set, params).Await(ctx, nil)
				var werr *jsonrpc2.WireError
				if !errors.As(err, &werr) {
					t.Fatalf("unexpected error type: %T: %v", err, err)
				}
				if werr.Code != ErrCodeInvalidMessage {
					t.Errorf("unexpected error code: got:%d want:%d", werr.Code, ErrCodeInvalidMessage)
				}
			})

			t.Run("unknown_method", func(t *testing.T) {
				err := client.conn.Call(ctx, "reset", NewMessage(UID{Module: "testing"}, None{})).Await(ctx, nil)
				if err == nil {
					t.Error("expected error for unknown method")
				}
			})

			t.Run("stop", func(t *testing.T) {
				err := client.Stop(ctx)
				if err != nil {
					t.Fatalf("failed stop notify: %v", err)
				}
				select {
				case <-stopped:
				case <-ctx.Done():
					t.Fatal("timed out waiting for stop")
				}
			})
		})
	}
}

type stoppedController struct {
	target float64
}

func (c *stoppedController) SetTarget(target float64)       { c.target = target }
func (c *stoppedController) State() counter.State           { return counter.State{To: c.target, Dirty: true} }
func (c *stoppedController) Wait(ctx context.Context) error { return counter.ErrStopped }

func TestServerStopped(t *testing.T) {
	client, _, _ := serve(t, "tcp", nil, nil, &stoppedController{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := client.Set(ctx, 3, true)
	var werr *jsonrpc2.WireError
	if !errors.As(err, &werr) {
		t.Fatalf("unexpected error type: %T: %v", err, err)
	}
	if werr.Code != ErrCodeInternal {
		t.Errorf("unexpected error code: got:%d want:%d", werr.Code, ErrCodeInternal)
	}
	var data struct {
		Type int `json:"type"`
	}
	err = json.Unmarshal(werr.Data, &data)
	if err != nil {
		t.Fatalf("unexpected error decoding error data: %v", err)
	}
	if data.Type != ErrCodeStopped {
		t.Errorf("unexpected error sub-code: got:%d want:%d", data.Type, ErrCodeStopped)
	}

	got, err := client.Set(ctx, 4, false)
	if err != nil {
		t.Fatalf("unexpected error for set without wait: %v", err)
	}
	if got.To != 4 {
		t.Errorf("unexpected target: got:%v want:4", got.To)
	}
}

func TestServerTLS(t *testing.T) {
	srvFiles, cliFiles, err := mtlstest.New(t).Write(t.TempDir())
	if err != nil {
		t.Fatalf("failed to write certificates: %v", err)
	}
	srvTLS, err := srvFiles.ServerConfig()
	if err != nil {
		t.Fatalf("failed to make server config: %v", err)
	}
	cliTLS, err := cliFiles.ClientConfig()
	if err != nil {
		t.Fatalf("failed to make client config: %v", err)
	}

	a, err := counter.New(1, counter.Config{Steps: 2, Interval: time.Millisecond})
	if err != nil {
		t.Fatalf("failed to make counter: %v", err)
	}
	defer a.Stop()
	client, addr, _ := serve(t, "tcp", srvTLS, cliTLS, a)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	got, err := client.Set(ctx, 3, true)
	if err != nil {
		t.Fatalf("failed set call: %v", err)
	}
	if got.Value != 3 || got.Ticks != 2 {
		t.Errorf("unexpected settled state: %+v", got)
	}

	// A client without a certificate is rejected.
	noCert := cliTLS.Clone()
	noCert.Certificates = nil
	bad, err := Dial(ctx, "tcp", addr.String(), noCert, UID{Module: "testing"}, net.Dialer{})
	if err == nil {
		_, err = bad.State(ctx)
		bad.Close()
	}
	if err == nil {
		t.Error("expected error for client without certificate")
	}
}

var unmarshalMessageTests = []struct {
	name    string
	data    string
	want    Message[Target]
	wantErr error
}{
	{
		name: "empty",
		data: "",
		wantErr: &jsonrpc2.WireError{
			Code:    1,
			Message: "EOF",
			Data:    json.RawMessage(`{"type":13,"msg":""}`),
		},
	},
	{
		name: "missing_close",
		data: `{"time":"2006-01-02T15:04:05Z","uid":{"module":"m","service":"s"},"body":{}`,
		wantErr: &jsonrpc2.WireError{
			Code:    1,
			Message: "unexpected EOF",
			Data:    json.RawMessage(`{"type":13,"msg":"eyJ0aW1lIjoiMjAwNi0wMS0wMlQxNTowNDowNVoiLCJ1aWQiOnsibW9kdWxlIjoibSIsInNlcnZpY2UiOiJzIn0sImJvZHkiOnt9"}`),
		},
	},
	{
		name: "extra_field",
		data: `{"time":"2006-01-02T15:04:05Z","uid":{"module":"m","service":"s"},"body":{"velue":9}}`,
		wantErr: &jsonrpc2.WireError{
			Code:    1,
			Message: `json: unknown field "velue"`,
			Data:    json.RawMessage(`{"type":12,"msg":"eyJ0aW1lIjoiMjAwNi0wMS0wMlQxNTowNDowNVoiLCJ1aWQiOnsibW9kdWxlIjoibSIsInNlcnZpY2UiOiJzIn0sImJvZHkiOnsidmVsdWUiOjl9fQ=="}`),
		},
	},
	{
		name: "missing_open",
		data: `"time":"2006-01-02T15:04:05Z","uid":{"module":"m","service":"s"},"body":{"value":9}}`,
		wantErr: &jsonrpc2.WireError{
			Code:    1,
			Message: "json: cannot unmarshal string into Go value of type rpc.Message[github.com/kortschak/countup/rpc.Target]",
			Data:    json.RawMessage(`{"type":14,"offset":6,"msg":"InRpbWUiOiIyMDA2LTAxLTAyVDE1OjA0OjA1WiIsInVpZCI6eyJtb2R1bGUiOiJtIiwic2VydmljZSI6InMifSwiYm9keSI6eyJ2YWx1ZSI6OX19"}`),
		},
	},
	{
		name: "syntax_error",
		data: "not json",
		wantErr: &jsonrpc2.WireError{
			Code:    1,
			Message: "invalid character 'o' in literal null (expecting 'u')",
			Data:    json.RawMessage(`{"type":11,"offset":2,"msg":"bm90IGpzb24="}`),
		},
	},
	{
		name: "valid",
		data: `{"time":"2006-01-02T15:04:05Z","uid":{"module":"m","service":"s"},"body":{"value":9,"wait":true}}`,
		want: Message[Target]{
			Time: time.Date(2006, time.January, 02, 15, 4, 5, 0, time.UTC),
			UID:  UID{Module: "m", Service: "s"},
			Body: Target{Value: 9, Wait: true},
		},
	},
}

func TestUnmarshalMessage(t *testing.T) {
	for _, test := range unmarshalMessageTests {
		t.Run(test.name, func(t *testing.T) {
			var got Message[Target]
			err := UnmarshalMessage[Target]([]byte(test.data), &got)
			if !cmp.Equal(test.wantErr, err) {
				t.Errorf("unexpected error:\n--- want:\n+++ got:\n%s",
					cmp.Diff(test.wantErr, err))
			}
			if err != nil {
				var data struct {
					Massage []byte `json:"msg"`
				}
				err := json.Unmarshal(err.(*jsonrpc2.WireError).Data, &data)
				if err != nil {
					t.Fatalf("unexpected error recovering error data: %v", err)
				}
				if string(data.Massage) != test.data {
					t.Errorf("unexpected error data message:\ngot: %s\nwant:%s", data.Massage, test.data)
				}
				return
			}
			if !cmp.Equal(test.want, got) {
				t.Errorf("unexpected result:\n--- want:\n+++ got:\n%s",
					cmp.Diff(test.want, got))
			}
		})
	}
}
