// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package rpcsession brings a JSON-RPC connection up over an opaque
// bidirectional byte stream to the in-target agent, bounded by the
// fixed bring-up deadline the attach state machine requires.
package rpcsession

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"golang.org/x/exp/jsonrpc2"

	"github.com/hostlink/hostlink/pkg/ferror"
)

// AgentSessionObjectPath is the well-known RPC object path the in-target
// agent registers its ScriptEngine facade at.
const AgentSessionObjectPath = "/org/hostlink/AgentSession"

// BringUpTimeout bounds the entire RPC handshake: opening the connection
// and resolving the AgentSession proxy.
const BringUpTimeout = 2000 * time.Millisecond

// NotificationHandler processes an asynchronous message pushed by the
// agent outside of any request/response exchange (script messages, debug
// messages).
type NotificationHandler func(method string, params json.RawMessage)

// Conn wraps a live JSON-RPC connection to one in-target agent, tracking
// whether the eventual close was initiated locally so callers can tell a
// deliberate shutdown apart from a vanished peer.
type Conn struct {
	rpc *jsonrpc2.Conn

	mu            sync.Mutex
	closedLocally bool
}

// BringUp opens a JSON-RPC connection over stream and waits for the
// handshake to complete, bounded by BringUpTimeout. notify is invoked for
// every notification the agent pushes outside of a request/response pair.
//
// On timeout the in-flight bring-up is cancelled and the call fails with
// ferror.TimedOut. Any other failure is reported as ferror.Failed.
func BringUp(ctx context.Context, stream io.ReadWriteCloser, notify NotificationHandler) (*Conn, error) {
	bringUpCtx, cancel := context.WithTimeout(ctx, BringUpTimeout)
	defer cancel()

	handler := jsonrpc2.HandlerFunc(func(_ context.Context, req *jsonrpc2.Request) (interface{}, error) {
		if req.IsCall() {
			// The agent only ever pushes notifications on this connection;
			// an incoming call is a protocol error on our side.
			return nil, jsonrpc2.ErrMethodNotFound
		}
		if notify != nil {
			notify(req.Method, req.Params)
		}
		return nil, nil
	})

	rpc := jsonrpc2.NewConn(jsonrpc2.NewRawStream(stream))
	rpc.Go(bringUpCtx, handler)

	// Resolving the AgentSession proxy means confirming the agent is
	// actually listening at the well-known object path before we hand the
	// connection back; a stream that never speaks the protocol hangs here
	// until the bring-up deadline fires.
	type pingResult struct{ err error }
	done := make(chan pingResult, 1)
	go func() {
		var ack bool
		err := rpc.Call(bringUpCtx, AgentSessionObjectPath+".Ping", nil).Await(bringUpCtx, &ack)
		done <- pingResult{err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			_ = rpc.Close()
			if bringUpCtx.Err() != nil {
				return nil, ferror.NewTimedOut("rpc bring-up", bringUpCtx.Err())
			}
			return nil, ferror.NewFailed("rpc bring-up", r.err)
		}
		return &Conn{rpc: rpc}, nil
	case <-bringUpCtx.Done():
		_ = rpc.Close()
		return nil, ferror.NewTimedOut("rpc bring-up", bringUpCtx.Err())
	}
}

// Serve wraps stream in a JSON-RPC connection driven by handler, with no
// bring-up deadline. This is the agent-side counterpart to BringUp: the
// in-target ScriptEngine uses it to answer the host's calls (including
// the initial Ping) and to push asynchronous notifications back.
func Serve(ctx context.Context, stream io.ReadWriteCloser, handler jsonrpc2.Handler) *Conn {
	rpc := jsonrpc2.NewConn(jsonrpc2.NewRawStream(stream))
	rpc.Go(ctx, handler)
	return &Conn{rpc: rpc}
}

// Notify sends a one-way notification (no reply expected) to the peer,
// used to push asynchronous script and debugger messages out to the host.
func (c *Conn) Notify(ctx context.Context, method string, params interface{}) error {
	return c.rpc.Notify(ctx, AgentSessionObjectPath+"."+method, params)
}

// Call issues a blocking RPC call against the agent session and decodes
// the reply into result.
func (c *Conn) Call(ctx context.Context, method string, params, result interface{}) error {
	call := c.rpc.Call(ctx, AgentSessionObjectPath+"."+method, params)
	if err := call.Await(ctx, result); err != nil {
		return ferror.NewFailed("agent session call "+method, err)
	}
	return nil
}

// Done returns a channel closed once the connection has ended.
func (c *Conn) Done() <-chan struct{} {
	return c.rpc.Done()
}

// RemoteVanished reports whether the connection ended without a local
// Close call, i.e. the peer process disappeared or the transport errored.
func (c *Conn) RemoteVanished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closedLocally
}

// Close closes the underlying JSON-RPC connection and marks it as closed
// locally, so a subsequent Done() firing is not mistaken for a peer vanish.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.closedLocally = true
	c.mu.Unlock()
	return c.rpc.Close()
}
