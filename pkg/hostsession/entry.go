// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package hostsession

import (
	"io"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/hostlink/hostlink/pkg/ids"
	"github.com/hostlink/hostlink/pkg/logger"
	"github.com/hostlink/hostlink/pkg/rpcsession"
)

// Transport is the opaque owner object returned by a backend's
// perform_attach_to hook alongside the byte stream. It may wrap a
// tethering context, a USB channel, or nothing at all; its only contract
// is that it outlives the stream and is released exactly once.
type Transport interface {
	io.Closer
}

// closerFunc adapts a plain func() error into a Transport for backends that
// have nothing richer to hand back.
type closerFunc func() error

func (c closerFunc) Close() error { return c() }

// NoopTransport is used by backends whose stream needs no separate owner.
var NoopTransport Transport = closerFunc(func() error { return nil })

// reexportServer is the minimal shape SessionEntry needs from the
// loopback re-export listener; see serve.go for the concrete
// implementation.
type reexportServer interface {
	Close() error
}

// clientConn is one client connection accepted by the re-export server.
type clientConn struct {
	conn  net.Conn
	token string
}

// entry owns everything created on a single successful attach_to call:
// the transport, the RPC connection, the typed AgentSession proxy, and,
// in forwarding mode, the re-export server and its accepted clients.
type entry struct {
	id  ids.AgentSessionID
	pid int

	transport Transport
	rpcConn   *rpcsession.Conn
	session   AgentSession

	mu      sync.Mutex
	server  reexportServer
	clients []*clientConn

	closeOnce sync.Once
	closeDone chan struct{}
}

func newEntry(id ids.AgentSessionID, pid int, transport Transport, rpcConn *rpcsession.Conn, session AgentSession) *entry {
	return &entry{
		id:        id,
		pid:       pid,
		transport: transport,
		rpcConn:   rpcConn,
		session:   session,
		closeDone: make(chan struct{}),
	}
}

// close tears the entry down. It is idempotent: every caller, concurrent
// or not, blocks until the single real teardown has completed.
//
// Order: stop the re-export server, close accepted clients, drop the
// agent-session proxy, close the RPC connection, then release the
// transport. The transport is held for the entry's full lifetime and must
// outlive the RPC connection it backs.
func (e *entry) close() {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		server := e.server
		clients := e.clients
		e.server = nil
		e.clients = nil
		e.mu.Unlock()

		if server != nil {
			if err := server.Close(); err != nil {
				logger.Warnf("session %s: error stopping re-export server: %v", e.id, err)
			}
		}

		for _, c := range clients {
			if err := c.conn.Close(); err != nil {
				logger.Debugf("session %s: error closing client connection: %v", e.id, err)
			}
		}

		e.session = nil

		if err := e.rpcConn.Close(); err != nil {
			logger.Debugf("session %s: error closing agent rpc connection: %v", e.id, err)
		}

		if err := e.transport.Close(); err != nil {
			logger.Debugf("session %s: error releasing transport: %v", e.id, err)
		}

		close(e.closeDone)
	})
	<-e.closeDone
}

// serve starts the loopback re-export listener for this entry. guid is
// freshly generated per session and is handed to each accepted client as
// part of the handshake line.
func (e *entry) serve(addr string) error {
	guid := uuid.NewString()
	srv, err := newReexportServer(addr, guid, e)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.server = srv
	e.mu.Unlock()
	return nil
}

func (e *entry) addClient(c *clientConn) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clients = append(e.clients, c)
}

func (e *entry) removeClient(c net.Conn) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, existing := range e.clients {
		if existing.conn == c {
			e.clients = append(e.clients[:i], e.clients[i+1:]...)
			return
		}
	}
}
