// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package hostsession

import (
	"bufio"
	"context"
	"fmt"
	"net"

	"golang.org/x/exp/jsonrpc2"

	"github.com/hostlink/hostlink/pkg/logger"
)

// reexportHandshakeLine is written once to every accepted connection
// before RPC framing begins, carrying the session's freshly generated
// GUID. The listener is loopback-only and authenticates nobody, but each
// session still advertises a fresh identity on connect.
const reexportHandshakeLine = "HOSTLINK-AGENT-SESSION %s\n"

// reexportListener is SessionEntry's loopback re-export server: every
// accepted connection gets the same agent_session object registered
// against it at the well-known object path.
type reexportListener struct {
	ln   net.Listener
	guid string
}

// newReexportServer starts a synchronous TCP listener at addr and begins
// accepting connections in the background. Each accepted connection is
// registered against entry's agent_session object; if registration fails
// the connection is rejected, logged, and the entry's close() begins.
func newReexportServer(addr, guid string, e *entry) (*reexportListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &reexportListener{ln: ln, guid: guid}
	go s.acceptLoop(e)
	return s, nil
}

func (s *reexportListener) acceptLoop(e *entry) {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.handleClient(conn, e)
	}
}

func (s *reexportListener) handleClient(conn net.Conn, e *entry) {
	if _, err := fmt.Fprintf(conn, reexportHandshakeLine, s.guid); err != nil {
		logger.Warnf("session %s: handshake write failed, rejecting client: %v", e.id, err)
		_ = conn.Close()
		e.close()
		return
	}

	token := s.guid
	client := &clientConn{conn: conn, token: token}
	e.addClient(client)

	go func() {
		defer e.removeClient(conn)

		rpc := jsonrpc2.NewConn(jsonrpc2.NewRawStream(newBufferedConn(conn)))
		handler := jsonrpc2.HandlerFunc(func(ctx context.Context, req *jsonrpc2.Request) (interface{}, error) {
			return dispatchAgentSessionCall(ctx, e.session, req)
		})
		rpc.Go(context.Background(), handler)
		<-rpc.Done()
	}()
}

// Close stops accepting new connections. Already-accepted clients are
// closed by the owning entry.
func (s *reexportListener) Close() error {
	return s.ln.Close()
}

// bufferedConn layers a bufio.Reader over a net.Conn so the RPC framing
// can read efficiently, while still satisfying io.ReadWriteCloser.
type bufferedConn struct {
	r    *bufio.Reader
	conn net.Conn
}

func newBufferedConn(conn net.Conn) *bufferedConn {
	return &bufferedConn{r: bufio.NewReader(conn), conn: conn}
}

func (b *bufferedConn) Read(p []byte) (int, error)  { return b.r.Read(p) }
func (b *bufferedConn) Write(p []byte) (int, error) { return b.conn.Write(p) }
func (b *bufferedConn) Close() error                { return b.conn.Close() }
