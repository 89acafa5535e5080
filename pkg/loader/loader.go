// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package loader implements the host side of the injected loader's
// startup handshake: a length-prefixed rendezvous over a Unix-domain
// socket that hands the loader the host<->agent pipe address and, once
// the agent is attached, permission to let its constructor return.
//
// The loader binary itself — the native injector that dlopens the agent
// image inside the target and calls frida_agent_main — is an external
// collaborator and is not implemented here; this package only speaks its
// wire protocol.
package loader

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/adrg/xdg"

	"github.com/hostlink/hostlink/pkg/ferror"
)

// DataDir returns the directory the loader's callback socket lives
// under. An explicit override is used verbatim; otherwise it is
// "hostlink" under the platform's XDG data home. The caller is responsible for
// patching this path into the loader binary's magic-string placeholder
// at injection time.
func DataDir(override string) (string, error) {
	dir := override
	if dir == "" {
		dir = filepath.Join(xdg.DataHome, "hostlink")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", ferror.NewFailed("create loader data dir", err)
	}
	return dir, nil
}

// callbackSocketName is the fixed filename the loader dials under DataDir.
const callbackSocketName = "callback"

// Handshake is one loader's callback connection, after it has reported
// its pid and before it has been granted permission to resume.
type Handshake struct {
	PID  int
	conn net.Conn
}

// SendPipeAddress hands the loader the host<->agent pipe address it
// should connect the agent to once dlopen'd.
func (h *Handshake) SendPipeAddress(address string) error {
	return writeFramed(h.conn, []byte(address))
}

// GrantResumePermission sends the final length-prefixed value the loader
// waits on before letting its constructor return, then closes the
// callback connection.
func (h *Handshake) GrantResumePermission() error {
	defer h.conn.Close()
	return writeFramed(h.conn, []byte{1})
}

// Server listens for loader callback connections and matches each one, by
// pid, to whichever AttachTo is waiting for it. A loader connection that
// arrives before anyone is waiting for it is held in pending until a
// matching WaitForPID call claims it.
type Server struct {
	ln net.Listener

	mu      sync.Mutex
	waiters map[int]chan *Handshake
	pending map[int]*Handshake
}

// Listen starts the callback listener under dataDir, removing any stale
// socket file left by a previous run, and begins accepting connections in
// the background.
func Listen(dataDir string) (*Server, error) {
	sockPath := filepath.Join(dataDir, callbackSocketName)
	_ = os.Remove(sockPath)

	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, ferror.NewFailed("listen on loader callback socket", err)
	}

	s := &Server{
		ln:      ln,
		waiters: make(map[int]chan *Handshake),
		pending: make(map[int]*Handshake),
	}
	go s.acceptLoop()
	return s, nil
}

// Addr is the socket path loader binaries are configured to dial.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Close stops accepting new loader connections.
func (s *Server) Close() error {
	return s.ln.Close()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	pidBytes, err := readFramed(conn)
	if err != nil {
		_ = conn.Close()
		return
	}
	pid, err := strconv.Atoi(string(pidBytes))
	if err != nil {
		_ = conn.Close()
		return
	}

	h := &Handshake{PID: pid, conn: conn}

	s.mu.Lock()
	if waiter, ok := s.waiters[pid]; ok {
		delete(s.waiters, pid)
		s.mu.Unlock()
		waiter <- h
		return
	}
	s.pending[pid] = h
	s.mu.Unlock()
}

// WaitForPID blocks until a loader reports pid over the callback socket,
// or ctx is done first.
func (s *Server) WaitForPID(ctx context.Context, pid int) (*Handshake, error) {
	s.mu.Lock()
	if h, ok := s.pending[pid]; ok {
		delete(s.pending, pid)
		s.mu.Unlock()
		return h, nil
	}
	ch := make(chan *Handshake, 1)
	s.waiters[pid] = ch
	s.mu.Unlock()

	select {
	case h := <-ch:
		return h, nil
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.waiters, pid)
		s.mu.Unlock()
		return nil, ferror.NewTimedOut(fmt.Sprintf("wait for loader callback from pid %d", pid), ctx.Err())
	}
}

// writeFramed writes a single-byte length prefix followed by payload.
// Payloads over 255 bytes cannot be represented by this framing, matching
// the loader's fixed u8-length wire format.
func writeFramed(w io.Writer, payload []byte) error {
	if len(payload) > 0xff {
		return fmt.Errorf("loader frame payload too large: %d bytes", len(payload))
	}
	if _, err := w.Write([]byte{byte(len(payload))}); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readFramed reads one u8-length-prefixed value.
func readFramed(r io.Reader) ([]byte, error) {
	var lengthByte [1]byte
	if _, err := io.ReadFull(r, lengthByte[:]); err != nil {
		return nil, err
	}
	buf := make([]byte, lengthByte[0])
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
