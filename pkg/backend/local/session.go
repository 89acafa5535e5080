// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package local implements the local-system backend: a Provider backed by
// the host machine's own process table, attaching via the loader callback
// handshake over a loopback TCP pipe.
package local

import (
	"context"
	"io"
	"net"

	"github.com/hostlink/hostlink/pkg/ferror"
	"github.com/hostlink/hostlink/pkg/hostsession"
	"github.com/hostlink/hostlink/pkg/loader"
	"github.com/hostlink/hostlink/pkg/process"
)

// hostSession is the local-system HostSession: process control delegates
// to pkg/process, and attach composes the loader's callback handshake
// with a one-shot loopback listener that becomes the agent pipe.
type hostSession struct {
	*hostsession.AttachManager

	loaderServer *loader.Server
}

// NewHostSession constructs a local HostSession. forward controls whether
// attached agent sessions are re-exported over loopback TCP for external
// tooling, per AttachManager.ForwardAgentSessions. dataDirOverride, if
// non-empty, replaces the default XDG data directory the loader callback
// socket is created under.
func NewHostSession(forward bool, dataDirOverride string) (hostsession.HostSession, error) {
	dataDir, err := loader.DataDir(dataDirOverride)
	if err != nil {
		return nil, err
	}

	srv, err := loader.Listen(dataDir)
	if err != nil {
		return nil, err
	}

	s := &hostSession{loaderServer: srv}
	s.AttachManager = hostsession.NewAttachManager(s.performAttachTo)
	s.AttachManager.ForwardAgentSessions = forward
	return s, nil
}

func (s *hostSession) EnumerateProcesses(ctx context.Context) ([]hostsession.ProcessInfo, error) {
	return process.Enumerate(ctx)
}

func (s *hostSession) Spawn(ctx context.Context, path string, args []string) (int, error) {
	return process.Spawn(ctx, path, args)
}

func (s *hostSession) Resume(ctx context.Context, pid int) error {
	return process.Resume(ctx, pid)
}

func (s *hostSession) Kill(ctx context.Context, pid int) error {
	return process.Kill(ctx, pid)
}

func (s *hostSession) Close(ctx context.Context) error {
	err := s.AttachManager.Close(ctx)
	_ = s.loaderServer.Close()
	return err
}

// performAttachTo is the AttachManager's PerformAttachTo hook: it waits
// for the loader that was injected into pid to report in on the callback
// socket, hands it a fresh loopback listener address to connect the agent
// pipe to, accepts that connection, and only then grants the loader
// permission to let its constructor return.
func (s *hostSession) performAttachTo(ctx context.Context, pid int) (io.ReadWriteCloser, hostsession.Transport, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, nil, ferror.NewFailed("listen for agent pipe", err)
	}

	h, err := s.loaderServer.WaitForPID(ctx, pid)
	if err != nil {
		_ = ln.Close()
		return nil, nil, err
	}

	if err := h.SendPipeAddress(ln.Addr().String()); err != nil {
		_ = ln.Close()
		return nil, nil, ferror.NewFailed("send pipe address to loader", err)
	}

	type acceptResult struct {
		conn net.Conn
		err  error
	}
	acceptCh := make(chan acceptResult, 1)
	go func() {
		conn, err := ln.Accept()
		acceptCh <- acceptResult{conn: conn, err: err}
	}()

	select {
	case r := <-acceptCh:
		_ = ln.Close()
		if r.err != nil {
			return nil, nil, ferror.NewFailed("accept agent pipe connection", r.err)
		}
		if err := h.GrantResumePermission(); err != nil {
			_ = r.conn.Close()
			return nil, nil, ferror.NewFailed("grant loader resume permission", err)
		}
		return r.conn, hostsession.NoopTransport, nil
	case <-ctx.Done():
		_ = ln.Close()
		return nil, nil, ferror.NewTimedOut("wait for agent pipe connection", ctx.Err())
	}
}
