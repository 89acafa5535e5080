// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package hostsession

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"syscall"

	"golang.org/x/sync/singleflight"

	"github.com/hostlink/hostlink/pkg/ferror"
	"github.com/hostlink/hostlink/pkg/ids"
	"github.com/hostlink/hostlink/pkg/rpcsession"
)

// BaseAgentPort is the first id handed out by an AttachManager, and in
// forwarding mode the first loopback port attempted.
const BaseAgentPort = 27043

// PerformAttachTo is the subclass hook a concrete HostSession supplies:
// given a target pid, acquire a bidirectional byte stream to its
// in-process agent plus the opaque transport object that must outlive the
// stream. Backends fill this in; AttachManager only knows it as a func.
type PerformAttachTo func(ctx context.Context, pid int) (stream io.ReadWriteCloser, transport Transport, err error)

// AttachManager is a reusable implementation of attach/obtain/close. A
// concrete HostSession embeds it and supplies PerformAttachTo; see
// pkg/hostsession for the composition convention this follows (prefer
// embedding over a subtype hierarchy).
type AttachManager struct {
	// ForwardAgentSessions is read once per attach_to call; flipping it
	// afterwards has no effect on sessions already attached.
	ForwardAgentSessions bool

	PerformAttachTo PerformAttachTo

	mu             sync.Mutex
	entries        map[ids.AgentSessionID]*entry
	pidToID        map[int]ids.AgentSessionID
	nextPort       ids.AgentSessionID
	closedHandlers []func(ids.AgentSessionID, error)

	attachGroup singleflight.Group
}

// NewAttachManager constructs an AttachManager ready for use. hook is the
// concrete PerformAttachTo implementation for the owning backend.
func NewAttachManager(hook PerformAttachTo) *AttachManager {
	return &AttachManager{
		PerformAttachTo: hook,
		entries:         make(map[ids.AgentSessionID]*entry),
		pidToID:         make(map[int]ids.AgentSessionID),
		nextPort:        BaseAgentPort,
	}
}

// AttachTo implements the central attach_to state machine described in
// the attach manager design: dedupe by pid, acquire a transport, bring up
// RPC within the fixed deadline, allocate an id, register the entry, and
// optionally re-export it.
func (m *AttachManager) AttachTo(ctx context.Context, pid int) (ids.AgentSessionID, error) {
	m.mu.Lock()
	if id, ok := m.pidToID[pid]; ok {
		m.mu.Unlock()
		return id, nil
	}
	m.mu.Unlock()

	key := strconv.Itoa(pid)
	v, err, _ := m.attachGroup.Do(key, func() (interface{}, error) {
		// Recheck after acquiring the in-flight slot: a previous racer may
		// have just finished registering this pid.
		m.mu.Lock()
		if id, ok := m.pidToID[pid]; ok {
			m.mu.Unlock()
			return id, nil
		}
		m.mu.Unlock()
		return m.attachOnce(ctx, pid)
	})
	if err != nil {
		return 0, err
	}
	return v.(ids.AgentSessionID), nil
}

func (m *AttachManager) attachOnce(ctx context.Context, pid int) (ids.AgentSessionID, error) {
	stream, transport, err := m.PerformAttachTo(ctx, pid)
	if err != nil {
		return 0, ferror.NewFailed("attach to pid", err)
	}

	rpcConn, err := rpcsession.BringUp(ctx, stream, nil)
	if err != nil {
		_ = transport.Close()
		return 0, err // already a *ferror.Error (TimedOut or Failed)
	}

	forward := m.ForwardAgentSessions

	session := newAgentSessionProxy(rpcConn)

	// Allocate and register under one lock so a concurrent attach cannot
	// be handed the same id before this entry is in the table.
	m.mu.Lock()
	id, err := m.allocateIDLocked(forward)
	var e *entry
	if err == nil {
		e = newEntry(id, pid, transport, rpcConn, session)
		m.entries[id] = e
		m.pidToID[pid] = id
	}
	m.mu.Unlock()
	if err != nil {
		_ = rpcConn.Close()
		_ = transport.Close()
		return 0, err
	}

	rpcConn2 := rpcConn
	go func() {
		<-rpcConn2.Done()
		m.onConnectionClosed(e, rpcConn2)
	}()

	if forward {
		addr := net.JoinHostPort("127.0.0.1", id.String())
		if err := e.serve(addr); err != nil {
			_ = rpcConn.Close()
			m.mu.Lock()
			delete(m.entries, id)
			delete(m.pidToID, pid)
			m.mu.Unlock()
			return 0, ferror.NewFailed("start re-export server", err)
		}
	}

	return id, nil
}

// allocateIDLocked must be called with m.mu held.
func (m *AttachManager) allocateIDLocked(forward bool) (ids.AgentSessionID, error) {
	if !forward {
		id := m.nextPort
		m.nextPort++
		return id, nil
	}
	return m.probeLoopbackPortLocked()
}

// probeLoopbackPortLocked scans upward from BaseAgentPort for the
// smallest port that is both free in our own table and bindable on
// 127.0.0.1. A bind failure of AddressInUse advances the scan; any other
// probe error is treated as available (see the open question about this
// in the design notes).
func (m *AttachManager) probeLoopbackPortLocked() (ids.AgentSessionID, error) {
	for port := ids.AgentSessionID(BaseAgentPort); ; port++ {
		if _, taken := m.entries[port]; taken {
			continue
		}

		ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", port.String()))
		if err == nil {
			_ = ln.Close()
			return port, nil
		}
		if isAddrInUse(err) {
			continue
		}
		// Any other probe error: accept the port anyway, the consumer
		// will see the real error when it tries to serve.
		return port, nil
	}
}

func isAddrInUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}

// ObtainAgentSession returns the proxy for the entry with matching id.
func (m *AttachManager) ObtainAgentSession(id ids.AgentSessionID) (AgentSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, ferror.NewNotFound(fmt.Sprintf("no agent session with id %s", id), nil)
	}
	return e.session, nil
}

// OnAgentSessionClosed registers a callback fired whenever an entry is
// removed for any reason other than a deliberate close initiated from
// within this package (see onConnectionClosed).
func (m *AttachManager) OnAgentSessionClosed(fn func(ids.AgentSessionID, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closedHandlers = append(m.closedHandlers, fn)
}

// onConnectionClosed routes the RPC connection's closed event: a
// deliberate, error-free, locally-initiated close requires no action
// (the initiating call site already owns cleanup); anything else means
// the peer vanished or the transport errored, so we remove the entry,
// close it, and notify observers.
func (m *AttachManager) onConnectionClosed(e *entry, conn interface{ RemoteVanished() bool }) {
	remoteVanished := conn.RemoteVanished()
	if !remoteVanished {
		// Closed by us; the initiating close() path owns teardown.
		return
	}

	m.mu.Lock()
	found, ok := m.entries[e.id]
	if ok {
		delete(m.entries, e.id)
		delete(m.pidToID, e.pid)
	}
	handlers := append([]func(ids.AgentSessionID, error){}, m.closedHandlers...)
	m.mu.Unlock()

	if !ok {
		// Programming error: a closed callback fired with no matching
		// entry in the table.
		panic(fmt.Sprintf("agent session %s closed with no matching entry", e.id))
	}

	go found.close()

	var closeErr error = errors.New("agent connection vanished")
	for _, h := range handlers {
		h(e.id, closeErr)
	}
}

// Close closes every entry and clears the table. Order across entries is
// unspecified; this implementation closes them concurrently.
func (m *AttachManager) Close(_ context.Context) error {
	m.mu.Lock()
	all := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		all = append(all, e)
	}
	m.entries = make(map[ids.AgentSessionID]*entry)
	m.pidToID = make(map[int]ids.AgentSessionID)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, e := range all {
		wg.Add(1)
		go func(e *entry) {
			defer wg.Done()
			e.close()
		}(e)
	}
	wg.Wait()
	return nil
}
