// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package provider models one reachable target system: a stable identity
// (name, icon, kind) plus a factory for the HostSession used to enumerate,
// spawn, and attach to processes on it.
package provider

import (
	"context"
	"sync"

	"github.com/hostlink/hostlink/pkg/event"
	"github.com/hostlink/hostlink/pkg/hostsession"
	"github.com/hostlink/hostlink/pkg/ids"
)

// Kind identifies the transport family a Provider was discovered through.
type Kind string

// Provider kinds.
const (
	// KindLocalSystem is the process's own machine.
	KindLocalSystem Kind = "local-system"
	// KindLocalTether is a USB-tethered mobile device.
	KindLocalTether Kind = "local-tether"
	// KindRemoteSystem is a remote host reached over TCP.
	KindRemoteSystem Kind = "remote-system"
)

// Icon carries optional display artwork for a Provider. Either field may
// be left zero when a backend has no icon to offer.
type Icon struct {
	Data   []byte
	Format string
}

// SessionClosedEvent is emitted whenever one of a Provider's attached
// sessions terminates because the peer vanished or the transport errored;
// Err describes the cause. A deliberate host-initiated close emits no
// event.
type SessionClosedEvent struct {
	ID  ids.AgentSessionID
	Err error
}

// Factory constructs the HostSession for a Provider. It is supplied by the
// owning Backend and invoked lazily by Create until one call succeeds;
// after that the resulting HostSession is cached.
type Factory func(ctx context.Context) (hostsession.HostSession, error)

// Provider represents one reachable target system.
type Provider struct {
	Name string
	Icon *Icon
	Kind Kind

	factory Factory
	closed  *event.Broadcaster[SessionClosedEvent]

	mu      sync.Mutex
	session hostsession.HostSession
}

// New builds a Provider. factory is called lazily by Create to obtain the
// underlying HostSession.
func New(name string, icon *Icon, kind Kind, factory Factory) *Provider {
	return &Provider{
		Name:    name,
		Icon:    icon,
		Kind:    kind,
		factory: factory,
		closed:  event.NewBroadcaster[SessionClosedEvent](),
	}
}

// Create returns the Provider's HostSession, constructing it on first call
// and wiring its session-closed notifications through to AgentSessionClosed
// subscribers. Subsequent calls return the cached session.
func (p *Provider) Create(ctx context.Context) (hostsession.HostSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session != nil {
		return p.session, nil
	}

	session, err := p.factory(ctx)
	if err != nil {
		return nil, err
	}

	session.OnAgentSessionClosed(func(id ids.AgentSessionID, closeErr error) {
		p.closed.Emit(SessionClosedEvent{ID: id, Err: closeErr})
	})

	p.session = session
	return session, nil
}

// AgentSessionClosed subscribes to this Provider's session-closed events.
func (p *Provider) AgentSessionClosed() (<-chan SessionClosedEvent, func()) {
	return p.closed.Subscribe()
}
