// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package backend defines the pluggable discovery interface each
// transport family (local OS, USB-tethered mobile, TCP) implements:
// start/stop plus the two provider availability signals.
package backend

import (
	"context"

	"github.com/hostlink/hostlink/pkg/event"
	"github.com/hostlink/hostlink/pkg/provider"
)

// Backend is an independent source of Provider events for one transport
// family. Implementations are otherwise opaque: Service only ever calls
// Start, Stop, and subscribes to the two signals.
type Backend interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	ProviderAvailable() (<-chan *provider.Provider, func())
	ProviderUnavailable() (<-chan *provider.Provider, func())
}

// Base provides the broadcaster plumbing most Backend implementations
// share: embed it and call emitAvailable/emitUnavailable as providers
// come and go.
type Base struct {
	available   *event.Broadcaster[*provider.Provider]
	unavailable *event.Broadcaster[*provider.Provider]
}

// NewBase constructs a Base with empty broadcasters.
func NewBase() Base {
	return Base{
		available:   event.NewBroadcaster[*provider.Provider](),
		unavailable: event.NewBroadcaster[*provider.Provider](),
	}
}

// ProviderAvailable implements Backend.
func (b *Base) ProviderAvailable() (<-chan *provider.Provider, func()) {
	return b.available.Subscribe()
}

// ProviderUnavailable implements Backend.
func (b *Base) ProviderUnavailable() (<-chan *provider.Provider, func()) {
	return b.unavailable.Subscribe()
}

// EmitAvailable notifies subscribers that p is now reachable.
func (b *Base) EmitAvailable(p *provider.Provider) {
	b.available.Emit(p)
}

// EmitUnavailable notifies subscribers that p is no longer reachable.
func (b *Base) EmitUnavailable(p *provider.Provider) {
	b.unavailable.Emit(p)
}
