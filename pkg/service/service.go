// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package service implements the top-level aggregator: it owns an
// ordered collection of backends and fans their provider events out to
// its own subscribers, unchanged and without deduplication.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/hostlink/hostlink/pkg/backend"
	"github.com/hostlink/hostlink/pkg/event"
	"github.com/hostlink/hostlink/pkg/provider"
)

// Service owns an ordered list of backends. Subscribers see the union of
// every backend's provider events in registration order.
type Service struct {
	mu       sync.Mutex
	backends []backend.Backend
	cancels  map[backend.Backend][]func()

	available   *event.Broadcaster[*provider.Provider]
	unavailable *event.Broadcaster[*provider.Provider]
}

// New constructs an empty Service.
func New() *Service {
	return &Service{
		cancels:     make(map[backend.Backend][]func()),
		available:   event.NewBroadcaster[*provider.Provider](),
		unavailable: event.NewBroadcaster[*provider.Provider](),
	}
}

// AddBackend appends b and wires its provider_available/provider_unavailable
// signals through to the service's own signals of the same name. Events
// the backend emits after this call are forwarded unchanged.
func (s *Service) AddBackend(b backend.Backend) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.backends = append(s.backends, b)

	availCh, availCancel := b.ProviderAvailable()
	unavailCh, unavailCancel := b.ProviderUnavailable()
	s.cancels[b] = []func(){availCancel, unavailCancel}

	go s.forward(availCh, s.available)
	go s.forward(unavailCh, s.unavailable)
}

func (s *Service) forward(src <-chan *provider.Provider, dst *event.Broadcaster[*provider.Provider]) {
	for p := range src {
		dst.Emit(p)
	}
}

// RemoveBackend removes b. It does not synthesise unavailable events for
// providers b exposed; stop the backend first for tidy teardown.
func (s *Service) RemoveBackend(b backend.Backend) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.backends {
		if existing == b {
			s.backends = append(s.backends[:i], s.backends[i+1:]...)
			break
		}
	}
	for _, cancel := range s.cancels[b] {
		cancel()
	}
	delete(s.cancels, b)
}

// ProviderAvailable subscribes to the union of every backend's
// provider_available events.
func (s *Service) ProviderAvailable() (<-chan *provider.Provider, func()) {
	return s.available.Subscribe()
}

// ProviderUnavailable subscribes to the union of every backend's
// provider_unavailable events.
func (s *Service) ProviderUnavailable() (<-chan *provider.Provider, func()) {
	return s.unavailable.Subscribe()
}

// Start starts each backend in insertion order, returning the first
// error encountered.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	backends := append([]backend.Backend{}, s.backends...)
	s.mu.Unlock()

	for _, b := range backends {
		if err := b.Start(ctx); err != nil {
			return fmt.Errorf("start backend %q: %w", b.Name(), err)
		}
	}
	return nil
}

// Stop stops each backend in insertion order, returning the first error
// encountered but still attempting to stop the rest.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	backends := append([]backend.Backend{}, s.backends...)
	s.mu.Unlock()

	var firstErr error
	for _, b := range backends {
		if err := b.Stop(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop backend %q: %w", b.Name(), err)
		}
	}
	return firstErr
}
