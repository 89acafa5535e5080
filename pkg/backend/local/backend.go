package local

import (
	"context"
	"sync"

	"github.com/hostlink/hostlink/pkg/backend"
	"github.com/hostlink/hostlink/pkg/hostsession"
	"github.com/hostlink/hostlink/pkg/provider"
)

// Backend exposes a single Provider for the local machine. It is always
// available: Start emits it immediately and Stop retracts it.
type Backend struct {
	backend.Base

	forward         bool
	dataDirOverride string

	mu sync.Mutex
	p  *provider.Provider
}

// NewBackend constructs the local-system backend. forward and
// dataDirOverride are threaded through to every HostSession it creates;
// dataDirOverride may be empty to use the platform default.
func NewBackend(forward bool, dataDirOverride string) *Backend {
	return &Backend{Base: backend.NewBase(), forward: forward, dataDirOverride: dataDirOverride}
}

// Name implements backend.Backend.
func (b *Backend) Name() string { return "local" }

// Start implements backend.Backend.
func (b *Backend) Start(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.p != nil {
		return nil
	}

	forward := b.forward
	dataDirOverride := b.dataDirOverride
	p := provider.New("Local System", nil, provider.KindLocalSystem, func(_ context.Context) (hostsession.HostSession, error) {
		return NewHostSession(forward, dataDirOverride)
	})
	b.p = p
	b.EmitAvailable(p)
	return nil
}

// Stop implements backend.Backend.
func (b *Backend) Stop(_ context.Context) error {
	b.mu.Lock()
	p := b.p
	b.p = nil
	b.mu.Unlock()

	if p == nil {
		return nil
	}
	b.EmitUnavailable(p)
	return nil
}
