// Package tether implements the USB-tethered mobile backend. The default
// service preset only registers it on platforms other than Linux (see
// pkg/service's presets), matching the host tooling this transport
// family targets.
//
// No USB enumeration library is wired in here: nothing in the retrieved
// dependency corpus offered one, so this backend currently runs as a
// structurally complete backend.Backend that never discovers a device.
// It exists so Service's default preset has a concrete backend to
// register on non-Linux hosts and so the device-discovery loop has a
// concrete place to grow into.
package tether

import (
	"context"

	"github.com/hostlink/hostlink/pkg/backend"
)

// Backend is the USB-tethered mobile backend.
type Backend struct {
	backend.Base
}

// NewBackend constructs the tether backend.
func NewBackend() *Backend {
	return &Backend{Base: backend.NewBase()}
}

// Name implements backend.Backend.
func (b *Backend) Name() string { return "tether" }

// Start implements backend.Backend. Device discovery is not yet wired in;
// Start succeeds and simply never emits a Provider.
func (b *Backend) Start(_ context.Context) error { return nil }

// Stop implements backend.Backend.
func (b *Backend) Stop(_ context.Context) error { return nil }
