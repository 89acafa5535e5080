//go:build !linux

package service

import (
	"github.com/hostlink/hostlink/pkg/backend"
	"github.com/hostlink/hostlink/pkg/backend/tether"
)

// defaultTetherBackend returns the USB-tethered mobile backend, included
// in the default preset on every platform but Linux.
func defaultTetherBackend() backend.Backend { return tether.NewBackend() }
