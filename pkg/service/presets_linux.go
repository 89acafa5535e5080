//go:build linux

package service

import "github.com/hostlink/hostlink/pkg/backend"

// defaultTetherBackend returns nil on Linux: USB tethering is not part of
// the default preset on this platform.
func defaultTetherBackend() backend.Backend { return nil }
