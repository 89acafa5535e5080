package service

import (
	"github.com/hostlink/hostlink/pkg/backend/local"
	"github.com/hostlink/hostlink/pkg/backend/tcpbackend"
)

// Default builds the Service preset most callers want: the local-system
// backend, USB tethering when available on this platform, and a TCP
// backend for any remote addresses supplied. dataDirOverride may be
// empty to use the platform default loader data directory. forward sets
// ForwardAgentSessions on the local backend's sessions.
func Default(forward bool, dataDirOverride string, remoteAddrs ...string) *Service {
	s := New()
	s.AddBackend(local.NewBackend(forward, dataDirOverride))
	if tb := defaultTetherBackend(); tb != nil {
		s.AddBackend(tb)
	}
	if len(remoteAddrs) > 0 {
		s.AddBackend(tcpbackend.NewBackend(remoteAddrs...))
	}
	return s
}

// LocalOnly builds a Service exposing only the local-system backend.
func LocalOnly(forward bool, dataDirOverride string) *Service {
	s := New()
	s.AddBackend(local.NewBackend(forward, dataDirOverride))
	return s
}

// TCPOnly builds a Service exposing only the given remote addresses.
func TCPOnly(remoteAddrs ...string) *Service {
	s := New()
	s.AddBackend(tcpbackend.NewBackend(remoteAddrs...))
	return s
}
