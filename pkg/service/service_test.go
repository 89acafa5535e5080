// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostlink/hostlink/pkg/backend"
	"github.com/hostlink/hostlink/pkg/provider"
)

type fakeBackend struct {
	backend.Base
	name       string
	startCalls int
	stopCalls  int
	startErr   error
	stopErr    error
}

func newFakeBackend(name string) *fakeBackend {
	return &fakeBackend{Base: backend.NewBase(), name: name}
}

func (f *fakeBackend) Name() string { return f.name }
func (f *fakeBackend) Start(context.Context) error {
	f.startCalls++
	return f.startErr
}
func (f *fakeBackend) Stop(context.Context) error {
	f.stopCalls++
	return f.stopErr
}

func recv(t *testing.T, ch <-chan *provider.Provider) *provider.Provider {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for provider event")
		return nil
	}
}

func TestService_ForwardsProviderAvailableFromEveryBackend(t *testing.T) {
	t.Parallel()

	s := New()
	b1 := newFakeBackend("b1")
	b2 := newFakeBackend("b2")
	s.AddBackend(b1)
	s.AddBackend(b2)

	ch, cancel := s.ProviderAvailable()
	defer cancel()

	p1 := provider.New("p1", nil, provider.KindLocalSystem, nil)
	p2 := provider.New("p2", nil, provider.KindRemoteSystem, nil)
	b1.EmitAvailable(p1)
	b2.EmitAvailable(p2)

	seen := map[*provider.Provider]bool{recv(t, ch): true, recv(t, ch): true}
	assert.True(t, seen[p1])
	assert.True(t, seen[p2])
}

func TestService_StartStartsBackendsInOrderAndStopsOnFirstError(t *testing.T) {
	t.Parallel()

	s := New()
	b1 := newFakeBackend("b1")
	b2 := newFakeBackend("b2")
	b2.startErr = assert.AnError
	b3 := newFakeBackend("b3")
	s.AddBackend(b1)
	s.AddBackend(b2)
	s.AddBackend(b3)

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, b1.startCalls)
	assert.Equal(t, 1, b2.startCalls)
	assert.Equal(t, 0, b3.startCalls)
}

func TestService_StopAttemptsEveryBackendEvenAfterAnError(t *testing.T) {
	t.Parallel()

	s := New()
	b1 := newFakeBackend("b1")
	b1.stopErr = assert.AnError
	b2 := newFakeBackend("b2")
	s.AddBackend(b1)
	s.AddBackend(b2)

	err := s.Stop(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, b1.stopCalls)
	assert.Equal(t, 1, b2.stopCalls)
}

func TestService_RemoveBackendStopsForwardingItsEvents(t *testing.T) {
	t.Parallel()

	s := New()
	b := newFakeBackend("b")
	s.AddBackend(b)
	s.RemoveBackend(b)

	ch, cancel := s.ProviderAvailable()
	defer cancel()

	p := provider.New("p", nil, provider.KindLocalSystem, nil)
	b.EmitAvailable(p)

	select {
	case <-ch:
		t.Fatal("expected no forwarded event after RemoveBackend")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTCPOnly_RegistersOnlyTheTCPBackend(t *testing.T) {
	t.Parallel()

	s := TCPOnly("127.0.0.1:9999")
	require.Len(t, s.backends, 1)
	assert.Equal(t, "tcp", s.backends[0].Name())
}

func TestLocalOnly_RegistersOnlyTheLocalBackend(t *testing.T) {
	t.Parallel()

	s := LocalOnly(true, "")
	require.Len(t, s.backends, 1)
	assert.Equal(t, "local", s.backends[0].Name())
}
