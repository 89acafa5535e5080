// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostlink/hostlink/pkg/provider"
)

func recvProvider(t *testing.T, ch <-chan *provider.Provider) *provider.Provider {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for provider event")
		return nil
	}
}

func TestBackend_StartEmitsOneLocalSystemProvider(t *testing.T) {
	t.Parallel()

	b := NewBackend(false, t.TempDir())
	availCh, unsub := b.ProviderAvailable()
	defer unsub()

	require.NoError(t, b.Start(context.Background()))

	p := recvProvider(t, availCh)
	assert.Equal(t, "Local System", p.Name)
	assert.Equal(t, provider.KindLocalSystem, p.Kind)
}

func TestBackend_StartTwiceDoesNotEmitTwice(t *testing.T) {
	t.Parallel()

	b := NewBackend(false, t.TempDir())
	availCh, unsub := b.ProviderAvailable()
	defer unsub()

	require.NoError(t, b.Start(context.Background()))
	recvProvider(t, availCh)

	require.NoError(t, b.Start(context.Background()))
	select {
	case <-availCh:
		t.Fatal("expected no second provider-available event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBackend_StopEmitsUnavailableForTheSameProvider(t *testing.T) {
	t.Parallel()

	b := NewBackend(false, t.TempDir())
	availCh, unsub1 := b.ProviderAvailable()
	defer unsub1()
	unavailCh, unsub2 := b.ProviderUnavailable()
	defer unsub2()

	require.NoError(t, b.Start(context.Background()))
	started := recvProvider(t, availCh)

	require.NoError(t, b.Stop(context.Background()))
	stopped := recvProvider(t, unavailCh)
	assert.Same(t, started, stopped)
}

func TestBackend_StopWithoutStartIsANoop(t *testing.T) {
	t.Parallel()

	b := NewBackend(false, t.TempDir())
	assert.NoError(t, b.Stop(context.Background()))
}
