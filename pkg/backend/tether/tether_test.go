// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tether

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackend_StartAndStopSucceedWithoutEmittingAnyProvider(t *testing.T) {
	t.Parallel()

	b := NewBackend()
	availCh, unsub1 := b.ProviderAvailable()
	defer unsub1()
	unavailCh, unsub2 := b.ProviderUnavailable()
	defer unsub2()

	require.NoError(t, b.Start(context.Background()))
	require.NoError(t, b.Stop(context.Background()))

	select {
	case <-availCh:
		t.Fatal("tether backend should never discover a device yet")
	case <-unavailCh:
		t.Fatal("tether backend should never retract a device it never discovered")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBackend_Name(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "tether", NewBackend().Name())
}
