// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_FanOutInOrder(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster[string]()
	ch1, _ := b.Subscribe()
	ch2, _ := b.Subscribe()

	b.Emit("a")
	b.Emit("b")

	for _, ch := range []<-chan string{ch1, ch2} {
		assert.Equal(t, "a", mustRecv(t, ch))
		assert.Equal(t, "b", mustRecv(t, ch))
	}
}

func TestBroadcaster_LateSubscriberMissesEarlierEvents(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster[int]()
	b.Emit(1)
	ch, _ := b.Subscribe()
	b.Emit(2)

	assert.Equal(t, 2, mustRecv(t, ch))
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster[int]()
	ch, unsubscribe := b.Subscribe()
	unsubscribe()

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")

	// Emitting after unsubscribe must not panic.
	b.Emit(42)
}

func TestBroadcaster_Close(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster[int]()
	ch1, _ := b.Subscribe()
	ch2, _ := b.Subscribe()

	b.Close()

	_, ok1 := <-ch1
	_, ok2 := <-ch2
	assert.False(t, ok1)
	assert.False(t, ok2)
}

func TestBroadcaster_EmitBlocksRatherThanDroppingWhenBufferIsFull(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster[int]()
	ch, _ := b.Subscribe()

	const total = 200 // well past the subscriber channel's buffer capacity
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			b.Emit(i)
		}
	}()

	for i := 0; i < total; i++ {
		assert.Equal(t, i, mustRecv(t, ch))
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emitter goroutine never finished")
	}
}

func mustRecv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		require.FailNow(t, "timed out waiting for event")
		var zero T
		return zero
	}
}
