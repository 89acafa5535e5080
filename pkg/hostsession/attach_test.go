// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package hostsession

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/jsonrpc2"

	"github.com/hostlink/hostlink/pkg/ferror"
	"github.com/hostlink/hostlink/pkg/ids"
)

// pingPeer wraps one half of a net.Pipe in a minimal jsonrpc2 server that
// answers Ping, standing in for the in-target agent during bring-up.
func pingPeer(t *testing.T, conn net.Conn) *jsonrpc2.Conn {
	t.Helper()
	handler := jsonrpc2.HandlerFunc(func(_ context.Context, req *jsonrpc2.Request) (interface{}, error) {
		return true, nil
	})
	srv := jsonrpc2.NewConn(jsonrpc2.NewRawStream(conn))
	srv.Go(context.Background(), handler)
	return srv
}

// countingHook returns a PerformAttachTo that hands out one half of a
// fresh net.Pipe per call (with the other half answering Ping) and counts
// how many times it was actually invoked.
func countingHook(t *testing.T) (PerformAttachTo, *int32, *[]net.Conn, *sync.Mutex) {
	var calls int32
	var peers []net.Conn
	var mu sync.Mutex
	hook := func(_ context.Context, _ int) (io.ReadWriteCloser, Transport, error) {
		atomic.AddInt32(&calls, 1)
		client, server := net.Pipe()
		pingPeer(t, server)
		mu.Lock()
		peers = append(peers, server)
		mu.Unlock()
		return client, NoopTransport, nil
	}
	return hook, &calls, &peers, &mu
}

func TestAttachTo_DedupesConcurrentCallsForSamePID(t *testing.T) {
	t.Parallel()

	hook, calls, _, _ := countingHook(t)
	m := NewAttachManager(hook)

	const n = 20
	results := make([]ids.AgentSessionID, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := m.AttachTo(context.Background(), 4242)
			require.NoError(t, err)
			results[i] = id
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Equal(t, results[0], results[i])
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
}

func TestAttachTo_DistinctPIDsGetDistinctIDs(t *testing.T) {
	t.Parallel()

	hook, _, _, _ := countingHook(t)
	m := NewAttachManager(hook)

	id1, err := m.AttachTo(context.Background(), 100)
	require.NoError(t, err)
	id2, err := m.AttachTo(context.Background(), 200)
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
}

func TestAttachTo_ProbeSkipsPortsAlreadyBoundByAnExternalProcess(t *testing.T) {
	t.Parallel()

	occupied := make([]net.Listener, 0, 2)
	for _, port := range []ids.AgentSessionID{BaseAgentPort, BaseAgentPort + 1} {
		ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", port.String()))
		require.NoError(t, err)
		occupied = append(occupied, ln)
	}
	defer func() {
		for _, ln := range occupied {
			ln.Close()
		}
	}()

	hook, _, _, _ := countingHook(t)
	m := NewAttachManager(hook)
	m.ForwardAgentSessions = true
	defer m.Close(context.Background())

	id, err := m.AttachTo(context.Background(), 4242)
	require.NoError(t, err)
	assert.Equal(t, ids.AgentSessionID(BaseAgentPort+2), id)

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", id.String()))
	require.NoError(t, err)
	conn.Close()
}

func TestObtainAgentSession_UnknownID(t *testing.T) {
	t.Parallel()

	m := NewAttachManager(nil)
	_, err := m.ObtainAgentSession(999)
	require.Error(t, err)
	assert.True(t, ferror.IsNotFound(err))
}

func TestObtainAgentSession_AfterAttach(t *testing.T) {
	t.Parallel()

	hook, _, _, _ := countingHook(t)
	m := NewAttachManager(hook)

	id, err := m.AttachTo(context.Background(), 1)
	require.NoError(t, err)

	session, err := m.ObtainAgentSession(id)
	require.NoError(t, err)
	assert.NotNil(t, session)
}

func TestAttachTo_TimesOutWhenAgentNeverResponds(t *testing.T) {
	t.Parallel()

	hook := func(_ context.Context, _ int) (io.ReadWriteCloser, Transport, error) {
		client, server := net.Pipe()
		// The peer never answers Ping, so bring-up must eventually time out.
		t.Cleanup(func() { _ = server.Close() })
		return client, NoopTransport, nil
	}
	m := NewAttachManager(hook)

	start := time.Now()
	_, err := m.AttachTo(context.Background(), 1)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, ferror.IsTimedOut(err))
	assert.GreaterOrEqual(t, elapsed, 2*time.Second)
}

func TestClose_IsIdempotentAndClearsTheTable(t *testing.T) {
	t.Parallel()

	hook, _, _, _ := countingHook(t)
	m := NewAttachManager(hook)

	id, err := m.AttachTo(context.Background(), 1)
	require.NoError(t, err)

	require.NoError(t, m.Close(context.Background()))
	require.NoError(t, m.Close(context.Background()))

	_, err = m.ObtainAgentSession(id)
	require.Error(t, err)
	assert.True(t, ferror.IsNotFound(err))
}

func TestOnAgentSessionClosed_FiresWhenPeerVanishes(t *testing.T) {
	t.Parallel()

	hook, _, peers, peersMu := countingHook(t)
	m := NewAttachManager(hook)

	id, err := m.AttachTo(context.Background(), 7)
	require.NoError(t, err)

	fired := make(chan ids.AgentSessionID, 1)
	m.OnAgentSessionClosed(func(closedID ids.AgentSessionID, _ error) {
		fired <- closedID
	})

	peersMu.Lock()
	server := (*peers)[0]
	peersMu.Unlock()
	require.NoError(t, server.Close())

	select {
	case closedID := <-fired:
		assert.Equal(t, id, closedID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for agent session closed callback")
	}

	_, err = m.ObtainAgentSession(id)
	require.Error(t, err)
	assert.True(t, ferror.IsNotFound(err))
}

func TestOnAgentSessionClosed_DoesNotFireOnDeliberateClose(t *testing.T) {
	t.Parallel()

	hook, _, _, _ := countingHook(t)
	m := NewAttachManager(hook)

	_, err := m.AttachTo(context.Background(), 7)
	require.NoError(t, err)

	fired := make(chan struct{}, 1)
	m.OnAgentSessionClosed(func(ids.AgentSessionID, error) {
		fired <- struct{}{}
	})

	require.NoError(t, m.Close(context.Background()))

	select {
	case <-fired:
		t.Fatal("closed handler should not fire for a deliberate close")
	case <-time.After(200 * time.Millisecond):
	}
}
