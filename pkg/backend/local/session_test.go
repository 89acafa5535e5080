// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package local

import (
	"context"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostlink/hostlink/pkg/ferror"
	"github.com/hostlink/hostlink/pkg/loader"
)

// dialLoader connects to the callback socket and sends pid, mimicking
// what the injected loader binary itself would do on startup.
func dialLoader(t *testing.T, sockAddr string, pid int) net.Conn {
	t.Helper()
	conn, err := net.Dial("unix", sockAddr)
	require.NoError(t, err)
	payload := strconv.Itoa(pid)
	_, err = conn.Write(append([]byte{byte(len(payload))}, payload...))
	require.NoError(t, err)
	return conn
}

func readOneFrame(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	var lengthByte [1]byte
	_, err := io.ReadFull(conn, lengthByte[:])
	require.NoError(t, err)
	buf := make([]byte, lengthByte[0])
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	return buf
}

func TestNewHostSession_CreatesLoaderCallbackSocketUnderDataDir(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()
	session, err := NewHostSession(false, dataDir)
	require.NoError(t, err)
	defer session.Close(context.Background())

	hs := session.(*hostSession)
	assert.FileExists(t, hs.loaderServer.Addr())
}

func TestPerformAttachTo_CompletesFullLoaderHandshake(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()
	session, err := NewHostSession(false, dataDir)
	require.NoError(t, err)
	defer session.Close(context.Background())
	hs := session.(*hostSession)

	const pid = 4242
	loaderDone := make(chan struct{})
	var pipeAddr []byte
	go func() {
		defer close(loaderDone)
		conn := dialLoader(t, hs.loaderServer.Addr(), pid)
		defer conn.Close()
		pipeAddr = readOneFrame(t, conn)

		agentConn, err := net.Dial("tcp", string(pipeAddr))
		require.NoError(t, err)
		defer agentConn.Close()

		readOneFrame(t, conn) // resume permission
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	stream, transport, err := hs.performAttachTo(ctx, pid)
	require.NoError(t, err)
	defer stream.Close()
	assert.NotNil(t, transport)

	<-loaderDone
	assert.NotEmpty(t, pipeAddr)
}

func TestPerformAttachTo_TimesOutWhenNoLoaderReports(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()
	session, err := NewHostSession(false, dataDir)
	require.NoError(t, err)
	defer session.Close(context.Background())
	hs := session.(*hostSession)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, _, err = hs.performAttachTo(ctx, 99999)
	require.Error(t, err)
	assert.True(t, ferror.IsTimedOut(err))
}

func TestNewHostSession_DataDirOverrideIsUsedVerbatim(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()
	got, err := loader.DataDir(dataDir)
	require.NoError(t, err)
	assert.Equal(t, dataDir, got)
}
