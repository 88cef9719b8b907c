package ipc

import (
	"context"
	"net"
	"os"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duplexio/duplex/pkg/types"
)

func TestUnixTransportListenRequiresPath(t *testing.T) {
	tr := &UnixTransport{}

	_, err := tr.Listen(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsErrCode(err, types.ErrCodeSetup))

	_, err = tr.Dial(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsErrCode(err, types.ErrCodeSetup))
}

func TestUnixTransportListenRejectsDirectory(t *testing.T) {
	tr := &UnixTransport{Path: t.TempDir()}

	_, err := tr.Listen(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsErrCode(err, types.ErrCodeSocketCreation))
}

func TestUnixTransportListenRemovesStaleFile(t *testing.T) {
	path := testSocketPath(t)
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0644))

	tr := &UnixTransport{Path: path}
	ln, err := tr.Listen(context.Background())
	require.NoError(t, err)
	defer ln.Close()

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSocket)
}

func TestUnixTransportDialFailure(t *testing.T) {
	tr := &UnixTransport{Path: testSocketPath(t)}

	_, err := tr.Dial(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsErrCode(err, types.ErrCodeSocketCreation))
}

func TestUnixTransportTeardown(t *testing.T) {
	path := testSocketPath(t)
	tr := &UnixTransport{Path: path}

	ln, err := tr.Listen(context.Background())
	require.NoError(t, err)
	ln.Close()

	require.NoError(t, tr.Teardown())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Removing an already-removed path is not a fault
	require.NoError(t, tr.Teardown())
}

func TestUnixTransportAssembleCredentials(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("peer credentials require SO_PEERCRED")
	}

	path := testSocketPath(t)
	tr := &UnixTransport{Path: path}

	ln, err := tr.Listen(context.Background())
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	raw, err := tr.Dial(context.Background())
	require.NoError(t, err)
	defer raw.Close()

	serverSide := <-accepted
	conn, err := tr.Assemble(serverSide, ModePersistent)
	require.NoError(t, err)

	// Both ends live in this process, so the reported pid is our own
	creds := conn.Credentials()
	require.NotNil(t, creds)
	assert.Equal(t, int32(os.Getpid()), creds.PID)
	assert.Equal(t, int32(os.Getuid()), creds.UID)
	assert.Equal(t, int32(os.Getgid()), creds.GID)
}

func TestTCPTransportRoundTrip(t *testing.T) {
	tr := &TCPTransport{Host: "127.0.0.1", Port: 0}

	ln, err := tr.Listen(context.Background())
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	dialer := &TCPTransport{
		Host: "127.0.0.1",
		Port: ln.Addr().(*net.TCPAddr).Port,
	}
	raw, err := dialer.Dial(context.Background())
	require.NoError(t, err)
	defer raw.Close()

	serverSide := <-accepted
	conn, err := tr.Assemble(serverSide, ModeEphemeral)
	require.NoError(t, err)

	// Network transports cannot report peer credentials
	assert.Nil(t, conn.Credentials())
	assert.Equal(t, ModeEphemeral, conn.Mode())
	assert.NotNil(t, conn.LocalAddr())
	assert.NotNil(t, conn.RemoteAddr())

	require.NoError(t, tr.Teardown())
}

func TestTCPTransportDialRequiresEndpoint(t *testing.T) {
	tr := &TCPTransport{}

	_, err := tr.Dial(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsErrCode(err, types.ErrCodeSetup))
}

func TestTransportString(t *testing.T) {
	assert.Equal(t, "unix:///tmp/x.sock", (&UnixTransport{Path: "/tmp/x.sock"}).String())
	assert.Equal(t, "tcp://127.0.0.1:7600", (&TCPTransport{Host: "127.0.0.1", Port: 7600}).String())
}
