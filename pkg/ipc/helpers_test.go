package ipc

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/duplexio/duplex/internal/config"
	"github.com/duplexio/duplex/internal/logger"
)

// newTestLogger returns a quiet logger for tests
func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"})
	require.NoError(t, err)
	return log
}

// testSocketPath returns a socket path inside a per-test temp dir
func testSocketPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "duplex-test.sock")
}

// pipeConnection wraps one end of an in-memory pipe as a Connection and
// returns the other end for the test to drive
func pipeConnection(t *testing.T, mode Mode) (*Connection, net.Conn) {
	t.Helper()
	local, remote := net.Pipe()
	t.Cleanup(func() {
		local.Close()
		remote.Close()
	})
	return newConnection(local, nil, mode), remote
}

// startRawUnixServer listens on path and runs handle for every accepted
// socket. The listener is closed with the test.
func startRawUnixServer(t *testing.T, path string, handle func(conn net.Conn)) {
	t.Helper()
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go handle(conn)
		}
	}()
}
