package ipc

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/duplexio/duplex/pkg/types"
)

// Transport encapsulates the per-socket-kind logic: preparing the listening
// or connecting socket and assembling a Connection from a raw stream. New
// socket kinds plug in here without touching the client, server or read
// loop.
type Transport interface {
	// Dial establishes the connecting side of the channel
	Dial(ctx context.Context) (net.Conn, error)

	// Listen prepares and binds the listening socket
	Listen(ctx context.Context) (net.Listener, error)

	// Assemble builds a Connection from an accepted or connected stream,
	// extracting transport-specific peer metadata
	Assemble(raw net.Conn, mode Mode) (*Connection, error)

	// Teardown releases listener-side resources after full shutdown
	Teardown() error

	// String describes the transport endpoint
	String() string
}

// UnixTransport carries IPC over a stream-oriented unix domain socket at a
// filesystem path. It is the only transport that can report peer
// credentials.
type UnixTransport struct {
	Path string
}

// Dial connects to the unix socket at the configured path
func (t *UnixTransport) Dial(ctx context.Context) (net.Conn, error) {
	if t.Path == "" {
		return nil, types.NewError(types.ErrCodeSetup, "no socket path configured")
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", t.Path)
	if err != nil {
		return nil, types.WrapError(types.ErrCodeSocketCreation, "cannot connect to unix socket "+t.Path, err)
	}
	return conn, nil
}

// Listen binds the unix socket, replacing a stale socket file when one is
// left behind at the path
func (t *UnixTransport) Listen(ctx context.Context) (net.Listener, error) {
	if t.Path == "" {
		return nil, types.NewError(types.ErrCodeSetup, "no socket path configured")
	}

	if info, err := os.Stat(t.Path); err == nil {
		if info.IsDir() {
			return nil, types.NewError(types.ErrCodeSocketCreation,
				"cannot create unix socket because "+t.Path+" is a directory")
		}
		if err := os.Remove(t.Path); err != nil {
			return nil, types.WrapError(types.ErrCodeSocketCreation,
				"cannot remove stale socket file "+t.Path, err)
		}
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "unix", t.Path)
	if err != nil {
		return nil, types.WrapError(types.ErrCodeSocketCreation, "cannot bind unix socket "+t.Path, err)
	}
	return ln, nil
}

// Assemble builds a Connection, decoding the kernel's peer-credential
// record into pid, uid and gid
func (t *UnixTransport) Assemble(raw net.Conn, mode Mode) (*Connection, error) {
	var creds *Credentials
	if uc, ok := raw.(*net.UnixConn); ok {
		var err error
		creds, err = peerCredentials(uc)
		if err != nil {
			return nil, types.WrapError(types.ErrCodeSocketCreation, "cannot read peer credentials", err)
		}
	}
	return newConnection(raw, creds, mode), nil
}

// Teardown removes the socket file from the filesystem
func (t *UnixTransport) Teardown() error {
	if err := os.Remove(t.Path); err != nil && !os.IsNotExist(err) {
		return types.WrapError(types.ErrCodeSocketTeardown, "cannot remove socket file "+t.Path, err)
	}
	return nil
}

// String describes the transport endpoint
func (t *UnixTransport) String() string {
	return "unix://" + t.Path
}

// TCPTransport carries IPC over a network stream socket. Peer credentials
// are not obtainable for this socket family.
type TCPTransport struct {
	Host string
	Port int
}

// Addr returns the host:port endpoint address
func (t *TCPTransport) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// Dial connects to the configured host and port
func (t *TCPTransport) Dial(ctx context.Context) (net.Conn, error) {
	if t.Host == "" || t.Port <= 0 {
		return nil, types.NewError(types.ErrCodeSetup, "no host/port configured")
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.Addr())
	if err != nil {
		return nil, types.WrapError(types.ErrCodeSocketCreation, "cannot connect to "+t.Addr(), err)
	}
	return conn, nil
}

// Listen binds the tcp listening socket
func (t *TCPTransport) Listen(ctx context.Context) (net.Listener, error) {
	if t.Host == "" || t.Port < 0 {
		return nil, types.NewError(types.ErrCodeSetup, "no host/port configured")
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", t.Addr())
	if err != nil {
		return nil, types.WrapError(types.ErrCodeSocketCreation, "cannot bind "+t.Addr(), err)
	}
	return ln, nil
}

// Assemble builds a Connection without peer credentials
func (t *TCPTransport) Assemble(raw net.Conn, mode Mode) (*Connection, error) {
	return newConnection(raw, nil, mode), nil
}

// Teardown is a no-op; tcp listeners leave nothing behind
func (t *TCPTransport) Teardown() error {
	return nil
}

// String describes the transport endpoint
func (t *TCPTransport) String() string {
	return fmt.Sprintf("tcp://%s", t.Addr())
}
