package ipc

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duplexio/duplex/pkg/types"
)

func newTestClient(t *testing.T, path string, opts Options, hooks Hooks) *Client {
	t.Helper()
	c := NewClient(&UnixTransport{Path: path}, opts, hooks, newTestLogger(t))
	t.Cleanup(func() { c.Close() })
	return c
}

// echoHandler echoes every read back to the peer until the socket closes
func echoHandler(conn net.Conn) {
	defer conn.Close()
	buf := make([]byte, 1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			conn.Write(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// holdHandler keeps the socket open without ever writing
func holdHandler(conn net.Conn) {
	io.Copy(io.Discard, conn)
	conn.Close()
}

func TestClientOpenFailsWithoutServer(t *testing.T) {
	c := newTestClient(t, testSocketPath(t), DefaultOptions(), Hooks{})

	err := c.Open(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsErrCode(err, types.ErrCodeSocketCreation))
	assert.False(t, c.Connected())
}

func TestClientLifecycle(t *testing.T) {
	path := testSocketPath(t)
	startRawUnixServer(t, path, holdHandler)

	c := newTestClient(t, path, DefaultOptions(), Hooks{})
	assert.False(t, c.Connected())

	require.NoError(t, c.Open(context.Background()))
	assert.True(t, c.Connected())

	require.NoError(t, c.Close())
	assert.False(t, c.Connected())
}

func TestClientDoubleOpen(t *testing.T) {
	path := testSocketPath(t)
	startRawUnixServer(t, path, holdHandler)

	c := newTestClient(t, path, DefaultOptions(), Hooks{})
	require.NoError(t, c.Open(context.Background()))

	err := c.Open(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsErrCode(err, types.ErrCodeInvalid))
}

func TestClientCloseIdempotent(t *testing.T) {
	path := testSocketPath(t)
	startRawUnixServer(t, path, holdHandler)

	var established *Connection
	hooks := Hooks{
		OnEstablished: func(_ context.Context, conn *Connection) error {
			established = conn
			return nil
		},
	}
	c := newTestClient(t, path, DefaultOptions(), hooks)

	// Closing before opening is a no-op
	require.NoError(t, c.Close())

	require.NoError(t, c.Open(context.Background()))
	require.NotNil(t, established)

	require.NoError(t, c.Close())
	closedAt := established.ClosedAt()
	require.False(t, closedAt.IsZero())

	// A second close must not re-run the handshake or re-stamp
	require.NoError(t, c.Close())
	assert.Equal(t, closedAt, established.ClosedAt())
}

func TestClientReopen(t *testing.T) {
	path := testSocketPath(t)
	startRawUnixServer(t, path, holdHandler)

	c := newTestClient(t, path, DefaultOptions(), Hooks{})
	require.NoError(t, c.Open(context.Background()))
	require.NoError(t, c.Close())

	// The previous connection's loop goroutine still has a pending release
	// in flight; it must not tear down the next connection
	require.NoError(t, c.Open(context.Background()))
	time.Sleep(3 * closeFlushDelay)
	assert.True(t, c.Connected())

	require.NoError(t, c.Close())
	assert.False(t, c.Connected())
}

func TestClientHookOrder(t *testing.T) {
	path := testSocketPath(t)
	startRawUnixServer(t, path, holdHandler)

	var mu sync.Mutex
	var calls []string
	record := func(name string) func(context.Context, *Connection) error {
		return func(context.Context, *Connection) error {
			mu.Lock()
			calls = append(calls, name)
			mu.Unlock()
			return nil
		}
	}
	hooks := Hooks{
		OnEstablished:  record("on_established"),
		PostConnect:    record("post_connect"),
		PreDisconnect:  record("pre_disconnect"),
		PostDisconnect: record("post_disconnect"),
	}
	c := newTestClient(t, path, DefaultOptions(), hooks)

	require.NoError(t, c.Open(context.Background()))
	require.NoError(t, c.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"on_established", "post_connect", "pre_disconnect", "post_disconnect",
	}, calls)
}

func TestClientSendAndReceive(t *testing.T) {
	path := testSocketPath(t)
	startRawUnixServer(t, path, echoHandler)

	received := make(chan []byte, 1)
	hooks := Hooks{
		OnMessage: func(_ context.Context, msg *Message) error {
			data := make([]byte, len(msg.Data))
			copy(data, msg.Data)
			received <- data
			return nil
		},
	}
	c := newTestClient(t, path, DefaultOptions(), hooks)
	require.NoError(t, c.Open(context.Background()))

	require.NoError(t, c.Send(context.Background(), []byte("hello")))

	select {
	case data := <-received:
		assert.Equal(t, []byte("hello"), data)
	case <-time.After(2 * time.Second):
		t.Fatal("no echo received")
	}
}

func TestClientSendErrors(t *testing.T) {
	path := testSocketPath(t)
	startRawUnixServer(t, path, holdHandler)

	opts := DefaultOptions()
	opts.Limit = 4
	c := newTestClient(t, path, opts, Hooks{})

	// Not connected yet
	err := c.Send(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.True(t, types.IsErrCode(err, types.ErrCodeUnavailable))

	require.NoError(t, c.Open(context.Background()))

	// Empty payloads are silently dropped
	require.NoError(t, c.Send(context.Background(), nil))

	// Over the limit
	err = c.Send(context.Background(), []byte("too long"))
	require.Error(t, err)
	assert.True(t, types.IsErrCode(err, types.ErrCodeMessageLimit))

	require.NoError(t, c.Send(context.Background(), []byte("ok")))
}

func TestClientPeerClose(t *testing.T) {
	path := testSocketPath(t)
	startRawUnixServer(t, path, func(conn net.Conn) {
		conn.Close()
	})

	c := newTestClient(t, path, DefaultOptions(), Hooks{})
	require.NoError(t, c.Open(context.Background()))

	// The peer hangs up immediately; the loop sees end-of-input and the
	// client releases itself without reporting an error
	require.Eventually(t, func() bool {
		return !c.Connected()
	}, 2*time.Second, 10*time.Millisecond)
	assert.NoError(t, c.Err())
}

func TestClientTimeout(t *testing.T) {
	path := testSocketPath(t)
	startRawUnixServer(t, path, holdHandler)

	opts := DefaultOptions()
	opts.Timeout = 50 * time.Millisecond
	c := newTestClient(t, path, opts, Hooks{})
	require.NoError(t, c.Open(context.Background()))

	require.Eventually(t, func() bool {
		return !c.Connected()
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, types.IsErrCode(c.Err(), types.ErrCodeTimeout))
}

func TestClientHandlerFault(t *testing.T) {
	path := testSocketPath(t)
	startRawUnixServer(t, path, echoHandler)

	fault := errors.New("cannot process")
	hooks := Hooks{
		OnMessage: func(context.Context, *Message) error {
			return fault
		},
	}
	c := newTestClient(t, path, DefaultOptions(), hooks)
	require.NoError(t, c.Open(context.Background()))
	require.NoError(t, c.Send(context.Background(), []byte("boom")))

	// The handler fault ends the loop and the client tears itself down
	require.Eventually(t, func() bool {
		return !c.Connected()
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, types.IsErrCode(c.Err(), types.ErrCodeMessageHandler))
	assert.ErrorIs(t, c.Err(), fault)
}

func TestClientWith(t *testing.T) {
	path := testSocketPath(t)
	startRawUnixServer(t, path, holdHandler)

	c := newTestClient(t, path, DefaultOptions(), Hooks{})

	var insideConnected bool
	err := c.With(context.Background(), func(ctx context.Context, c *Client) error {
		insideConnected = c.Connected()
		return c.Send(ctx, []byte("scoped"))
	})
	require.NoError(t, err)
	assert.True(t, insideConnected)
	assert.False(t, c.Connected())
}

func TestClientWithPropagatesError(t *testing.T) {
	path := testSocketPath(t)
	startRawUnixServer(t, path, holdHandler)

	c := newTestClient(t, path, DefaultOptions(), Hooks{})

	fault := errors.New("body failed")
	err := c.With(context.Background(), func(context.Context, *Client) error {
		return fault
	})
	require.ErrorIs(t, err, fault)
	assert.False(t, c.Connected())
}
