package ipc

import (
	"context"
	"sync"

	"github.com/duplexio/duplex/internal/logger"
	"github.com/duplexio/duplex/pkg/types"
)

// Client manages exactly one connection to an IPC server. Open and Close
// form an idempotent lifecycle pair; With scopes a connection to a function
// call. Behavior is extended through Hooks; the zero Hooks value gives a
// client that logs received messages at debug level.
type Client struct {
	transport Transport
	opts      Options
	hooks     Hooks
	logger    *logger.Logger

	// openMu serializes Open and Close against each other; mu guards the
	// snapshot state Connected reads concurrently with either.
	openMu sync.Mutex
	mu     sync.RWMutex

	conn    *Connection
	cancel  context.CancelFunc
	done    chan struct{}
	loopErr error
}

// NewClient creates a client for the given transport
func NewClient(transport Transport, opts Options, hooks Hooks, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Global()
	}
	opts.normalize()
	return &Client{
		transport: transport,
		opts:      opts,
		hooks:     hooks,
		logger:    log.With("component", "ipc_client", "transport", transport.String()),
	}
}

// Protocol returns the opaque protocol object the client was configured with
func (c *Client) Protocol() Protocol {
	return c.opts.Protocol
}

// Open establishes the connection and spawns the background read loop.
// Setup and socket faults are fatal to the attempt and leave the client
// unconnected; a PostConnect failure is logged but does not roll the
// connection back.
func (c *Client) Open(ctx context.Context) error {
	c.openMu.Lock()
	defer c.openMu.Unlock()

	if c.Connected() {
		return types.NewError(types.ErrCodeInvalid, "client is already connected")
	}

	raw, err := c.transport.Dial(ctx)
	if err != nil {
		return err
	}
	conn, err := c.transport.Assemble(raw, c.opts.Mode)
	if err != nil {
		raw.Close()
		return err
	}

	// Store the connection and start the handler task. The loop context is
	// detached from the caller's: the connection outlives Open.
	loopCtx := context.Background()
	var cancel context.CancelFunc
	if c.opts.Timeout > 0 {
		loopCtx, cancel = context.WithTimeout(loopCtx, c.opts.Timeout)
	} else {
		loopCtx, cancel = context.WithCancel(loopCtx)
	}
	done := make(chan struct{})

	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.done = done
	c.loopErr = nil
	c.mu.Unlock()

	loop := &readLoop{
		conn:      conn,
		limit:     c.opts.Limit,
		chunksize: c.opts.Chunksize,
		readBuf:   c.opts.ReadBuffer,
		onMessage: c.handleMessage,
		logger:    c.logger,
	}
	go func() {
		err := loop.run(loopCtx)
		c.mu.Lock()
		c.loopErr = err
		c.mu.Unlock()
		if err != nil {
			c.logger.Error("ipc connection handler failed", "error", err)
		}
		close(done)
		// The loop exiting, for whatever reason, releases the connection.
		// The release is bound to this loop's generation so it cannot
		// tear down a connection from a later Open.
		c.release(done)
	}()

	c.logger.Debug("ipc connection established",
		"mode", string(conn.Mode()),
		"remote_addr", describeAddr(conn.RemoteAddr()))

	runHook(ctx, c.logger, "on_established", c.hooks.OnEstablished, conn)
	runHook(ctx, c.logger, "post_connect", c.hooks.PostConnect, conn)

	return nil
}

// Connected reports whether the connection exists and has not been torn
// down. It is side-effect-free and safe to call at any time, including
// concurrently with shutdown.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.Closed()
}

// Err returns the terminal error of the last read loop run, nil when the
// loop ended cleanly or is still running
func (c *Client) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loopErr
}

// Close cancels the read loop, runs the close handshake and releases the
// connection. It is idempotent: closing an already-closed or never-opened
// client is a no-op.
func (c *Client) Close() error {
	return c.release(nil)
}

// release tears down the current connection. A non-nil expect restricts the
// release to the connection whose read loop owns that done channel, so a
// stale loop goroutine never tears down a connection from a later Open.
func (c *Client) release(expect chan struct{}) error {
	c.openMu.Lock()
	defer c.openMu.Unlock()

	// Snapshot and clear atomically so a concurrent Connected call never
	// observes a half-torn-down state
	c.mu.Lock()
	if expect != nil && c.done != expect {
		c.mu.Unlock()
		return nil
	}
	conn, cancel, done := c.conn, c.cancel, c.done
	c.conn, c.cancel, c.done = nil, nil, nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	runHook(context.Background(), c.logger, "pre_disconnect", c.hooks.PreDisconnect, conn)

	cancel()
	<-done

	closeConnection(c.logger, conn)

	runHook(context.Background(), c.logger, "post_disconnect", c.hooks.PostDisconnect, conn)

	c.logger.Debug("ipc connection released")
	return nil
}

// With opens the client, runs fn and guarantees Close on every exit path
func (c *Client) With(ctx context.Context, fn func(ctx context.Context, c *Client) error) error {
	if err := c.Open(ctx); err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

// Send writes a message to the server. The configured limit bounds the
// outbound size as well.
func (c *Client) Send(ctx context.Context, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || conn.Closed() {
		return types.NewError(types.ErrCodeUnavailable, "client is not connected")
	}
	if len(data) == 0 {
		return nil
	}
	if c.opts.Limit >= 0 && len(data) > c.opts.Limit {
		return types.NewError(types.ErrCodeMessageLimit, "message length exceeds the configured limit")
	}
	if _, err := conn.Write(data); err != nil {
		return types.WrapError(types.ErrCodeMessageWriter, "cannot write message", err)
	}
	return nil
}

// handleMessage dispatches to the OnMessage hook, or logs the receipt when
// no hook is configured
func (c *Client) handleMessage(ctx context.Context, msg *Message) error {
	if c.hooks.OnMessage != nil {
		return c.hooks.OnMessage(ctx, msg)
	}
	c.logger.Debug("ipc client received", "bytes", len(msg.Data))
	return nil
}

// describeAddr renders an address that may legitimately be nil
func describeAddr(addr interface{ String() string }) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
