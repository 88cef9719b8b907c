package ipc

import (
	"net"
	"sync"
	"time"

	"github.com/duplexio/duplex/internal/logger"
)

// Mode controls how long a connection is intended to live
type Mode string

const (
	// ModePersistent keeps the connection open across many exchanges
	ModePersistent Mode = "persistent"
	// ModeEphemeral closes the connection after a single exchange
	ModeEphemeral Mode = "ephemeral"
)

// ParseMode converts a string to a Mode, defaulting to persistent
func ParseMode(s string) Mode {
	if s == string(ModeEphemeral) {
		return ModeEphemeral
	}
	return ModePersistent
}

// Credentials holds the OS-reported identity of the process on the far end
// of a unix domain socket. It is nil for transports that cannot provide it.
type Credentials struct {
	PID int32
	UID int32
	GID int32
}

// closeFlushDelay gives the transport a moment to flush any final buffered
// write before the socket is forced closed
const closeFlushDelay = 100 * time.Millisecond

// Connection represents one established end of an IPC channel.
//
// A Connection is created once per accepted or initiated socket, lives for
// the duration of exactly one read loop run and is never pooled or reused.
// Its reader/writer pair is owned exclusively by the client or server that
// assembled it.
type Connection struct {
	raw        net.Conn
	creds      *Credentials
	localAddr  net.Addr
	remoteAddr net.Addr
	mode       Mode

	mu      sync.RWMutex
	created time.Time
	updated time.Time
	closed  time.Time
	eof     bool

	closeOnce sync.Once
}

// newConnection wraps an established raw stream
func newConnection(raw net.Conn, creds *Credentials, mode Mode) *Connection {
	if mode == "" {
		mode = ModePersistent
	}
	now := time.Now()
	return &Connection{
		raw:        raw,
		creds:      creds,
		localAddr:  raw.LocalAddr(),
		remoteAddr: raw.RemoteAddr(),
		mode:       mode,
		created:    now,
		updated:    now,
	}
}

// Read reads up to len(b) bytes from the connection's input stream
func (c *Connection) Read(b []byte) (int, error) {
	return c.raw.Read(b)
}

// Write writes b to the connection's output stream
func (c *Connection) Write(b []byte) (int, error) {
	return c.raw.Write(b)
}

// CloseWrite half-closes the connection, signaling write-side EOF to the
// peer while reads stay possible. Returns false when the underlying
// transport does not support half-close.
func (c *Connection) CloseWrite() (bool, error) {
	cw, ok := c.raw.(interface{ CloseWrite() error })
	if !ok {
		return false, nil
	}
	return true, cw.CloseWrite()
}

// SetReadDeadline sets the read deadline on the underlying socket
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.raw.SetReadDeadline(t)
}

// Credentials returns the peer credentials, or nil when the transport
// cannot provide them
func (c *Connection) Credentials() *Credentials {
	return c.creds
}

// LocalAddr returns the local socket address
func (c *Connection) LocalAddr() net.Addr {
	return c.localAddr
}

// RemoteAddr returns the remote socket address
func (c *Connection) RemoteAddr() net.Addr {
	return c.remoteAddr
}

// Mode returns the connection mode
func (c *Connection) Mode() Mode {
	return c.mode
}

// Touch stamps the connection's updated-at time
func (c *Connection) Touch() {
	c.mu.Lock()
	c.updated = time.Now()
	c.mu.Unlock()
}

// MarkEOF records that the input stream reached end-of-input
func (c *Connection) MarkEOF() {
	c.mu.Lock()
	c.eof = true
	c.mu.Unlock()
}

// EOF reports whether end-of-input has been observed
func (c *Connection) EOF() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.eof
}

// Closed reports whether the connection has been torn down
func (c *Connection) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed.IsZero()
}

// CreatedAt returns the connection's creation time
func (c *Connection) CreatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.created
}

// UpdatedAt returns the time of the last read activity
func (c *Connection) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updated
}

// ClosedAt returns the teardown time, zero while the connection is open
func (c *Connection) ClosedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// stampClosed records the teardown time. The sync.Once guarantees the
// timestamp is set at most once no matter how often shutdown runs.
func (c *Connection) stampClosed() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = time.Now()
		c.mu.Unlock()
	})
}

// closeConnection runs the close handshake: acknowledge a peer-initiated
// close or signal our own via half-close, let final writes flush, then
// force the socket closed. Faults are swallowed; closed-at is always
// stamped.
func closeConnection(log *logger.Logger, conn *Connection) {
	if conn == nil {
		return
	}
	defer conn.stampClosed()

	if conn.EOF() {
		log.Debug("ipc connection closed by peer")
	} else {
		log.Debug("ipc connection closing, signaling eof to peer")
		if supported, err := conn.CloseWrite(); supported && err != nil {
			log.Debug("ipc connection half-close failed", "error", err)
		}
	}

	time.Sleep(closeFlushDelay)

	if err := conn.raw.Close(); err != nil {
		log.Debug("ipc connection close failed", "error", err)
	}
}
