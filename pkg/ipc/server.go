package ipc

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/duplexio/duplex/internal/logger"
	"github.com/duplexio/duplex/internal/metrics"
	"github.com/duplexio/duplex/pkg/types"
)

// Server is the listening endpoint of the IPC channel. Every accepted
// socket is fanned out to its own lifecycle: assemble, hooks, background
// read loop, close handshake. All connections share one Hooks set and one
// Options value.
type Server struct {
	transport Transport
	opts      Options
	hooks     Hooks
	logger    *logger.Logger
	metrics   *metrics.Metrics

	mu       sync.RWMutex
	listener net.Listener
	peers    map[types.ID]*peer
	started  bool
	closed   bool
	wg       sync.WaitGroup
}

// peer tracks one accepted connection and its handler task
type peer struct {
	id     types.ID
	conn   *Connection
	cancel context.CancelFunc
	done   chan struct{}

	// releaseOnce makes the shutdown path run exactly once per peer no
	// matter whether the loop exited or the server is closing
	releaseOnce sync.Once
}

// NewServer creates a server for the given transport. The metrics recorder
// may be nil.
func NewServer(transport Transport, opts Options, hooks Hooks, log *logger.Logger, m *metrics.Metrics) *Server {
	if log == nil {
		log = logger.Global()
	}
	opts.normalize()
	return &Server{
		transport: transport,
		opts:      opts,
		hooks:     hooks,
		logger:    log.With("component", "ipc_server", "transport", transport.String()),
		metrics:   m,
		peers:     make(map[types.ID]*peer),
	}
}

// Protocol returns the opaque protocol object the server was configured with
func (s *Server) Protocol() Protocol {
	return s.opts.Protocol
}

// Open binds the listening socket and starts accepting connections
func (s *Server) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return types.NewError(types.ErrCodeUnavailable, "server is closed")
	}
	if s.started {
		s.mu.Unlock()
		return types.NewError(types.ErrCodeInvalid, "server is already listening")
	}
	s.mu.Unlock()

	ln, err := s.transport.Listen(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = ln
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop()

	s.logger.Info("ipc server listening",
		"mode", string(s.opts.Mode),
		"max_connections", s.opts.MaxConnections)
	return nil
}

// acceptLoop accepts sockets until the listener closes
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		raw, err := s.listener.Accept()
		if err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("ipc accept failed", "error", err)
			continue
		}
		s.handleAccepted(raw)
	}
}

// handleAccepted assembles and registers a freshly accepted socket
func (s *Server) handleAccepted(raw net.Conn) {
	s.mu.RLock()
	count := len(s.peers)
	s.mu.RUnlock()

	if s.opts.MaxConnections > 0 && count >= s.opts.MaxConnections {
		s.metrics.ConnectionRejected()
		s.logger.Warn("ipc connection rejected, too many connections",
			"current_count", count,
			"max_connections", s.opts.MaxConnections)
		raw.Close()
		return
	}

	conn, err := s.transport.Assemble(raw, s.opts.Mode)
	if err != nil {
		s.logger.Error("ipc connection could not be assembled", "error", err)
		raw.Close()
		return
	}

	loopCtx := context.Background()
	var cancel context.CancelFunc
	if s.opts.Timeout > 0 {
		loopCtx, cancel = context.WithTimeout(loopCtx, s.opts.Timeout)
	} else {
		loopCtx, cancel = context.WithCancel(loopCtx)
	}

	p := &peer{
		id:     types.GenerateID(),
		conn:   conn,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	// Registration and the closed check share one critical section: a peer
	// is either in the map before Close snapshots it, or dropped here. A
	// socket registered after the snapshot would leak its read loop past
	// Close.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		raw.Close()
		return
	}
	s.peers[p.id] = p
	s.mu.Unlock()
	s.metrics.ConnectionAccepted()

	s.wg.Add(1)
	go s.servePeer(loopCtx, p)

	log := s.logger.With("peer", p.id.String())
	if creds := conn.Credentials(); creds != nil {
		log.Debug("ipc connection accepted",
			"pid", creds.PID, "uid", creds.UID, "gid", creds.GID)
	} else {
		log.Debug("ipc connection accepted",
			"remote_addr", describeAddr(conn.RemoteAddr()))
	}

	runHook(loopCtx, log, "on_established", s.hooks.OnEstablished, conn)
	runHook(loopCtx, log, "post_connect", s.hooks.PostConnect, conn)
}

// servePeer runs the peer's read loop and releases it afterwards
func (s *Server) servePeer(ctx context.Context, p *peer) {
	defer s.wg.Done()

	loop := &readLoop{
		conn:      p.conn,
		limit:     s.opts.Limit,
		chunksize: s.opts.Chunksize,
		readBuf:   s.opts.ReadBuffer,
		onMessage: s.dispatch(p),
		logger:    s.logger.With("peer", p.id.String()),
		metrics:   s.metrics,
	}

	err := loop.run(ctx)
	if err != nil {
		s.logger.Error("ipc connection handler failed",
			"peer", p.id.String(), "error", err)
	}

	close(p.done)
	s.releasePeer(p)
}

// dispatch builds the per-peer message handler. Without an OnMessage hook
// the server answers a ping and echoes everything else back.
func (s *Server) dispatch(p *peer) func(ctx context.Context, msg *Message) error {
	return func(ctx context.Context, msg *Message) error {
		if s.hooks.OnMessage != nil {
			return s.hooks.OnMessage(ctx, msg)
		}
		reply := msg.Data
		if string(msg.Data) == "ping" {
			reply = []byte("pong")
		}
		return s.write(p, reply)
	}
}

// releasePeer runs the shutdown path for one connection exactly once
func (s *Server) releasePeer(p *peer) {
	p.releaseOnce.Do(func() {
		s.mu.Lock()
		delete(s.peers, p.id)
		s.mu.Unlock()

		log := s.logger.With("peer", p.id.String())
		runHook(context.Background(), log, "pre_disconnect", s.hooks.PreDisconnect, p.conn)

		p.cancel()
		<-p.done

		closeConnection(log, p.conn)
		runHook(context.Background(), log, "post_disconnect", s.hooks.PostDisconnect, p.conn)
		s.metrics.ConnectionClosed()
	})
}

// write delivers data to one peer, honoring the configured limit and the
// connection mode: an ephemeral connection is closed right after a
// successful write.
func (s *Server) write(p *peer, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if s.opts.Limit >= 0 && len(data) > s.opts.Limit {
		return types.NewError(types.ErrCodeMessageLimit, "message length exceeds the configured limit")
	}
	if p.conn.Closed() {
		return types.NewError(types.ErrCodeUnavailable, "connection is closed")
	}
	if _, err := p.conn.Write(data); err != nil {
		return types.WrapError(types.ErrCodeMessageWriter, "cannot write message", err)
	}

	if p.conn.Mode() == ModeEphemeral {
		go s.releasePeer(p)
	}
	return nil
}

// Send writes a message to a specific connection
func (s *Server) Send(ctx context.Context, id types.ID, data []byte) error {
	s.mu.RLock()
	p, ok := s.peers[id]
	s.mu.RUnlock()

	if !ok {
		return types.NewError(types.ErrCodeNotFound, "connection not found: "+id.String())
	}
	return s.write(p, data)
}

// Broadcast writes a message to every active connection
func (s *Server) Broadcast(ctx context.Context, data []byte) error {
	s.mu.RLock()
	targets := make([]*peer, 0, len(s.peers))
	for _, p := range s.peers {
		targets = append(targets, p)
	}
	s.mu.RUnlock()

	var errs []error
	for _, p := range targets {
		if err := s.write(p, data); err != nil {
			s.logger.Error("ipc broadcast write failed",
				"peer", p.id.String(), "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return types.WrapError(types.ErrCodeMessageWriter, "broadcast failed", errors.Join(errs...))
	}
	return nil
}

// Connections returns the ids of the currently active connections
func (s *Server) Connections() []types.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]types.ID, 0, len(s.peers))
	for id := range s.peers {
		ids = append(ids, id)
	}
	return ids
}

// ActiveConnections returns the number of currently active connections
func (s *Server) ActiveConnections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

// isClosed reports whether Close has begun
func (s *Server) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Close stops accepting, releases every connection through the close
// handshake, waits for all handler tasks and removes the socket path. It is
// idempotent; teardown faults surface only after everything else has been
// released.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.listener
	targets := make([]*peer, 0, len(s.peers))
	for _, p := range s.peers {
		targets = append(targets, p)
	}
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	for _, p := range targets {
		s.releasePeer(p)
	}
	s.wg.Wait()

	err := s.transport.Teardown()
	if err != nil {
		s.logger.Error("ipc server teardown failed", "error", err)
	} else {
		s.logger.Info("ipc server closed")
	}
	return err
}
