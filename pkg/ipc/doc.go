// Package ipc implements a transport-agnostic inter-process communication
// connection manager.
//
// A process can act as either end of a bidirectional, message-oriented
// channel: a Server listens and fans accepted sockets out to per-peer
// handlers, a Client connects to exactly one server. Both roles share the
// same connection lifecycle:
//
//   - A Transport (unix domain socket or tcp) dials or accepts a raw stream
//     and assembles a Connection, extracting peer credentials where the
//     socket family provides them.
//   - A background read loop turns the byte stream into Message values and
//     dispatches them, in arrival order, to the configured OnMessage hook.
//   - On end-of-input, cancellation, timeout or fault, the connection is
//     released through a two-sided close handshake and its closed-at
//     timestamp is stamped exactly once.
//
// Behavior is extended through the optional Hooks callback set and the
// opaque Protocol capability object; the core never inspects either.
//
// Example usage:
//
//	transport := &ipc.UnixTransport{Path: "/run/app/app.sock"}
//	server := ipc.NewServer(transport, ipc.DefaultOptions(), ipc.Hooks{
//	    OnMessage: func(ctx context.Context, msg *ipc.Message) error {
//	        log.Printf("received %d bytes", len(msg.Data))
//	        return nil
//	    },
//	}, logger, nil)
//
//	if err := server.Open(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer server.Close()
package ipc
