package ipc

import (
	"context"

	"github.com/duplexio/duplex/internal/logger"
)

// Hooks is the set of optional callbacks through which client and server
// behavior is extended. Every nil field is a no-op; all callbacks may
// perform I/O and should honor the passed context.
type Hooks struct {
	// OnEstablished runs once the connection is stored and its read loop
	// has been spawned. A failure is logged, not propagated.
	OnEstablished func(ctx context.Context, conn *Connection) error

	// PostConnect runs after OnEstablished for role-specific setup, e.g.
	// sending a hello message. A failure does not roll back the already
	// established connection; it is logged.
	PostConnect func(ctx context.Context, conn *Connection) error

	// PreDisconnect runs at the start of shutdown while the socket is
	// still open.
	PreDisconnect func(ctx context.Context, conn *Connection) error

	// PostDisconnect runs after the socket is fully closed.
	PostDisconnect func(ctx context.Context, conn *Connection) error

	// OnMessage receives every message the read loop produces, in byte
	// arrival order. A failure is wrapped as a MESSAGE_HANDLER error and
	// stops the read loop.
	OnMessage func(ctx context.Context, msg *Message) error
}

// runHook invokes an optional lifecycle callback, logging a failure
func runHook(ctx context.Context, log *logger.Logger, name string, hook func(context.Context, *Connection) error, conn *Connection) {
	if hook == nil {
		return
	}
	if err := hook(ctx, conn); err != nil {
		log.Warn("ipc lifecycle hook failed", "hook", name, "error", err)
	}
}
