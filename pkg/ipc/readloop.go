package ipc

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/duplexio/duplex/internal/logger"
	"github.com/duplexio/duplex/internal/metrics"
	"github.com/duplexio/duplex/pkg/types"
)

// readLoop consumes a connection's input stream until end-of-input, a fatal
// stream error or cancellation, dispatching each non-empty read as a
// Message. Messages reach the handler in the exact order their bytes were
// read; the loop never buffers ahead beyond one read call.
type readLoop struct {
	conn      *Connection
	limit     int
	chunksize int
	readBuf   int
	onMessage func(ctx context.Context, msg *Message) error
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

// run executes the loop. It returns nil for every ordinary termination
// cause (end-of-input, cancellation, peer reset, read fault), a TIMEOUT
// error when the connection's time budget elapsed and a MESSAGE_HANDLER
// error when the handler faulted. Read faults tear the connection down
// rather than being retried; there is no automatic reconnect.
func (l *readLoop) run(ctx context.Context) error {
	// A blocking Read does not notice context cancellation by itself;
	// expire the read deadline to force it back.
	stop := context.AfterFunc(ctx, func() {
		_ = l.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	chunks := 0
	for {
		l.conn.Touch()

		var buf []byte
		if l.chunksize > 0 {
			// Stop before a read that would overrun the remaining
			// budget; a final truncated chunk is never issued.
			if l.limit >= 0 && l.limit-chunks*l.chunksize < l.chunksize {
				return nil
			}
			buf = make([]byte, l.chunksize)
		} else {
			if l.limit == 0 {
				return nil
			}
			size := l.readBuf
			if l.limit > 0 && l.limit < size {
				size = l.limit
			}
			buf = make([]byte, size)
		}

		n, err := l.conn.Read(buf)
		if n > 0 {
			chunks++
			l.metrics.MessageReceived(n)
			msg := &Message{Data: buf[:n], Sender: l.conn}
			if herr := l.onMessage(ctx, msg); herr != nil {
				return types.WrapError(types.ErrCodeMessageHandler, "message handler failed", herr)
			}
		}

		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				l.conn.MarkEOF()
				return nil
			case ctx.Err() != nil:
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return types.NewError(types.ErrCodeTimeout, "connection handling timed out")
				}
				// Cancellation is a normal exit path, not a fault
				return nil
			case errors.Is(err, syscall.ECONNRESET):
				l.logger.Debug("ipc connection reset by peer")
				return nil
			case errors.Is(err, net.ErrClosed):
				return nil
			default:
				l.logger.Debug("ipc read failed",
					"error", types.WrapError(types.ErrCodeMessageReader, "message reader failed", err))
				return nil
			}
		}
	}
}
