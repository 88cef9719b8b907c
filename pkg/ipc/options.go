package ipc

import (
	"time"

	"github.com/duplexio/duplex/internal/config"
)

// NoLimit disables the per-connection byte limit
const NoLimit = -1

// Options configures the connection lifecycle shared by clients and servers.
// Start from DefaultOptions: a zero Limit is honored literally (a read
// budget of zero bytes), not treated as unset.
type Options struct {
	// Timeout aborts the whole handling of a connection when it elapses.
	// Zero disables the timeout.
	Timeout time.Duration

	// Limit caps the total bytes read per connection in chunked reads, and
	// the bytes delivered per message otherwise. NoLimit disables it.
	Limit int

	// Chunksize fixes the read granularity. Zero reads up to the transport
	// buffer boundary instead.
	Chunksize int

	// Mode is the intended connection longevity.
	Mode Mode

	// Protocol is the opaque application protocol object carried for
	// higher layers.
	Protocol Protocol

	// MaxConnections caps concurrent connections on the server side.
	// Zero means unlimited.
	MaxConnections int

	// ReadBuffer is the read size used when no chunk size is set.
	ReadBuffer int
}

// DefaultOptions returns the default lifecycle options
func DefaultOptions() Options {
	return Options{
		Timeout:        0,
		Limit:          NoLimit,
		Chunksize:      0,
		Mode:           ModePersistent,
		MaxConnections: 64,
		ReadBuffer:     32 * 1024,
	}
}

// OptionsFromConfig maps the daemon configuration onto lifecycle options
func OptionsFromConfig(cfg config.IPCConfig) Options {
	opts := DefaultOptions()
	opts.Timeout = cfg.Timeout
	if cfg.Limit != nil {
		opts.Limit = *cfg.Limit
	}
	opts.Chunksize = cfg.Chunksize
	opts.Mode = ParseMode(cfg.Mode)
	opts.MaxConnections = cfg.MaxConnections
	if cfg.ReadBuffer > 0 {
		opts.ReadBuffer = cfg.ReadBuffer
	}
	return opts
}

// normalize fills derivable zero values without touching Limit
func (o *Options) normalize() {
	if o.Mode == "" {
		o.Mode = ModePersistent
	}
	if o.ReadBuffer <= 0 {
		o.ReadBuffer = 32 * 1024
	}
	if o.Chunksize < 0 {
		o.Chunksize = 0
	}
	if o.Limit < NoLimit {
		o.Limit = NoLimit
	}
}
