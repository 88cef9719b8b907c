package ipc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/duplexio/duplex/internal/config"
)

func TestOptionsFromConfigLimit(t *testing.T) {
	cfg := config.DefaultIPCConfig()

	// A configured zero budget maps through literally
	zero := 0
	cfg.Limit = &zero
	assert.Equal(t, 0, OptionsFromConfig(cfg).Limit)

	// Only an absent limit falls back to unlimited
	cfg.Limit = nil
	assert.Equal(t, NoLimit, OptionsFromConfig(cfg).Limit)
}

func TestOptionsNormalize(t *testing.T) {
	opts := Options{Limit: 0}
	opts.normalize()

	// normalize fills derivable fields but never rewrites the limit
	assert.Equal(t, 0, opts.Limit)
	assert.Equal(t, ModePersistent, opts.Mode)
	assert.Equal(t, 32*1024, opts.ReadBuffer)
}
