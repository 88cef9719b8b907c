package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duplexio/duplex/pkg/types"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "unix", cfg.IPC.Transport)
	assert.Equal(t, "persistent", cfg.IPC.Mode)
	require.NotNil(t, cfg.IPC.Limit)
	assert.Equal(t, NoLimit, *cfg.IPC.Limit)
	assert.NotEmpty(t, cfg.IPC.SocketPath)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestValidateLogging(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "verbose"
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, types.IsErrCode(err, types.ErrCodeInvalid))

	cfg = DefaultConfig()
	cfg.Logging.Format = "xml"
	require.Error(t, cfg.Validate())
}

func TestValidateTransport(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IPC.Transport = "udp"
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.IPC.Transport = "unix"
	cfg.IPC.SocketPath = ""
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.IPC.Transport = "tcp"
	cfg.IPC.Host = ""
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.IPC.Transport = "tcp"
	cfg.IPC.Port = 70000
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.IPC.Transport = "tcp"
	cfg.IPC.Port = 7600
	require.NoError(t, cfg.Validate())
}

func TestValidateBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IPC.Timeout = -1 * time.Second
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.IPC.Chunksize = -1
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.IPC.Limit = intPtr(-2)
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.IPC.Mode = "transient"
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = 0
	require.Error(t, cfg.Validate())
}

func TestApplyDefaultsFillsZeroValues(t *testing.T) {
	cfg := Config{}
	applyDefaults(&cfg)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "unix", cfg.IPC.Transport)
	assert.Equal(t, 64, cfg.IPC.MaxConnections)
	assert.Equal(t, 32*1024, cfg.IPC.ReadBuffer)
	// An absent limit becomes the default
	require.NotNil(t, cfg.IPC.Limit)
	assert.Equal(t, NoLimit, *cfg.IPC.Limit)
}

func TestApplyDefaultsPreservesZeroLimit(t *testing.T) {
	cfg := Config{}
	cfg.IPC.Limit = intPtr(0)
	applyDefaults(&cfg)

	// A configured zero is a real zero budget, never "unset"
	require.NotNil(t, cfg.IPC.Limit)
	assert.Equal(t, 0, *cfg.IPC.Limit)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(EnvSocketPath, "/tmp/override.sock")
	t.Setenv(EnvPort, "9000")
	t.Setenv(EnvLogLevel, "debug")

	cfg := DefaultConfig()
	require.NoError(t, applyEnvOverrides(&cfg))

	assert.Equal(t, "/tmp/override.sock", cfg.IPC.SocketPath)
	assert.Equal(t, 9000, cfg.IPC.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestApplyEnvOverridesInvalidPort(t *testing.T) {
	t.Setenv(EnvPort, "not-a-port")

	cfg := DefaultConfig()
	err := applyEnvOverrides(&cfg)
	require.Error(t, err)
	assert.True(t, types.IsErrCode(err, types.ErrCodeInvalidArgument))
}

func TestAddressHelpers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IPC.Host = "127.0.0.1"
	cfg.IPC.Port = 7600
	assert.Equal(t, "127.0.0.1:7600", cfg.IPC.Address())

	cfg.Metrics.Host = "127.0.0.1"
	cfg.Metrics.Port = 9390
	assert.Equal(t, "127.0.0.1:9390", cfg.MetricsAddress())
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	s := cfg.String()
	assert.Contains(t, s, "LoggingConfig")
	assert.Contains(t, s, "IPCConfig")
	assert.Contains(t, s, "MetricsConfig")
}
