package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/duplexio/duplex/pkg/types"
)

// Config represents the complete configuration for the duplex daemon
type Config struct {
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	IPC     IPCConfig     `json:"ipc" yaml:"ipc"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
	Output string `json:"output" yaml:"output"` // stdout, stderr, file path
}

// IPCConfig contains the IPC connection manager configuration
type IPCConfig struct {
	Transport      string        `json:"transport" yaml:"transport"` // unix, tcp
	SocketPath     string        `json:"socket_path" yaml:"socket_path"`
	Host           string        `json:"host" yaml:"host"`
	Port           int           `json:"port" yaml:"port"`
	Timeout        time.Duration `json:"timeout" yaml:"timeout"` // whole-connection timeout, 0 disables
	// Limit is the max bytes read per connection: -1 disables, 0 is a real
	// zero budget. A pointer so an absent key is distinguishable from 0.
	Limit          *int          `json:"limit" yaml:"limit"`
	Chunksize      int           `json:"chunksize" yaml:"chunksize"` // fixed read granularity, 0 disables
	Mode           string        `json:"mode" yaml:"mode"`           // persistent, ephemeral
	MaxConnections int           `json:"max_connections" yaml:"max_connections"`
	ReadBuffer     int           `json:"read_buffer" yaml:"read_buffer"`
}

// MetricsConfig contains metrics configuration
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Host    string `json:"host" yaml:"host"`
	Port    int    `json:"port" yaml:"port"`
}

// applyDefaults fills zero-valued fields with defaults
func applyDefaults(cfg *Config) {
	defaultLogging := DefaultLoggingConfig()
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaultLogging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaultLogging.Format
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = defaultLogging.Output
	}

	defaultIPC := DefaultIPCConfig()
	if cfg.IPC.Transport == "" {
		cfg.IPC.Transport = defaultIPC.Transport
	}
	if cfg.IPC.SocketPath == "" {
		cfg.IPC.SocketPath = defaultIPC.SocketPath
	}
	if cfg.IPC.Host == "" {
		cfg.IPC.Host = defaultIPC.Host
	}
	if cfg.IPC.Port == 0 {
		cfg.IPC.Port = defaultIPC.Port
	}
	if cfg.IPC.Limit == nil {
		cfg.IPC.Limit = defaultIPC.Limit
	}
	if cfg.IPC.Mode == "" {
		cfg.IPC.Mode = defaultIPC.Mode
	}
	if cfg.IPC.MaxConnections == 0 {
		cfg.IPC.MaxConnections = defaultIPC.MaxConnections
	}
	if cfg.IPC.ReadBuffer == 0 {
		cfg.IPC.ReadBuffer = defaultIPC.ReadBuffer
	}

	defaultMetrics := DefaultMetricsConfig()
	if cfg.Metrics.Host == "" {
		cfg.Metrics.Host = defaultMetrics.Host
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = defaultMetrics.Port
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv(EnvTransport); v != "" {
		cfg.IPC.Transport = v
	}
	if v := os.Getenv(EnvSocketPath); v != "" {
		cfg.IPC.SocketPath = v
	}
	if v := os.Getenv(EnvHost); v != "" {
		cfg.IPC.Host = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return types.WrapError(types.ErrCodeInvalidArgument, "invalid "+EnvPort, err)
		}
		cfg.IPC.Port = port
	}
	if v := os.Getenv(EnvMaxConnections); v != "" {
		max, err := strconv.Atoi(v)
		if err != nil {
			return types.WrapError(types.ErrCodeInvalidArgument, "invalid "+EnvMaxConnections, err)
		}
		cfg.IPC.MaxConnections = max
	}
	return nil
}

// Load loads the configuration from the default path, falling back to
// defaults when no configuration file exists
func Load() (*Config, error) {
	path, err := GetDefaultConfigPath()
	if err != nil {
		return nil, types.WrapError(types.ErrCodeInternal, "cannot determine config path", err)
	}

	var cfg *Config
	if _, statErr := os.Stat(path); statErr == nil {
		cfg, err = LoadFromFile(path)
		if err != nil {
			return nil, err
		}
	} else {
		def := DefaultConfig()
		cfg = &def
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for validity
func (c *Config) Validate() error {
	// Validate Logging configuration
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return types.NewError(types.ErrCodeInvalid, "logging.level must be one of debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return types.NewError(types.ErrCodeInvalid, "logging.format must be json or text")
	}

	// Validate IPC configuration
	switch c.IPC.Transport {
	case "unix":
		if c.IPC.SocketPath == "" {
			return types.NewError(types.ErrCodeInvalid, "ipc.socket_path is required for the unix transport")
		}
	case "tcp":
		if c.IPC.Host == "" {
			return types.NewError(types.ErrCodeInvalid, "ipc.host is required for the tcp transport")
		}
		if c.IPC.Port <= 0 || c.IPC.Port > 65535 {
			return types.NewError(types.ErrCodeInvalid, "ipc.port must be between 1 and 65535")
		}
	default:
		return types.NewError(types.ErrCodeInvalid, "ipc.transport must be unix or tcp")
	}
	switch c.IPC.Mode {
	case "persistent", "ephemeral":
	default:
		return types.NewError(types.ErrCodeInvalid, "ipc.mode must be persistent or ephemeral")
	}
	if c.IPC.Timeout < 0 {
		return types.NewError(types.ErrCodeInvalid, "ipc.timeout cannot be negative")
	}
	if c.IPC.Chunksize < 0 {
		return types.NewError(types.ErrCodeInvalid, "ipc.chunksize cannot be negative")
	}
	if c.IPC.Limit != nil && *c.IPC.Limit < -1 {
		return types.NewError(types.ErrCodeInvalid, "ipc.limit must be -1, 0 or positive")
	}
	if c.IPC.MaxConnections < 0 {
		return types.NewError(types.ErrCodeInvalid, "ipc.max_connections cannot be negative")
	}
	if c.IPC.ReadBuffer <= 0 {
		return types.NewError(types.ErrCodeInvalid, "ipc.read_buffer must be positive")
	}

	// Validate Metrics configuration
	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			return types.NewError(types.ErrCodeInvalid, "metrics.port must be between 1 and 65535")
		}
	}

	return nil
}

// Address returns the host:port address for the tcp transport
func (c IPCConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// MetricsAddress returns the host:port address of the metrics endpoint
func (c *Config) MetricsAddress() string {
	return net.JoinHostPort(c.Metrics.Host, strconv.Itoa(c.Metrics.Port))
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Logging: %s, IPC: %s, Metrics: %s}",
		c.Logging.String(), c.IPC.String(), c.Metrics.String())
}

// String returns a string representation of the logging configuration
func (c LoggingConfig) String() string {
	return fmt.Sprintf("LoggingConfig{Level: %s, Format: %s, Output: %s}",
		c.Level, c.Format, c.Output)
}

// String returns a string representation of the IPC configuration
func (c IPCConfig) String() string {
	if c.Transport == "tcp" {
		return fmt.Sprintf("IPCConfig{Transport: tcp, Address: %s, Mode: %s}", c.Address(), c.Mode)
	}
	return fmt.Sprintf("IPCConfig{Transport: %s, SocketPath: %s, Mode: %s}",
		c.Transport, c.SocketPath, c.Mode)
}

// String returns a string representation of the metrics configuration
func (c MetricsConfig) String() string {
	return fmt.Sprintf("MetricsConfig{Enabled: %v, Host: %s, Port: %d}",
		c.Enabled, c.Host, c.Port)
}
