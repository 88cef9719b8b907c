package config

import (
	"os"
	"path/filepath"
	"time"
)

// testConfigPath is an override for the default config path used in testing
// If set, GetDefaultConfigPath will return this value instead of the standard path
var testConfigPath string

// SetTestConfigPath sets a custom config path for testing purposes
// This should only be called from tests
func SetTestConfigPath(path string) {
	testConfigPath = path
}

// GetConfigDir returns the duplex configuration directory
// Uses ~/.config/duplex/ on Unix systems
func GetConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "duplex"), nil
}

// GetDefaultConfigPath returns the default config file path
func GetDefaultConfigPath() (string, error) {
	// If test config path is set, use it
	if testConfigPath != "" {
		return testConfigPath, nil
	}

	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

const (
	// Environment variable names
	EnvLogLevel       = "DUPLEX_LOG_LEVEL"
	EnvLogFormat      = "DUPLEX_LOG_FORMAT"
	EnvTransport      = "DUPLEX_TRANSPORT"
	EnvSocketPath     = "DUPLEX_SOCKET_PATH"
	EnvHost           = "DUPLEX_HOST"
	EnvPort           = "DUPLEX_PORT"
	EnvMaxConnections = "DUPLEX_MAX_CONNECTIONS"

	// NoLimit disables the per-connection byte limit
	NoLimit = -1
)

// DefaultConfig returns a configuration with default values
func DefaultConfig() Config {
	return Config{
		Logging: DefaultLoggingConfig(),
		IPC:     DefaultIPCConfig(),
		Metrics: DefaultMetricsConfig(),
	}
}

// DefaultLoggingConfig returns the default logging configuration
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  "info",
		Format: "text",
		Output: "stderr",
	}
}

// DefaultIPCConfig returns the default IPC configuration
func DefaultIPCConfig() IPCConfig {
	return IPCConfig{
		Transport:      "unix",
		SocketPath:     defaultSocketPath(),
		Host:           "127.0.0.1",
		Port:           7600,
		Timeout:        0,
		Limit:          intPtr(NoLimit),
		Chunksize:      0,
		Mode:           "persistent",
		MaxConnections: 64,
		ReadBuffer:     32 * 1024,
	}
}

// DefaultMetricsConfig returns the default metrics configuration
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled: false,
		Host:    "127.0.0.1",
		Port:    9390,
	}
}

// intPtr returns a pointer to v, for optional config fields
func intPtr(v int) *int {
	return &v
}

// defaultSocketPath returns the default unix socket path, preferring the
// user runtime directory when available
func defaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "duplex.sock")
	}
	return filepath.Join(os.TempDir(), "duplex.sock")
}

// DefaultReloadDebounce is the minimum interval between config reloads
const DefaultReloadDebounce = 1 * time.Second
