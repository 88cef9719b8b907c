package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/duplexio/duplex/internal/config"
	"github.com/duplexio/duplex/internal/logger"
	"github.com/duplexio/duplex/internal/metrics"
	"github.com/duplexio/duplex/pkg/deps"
	"github.com/duplexio/duplex/pkg/ipc"
)

var (
	// CLI flags
	cfgFile    string
	logLevel   string
	logFormat  string
	transport  string
	socketPath string
	host       string
	port       int
	timeout    time.Duration
	mode       string

	rootLog *logger.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "duplex",
	Short: "Duplex - transport-agnostic IPC connection manager",
	Long: `Duplex manages bidirectional, message-oriented IPC channels over unix
domain sockets or tcp, with a uniform connection lifecycle for both the
listening and the connecting side.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the IPC server",
	RunE:  runServe,
}

var sendCmd = &cobra.Command{
	Use:   "send [message]",
	Short: "Connect to an IPC server, send a message and print the replies",
	Args:  cobra.ExactArgs(1),
	RunE:  runSend,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.config/duplex/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json, text)")
	rootCmd.PersistentFlags().StringVar(&transport, "transport", "", "transport (unix, tcp)")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "unix socket path")
	rootCmd.PersistentFlags().StringVar(&host, "host", "", "tcp host")
	rootCmd.PersistentFlags().IntVar(&port, "port", 0, "tcp port")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "per-connection timeout")
	rootCmd.PersistentFlags().StringVar(&mode, "mode", "", "connection mode (persistent, ephemeral)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sendCmd)
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads the configuration and applies CLI flag overrides
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if cfgFile != "" {
		cfg, err = config.LoadFromFile(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if transport != "" {
		cfg.IPC.Transport = transport
	}
	if socketPath != "" {
		cfg.IPC.SocketPath = socketPath
	}
	if host != "" {
		cfg.IPC.Host = host
	}
	if port != 0 {
		cfg.IPC.Port = port
	}
	if timeout != 0 {
		cfg.IPC.Timeout = timeout
	}
	if mode != "" {
		cfg.IPC.Mode = mode
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildTransport maps the IPC configuration onto a transport adapter
func buildTransport(cfg config.IPCConfig) ipc.Transport {
	if cfg.Transport == "tcp" {
		return &ipc.TCPTransport{Host: cfg.Host, Port: cfg.Port}
	}
	return &ipc.UnixTransport{Path: cfg.SocketPath}
}

// runServe runs the IPC server until SIGINT/SIGTERM
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	rootLog, err = logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer rootLog.Close()
	logger.SetGlobal(rootLog)

	ctx := context.Background()

	var m *metrics.Metrics
	var metricsSrv *http.Server
	var server *ipc.Server

	// The subsystems declare their dependencies; startup follows the
	// resolved order and shutdown its reverse.
	subsystems := map[string][]string{
		"metrics": {},
		"server":  {"metrics"},
	}
	start := map[string]func() error{
		"metrics": func() error {
			if !cfg.Metrics.Enabled {
				return nil
			}
			m = metrics.New(metrics.Config{})
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			metricsSrv = &http.Server{Addr: cfg.MetricsAddress(), Handler: mux}
			go func() {
				if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					rootLog.Error("metrics endpoint failed", "error", err)
				}
			}()
			rootLog.Info("metrics endpoint listening", "addr", cfg.MetricsAddress())
			return nil
		},
		"server": func() error {
			server = ipc.NewServer(buildTransport(cfg.IPC), ipc.OptionsFromConfig(cfg.IPC), ipc.Hooks{}, rootLog, m)
			return server.Open(ctx)
		},
	}
	stop := map[string]func(){
		"metrics": func() {
			if metricsSrv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				metricsSrv.Shutdown(shutdownCtx)
			}
		},
		"server": func() {
			if server != nil {
				if err := server.Close(); err != nil {
					rootLog.Error("server shutdown failed", "error", err)
				}
			}
		},
	}

	order, err := deps.Sort(subsystems)
	if err != nil {
		return err
	}
	for _, name := range order {
		if err := start[name](); err != nil {
			return fmt.Errorf("failed to start %s: %w", name, err)
		}
	}

	// Reload configuration on SIGHUP; only the log level is applied live
	reloader := config.NewReloader(cfgFile, cfg)
	if cfgFile != "" {
		reloader.OnReload(func(ctx context.Context, newConfig *config.Config) error {
			rootLog.Info("configuration reloaded", "config", newConfig.String())
			return nil
		})
		reloader.Start()
		defer reloader.Stop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	rootLog.Info("shutting down", "signal", sig.String())

	for _, name := range deps.Reverse(order) {
		stop[name]()
	}
	return nil
}

// runSend connects a client, sends the payload and prints replies until the
// server closes the connection or the timeout elapses
func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	rootLog, err = logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer rootLog.Close()
	logger.SetGlobal(rootLog)

	opts := ipc.OptionsFromConfig(cfg.IPC)
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}

	replies := make(chan []byte, 16)
	hooks := ipc.Hooks{
		OnMessage: func(ctx context.Context, msg *ipc.Message) error {
			data := make([]byte, len(msg.Data))
			copy(data, msg.Data)
			replies <- data
			return nil
		},
		PostDisconnect: func(ctx context.Context, conn *ipc.Connection) error {
			close(replies)
			return nil
		},
	}

	client := ipc.NewClient(buildTransport(cfg.IPC), opts, hooks, rootLog)
	return client.With(context.Background(), func(ctx context.Context, c *ipc.Client) error {
		if err := c.Send(ctx, []byte(args[0])); err != nil {
			return err
		}
		for {
			select {
			case reply, ok := <-replies:
				if !ok {
					return nil
				}
				fmt.Println(string(reply))
			case <-time.After(opts.Timeout):
				return nil
			}
		}
	})
}
