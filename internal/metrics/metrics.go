// Package metrics provides Prometheus instrumentation for the IPC layer.
//
// All methods are nil-safe: a nil *Metrics is a no-op recorder, so callers
// never need to guard instrumentation sites.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the IPC connection manager
type Metrics struct {
	connectionsAccepted prometheus.Counter
	connectionsRejected prometheus.Counter
	messagesReceived    prometheus.Counter
	bytesRead           prometheus.Counter
	activeConnections   prometheus.Gauge
}

// Config configures the metrics collectors
type Config struct {
	// Namespace is the metrics namespace (default: "duplex").
	Namespace string

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// New creates the IPC metrics collectors and registers them
func New(cfg Config) *Metrics {
	if cfg.Namespace == "" {
		cfg.Namespace = "duplex"
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(cfg.Registry)

	return &Metrics{
		connectionsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "connections_accepted_total",
			Help:      "Total number of accepted IPC connections.",
		}),
		connectionsRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "connections_rejected_total",
			Help:      "Total number of IPC connections rejected over the connection cap.",
		}),
		messagesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "messages_received_total",
			Help:      "Total number of messages dispatched to handlers.",
		}),
		bytesRead: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "bytes_read_total",
			Help:      "Total payload bytes read from IPC connections.",
		}),
		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "active_connections",
			Help:      "Number of currently open IPC connections.",
		}),
	}
}

// ConnectionAccepted records an accepted connection
func (m *Metrics) ConnectionAccepted() {
	if m == nil {
		return
	}
	m.connectionsAccepted.Inc()
	m.activeConnections.Inc()
}

// ConnectionRejected records a rejected connection
func (m *Metrics) ConnectionRejected() {
	if m == nil {
		return
	}
	m.connectionsRejected.Inc()
}

// ConnectionClosed records a closed connection
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.activeConnections.Dec()
}

// MessageReceived records a dispatched message and its payload size
func (m *Metrics) MessageReceived(bytes int) {
	if m == nil {
		return
	}
	m.messagesReceived.Inc()
	m.bytesRead.Add(float64(bytes))
}
