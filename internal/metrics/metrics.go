// Package metrics holds the daemon's Prometheus instruments.
//
// Instruments live on a private registry rather than the global default so
// that several daemons (or tests) can coexist in one process. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "metad"

// Command status labels.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Relay entry result labels.
const (
	RelayApplied   = "applied"
	RelayDuplicate = "duplicate"
	RelayFailed    = "failed"
	RelayAckFailed = "ack_failed"
	RelaySkipped   = "skipped"
)

// Oracle request result labels.
const (
	OracleOK          = "ok"
	OracleError       = "error"
	OracleRateLimited = "rate_limited"
	OracleUnparsed    = "unparsed"
	OracleFallback    = "fallback"
)

// Metrics is the set of daemon instruments.
type Metrics struct {
	registry *prometheus.Registry

	// commands counts protocol commands.
	// Labels: command (EVENT, TAG, ...), status (ok, error)
	commands *prometheus.CounterVec

	// relayEntries counts WAL entries seen by the relay.
	// Labels: result (applied, duplicate, failed, ack_failed, skipped)
	relayEntries *prometheus.CounterVec

	// relayCycle measures one fetch-apply-ack cycle.
	relayCycle prometheus.Histogram

	// oracleRequests counts NLQ oracle outcomes.
	// Labels: result (ok, error, rate_limited, unparsed, fallback)
	oracleRequests *prometheus.CounterVec

	// connections tracks open client connections.
	connections prometheus.Gauge
}

// New creates the instruments on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Protocol commands handled, by command and status",
		}, []string{"command", "status"}),
		relayEntries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_entries_total",
			Help:      "WAL entries processed by the relay, by result",
		}, []string{"result"}),
		relayCycle: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_cycle_seconds",
			Help:      "Duration of one WAL relay cycle",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		oracleRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_requests_total",
			Help:      "NLQ oracle requests, by result",
		}, []string{"result"}),
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_open",
			Help:      "Open client connections",
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Command records one handled protocol command.
func (m *Metrics) Command(name string, ok bool) {
	if m == nil {
		return
	}
	status := StatusOK
	if !ok {
		status = StatusError
	}
	m.commands.WithLabelValues(name, status).Inc()
}

// RelayEntry records one relay entry outcome.
func (m *Metrics) RelayEntry(result string) {
	if m == nil {
		return
	}
	m.relayEntries.WithLabelValues(result).Inc()
}

// RelayCycle records the duration of one relay cycle.
func (m *Metrics) RelayCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.relayCycle.Observe(d.Seconds())
}

// OracleRequest records one NLQ oracle outcome.
func (m *Metrics) OracleRequest(result string) {
	if m == nil {
		return
	}
	m.oracleRequests.WithLabelValues(result).Inc()
}

// ConnOpened increments the open connection gauge.
func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

// ConnClosed decrements the open connection gauge.
func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

// Server returns an HTTP server exposing /metrics on addr.
func (m *Metrics) Server(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
