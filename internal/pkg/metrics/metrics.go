// Package metrics holds the Prometheus collectors for economy operations and
// bot commands.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics groups the bot's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	operations      *prometheus.CounterVec
	coinsMoved      *prometheus.CounterVec
	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	rateLimited     *prometheus.CounterVec
	purged          prometheus.Counter
}

// New creates the collectors and registers them on a fresh registry, along
// with the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "economy_operations_total",
				Help: "Economy operations by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		coinsMoved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "economy_coins_moved_total",
				Help: "Currency minted, moved or destroyed by committed operations",
			},
			[]string{"op"},
		),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bot_commands_total",
				Help: "Bot commands handled by command and status",
			},
			[]string{"command", "status"},
		),
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bot_command_duration_seconds",
				Help:    "Bot command handling latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		rateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_limiter_blocked_total",
				Help: "Commands blocked by the rate limiter",
			},
			[]string{"command"},
		),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "economy_expired_rows_purged_total",
			Help: "Expired protection windows and cooldowns deleted by the janitor",
		}),
	}

	m.registry.MustRegister(
		m.operations,
		m.coinsMoved,
		m.commands,
		m.commandDuration,
		m.rateLimited,
		m.purged,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry to expose over HTTP.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MustRegister adds collectors owned by other packages, such as the
// database pool statistics. It panics on duplicate registration.
func (m *Metrics) MustRegister(cs ...prometheus.Collector) {
	if m == nil {
		return
	}
	m.registry.MustRegister(cs...)
}

// Operation counts one economy operation outcome.
func (m *Metrics) Operation(op, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

// CoinsMoved adds amount to the per-operation currency counter.
func (m *Metrics) CoinsMoved(op string, amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	m.coinsMoved.WithLabelValues(op).Add(float64(amount))
}

// Command records a handled command and its latency.
func (m *Metrics) Command(command, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, status).Inc()
	m.commandDuration.WithLabelValues(command).Observe(took.Seconds())
}

// RateLimited counts a command rejected by the rate limiter.
func (m *Metrics) RateLimited(command string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(command).Inc()
}

// Purged counts rows removed by the janitor.
func (m *Metrics) Purged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.purged.Add(float64(n))
}
