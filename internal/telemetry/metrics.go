// Package telemetry provides Prometheus metrics and OpenTelemetry tracing.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// UnitsRunning counts running listener units by transport.
	UnitsRunning *prometheus.GaugeVec
	// RelayTurns counts finished relay turns by result (ok, upstream_error, no_response, failed).
	RelayTurns *prometheus.CounterVec
	// RelayEdits counts message edits by status (ok, not_modified, error).
	RelayEdits *prometheus.CounterVec
	// AuthChecks counts gate decisions by outcome.
	AuthChecks *prometheus.CounterVec
	// UpstreamLatency observes the time to the first upstream event.
	UpstreamLatency prometheus.Observer
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		UnitsRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "plugbot_bot_units_running", Help: "Running listener units"}, []string{"transport"})
		RelayTurns = promauto.NewCounterVec(prometheus.CounterOpts{Name: "plugbot_relay_turns_total", Help: "Relay turns by result"}, []string{"result"})
		RelayEdits = promauto.NewCounterVec(prometheus.CounterOpts{Name: "plugbot_relay_edits_total", Help: "Message edits by status"}, []string{"status"})
		AuthChecks = promauto.NewCounterVec(prometheus.CounterOpts{Name: "plugbot_auth_checks_total", Help: "Auth gate decisions by outcome"}, []string{"outcome"})
		UpstreamLatency = promauto.NewHistogram(prometheus.HistogramOpts{Name: "plugbot_upstream_latency_seconds", Help: "Time until the first upstream event", Buckets: prometheus.DefBuckets})
	})
}

// UnitStarted and UnitStopped move the running gauge.
func UnitStarted(transport string) {
	if UnitsRunning != nil {
		UnitsRunning.WithLabelValues(transport).Inc()
	}
}

func UnitStopped(transport string) {
	if UnitsRunning != nil {
		UnitsRunning.WithLabelValues(transport).Dec()
	}
}

func RecordTurn(result string) {
	if RelayTurns != nil {
		RelayTurns.WithLabelValues(result).Inc()
	}
}

func RecordEdit(status string) {
	if RelayEdits != nil {
		RelayEdits.WithLabelValues(status).Inc()
	}
}

func RecordAuth(outcome string) {
	if AuthChecks != nil {
		AuthChecks.WithLabelValues(outcome).Inc()
	}
}

// ObserveUpstream records the latency since start.
func ObserveUpstream(start time.Time) {
	if UpstreamLatency != nil {
		UpstreamLatency.Observe(time.Since(start).Seconds())
	}
}
