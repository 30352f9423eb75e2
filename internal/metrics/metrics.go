// internal/metrics/metrics.go
// Package metrics exposes prometheus collectors for the trading engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solpilot_entries_total",
		Help: "Entry trade attempts by result (executed, skipped, failed).",
	}, []string{"result"})

	ExitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solpilot_exits_total",
		Help: "Exit ladder outcomes by trigger reason and result.",
	}, []string{"reason", "result"})

	ExitAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solpilot_exit_attempts_total",
		Help: "Individual exit execution attempts by result.",
	}, []string{"result"})

	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "solpilot_open_positions",
		Help: "Number of currently open positions across all sessions.",
	})

	SessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solpilot_session_transitions_total",
		Help: "Session state transitions by target state.",
	}, []string{"state"})
)

// Handler returns the HTTP handler serving the prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
