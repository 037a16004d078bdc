package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EventsTotal counts inbound client events by event name.
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "codesync_events_total",
		Help: "Inbound client events processed, by event name.",
	}, []string{"event"})

	// Rooms tracks rooms currently held by the coordinator.
	Rooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "codesync_rooms",
		Help: "Rooms currently live.",
	})

	// Connections tracks open websocket connections.
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "codesync_connections",
		Help: "Open websocket connections.",
	})

	// ExecRuns counts remote code executions by outcome ("ok" or "error").
	ExecRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "codesync_exec_runs_total",
		Help: "Remote code executions, by outcome.",
	}, []string{"status"})

	// ExecDuration observes remote execution round-trip time.
	ExecDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "codesync_exec_duration_seconds",
		Help:    "Remote execution round-trip time.",
		Buckets: prometheus.DefBuckets,
	})
)

// Handler exposes Prometheus metrics at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
