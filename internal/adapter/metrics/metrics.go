// Package metrics defines the Prometheus instrumentation for the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stagecast"

var (
	SessionsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_started_total",
		Help:      "Sessions successfully started",
	})

	SessionsEndedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_ended_total",
		Help:      "Sessions successfully ended",
	})

	SessionStartFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_start_failures_total",
		Help:      "Failed session starts by reason",
	}, []string{"reason"})

	OrphanedRoomsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orphaned_rooms_total",
		Help:      "Rooms leaked because commit and compensation both failed",
	})

	RoomDeleteFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "room_delete_failures_total",
		Help:      "Best-effort room deletions that failed",
	})

	OrphanRoomsSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orphan_rooms_swept_total",
		Help:      "Ledgered orphan rooms reclaimed by the sweeper",
	})

	OrphanSweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orphan_sweeps_total",
		Help:      "Sweeper runs",
	})

	TokensIssuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_issued_total",
		Help:      "Room access tokens issued by granted role",
	}, []string{"role"})

	ProviderRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_requests_total",
		Help:      "Room provider requests by operation and outcome",
	}, []string{"op", "outcome"})

	ProviderRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "provider_request_duration_seconds",
		Help:      "Room provider request latency by operation",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	HTTPErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_errors_total",
		Help:      "HTTP errors by error type",
	}, []string{"type"})
)

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
