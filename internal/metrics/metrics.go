// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "messer_active_sessions",
		Help: "Number of authenticated sessions currently open",
	})

	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "messer_requests_total",
		Help: "Requests handled over the socket, by endpoint and outcome",
	}, []string{"endpoint", "outcome"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "messer_request_duration_seconds",
		Help:    "Handler latency by endpoint",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "messer_events_published_total",
		Help: "Events handed to live sessions, by type",
	}, []string{"type"})

	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "messer_events_dropped_total",
		Help: "Events a session could not accept, by type",
	}, []string{"type"})

	SessionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "messer_sessions_closed_total",
		Help: "Sessions closed, by reason",
	}, []string{"reason"})
)

// Outcome labels for Requests.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)
