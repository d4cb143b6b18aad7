package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors registered on the default registry and served at /metrics.
var (
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_sessions_created_total",
		Help: "Sessions opened by instructors.",
	})
	SessionsEnded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_sessions_ended_total",
		Help: "Sessions explicitly ended.",
	})
	CodeCollisions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_session_code_collisions_total",
		Help: "Generated session codes already held by another open session.",
	})
	RecordsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_records_written_total",
		Help: "Ledger upserts by status and source.",
	}, []string{"status", "source"})
	Checkins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_checkins_total",
		Help: "Processed check-in attempts by outcome.",
	}, []string{"outcome"})
	RequestsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_requests_submitted_total",
		Help: "Exception requests submitted by type.",
	}, []string{"type"})
	RequestsReviewed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_requests_reviewed_total",
		Help: "Exception requests reviewed by resulting status.",
	}, []string{"status"})
	HTTPRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "attendance_http_request_duration_seconds",
		Help:    "HTTP request latency by method, route and status code.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)
