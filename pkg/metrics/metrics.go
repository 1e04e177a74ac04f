package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartboard_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// ActiveSessions tracks active sessions (not expired/revoked).
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "smartboard_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smartboard_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// EmailDispatch counts exam-hall notifications by outcome (sent|failed|skipped).
	EmailDispatch = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartboard_email_dispatch_total",
			Help: "Exam hall notification outcomes",
		},
		[]string{"outcome"},
	)

	// IngestRows counts spreadsheet rows by sheet kind and result (valid|invalid).
	IngestRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartboard_ingest_rows_total",
			Help: "Spreadsheet rows processed during ingestion",
		},
		[]string{"sheet", "result"},
	)

	// OTPEvents counts one-time code lifecycle events (issued|verified|consumed|rejected|expired|unknown_email|delivery_failed).
	OTPEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartboard_otp_events_total",
			Help: "One-time password lifecycle events",
		},
		[]string{"event"},
	)

	// MailBreakerState reports the mail transport breaker (0 closed, 1 half-open, 2 open).
	MailBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "smartboard_mail_breaker_state",
			Help: "Mail transport circuit breaker state",
		},
	)
)
