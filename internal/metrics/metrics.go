// Package metrics provides Prometheus metrics for GuardiaPass.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "guardiapass"

var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight tracks the number of in-flight HTTP requests.
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)

	// UsersTotal tracks the number of registered users.
	UsersTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "users_total",
			Help:      "Total number of registered users",
		},
	)

	// RecordsTotal tracks the number of stored credential records.
	RecordsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Total number of credential records stored",
		},
	)

	// EnvelopeOperations counts envelope operations by operation and mode.
	EnvelopeOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelope_operations_total",
			Help:      "Total number of envelope encrypt/decrypt/reencrypt operations",
		},
		[]string{"operation", "mode"},
	)

	// EnvelopeFailures counts failed decryptions by mode.
	EnvelopeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelope_failures_total",
			Help:      "Total number of records that could not be decrypted",
		},
		[]string{"mode"},
	)

	// PasswordsGenerated counts generated passwords by source.
	PasswordsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passwords_generated_total",
			Help:      "Total number of generated passwords",
		},
		[]string{"source"}, // "api", "mcp"
	)

	// StrengthScores observes strength scores of measured passwords.
	StrengthScores = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "strength_score",
			Help:      "Distribution of measured password strength scores",
			Buckets:   prometheus.LinearBuckets(0, 2, 8),
		},
	)

	// LoginAttempts counts login attempts by result.
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Total number of login attempts",
		},
		[]string{"result"}, // "success", "failure"
	)

	// RateLimitRejections counts requests refused by the rate limiter.
	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejections_total",
			Help:      "Total number of requests rejected by the rate limiter",
		},
		[]string{"reason"}, // "limited", "unavailable"
	)

	// DatabaseConnections tracks database connection pool stats.
	DatabaseConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "database_connections",
			Help:      "Database connection pool statistics",
		},
		[]string{"state"}, // "in_use", "idle", "max_open"
	)
)
