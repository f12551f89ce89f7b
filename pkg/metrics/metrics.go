package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudauth_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// TokenRefreshes counts refresh-token rotations by outcome
	// (success|not_found|device_mismatch|expired|error).
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudauth_token_refreshes_total",
			Help: "Total number of refresh token rotations",
		},
		[]string{"result"},
	)

	// PermissionChecks counts permission evaluations and their outcome (allowed|denied|error).
	PermissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudauth_permission_checks_total",
			Help: "Total number of permission checks",
		},
		[]string{"permission", "result"},
	)

	// ActiveSessions tracks live sessions (not logged out or expired).
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cloudauth_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// GatewayRequests counts edge verification outcomes (allowed|bypassed|rejected|unavailable).
	GatewayRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudauth_gateway_requests_total",
			Help: "Gateway identity verification outcomes",
		},
		[]string{"result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cloudauth_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
