// Package metrics provides Prometheus metrics for the Qolaba MCP bridge:
// upstream request counts and latency, per-operation outcomes, and OAuth
// token refreshes.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// UpstreamRequests counts upstream HTTP attempts by operation and status class.
var UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "qolaba",
	Name:      "upstream_requests_total",
	Help:      "Total upstream HTTP attempts.",
}, []string{"operation", "status"})

// UpstreamLatency tracks upstream request duration in seconds.
var UpstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "qolaba",
	Name:      "upstream_latency_seconds",
	Help:      "Upstream request duration in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"operation"})

// Operations counts orchestrated tool invocations by operation and outcome kind.
var Operations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "qolaba",
	Name:      "operations_total",
	Help:      "Total tool operations by outcome.",
}, []string{"operation", "outcome"})

// TokenRefreshes counts OAuth token refresh attempts by result.
var TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "qolaba",
	Name:      "token_refreshes_total",
	Help:      "Total OAuth token refresh attempts.",
}, []string{"result"})

// RateLimitWaits counts local rate-limiter timeouts.
var RateLimitWaits = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "qolaba",
	Name:      "rate_limit_local_timeouts_total",
	Help:      "Attempts abandoned waiting for the local rate limiter.",
})

// RecordUpstream records one upstream attempt.
func RecordUpstream(operation string, status int, seconds float64) {
	UpstreamRequests.WithLabelValues(operation, statusClass(status)).Inc()
	UpstreamLatency.WithLabelValues(operation).Observe(seconds)
}

// RecordOperation records one completed orchestrator invocation.
func RecordOperation(operation, outcome string) {
	Operations.WithLabelValues(operation, outcome).Inc()
}

// RecordTokenRefresh records one token refresh attempt.
func RecordTokenRefresh(ok bool) {
	if ok {
		TokenRefreshes.WithLabelValues("ok").Inc()
		return
	}
	TokenRefreshes.WithLabelValues("error").Inc()
}

func statusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}
