// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vehicle-lookup-api/internal/events"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vehicle_lookup_http_requests_total",
			Help: "HTTP requests handled, by route and status code",
		},
		[]string{"route", "status"},
	)

	upstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vehicle_lookup_upstream_duration_seconds",
			Help:    "Registry call latency, by query variant and outcome",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15},
		},
		[]string{"variant", "outcome"},
	)

	authorizations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vehicle_lookup_authorizations_total",
			Help: "Authorization gate decisions, by path and result",
		},
		[]string{"path", "result"},
	)

	auditFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vehicle_lookup_audit_write_failures_total",
			Help: "Audit log entries that could not be persisted",
		},
	)

	rateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vehicle_lookup_rate_limited_total",
			Help: "Requests rejected by the hourly request ceiling",
		},
	)

	busEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vehicle_lookup_events_total",
			Help: "Events published on the internal bus, by type",
		},
		[]string{"type"},
	)
)

// ObserveUpstream records one registry call
func ObserveUpstream(variant, outcome string, d time.Duration) {
	upstreamDuration.WithLabelValues(variant, outcome).Observe(d.Seconds())
}

// IncAuthorization counts a gate decision. path is "pay", "promo" or "none".
func IncAuthorization(path string, granted bool) {
	result := "denied"
	if granted {
		result = "granted"
	}
	authorizations.WithLabelValues(path, result).Inc()
}

// IncAuditFailure counts a failed audit write
func IncAuditFailure() {
	auditFailures.Inc()
}

// IncRateLimited counts a request rejected by the rate limiter
func IncRateLimited() {
	rateLimited.Inc()
}

// CountEvents counts every event published on bus
func CountEvents(bus *events.EventBus) {
	bus.SubscribeAll(func(e events.Event) {
		busEvents.WithLabelValues(string(e.Type)).Inc()
	})
}

// GinMiddleware counts requests by matched route
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
