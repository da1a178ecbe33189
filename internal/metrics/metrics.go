// Package metrics exposes Prometheus instrumentation for the api service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WSConnections tracks the current number of active WebSocket connections.
	WSConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "friendforge_ws_connections",
		Help: "Current number of active WebSocket connections",
	})

	// OpenConversations tracks live conversation sessions (one per
	// client/peer pair, each holding two direction subscriptions).
	OpenConversations = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "friendforge_open_conversations",
		Help: "Current number of open conversation sessions",
	})

	// MessagesTotal counts message writes, labeled by kind: "sent",
	// "edited" or "deleted".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "friendforge_messages_total",
		Help: "Total number of message writes",
	}, []string{"kind"})

	// RequestsTotal counts friend request operations, labeled by outcome:
	// "created", "accepted", "rejected", "duplicate".
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "friendforge_friend_requests_total",
		Help: "Total number of friend request operations",
	}, []string{"outcome"})

	// StreamErrors counts failed direction subscriptions.
	StreamErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "friendforge_stream_errors_total",
		Help: "Total number of failed conversation stream subscriptions",
	})

	// HTTPDuration records request handling latency per route group.
	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "friendforge_http_duration_seconds",
		Help:    "HTTP request handling latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"method"})
)

func init() {
	prometheus.MustRegister(
		WSConnections,
		OpenConversations,
		MessagesTotal,
		RequestsTotal,
		StreamErrors,
		HTTPDuration,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
