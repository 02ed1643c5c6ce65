package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_http_requests_total",
			Help: "Total number of HTTP requests processed by the lab daemon.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "collab_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "collab_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
		[]string{"kind"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_ws_events_total",
			Help: "Total number of websocket events.",
		},
		[]string{"kind", "event"},
	)
	relayPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collab_relay_publish_errors_total",
			Help: "Total number of relay publishes that failed and were dropped.",
		},
	)
	relayEventsAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_relay_events_applied_total",
			Help: "Relay events received, by event type and outcome.",
		},
		[]string{"event", "outcome"},
	)
	relayReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collab_relay_reconnects_total",
			Help: "Total number of relay subscription reconnect attempts.",
		},
	)
	sweeperRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_sweeper_runs_total",
			Help: "TTL sweeper passes, by result.",
		},
		[]string{"result"},
	)
	sweeperRemovedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_sweeper_removed_total",
			Help: "Records removed by the TTL sweeper.",
		},
		[]string{"kind"},
	)
	overlaySize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "collab_overlay_messages",
			Help: "Optimistic messages not yet confirmed by the shared store.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collab_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		relayPublishErrorsTotal,
		relayEventsAppliedTotal,
		relayReconnectsTotal,
		sweeperRunsTotal,
		sweeperRemovedTotal,
		overlaySize,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Inc()
}

func DecWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Dec()
}

func IncWSEvent(kind, event string) {
	wsEventsTotal.WithLabelValues(kind, event).Inc()
}

func IncRelayPublishError() {
	relayPublishErrorsTotal.Inc()
}

// IncRelayEvent counts a received relay event. outcome is one of applied,
// duplicate, ignored, expired or failed.
func IncRelayEvent(event, outcome string) {
	relayEventsAppliedTotal.WithLabelValues(event, outcome).Inc()
}

func IncRelayReconnect() {
	relayReconnectsTotal.Inc()
}

func IncSweeperRun(result string) {
	sweeperRunsTotal.WithLabelValues(result).Inc()
}

func AddSweeperRemoved(kind string, n int) {
	if n > 0 {
		sweeperRemovedTotal.WithLabelValues(kind).Add(float64(n))
	}
}

func AddOverlay(delta int) {
	overlaySize.Add(float64(delta))
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
