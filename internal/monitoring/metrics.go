package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var startTime = time.Now()

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowtrack_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flowtrack_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	HTTPActiveRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flowtrack_http_active_requests",
		Help: "Requests currently being served",
	})

	// WebSocketConnections tracks entries in the connection registry.
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flowtrack_websocket_connections",
		Help: "Number of registered notification connections",
	})

	NotificationsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowtrack_notifications_delivered_total",
			Help: "Messages written to notification connections",
		},
		[]string{"outcome"},
	)

	// EventsPublished labels: outcome is "success", "failure" or "rejected"
	// (breaker open).
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowtrack_events_published_total",
			Help: "Domain events published to the event bus",
		},
		[]string{"topic", "outcome"},
	)

	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowtrack_jobs_processed_total",
			Help: "Background jobs processed by type and result",
		},
		[]string{"type", "result"},
	)

	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowtrack_cache_requests_total",
			Help: "Progress cache lookups by result",
		},
		[]string{"result"},
	)
)

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		HTTPActiveRequests.Inc()

		c.Next()

		HTTPActiveRequests.Dec()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func MetricsHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

func Uptime() time.Duration {
	return time.Since(startTime)
}
