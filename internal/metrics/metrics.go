package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	MonitorConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "monitor_connections",
			Help: "Open realtime connections by channel kind",
		},
		[]string{"kind"},
	)

	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_events_published_total",
			Help: "Monitor events handed to the broker",
		},
		[]string{"type", "result"},
	)

	MessagesDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_messages_dropped_total",
			Help: "Messages dropped because an observer's send buffer was full",
		},
	)

	ViolationsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctoring_violations_total",
			Help: "Recorded proctoring violations",
		},
		[]string{"type", "severity"},
	)
)

var registerOnce sync.Once

// Init registers every collector with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			MonitorConnections,
			EventsPublished,
			MessagesDropped,
			ViolationsRecorded,
		)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		RequestCounter.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
