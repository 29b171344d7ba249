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
	initOnce sync.Once

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cloudnest",
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cloudnest",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// JobsPublished counts publish attempts per topic; result is ok or error.
	JobsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cloudnest",
		Name:      "jobs_published_total",
		Help:      "Media jobs published by the upload coordinator.",
	}, []string{"topic", "result"})

	// JobsProcessed counts worker outcomes by job type.
	JobsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cloudnest",
		Name:      "jobs_processed_total",
		Help:      "Media jobs processed by workers.",
	}, []string{"job_type", "outcome"})

	// JobDuration observes end-to-end job handling time in the worker.
	JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cloudnest",
		Name:      "job_duration_seconds",
		Help:      "Worker job duration.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"job_type"})

	// Reconciliations counts callback outcomes on the coordinator side.
	Reconciliations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cloudnest",
		Name:      "reconciliations_total",
		Help:      "Worker callbacks applied by the upload coordinator.",
	}, []string{"outcome"})

	// CallbackFailures counts dropped worker callbacks.
	CallbackFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cloudnest",
		Name:      "callback_failures_total",
		Help:      "Worker callbacks that could not be delivered.",
	})

	// OrphansReaped counts UPLOADED files removed by the sweep.
	OrphansReaped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cloudnest",
		Name:      "orphans_reaped_total",
		Help:      "Files never completed and removed by the orphan sweep.",
	})
)

// InitMetrics registers every collector with the default registry. Safe to call repeatedly.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			JobsPublished,
			JobsProcessed,
			JobDuration,
			Reconciliations,
			CallbackFailures,
			OrphansReaped,
		)
	})
}

// Middleware records request counts and latency per route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Register attaches the Prometheus metrics endpoint to the router.
func Register(router *gin.Engine, path string) {
	router.GET(path, gin.WrapH(promhttp.Handler()))
}
