package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	trustRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trust_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	trustRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trust_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	trustLedgerAppendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trust_ledger_appends_total",
		Help: "Total ledger append attempts by outcome.",
	}, []string{"outcome"})

	trustVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trust_ledger_verifications_total",
		Help: "Total chain verifications by result.",
	}, []string{"result"})

	trustViolationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trust_integrity_violations_total",
		Help: "Total chain verifications that detected an integrity violation.",
	})

	trustCitationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trust_citations_attached_total",
		Help: "Total citations attached across all reports.",
	})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		trustRequestsTotal.WithLabelValues(method, path, status).Inc()
		trustRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordAppend records a ledger append attempt outcome.
func RecordAppend(success bool) {
	if success {
		trustLedgerAppendsTotal.WithLabelValues("appended").Inc()
	} else {
		trustLedgerAppendsTotal.WithLabelValues("conflict").Inc()
	}
}

// RecordVerification records a chain verification result.
func RecordVerification(valid bool) {
	if valid {
		trustVerificationsTotal.WithLabelValues("valid").Inc()
	} else {
		trustVerificationsTotal.WithLabelValues("invalid").Inc()
		trustViolationsTotal.Inc()
	}
}

// RecordCitationAttached records a successful citation attach.
func RecordCitationAttached() {
	trustCitationsTotal.Inc()
}
