package httpapi

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const unmatchedRoute = "unmatched"

type requestMetrics struct {
	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func newRequestMetrics(registerer prometheus.Registerer) *requestMetrics {
	factory := promauto.With(registerer)
	return &requestMetrics{
		requestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// routeLabel uses the route template so booking ids do not explode label cardinality.
func routeLabel(ctx *gin.Context) string {
	route := ctx.FullPath()
	if route == "" {
		return unmatchedRoute
	}
	return route
}

func (metrics *requestMetrics) middleware(ctx *gin.Context) {
	if ctx.Request.URL.Path == metricsRoute {
		ctx.Next()
		return
	}
	start := time.Now()
	ctx.Next()
	duration := time.Since(start).Seconds()
	path := routeLabel(ctx)
	status := strconv.Itoa(ctx.Writer.Status())
	metrics.requestTotal.WithLabelValues(ctx.Request.Method, path, status).Inc()
	metrics.requestDuration.WithLabelValues(ctx.Request.Method, path).Observe(duration)
}
