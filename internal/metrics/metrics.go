// Package metrics exposes the portal's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AssignmentsInserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dashportal",
		Name:      "assignments_inserted_total",
		Help:      "Dashboard assignments inserted, by operation.",
	}, []string{"op"})

	AssignmentsRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dashportal",
		Name:      "assignments_removed_total",
		Help:      "Dashboard assignments removed, by operation.",
	}, []string{"op"})

	SignIns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dashportal",
		Name:      "sign_ins_total",
		Help:      "Sign-in attempts by outcome.",
	}, []string{"outcome"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dashportal",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status.",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dashportal",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Middleware records request count and latency keyed by the matched route.
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

func Handler() http.Handler { return promhttp.Handler() }
