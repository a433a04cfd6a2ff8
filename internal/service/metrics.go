package service

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics holds the service's prometheus collectors on a private
// registry, so tests can build a service without collector collisions.
type metrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	hits     *prometheus.CounterVec
	misses   *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{registry: prometheus.NewRegistry()}

	m.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "exch",
		Subsystem: "service",
		Name:      "requests_total",
		Help:      "HTTP requests handled, by method, route and status.",
	}, []string{"method", "path", "status"})

	m.duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "exch",
		Subsystem: "service",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency, by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	m.hits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "exch",
		Subsystem: "service",
		Name:      "cache_hits_total",
		Help:      "Reads served from the sqlite cache, by resource.",
	}, []string{"resource"})

	m.misses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "exch",
		Subsystem: "service",
		Name:      "cache_misses_total",
		Help:      "Reads that went to Exchange, by resource.",
	}, []string{"resource"})

	m.registry.MustRegister(m.requests, m.duration, m.hits, m.misses)
	return m
}

// handler serves the metrics endpoint.
func (m *metrics) handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// middleware counts and times every request by its registered route.
func (m *metrics) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		status := c.Response().Status
		if err != nil {
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
		}

		path := c.Path()
		m.requests.WithLabelValues(c.Request().Method, path, strconv.Itoa(status)).Inc()
		m.duration.WithLabelValues(c.Request().Method, path).Observe(time.Since(start).Seconds())
		return err
	}
}
