package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricsNamespace = "apartment"
	metricsSubsystem = "http"

	unmatchedRoute = "unmatched"
)

// Actions counted by objectOperations.
const (
	actionCreate  = "create"
	actionInvoke  = "invoke"
	actionRelease = "release"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "requests_total",
			Help:      "HTTP requests served, by route and status code.",
		},
		[]string{"method", "route", "code"},
	)

	// Event streams stay open for the life of an object and are left out.
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "request_duration_seconds",
			Help:      "Latency of HTTP requests other than event streams, in seconds.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "route"},
	)

	objectOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "object_operations_total",
			Help:      "Object operations requested over HTTP, by action and result.",
		},
		[]string{"action", "result"},
	)

	eventStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "event_streams",
			Help:      "Object event streams currently open.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequests, httpRequestDuration, objectOperations, eventStreams)
}

// metricsMiddleware counts requests by chi route pattern, so object ids do
// not become label values.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routePattern(r)
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		if !isEventStream(route) {
			httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		}
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return unmatchedRoute
}

func isEventStream(route string) bool {
	return strings.HasSuffix(route, "/events")
}

// observeObjectOp counts one object operation under the result class its
// error maps to.
func observeObjectOp(action string, err error) {
	_, result := classifyError(err)
	objectOperations.WithLabelValues(action, result).Inc()
}

func metricsHandler() http.Handler {
	return promhttp.Handler()
}
