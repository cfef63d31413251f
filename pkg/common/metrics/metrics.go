// Package metrics holds the Prometheus collectors of the tool.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ltitool_http_requests_total",
			Help: "HTTP requests handled by the tool",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ltitool_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// LoginsTotal counts third-party initiated logins by result (redirected, rejected).
	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ltitool_logins_total",
			Help: "OIDC login initiations by result",
		},
		[]string{"result"},
	)

	// LaunchesTotal counts launches by outcome: accepted, or the error kind that rejected them.
	LaunchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ltitool_launches_total",
			Help: "LTI launches by outcome",
		},
		[]string{"outcome"},
	)

	// AGSRegistrationsTotal counts AGS registrar runs: registered or skipped_<reason>.
	AGSRegistrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ltitool_ags_registrations_total",
			Help: "Graded resource registrations by result",
		},
		[]string{"result"},
	)

	// JWKSFetchesTotal counts platform key set fetches: fetched, not_modified, stale, error, negative_cached.
	JWKSFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ltitool_jwks_fetches_total",
			Help: "Platform JWKS fetches by result",
		},
		[]string{"result"},
	)
)

// Middleware records request count and latency labelled by the chi route
// pattern, so path parameters do not blow up cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := RoutePattern(r)
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// RoutePattern returns the matched chi pattern, or "unmatched".
func RoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
