package obs

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Métricas HTTP comuns
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Métricas do subsistema de autenticação
var (
	authMockMode = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "auth_mock_mode",
		Help: "1 when the mock credential backend is active.",
	})

	signInsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_signins_total",
			Help: "Sign-in attempts by outcome.",
		},
		[]string{"mode", "outcome"},
	)

	sessionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_session_transitions_total",
			Help: "Session controller state transitions.",
		},
		[]string{"to"},
	)

	profileFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_profile_fallbacks_total",
			Help: "Profile resolver fallback activations by strategy.",
		},
		[]string{"strategy"},
	)
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		authMockMode, signInsTotal, sessionTransitions, profileFallbacks,
	)
}

// Handler exposes the Prometheus endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetMockMode records which credential backend is active.
func SetMockMode(mock bool) {
	if mock {
		authMockMode.Set(1)
		return
	}
	authMockMode.Set(0)
}

// ObserveSignIn counts one sign-in attempt.
func ObserveSignIn(mode string, ok bool) {
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	signInsTotal.WithLabelValues(mode, outcome).Inc()
}

// ObserveSessionTransition counts one controller state change.
func ObserveSessionTransition(to string) {
	sessionTransitions.WithLabelValues(to).Inc()
}

// ObserveProfileFallback counts one resolver fallback activation.
func ObserveProfileFallback(strategy string) {
	profileFallbacks.WithLabelValues(strategy).Inc()
}

type routePatternKey struct{}

type routePatternHolder struct{ value string }

// RoutePattern reports the mux-matched route back to Instrument so metric
// labels use `/v1/users/{id}/role` instead of one series per user id. Wrap
// each registered handler with it; the pattern is only known after dispatch.
func RoutePattern(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if holder, ok := r.Context().Value(routePatternKey{}).(*routePatternHolder); ok {
			if p := r.Pattern; p != "" {
				// "GET /v1/users/{id}/role" keeps only the path part.
				if i := strings.IndexByte(p, ' '); i >= 0 {
					p = p[i+1:]
				}
				holder.value = p
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.Method
		holder := &routePatternHolder{}
		r = r.WithContext(context.WithValue(r.Context(), routePatternKey{}, holder))

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)
		path := holder.value
		if path == "" {
			path = r.URL.Path
		}

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code after serving.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming handlers working behind the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
