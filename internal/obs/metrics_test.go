package obs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrumentPreservesStatus(t *testing.T) {
	handler := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status to pass through, got %d", rr.Code)
	}
}

// Distinct path params must collapse into one labeled series per route.
func TestInstrumentLabelsByRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("GET /v1/users/{id}/role", RoutePattern(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))
	handler := Instrument(mux)

	for _, path := range []string{"/v1/users/abc/role", "/v1/users/xyz/role"} {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	}

	got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/users/{id}/role", "200"))
	if got != 2 {
		t.Fatalf("expected both requests on the route series, got %v", got)
	}
}

func TestInstrumentFlushPassesThrough(t *testing.T) {
	handler := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := w.(http.Flusher); !ok {
			t.Error("flusher lost behind Instrument")
		}
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/stream", nil))
}

func TestObserveHelpersDoNotPanic(t *testing.T) {
	SetMockMode(true)
	SetMockMode(false)
	ObserveSignIn("mock", true)
	ObserveSignIn("live", false)
	ObserveSessionTransition("authenticated")
	ObserveProfileFallback("fail_closed")
}
