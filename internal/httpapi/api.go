// Package httpapi exposes the auth subsystem over HTTP: sign-in, sign-up,
// sign-out, password reset, session introspection, an SSE session event
// stream and the admin user endpoints, plus health and metrics.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"manusfisio.app/internal/auth/profile"
	"manusfisio.app/internal/auth/provider"
	"manusfisio.app/internal/config"
	"manusfisio.app/internal/obs"
)

const defaultCallTimeout = 10 * time.Second

// API bundles the handlers' dependencies. Profiles and db are nil in mock
// mode; handlers that need them answer 501/ok accordingly.
type API struct {
	cfg         config.Config
	provider    provider.Provider
	resolver    *profile.Resolver
	profiles    profile.Store
	db          *sql.DB
	callTimeout time.Duration
}

// New constructs the API.
func New(cfg config.Config, p provider.Provider, r *profile.Resolver, store profile.Store, db *sql.DB) *API {
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &API{cfg: cfg, provider: p, resolver: r, profiles: store, db: db, callTimeout: timeout}
}

// backendCtx bounds one backend round-trip; a hung backend turns into a
// timeout error instead of an open request.
func (a *API) backendCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), a.callTimeout)
}

// Handler assembles the route table and the middleware chain.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	// Registrations pass through RoutePattern so metrics label by the
	// route template, not per-id paths.
	handle := func(pattern string, h http.Handler) {
		mux.Handle(pattern, obs.RoutePattern(h))
	}

	handle("GET /healthz", http.HandlerFunc(a.handleHealthz))
	handle("GET /readyz", http.HandlerFunc(a.handleReadyz))
	handle("GET /v1/info", http.HandlerFunc(a.handleInfo))
	handle("GET /metrics", obs.Handler())

	handle("POST /v1/auth/signin", http.HandlerFunc(a.handleSignIn))
	handle("POST /v1/auth/signup", http.HandlerFunc(a.handleSignUp))
	handle("POST /v1/auth/signout", http.HandlerFunc(a.handleSignOut))
	handle("POST /v1/auth/reset-password", http.HandlerFunc(a.handleResetPassword))
	handle("GET /v1/auth/session", a.Authenticate(http.HandlerFunc(a.handleSession)))
	handle("GET /v1/auth/events", a.Authenticate(http.HandlerFunc(a.handleEvents)))

	admin := func(h http.HandlerFunc) http.Handler {
		return a.Authenticate(RequireAdmin(h))
	}
	handle("GET /v1/users", admin(a.handleListUsers))
	handle("PATCH /v1/users/{id}/role", admin(a.handleUpdateRole))

	var h http.Handler = mux
	h = MaxBodyBytes(1<<20, h)
	h = RateLimit(20, 40, h)
	h = obs.Instrument(h)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return h
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz answers ready only when the backend the active mode needs is
// reachable. Mock mode has no backend and is always ready.
func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if a.db == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "mode": a.provider.Mode()})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.db.PingContext(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": "database unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "mode": a.provider.Mode()})
}

func (a *API) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "manus-fisio-auth",
		"version": obs.Version(),
		"mode":    a.provider.Mode(),
		"env":     a.cfg.Env,
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "corpo da requisição inválido")
		return false
	}
	return true
}

// bearerToken extracts the access token from the Authorization header.
func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
