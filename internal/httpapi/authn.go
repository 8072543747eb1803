package httpapi

import (
	"net/http"

	"manusfisio.app/internal/auth"
)

// Authenticate is the auth guard: it validates the bearer token against the
// credential backend, resolves the profile and injects both into the request
// context. It keeps no state of its own; each request is judged on provider
// and resolver output alone.
func (a *API) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "autenticação necessária")
			return
		}

		callCtx, cancel := a.backendCtx(r)
		defer cancel()

		session, err := a.provider.GetSession(callCtx, token)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "falha ao validar a sessão")
			return
		}
		if session == nil {
			writeError(w, http.StatusUnauthorized, "sessão inválida ou expirada")
			return
		}

		p, err := a.resolver.Resolve(callCtx, session.UserID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "falha ao resolver o perfil")
			return
		}
		if p == nil {
			// Valid session without a profile: the fail-closed strategy
			// already logged the cause. The caller stays unauthenticated.
			writeError(w, http.StatusUnauthorized, "sessão inválida ou expirada")
			return
		}

		ctx := auth.ContextWithProfile(r.Context(), *p)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin gates privileged routes. Must run behind Authenticate.
func RequireAdmin(next http.Handler) http.Handler {
	return RequireRole(auth.RoleAdmin, next)
}

// RequireRole answers 403 unless the context profile carries the role.
func RequireRole(role auth.Role, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.HasRole(r.Context(), role) {
			writeError(w, http.StatusForbidden, "permissão insuficiente")
			return
		}
		next.ServeHTTP(w, r)
	})
}
