package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"manusfisio.app/internal/audit"
	"manusfisio.app/internal/auth"
	"manusfisio.app/internal/obs"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	auth.ProfileSeed
}

type sessionResponse struct {
	Session *auth.Session `json:"session"`
	Profile *auth.Profile `json:"profile"`
}

func (a *API) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email e senha são obrigatórios")
		return
	}

	ctx, cancel := a.backendCtx(r)
	defer cancel()

	session, err := a.provider.SignIn(ctx, req.Email, req.Password)
	obs.ObserveSignIn(a.provider.Mode(), err == nil)
	if err != nil {
		_ = audit.LogEvent(r.Context(), "auth.signin", map[string]any{
			"mode": a.provider.Mode(), "email": req.Email, "outcome": "failure",
		})
		writeAuthError(w, err)
		return
	}

	p, err := a.resolver.Resolve(ctx, session.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "falha ao resolver o perfil")
		return
	}
	if p == nil {
		// Credentials were right but no profile resolved (fail-closed). The
		// response is the generic denial so account state does not leak.
		_ = audit.LogEvent(r.Context(), "auth.signin", map[string]any{
			"mode": a.provider.Mode(), "email": req.Email, "outcome": "no_profile",
		})
		writeError(w, http.StatusUnauthorized, auth.ErrInvalidCredentials.Error())
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.signin", map[string]any{
		"mode": a.provider.Mode(), "email": req.Email, "outcome": "success",
		"user_id": p.ID, "session_id": session.ID,
	})
	writeJSON(w, http.StatusOK, sessionResponse{Session: session, Profile: p})
}

func (a *API) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	ctx, cancel := a.backendCtx(r)
	defer cancel()

	p, err := a.provider.SignUp(ctx, req.Email, req.Password, req.ProfileSeed)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.signup", map[string]any{
		"mode": a.provider.Mode(), "email": req.Email, "user_id": p.ID,
	})
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) handleSignOut(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "autenticação necessária")
		return
	}
	ctx, cancel := a.backendCtx(r)
	defer cancel()
	if err := a.provider.SignOut(ctx, token); err != nil {
		writeError(w, http.StatusInternalServerError, "falha ao encerrar a sessão")
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.signout", map[string]any{
		"mode": a.provider.Mode(),
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleResetPassword always answers accepted for well-formed requests so
// the endpoint cannot be used to probe which emails exist.
func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email é obrigatório")
		return
	}

	ctx, cancel := a.backendCtx(r)
	defer cancel()
	if err := a.provider.ResetPassword(ctx, req.Email); err != nil {
		writeAuthError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.reset.requested", map[string]any{
		"mode": a.provider.Mode(), "email": req.Email,
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleSession runs behind the auth guard; the guard already resolved the
// profile, so this is a straight echo of the caller's own session.
func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.ProfileFromContext(r.Context())
	token, _ := auth.TokenFromContext(r.Context())

	ctx, cancel := a.backendCtx(r)
	defer cancel()
	session, err := a.provider.GetSession(ctx, token)
	if err != nil || session == nil {
		writeError(w, http.StatusUnauthorized, "sessão inválida ou expirada")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: session, Profile: &p})
}

// writeAuthError maps sentinel errors from the auth packages to statuses.
func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "tempo esgotado ao contatar o backend")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, auth.ErrInvalidCredentials.Error())
	case errors.Is(err, auth.ErrNotSupported):
		writeError(w, http.StatusNotImplemented, err.Error())
	case errors.Is(err, auth.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "email já cadastrado")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, http.StatusNotFound, "registro não encontrado")
	default:
		writeError(w, http.StatusInternalServerError, "erro interno")
	}
}
