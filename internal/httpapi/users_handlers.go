package httpapi

import (
	"net/http"

	"manusfisio.app/internal/audit"
	"manusfisio.app/internal/auth"
)

// handleListUsers returns every profile. Admin only; not available in mock
// mode because there is no user store behind it.
func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if a.profiles == nil {
		writeError(w, http.StatusNotImplemented, "não disponível no modo demonstração")
		return
	}
	users, err := a.profiles.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "falha ao listar usuários")
		return
	}
	if users == nil {
		users = []*auth.Profile{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (a *API) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	if a.profiles == nil {
		writeError(w, http.StatusNotImplemented, "não disponível no modo demonstração")
		return
	}
	id := r.PathValue("id")
	var req struct {
		Role string `json:"role"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	role := auth.Role(req.Role)
	if !role.Valid() {
		writeError(w, http.StatusBadRequest, "papel desconhecido")
		return
	}

	updated, err := a.profiles.UpdateRole(r.Context(), id, role)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.role.changed", map[string]any{
		"target_id": updated.ID, "role": string(updated.Role),
	})
	writeJSON(w, http.StatusOK, updated)
}
