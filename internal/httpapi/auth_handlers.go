package httpapi

import (
	"errors"
	"net/http"

	"assetdesk.org/internal/audit"
	"assetdesk.org/internal/auth"
	"assetdesk.org/internal/logging"
	"assetdesk.org/internal/permission"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type meResponse struct {
	User        auth.User                                 `json:"user"`
	Permissions map[permission.Module]permission.Decision `json:"permissions"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	sess, err := a.Users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			logging.Ctx(r.Context()).Info().Str("remote_ip", clientIP(r)).Msg("login rejected")
		}
		handleError(w, r, err)
		return
	}
	a.record(r, audit.Event{
		ActorID:      sess.User.ID,
		Action:       audit.ActionLogin,
		ResourceType: "user",
		ResourceID:   sess.User.ID,
	})
	writeJSON(w, http.StatusOK, sess)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	u, err := a.Users.GetUser(r.Context(), id.ID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	// Permissions follow the token claims, which may lag the stored user
	// until the next login.
	writeJSON(w, http.StatusOK, meResponse{
		User:        u,
		Permissions: a.Resolver.ResolveAll(r.Context(), id.Department, id.Role),
	})
}
