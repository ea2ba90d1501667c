package httpapi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"assetdesk.org/internal/audit"
	"assetdesk.org/internal/auth"
	"assetdesk.org/internal/permission"
)

func (a *API) userRoutes(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.With(a.can(permission.ModuleUsers, permission.ActionRead, "You do not have permission to view users")).Get("/", a.listUsers)
		r.With(a.can(permission.ModuleUsers, permission.ActionWrite, "You do not have permission to create users")).Post("/", a.createUser)
		r.With(a.can(permission.ModuleUsers, permission.ActionRead, "You do not have permission to view users")).Get("/{id}", a.getUser)
		r.With(a.can(permission.ModuleUsers, permission.ActionWrite, "You do not have permission to update users")).Patch("/{id}", a.updateUser)
		r.With(a.can(permission.ModuleUsers, permission.ActionDelete, "You do not have permission to deactivate users")).Delete("/{id}", a.deactivateUser)
	})
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePage(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	users, total, err := a.Users.ListUsers(r.Context(), auth.UserFilter{
		Department: q.Get("department"),
		Role:       auth.Role(q.Get("role")),
		Query:      q.Get("q"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[auth.User]{Items: users, Total: total, Limit: limit, Offset: offset})
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	var req auth.NewUser
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	u, err := a.Users.CreateUser(r.Context(), req)
	if err != nil {
		handleError(w, r, err)
		return
	}
	a.record(r, audit.Event{Action: audit.ActionCreate, ResourceType: "user", ResourceID: u.ID, NewState: u})
	w.Header().Set("Location", fmt.Sprintf("/api/users/%s", u.ID))
	writeJSON(w, http.StatusCreated, u)
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := a.Users.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) updateUser(w http.ResponseWriter, r *http.Request) {
	var req auth.UserUpdate
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	before, err := a.Users.GetUser(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	after, err := a.Users.UpdateUser(r.Context(), id, req)
	if err != nil {
		handleError(w, r, err)
		return
	}
	a.record(r, audit.Event{Action: audit.ActionUpdate, ResourceType: "user", ResourceID: id, OldState: before, NewState: after})
	writeJSON(w, http.StatusOK, after)
}

func (a *API) deactivateUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if caller, _ := auth.IdentityFromContext(r.Context()); caller.ID == id {
		writeError(w, r, http.StatusBadRequest, "You cannot deactivate your own account")
		return
	}
	before, err := a.Users.GetUser(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	after, err := a.Users.DeactivateUser(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	a.record(r, audit.Event{Action: audit.ActionDelete, ResourceType: "user", ResourceID: id, OldState: before, NewState: after})
	writeJSON(w, http.StatusOK, after)
}
