package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"assetdesk.org/internal/audit"
	"assetdesk.org/internal/auth"
	"assetdesk.org/internal/permission"
)

type setPermissionRequest struct {
	CanRead   bool  `json:"can_read"`
	CanWrite  bool  `json:"can_write"`
	CanDelete bool  `json:"can_delete"`
	IsActive  *bool `json:"is_active,omitempty"`
}

type departmentPermissionsResponse struct {
	Department  string                                    `json:"department"`
	Permissions map[permission.Module]permission.Decision `json:"permissions"`
	Records     []permission.Record                       `json:"records"`
}

func (a *API) permissionRoutes(r chi.Router) {
	r.Route("/permissions", func(r chi.Router) {
		r.With(a.can(permission.ModuleSettings, permission.ActionRead, "")).Get("/{department}", a.getDepartmentPermissions)
		r.With(
			WithRole(auth.RoleAdmin),
			a.can(permission.ModuleSettings, permission.ActionWrite, "You do not have permission to change permissions"),
		).Put("/{department}/{module}", a.setPermission)
	})
}

func (a *API) getDepartmentPermissions(w http.ResponseWriter, r *http.Request) {
	dept := chi.URLParam(r, "department")
	records, err := a.Permissions.ListPermissions(r.Context(), dept)
	if err != nil {
		handleError(w, r, err)
		return
	}
	perms, err := a.Resolver.DepartmentPermissions(r.Context(), dept)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if records == nil {
		records = []permission.Record{}
	}
	writeJSON(w, http.StatusOK, departmentPermissionsResponse{Department: dept, Permissions: perms, Records: records})
}

func (a *API) setPermission(w http.ResponseWriter, r *http.Request) {
	var req setPermissionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	module, err := permission.ParseModule(chi.URLParam(r, "module"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	caller, _ := auth.IdentityFromContext(r.Context())
	before, saved, err := a.Permissions.SetPermission(r.Context(), permission.Record{
		Department: chi.URLParam(r, "department"),
		Module:     module,
		CanRead:    req.CanRead,
		CanWrite:   req.CanWrite,
		CanDelete:  req.CanDelete,
		IsActive:   active,
		UpdatedBy:  caller.ID,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	ev := audit.Event{
		Action:       audit.ActionPermissionChange,
		ResourceType: "department_permission",
		ResourceID:   saved.Department + ":" + string(saved.Module),
		NewState:     saved,
	}
	if before != nil {
		ev.OldState = *before
	}
	a.record(r, ev)
	writeJSON(w, http.StatusOK, saved)
}
