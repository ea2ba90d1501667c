package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"assetdesk.org/internal/audit"
	"assetdesk.org/internal/catalog"
	"assetdesk.org/internal/permission"
)

type summaryResponse struct {
	catalog.Summary
	GeneratedAt time.Time `json:"generated_at"`
}

func (a *API) auditRoutes(r chi.Router) {
	r.With(a.can(permission.ModuleAuditLogs, permission.ActionRead, "You do not have permission to view audit logs")).
		Get("/audit-logs", a.listAuditLogs)
	r.With(a.can(permission.ModuleReports, permission.ActionRead, "You do not have permission to view reports")).
		Get("/reports/summary", a.reportSummary)
}

func (a *API) listAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePage(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	entries, total, err := a.AuditLog.ListEntries(r.Context(), audit.Filter{
		UserID:       q.Get("user_id"),
		Action:       q.Get("action"),
		ResourceType: q.Get("resource_type"),
		ResourceID:   q.Get("resource_id"),
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[audit.Entry]{Items: entries, Total: total, Limit: limit, Offset: offset})
}

func (a *API) reportSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := a.Catalog.Summary(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{Summary: sum, GeneratedAt: time.Now().UTC()})
}
