package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"assetdesk.org/internal/audit"
	"assetdesk.org/internal/auth"
	"assetdesk.org/internal/catalog"
	"assetdesk.org/internal/permission"
)

// resource wires the five CRUD routes of one catalog collection to its
// service methods and permission module.
type resource[T, In any] struct {
	api       *API
	module    permission.Module
	kind      string // audit resource type
	noun      string // plural, used in denial messages
	kindParam string // query parameter mapped to Filter.Kind

	list   func(context.Context, catalog.Filter) ([]T, int, error)
	get    func(context.Context, string) (T, error)
	create func(context.Context, string, In) (T, error)
	update func(context.Context, string, In) (T, T, error)
	remove func(context.Context, string) (T, error)
	id     func(T) string
}

func (res resource[T, In]) mount(r chi.Router, path string) {
	deny := func(verb string) string {
		return "You do not have permission to " + verb + " " + res.noun
	}
	a := res.api
	r.Route(path, func(r chi.Router) {
		r.With(a.can(res.module, permission.ActionRead, deny("view"))).Get("/", res.handleList)
		r.With(a.can(res.module, permission.ActionWrite, deny("create"))).Post("/", res.handleCreate)
		r.With(a.can(res.module, permission.ActionRead, deny("view"))).Get("/{id}", res.handleGet)
		r.With(a.can(res.module, permission.ActionWrite, deny("update"))).Put("/{id}", res.handleUpdate)
		r.With(a.can(res.module, permission.ActionDelete, deny("delete"))).Delete("/{id}", res.handleDelete)
	})
}

func (res resource[T, In]) handleList(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePage(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	items, total, err := res.list(r.Context(), catalog.Filter{
		Query:      q.Get("q"),
		Department: q.Get("department"),
		Kind:       q.Get(res.kindParam),
		Status:     q.Get("status"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	id, _ := auth.IdentityFromContext(r.Context())
	decision := res.api.Resolver.Resolve(r.Context(), id.Department, id.Role, res.module)
	writeJSON(w, http.StatusOK, listResponse[T]{
		Items:       items,
		Total:       total,
		Limit:       limit,
		Offset:      offset,
		Permissions: &decision,
	})
}

func (res resource[T, In]) handleGet(w http.ResponseWriter, r *http.Request) {
	item, err := res.get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (res resource[T, In]) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in In
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	caller, _ := auth.IdentityFromContext(r.Context())
	item, err := res.create(r.Context(), caller.ID, in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	id := res.id(item)
	res.api.record(r, audit.Event{Action: audit.ActionCreate, ResourceType: res.kind, ResourceID: id, NewState: item})
	w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+id)
	writeJSON(w, http.StatusCreated, item)
}

func (res resource[T, In]) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var in In
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	before, after, err := res.update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	res.api.record(r, audit.Event{Action: audit.ActionUpdate, ResourceType: res.kind, ResourceID: res.id(after), OldState: before, NewState: after})
	writeJSON(w, http.StatusOK, after)
}

func (res resource[T, In]) handleDelete(w http.ResponseWriter, r *http.Request) {
	before, err := res.remove(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	res.api.record(r, audit.Event{Action: audit.ActionDelete, ResourceType: res.kind, ResourceID: res.id(before), OldState: before})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) catalogRoutes(r chi.Router) {
	svc := a.Catalog
	resource[catalog.Asset, catalog.AssetInput]{
		api: a, module: permission.ModuleAssets, kind: "asset", noun: "assets", kindParam: "category",
		list: svc.ListAssets, get: svc.GetAsset, create: svc.CreateAsset,
		update: svc.UpdateAsset, remove: svc.DeleteAsset,
		id: func(v catalog.Asset) string { return v.ID },
	}.mount(r, "/assets")

	resource[catalog.Document, catalog.DocumentInput]{
		api: a, module: permission.ModuleDocuments, kind: "document", noun: "documents", kindParam: "category",
		list: svc.ListDocuments, get: svc.GetDocument, create: svc.CreateDocument,
		update: svc.UpdateDocument, remove: svc.DeleteDocument,
		id: func(v catalog.Document) string { return v.ID },
	}.mount(r, "/documents")

	resource[catalog.DigitalAsset, catalog.DigitalAssetInput]{
		api: a, module: permission.ModuleDigitalAssets, kind: "digital_asset", noun: "digital assets", kindParam: "type",
		list: svc.ListDigitalAssets, get: svc.GetDigitalAsset, create: svc.CreateDigitalAsset,
		update: svc.UpdateDigitalAsset, remove: svc.DeleteDigitalAsset,
		id: func(v catalog.DigitalAsset) string { return v.ID },
	}.mount(r, "/digital-assets")
}
