package httpapi

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"assetdesk.org/internal/audit"
	"assetdesk.org/internal/auth"
	"assetdesk.org/internal/catalog"
	"assetdesk.org/internal/permission"
)

type testEnv struct {
	t       *testing.T
	srv     *httptest.Server
	codec   *auth.Codec
	users   *auth.UserService
	perms   *permission.InMemoryStore
	cache   *permission.Cache
	entries *audit.InMemoryStore
}

func newTestEnv(t *testing.T, opts ...func(*Deps, *Options)) *testEnv {
	t.Helper()
	codec := testCodec(t)
	users, err := auth.NewUserService(auth.NewInMemoryUserStore(), codec)
	if err != nil {
		t.Fatalf("NewUserService: %v", err)
	}
	perms := permission.NewInMemoryStore()
	cache := permission.NewCache(time.Minute)
	t.Cleanup(cache.Stop)
	cat, err := catalog.NewService(catalog.NewInMemoryStore())
	if err != nil {
		t.Fatalf("catalog.NewService: %v", err)
	}
	entries := audit.NewInMemoryStore()
	rec := audit.NewRecorder(entries)
	t.Cleanup(func() { _ = rec.Close(context.Background()) })

	d := Deps{
		Codec:       codec,
		Users:       users,
		Resolver:    permission.NewResolver(perms, permission.WithCache(cache)),
		Permissions: permission.NewService(perms, cache),
		Catalog:     cat,
		Audit:       rec,
		AuditLog:    entries,
	}
	o := Options{Version: "test", LoginBurst: 100, LoginPerSecond: 100}
	for _, fn := range opts {
		fn(&d, &o)
	}
	api, err := New(d, o)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(api.Close)
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{t: t, srv: srv, codec: codec, users: users, perms: perms, cache: cache, entries: entries}
}

func (e *testEnv) token(id auth.Identity) string {
	e.t.Helper()
	return issue(e.t, e.codec, id)
}

func (e *testEnv) do(method, path string, body any, token string) *http.Response {
	e.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			e.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.srv.URL+path, bytes.NewReader(payload))
	if err != nil {
		e.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "handlers-test")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.srv.Client().Do(req)
	if err != nil {
		e.t.Fatalf("do request: %v", err)
	}
	return resp
}

// waitForEntries polls until the recorder's background writes land.
func (e *testEnv) waitForEntries(f audit.Filter, n int) []audit.Entry {
	e.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		got, total, err := e.entries.ListEntries(context.Background(), f)
		if err != nil {
			e.t.Fatalf("ListEntries: %v", err)
		}
		if total >= n {
			return got
		}
		if time.Now().After(deadline) {
			e.t.Fatalf("expected %d audit entries for %+v, got %d", n, f, total)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, r *http.Response, code int) {
	t.Helper()
	if r.StatusCode != code {
		body := decode[map[string]any](t, r)
		t.Fatalf("expected %d, got %d: %v", code, r.StatusCode, body)
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("db down") }

func TestHealthReadyInfo(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(http.MethodGet, "/healthz", nil, "")
	expectStatus(t, resp, http.StatusOK)
	if body := decode[map[string]any](t, resp); body["status"] != "ok" || body["version"] != "test" {
		t.Fatalf("unexpected healthz: %v", body)
	}
	resp = env.do(http.MethodGet, "/readyz", nil, "")
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = env.do(http.MethodGet, "/api/info", nil, "")
	expectStatus(t, resp, http.StatusOK)
	if resp.Header.Get("X-Request-ID") == "" || resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing request id or security headers: %v", resp.Header)
	}
	resp.Body.Close()

	down := newTestEnv(t, func(d *Deps, _ *Options) { d.Ready = ReadyProbe{DB: failingPinger{}} })
	resp = down.do(http.MethodGet, "/readyz", nil, "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	if body := decode[map[string]any](t, resp); body["status"] != "not_ready" || body["error"] != nil {
		t.Fatalf("readiness must not leak errors: %v", body)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/api/auth/me", "/api/assets", "/api/users", "/api/audit-logs", "/api/reports/summary"} {
		resp := env.do(http.MethodGet, path, nil, "")
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, resp.StatusCode)
		}
		if body := decode[map[string]string](t, resp); body["error"] != "Unauthorized" {
			t.Fatalf("%s: unexpected body %v", path, body)
		}
	}
	resp := env.do(http.MethodGet, "/api/assets", nil, "garbage")
	if body := decode[map[string]string](t, resp); resp.StatusCode != http.StatusUnauthorized || body["error"] != "Invalid token" {
		t.Fatalf("expected invalid token, got %d %v", resp.StatusCode, body)
	}
}

func TestLoginAndMe(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u, err := env.users.CreateUser(ctx, auth.NewUser{Email: "ann@example.com", Name: "Ann", Password: "correct-horse", Role: "USER", Department: "IT"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := env.perms.UpsertPermission(ctx, permission.Record{Department: "IT", Module: permission.ModuleAssets, CanRead: true, CanWrite: true, IsActive: true}); err != nil {
		t.Fatalf("UpsertPermission: %v", err)
	}

	resp := env.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "ann@example.com", "password": "wrong-pass"}, "")
	if body := decode[map[string]string](t, resp); resp.StatusCode != http.StatusUnauthorized || body["error"] != "Invalid credentials" {
		t.Fatalf("expected invalid credentials, got %d %v", resp.StatusCode, body)
	}

	resp = env.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "ann@example.com", "password": "correct-horse"}, "")
	expectStatus(t, resp, http.StatusOK)
	sess := decode[auth.Session](t, resp)
	if sess.Token == "" || sess.User.ID != u.ID {
		t.Fatalf("unexpected session: %+v", sess)
	}

	resp = env.do(http.MethodGet, "/api/auth/me", nil, sess.Token)
	expectStatus(t, resp, http.StatusOK)
	me := decode[meResponse](t, resp)
	if me.User.Email != "ann@example.com" {
		t.Fatalf("unexpected user: %+v", me.User)
	}
	if got := me.Permissions[permission.ModuleAssets]; got != (permission.Decision{CanRead: true, CanWrite: true}) {
		t.Fatalf("unexpected assets decision: %+v", got)
	}
	if got := me.Permissions[permission.ModuleSettings]; got != permission.ReadOnly {
		t.Fatalf("expected default for SETTINGS, got %+v", got)
	}

	logins := env.waitForEntries(audit.Filter{Action: audit.ActionLogin}, 1)
	if logins[0].UserID != u.ID || logins[0].UserAgent != "handlers-test" || logins[0].IPAddress == "" {
		t.Fatalf("unexpected login entry: %+v", logins[0])
	}
}

func TestLoginThrottled(t *testing.T) {
	env := newTestEnv(t, func(_ *Deps, o *Options) { o.LoginBurst, o.LoginPerSecond = 2, 0.01 })
	body := map[string]string{"email": "nobody@example.com", "password": "whatever1"}
	for i := 0; i < 2; i++ {
		resp := env.do(http.MethodPost, "/api/auth/login", body, "")
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, resp.StatusCode)
		}
	}
	resp := env.do(http.MethodPost, "/api/auth/login", body, "")
	if resp.StatusCode != http.StatusTooManyRequests || resp.Header.Get("Retry-After") == "" {
		t.Fatalf("expected 429 with Retry-After, got %d %v", resp.StatusCode, resp.Header)
	}
	resp.Body.Close()
}

func TestGrantingWriteUnblocksCreate(t *testing.T) {
	env := newTestEnv(t)
	user := env.token(auth.Identity{ID: "user-1", Role: "USER", Department: "Finance"})
	admin := env.token(auth.Identity{ID: "admin-1", Role: "ADMIN"})
	asset := map[string]any{"asset_tag": "FIN-001", "name": "Laptop", "category": "Computers", "purchase_cost": 1200}

	resp := env.do(http.MethodPost, "/api/assets", asset, user)
	if body := decode[map[string]string](t, resp); resp.StatusCode != http.StatusForbidden || body["error"] != "You do not have permission to create assets" {
		t.Fatalf("expected 403, got %d %v", resp.StatusCode, body)
	}

	// The denial above is cached; the grant must invalidate it.
	resp = env.do(http.MethodPut, "/api/permissions/Finance/assets", map[string]any{"can_read": true, "can_write": true}, admin)
	expectStatus(t, resp, http.StatusOK)
	saved := decode[permission.Record](t, resp)
	if !saved.CanWrite || !saved.IsActive || saved.UpdatedBy != "admin-1" || saved.Module != permission.ModuleAssets {
		t.Fatalf("unexpected saved record: %+v", saved)
	}

	resp = env.do(http.MethodPost, "/api/assets", asset, user)
	expectStatus(t, resp, http.StatusCreated)
	created := decode[catalog.Asset](t, resp)
	if created.CreatedBy != "user-1" || created.Status != catalog.AssetAvailable {
		t.Fatalf("unexpected asset: %+v", created)
	}

	changes := env.waitForEntries(audit.Filter{Action: audit.ActionPermissionChange}, 1)
	if changes[0].OldValues != nil || changes[0].NewValues == nil || changes[0].ResourceID != "Finance:ASSETS" {
		t.Fatalf("unexpected permission audit entry: %+v", changes[0])
	}
	creates := env.waitForEntries(audit.Filter{ResourceType: "asset", Action: audit.ActionCreate}, 1)
	if creates[0].ResourceID != created.ID || creates[0].UserID != "user-1" {
		t.Fatalf("unexpected create audit entry: %+v", creates[0])
	}
}

func TestPermissionChangesRequireAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.perms.UpsertPermission(ctx, permission.Record{Department: "IT", Module: permission.ModuleSettings, CanRead: true, CanWrite: true, IsActive: true}); err != nil {
		t.Fatalf("UpsertPermission: %v", err)
	}
	manager := env.token(auth.Identity{ID: "m1", Role: "MANAGER", Department: "IT"})

	resp := env.do(http.MethodPut, "/api/permissions/IT/ASSETS", map[string]any{"can_read": true, "can_write": true}, manager)
	if body := decode[map[string]string](t, resp); resp.StatusCode != http.StatusForbidden || body["error"] != "Forbidden" {
		t.Fatalf("expected Forbidden, got %d %v", resp.StatusCode, body)
	}

	resp = env.do(http.MethodGet, "/api/permissions/IT", nil, manager)
	expectStatus(t, resp, http.StatusOK)
	view := decode[departmentPermissionsResponse](t, resp)
	if len(view.Records) != 1 || view.Permissions[permission.ModuleSettings] != (permission.Decision{CanRead: true, CanWrite: true}) {
		t.Fatalf("unexpected department view: %+v", view)
	}
	if _, ok := view.Permissions[permission.ModuleAssets]; ok {
		t.Fatalf("ASSETS has no record and should be absent: %+v", view.Permissions)
	}

	admin := env.token(auth.Identity{ID: "admin-1", Role: "ADMIN"})
	resp = env.do(http.MethodPut, "/api/permissions/IT/NOPE", map[string]any{"can_read": true}, admin)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown module, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestDigitalAssetLifecycleIsAudited(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(auth.Identity{ID: "admin-1", Role: "ADMIN"})

	resp := env.do(http.MethodPost, "/api/digital-assets", map[string]any{
		"name": "Logo", "type": "IMAGE", "file_url": "https://cdn.example.com/logo.png", "tags": []string{"brand", "Brand", "logo"},
	}, admin)
	expectStatus(t, resp, http.StatusCreated)
	created := decode[catalog.DigitalAsset](t, resp)
	path := "/api/digital-assets/" + created.ID

	resp = env.do(http.MethodPut, path, map[string]any{
		"name": "Logo v2", "type": "IMAGE", "file_url": "https://cdn.example.com/logo-v2.png",
	}, admin)
	expectStatus(t, resp, http.StatusOK)
	if updated := decode[catalog.DigitalAsset](t, resp); updated.Name != "Logo v2" {
		t.Fatalf("unexpected update: %+v", updated)
	}

	resp = env.do(http.MethodGet, "/api/digital-assets?q=logo", nil, admin)
	expectStatus(t, resp, http.StatusOK)
	list := decode[listResponse[catalog.DigitalAsset]](t, resp)
	if list.Total != 1 || list.Permissions == nil || *list.Permissions != permission.FullAccess {
		t.Fatalf("unexpected list: %+v", list)
	}

	resp = env.do(http.MethodDelete, path, nil, admin)
	expectStatus(t, resp, http.StatusNoContent)
	resp.Body.Close()
	resp = env.do(http.MethodGet, path, nil, admin)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	entries := env.waitForEntries(audit.Filter{ResourceID: created.ID}, 3)
	if len(entries) != 3 {
		t.Fatalf("expected exactly three entries, got %d", len(entries))
	}
	byAction := map[string]audit.Entry{}
	for _, e := range entries {
		byAction[e.Action] = e
	}
	if c := byAction[audit.ActionCreate]; c.OldValues != nil || c.NewValues == nil {
		t.Fatalf("create entry should only carry new state: %+v", c)
	}
	if u := byAction[audit.ActionUpdate]; u.OldValues == nil || !strings.Contains(*u.NewValues, "Logo v2") {
		t.Fatalf("update entry should carry both states: %+v", u)
	}
	if d := byAction[audit.ActionDelete]; d.OldValues == nil || d.NewValues != nil {
		t.Fatalf("delete entry should only carry old state: %+v", d)
	}
}

func TestReadOnlyUserSeesDecisionAndReports(t *testing.T) {
	env := newTestEnv(t)
	user := env.token(auth.Identity{ID: "u1", Role: "USER"})

	resp := env.do(http.MethodGet, "/api/documents", nil, user)
	expectStatus(t, resp, http.StatusOK)
	list := decode[listResponse[catalog.Document]](t, resp)
	if list.Permissions == nil || *list.Permissions != permission.ReadOnly || list.Limit != catalog.DefaultPageSize {
		t.Fatalf("unexpected list: %+v", list)
	}

	resp = env.do(http.MethodDelete, "/api/documents/doc-1", nil, user)
	if body := decode[map[string]string](t, resp); resp.StatusCode != http.StatusForbidden || body["error"] != "You do not have permission to delete documents" {
		t.Fatalf("expected 403, got %d %v", resp.StatusCode, body)
	}

	resp = env.do(http.MethodGet, "/api/reports/summary", nil, user)
	expectStatus(t, resp, http.StatusOK)
	sum := decode[summaryResponse](t, resp)
	if len(sum.AssetsByStatus) != len(catalog.AssetStatuses) || sum.GeneratedAt.IsZero() {
		t.Fatalf("unexpected summary: %+v", sum)
	}

	resp = env.do(http.MethodGet, "/api/assets?limit=0", nil, user)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestUserAdministration(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(auth.Identity{ID: "admin-1", Role: "ADMIN"})

	resp := env.do(http.MethodPost, "/api/users", map[string]any{
		"email": "bob@example.com", "name": "Bob", "password": "password-1", "role": "user", "department": "IT",
	}, admin)
	expectStatus(t, resp, http.StatusCreated)
	bob := decode[map[string]any](t, resp)
	if _, leaked := bob["password_hash"]; leaked {
		t.Fatalf("password hash leaked: %v", bob)
	}
	id, _ := bob["id"].(string)

	resp = env.do(http.MethodPost, "/api/users", map[string]any{
		"email": "bob@example.com", "name": "Bob", "password": "password-1", "role": "USER",
	}, admin)
	expectStatus(t, resp, http.StatusConflict)
	resp.Body.Close()

	resp = env.do(http.MethodPatch, "/api/users/"+id, map[string]any{"role": "MANAGER"}, admin)
	expectStatus(t, resp, http.StatusOK)
	if u := decode[auth.User](t, resp); u.Role != auth.RoleManager {
		t.Fatalf("role not updated: %+v", u)
	}

	resp = env.do(http.MethodDelete, "/api/users/"+id, nil, admin)
	expectStatus(t, resp, http.StatusOK)
	if u := decode[auth.User](t, resp); u.IsActive {
		t.Fatalf("user still active: %+v", u)
	}

	resp = env.do(http.MethodDelete, "/api/users/admin-1", nil, admin)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = env.do(http.MethodPost, "/api/users", map[string]any{"email": "x@example.com", "unknown": true}, admin)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	env.waitForEntries(audit.Filter{ResourceType: "user", ResourceID: id}, 3)
}
