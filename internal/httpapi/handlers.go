package httpapi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"

	"assetdesk.org/internal/audit"
	"assetdesk.org/internal/auth"
	"assetdesk.org/internal/catalog"
	"assetdesk.org/internal/logging"
	"assetdesk.org/internal/obs"
	"assetdesk.org/internal/permission"
)

const serviceName = "assetdesk-api"

// Pinger is satisfied by the Postgres store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks dependencies before traffic is accepted. A nil DB
// (in-memory mode) is always ready.
type ReadyProbe struct {
	DB      Pinger
	Timeout time.Duration
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	if rp.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rp.Timeout)
		defer cancel()
	}
	return rp.DB.Ping(ctx)
}

// Deps are the services the HTTP layer is built on.
type Deps struct {
	Codec       *auth.Codec
	Users       *auth.UserService
	Resolver    *permission.Resolver
	Permissions *permission.Service
	Catalog     *catalog.Service
	Audit       *audit.Recorder
	AuditLog    audit.Reader
	Ready       ReadyProbe
}

// Options tune transport behavior. Zero values pick safe defaults.
type Options struct {
	Version           string
	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	LoginBurst        int
	LoginPerSecond    float64
	MaxBodyBytes      int64
}

// API is the HTTP layer.
type API struct {
	Deps
	opts  Options
	guard *Guard
	login *ipLimiter
	mux   chi.Router
}

func New(d Deps, o Options) (*API, error) {
	switch {
	case d.Codec == nil:
		return nil, errors.New("httpapi: codec is required")
	case d.Users == nil:
		return nil, errors.New("httpapi: user service is required")
	case d.Resolver == nil || d.Permissions == nil:
		return nil, errors.New("httpapi: permission resolver and service are required")
	case d.Catalog == nil:
		return nil, errors.New("httpapi: catalog service is required")
	case d.Audit == nil || d.AuditLog == nil:
		return nil, errors.New("httpapi: audit recorder and reader are required")
	}
	if o.LoginBurst <= 0 {
		o.LoginBurst = 5
	}
	if o.LoginPerSecond <= 0 {
		o.LoginPerSecond = 1
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 1 << 20
	}
	if o.RateLimitWindow <= 0 {
		o.RateLimitWindow = time.Minute
	}
	a := &API{
		Deps:  d,
		opts:  o,
		guard: NewGuard(d.Codec, d.Resolver),
		login: newIPLimiter(o.LoginPerSecond, o.LoginBurst),
	}
	a.mux = a.routes()
	return a, nil
}

// Handler returns the root handler for the HTTP server.
func (a *API) Handler() http.Handler { return a.mux }

// Close stops background helpers owned by the API.
func (a *API) Close() { a.login.Stop() }

func (a *API) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(obs.Instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         600,
	}))

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Readyz)
	r.Handle("/metrics", obs.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(SecurityHeaders)
		r.Use(MaxBodyBytes(a.opts.MaxBodyBytes))
		if a.opts.RateLimitRequests > 0 {
			r.Use(httprate.Limit(a.opts.RateLimitRequests, a.opts.RateLimitWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					writeError(w, r, http.StatusTooManyRequests, "Too many requests")
				}),
			))
		}

		r.Get("/info", a.Info)
		r.With(a.login.Middleware("Too many login attempts")).Post("/auth/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.guard.WithAuth)
			r.Get("/auth/me", a.handleMe)
			a.userRoutes(r)
			a.permissionRoutes(r)
			a.catalogRoutes(r)
			a.auditRoutes(r)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}

// can is shorthand for a permission guard on one route.
func (a *API) can(module permission.Module, action permission.Action, denied string) func(http.Handler) http.Handler {
	return a.guard.WithPermissionCheck(module, action, DeniedMessage(denied))
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.opts.Version,
	})
}

func (a *API) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := a.Deps.Ready.Check(r.Context()); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.opts.Version,
		"modules": permission.Modules,
	})
}

// record emits one audit event for the current request. Actor and network
// metadata come from the request.
func (a *API) record(r *http.Request, ev audit.Event) {
	if ev.ActorID == "" {
		if id, ok := auth.IdentityFromContext(r.Context()); ok {
			ev.ActorID = id.ID
		}
	}
	ev.IPAddress = clientIP(r)
	ev.UserAgent = r.UserAgent()
	a.Audit.Record(r.Context(), ev)
}

// --- helpers ---

type listResponse[T any] struct {
	Items       []T                  `json:"items"`
	Total       int                  `json:"total"`
	Limit       int                  `json:"limit"`
	Offset      int                  `json:"offset"`
	Permissions *permission.Decision `json:"permissions,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError sends {"error": msg}. The request id travels in X-Request-ID.
func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// decodeJSON reads the whole body first: the streaming decoder reports a
// truncated read as io.EOF and hides *http.MaxBytesError.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.New("request body too large")
		}
		return errors.New("malformed JSON body")
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return errors.New("request body is required")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.New("malformed JSON body")
	}
	if dec.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

func parsePositiveInt(raw, name string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New(name + " must be between " + strconv.Itoa(min) + " and " + strconv.Itoa(max))
	}
	return val, nil
}

func parsePage(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	limit, err = parsePositiveInt(q.Get("limit"), "limit", catalog.DefaultPageSize, 1, catalog.MaxPageSize)
	if err != nil {
		return 0, 0, err
	}
	offset, err = parsePositiveInt(q.Get("offset"), "offset", 0, 0, 1<<30)
	return limit, offset, err
}

// handleError maps service errors to status codes. Unexpected errors are
// logged and reported without detail.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput),
		errors.Is(err, catalog.ErrInvalidInput),
		errors.Is(err, permission.ErrInvalidInput),
		errors.Is(err, permission.ErrUnknownModule),
		errors.Is(err, permission.ErrUnknownAction):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, auth.ErrConflict), errors.Is(err, catalog.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, permission.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "Not found")
	default:
		logging.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, r, http.StatusInternalServerError, msgInternal)
	}
}
