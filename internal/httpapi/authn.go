package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"assetdesk.org/internal/auth"
	"assetdesk.org/internal/logging"
	"assetdesk.org/internal/permission"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// Response bodies for rejected requests. Clients match on these strings.
const (
	msgUnauthorized      = "Unauthorized"
	msgInvalidToken      = "Invalid token"
	msgForbidden         = "Forbidden"
	msgInsufficientPerms = "Insufficient permissions"
	msgInternal          = "Internal server error"
)

var errMissingToken = errors.New("missing bearer token")

// Authorizer resolves the caller's access to a module. *permission.Resolver
// implements it.
type Authorizer interface {
	Resolve(ctx context.Context, department, role string, module permission.Module) permission.Decision
}

// Guard holds the collaborators needed by the authentication and
// authorization middleware.
type Guard struct {
	codec *auth.Codec
	authz Authorizer
}

func NewGuard(codec *auth.Codec, authz Authorizer) *Guard {
	return &Guard{codec: codec, authz: authz}
}

// WithAuth requires a valid bearer token. The verified identity is stored
// in the request context before next runs.
func (g *Guard) WithAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, msgUnauthorized)
			return
		}
		id, err := g.codec.Verify(token)
		if err != nil {
			logging.Ctx(r.Context()).Debug().Err(err).Msg("token rejected")
			writeError(w, r, http.StatusUnauthorized, msgInvalidToken)
			return
		}
		ctx := auth.ContextWithIdentity(r.Context(), id)
		ctx = logging.ContextWithUserID(ctx, id.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithRole admits only callers holding one of roles. It must run after WithAuth.
func WithRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				logging.Ctx(r.Context()).Error().Msg("role check without identity")
				writeError(w, r, http.StatusInternalServerError, msgInternal)
				return
			}
			if !id.HasRole(roles...) {
				writeError(w, r, http.StatusForbidden, msgForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type checkOptions struct {
	denied string
}

// CheckOption customizes WithPermissionCheck.
type CheckOption func(*checkOptions)

// DeniedMessage replaces the generic 403 message, for example
// "You do not have permission to create digital assets".
func DeniedMessage(msg string) CheckOption {
	return func(o *checkOptions) {
		if msg != "" {
			o.denied = msg
		}
	}
}

// WithPermissionCheck admits callers whose decision for module grants
// action. A panic or missing identity during the check yields 500 and the
// handler is not run. It must run after WithAuth.
func (g *Guard) WithPermissionCheck(module permission.Module, action permission.Action, opts ...CheckOption) func(http.Handler) http.Handler {
	o := checkOptions{denied: msgInsufficientPerms}
	for _, opt := range opts {
		opt(&o)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := g.allows(r.Context(), module, action)
			if err != nil {
				logging.Ctx(r.Context()).Error().Err(err).
					Str("module", string(module)).Str("action", string(action)).
					Msg("permission check failed")
				writeError(w, r, http.StatusInternalServerError, msgInternal)
				return
			}
			if !allowed {
				writeError(w, r, http.StatusForbidden, o.denied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g *Guard) allows(ctx context.Context, module permission.Module, action permission.Action) (allowed bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			allowed, err = false, &panicError{value: rec}
		}
	}()
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return false, errors.New("permission check without identity")
	}
	if g.authz == nil {
		return false, errors.New("no authorizer configured")
	}
	return g.authz.Resolve(ctx, id.Department, id.Role, module).Allows(action), nil
}

type panicError struct{ value any }

func (e *panicError) Error() string { return fmt.Sprintf("panic during permission check: %v", e.value) }

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", errMissingToken
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errMissingToken
	}
	return token, nil
}
