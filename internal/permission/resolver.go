package permission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"assetdesk.org/internal/auth"
	"assetdesk.org/internal/deadline"
	"assetdesk.org/internal/logging"
	"assetdesk.org/internal/obs"
)

const (
	DefaultLookupTimeout   = 3 * time.Second
	defaultBreakerFailures = 5
	defaultBreakerCooldown = 30 * time.Second
)

// Resolver computes decisions. It never returns an error from Resolve: any
// store failure, timeout or open circuit yields ReadOnly.
type Resolver struct {
	store   Store
	cache   *Cache
	timeout time.Duration

	breakerFailures uint32
	breakerCooldown time.Duration
	breaker         *gobreaker.CircuitBreaker[Record]
}

type Option func(*Resolver)

// WithCache enables decision caching. A nil cache disables it.
func WithCache(c *Cache) Option {
	return func(r *Resolver) { r.cache = c }
}

func WithLookupTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithBreaker sets how many consecutive store failures open the circuit and
// how long it stays open.
func WithBreaker(failures uint32, cooldown time.Duration) Option {
	return func(r *Resolver) {
		if failures > 0 {
			r.breakerFailures = failures
		}
		if cooldown > 0 {
			r.breakerCooldown = cooldown
		}
	}
}

func NewResolver(store Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:           store,
		timeout:         DefaultLookupTimeout,
		breakerFailures: defaultBreakerFailures,
		breakerCooldown: defaultBreakerCooldown,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.breaker = gobreaker.NewCircuitBreaker[Record](gobreaker.Settings{
		Name:        "permission-store",
		MaxRequests: 1,
		Timeout:     r.breakerCooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= r.breakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	return r
}

// Resolve returns the decision for a caller in department with role on
// module. Rules apply in order: ADMIN gets FullAccess, no department gets
// ReadOnly, then the cache, then the active store record, else ReadOnly.
func (r *Resolver) Resolve(ctx context.Context, department, role string, module Module) (d Decision) {
	role = strings.ToUpper(strings.TrimSpace(role))
	if auth.Role(role) == auth.RoleAdmin {
		obs.PermissionResolved("admin")
		return FullAccess
	}
	department = strings.TrimSpace(department)
	if department == "" {
		obs.PermissionResolved("no_department")
		return ReadOnly
	}

	defer func() {
		if rec := recover(); rec != nil {
			logging.Ctx(ctx).Error().Interface("panic", rec).Str("department", department).Str("module", string(module)).Msg("permission resolution panicked")
			obs.PermissionResolved("fallback")
			d = ReadOnly
		}
	}()

	key := CacheKey{Department: department, Role: role, Module: module}
	var gen uint64
	if r.cache != nil {
		if cached, ok := r.cache.Get(key); ok {
			obs.PermissionResolved("cache")
			return cached
		}
		gen = r.cache.Generation(department)
	}

	out := deadline.Call(ctx, r.timeout, func(ctx context.Context) (Record, error) {
		return r.breaker.Execute(func() (Record, error) {
			return r.store.GetPermission(ctx, department, module)
		})
	})

	switch {
	case out.OK() && out.Value.IsActive:
		d = out.Value.Decision()
		obs.PermissionResolved("store")
	case out.OK(), out.Status == deadline.StatusFailed && errors.Is(out.Err, ErrNotFound):
		d = ReadOnly
		obs.PermissionResolved("default")
	default:
		if out.Status == deadline.StatusTimedOut {
			obs.PermissionLookupTimedOut()
		}
		obs.PermissionResolved("fallback")
		logging.Ctx(ctx).Warn().
			Err(out.Err).
			Str("status", out.Status.String()).
			Str("department", department).
			Str("module", string(module)).
			Msg("permission lookup failed, using read-only default")
		return ReadOnly
	}

	// A change saved while the lookup was in flight invalidates what it read.
	if r.cache != nil {
		r.cache.SetIfGeneration(key, gen, d)
	}
	return d
}

func (r *Resolver) CanRead(ctx context.Context, department, role string, module Module) bool {
	return r.Resolve(ctx, department, role, module).CanRead
}

func (r *Resolver) CanWrite(ctx context.Context, department, role string, module Module) bool {
	return r.Resolve(ctx, department, role, module).CanWrite
}

func (r *Resolver) CanDelete(ctx context.Context, department, role string, module Module) bool {
	return r.Resolve(ctx, department, role, module).CanDelete
}

// ResolveAll resolves every module for one caller.
func (r *Resolver) ResolveAll(ctx context.Context, department, role string) map[Module]Decision {
	out := make(map[Module]Decision, len(Modules))
	for _, m := range Modules {
		out[m] = r.Resolve(ctx, department, role, m)
	}
	return out
}

// DepartmentPermissions loads the active records of department, indexed
// by module. Modules without an active record are absent. Unlike Resolve,
// failures are returned to the caller.
func (r *Resolver) DepartmentPermissions(ctx context.Context, department string) (map[Module]Decision, error) {
	department = strings.TrimSpace(department)
	if department == "" {
		return nil, fmt.Errorf("%w: department is required", ErrInvalidInput)
	}
	out := deadline.Call(ctx, r.timeout, func(ctx context.Context) ([]Record, error) {
		return r.store.ListPermissions(ctx, department)
	})
	switch out.Status {
	case deadline.StatusTimedOut:
		obs.PermissionLookupTimedOut()
		return nil, fmt.Errorf("list permissions for %s: timed out after %s", department, r.timeout)
	case deadline.StatusFailed:
		return nil, fmt.Errorf("list permissions for %s: %w", department, out.Err)
	}
	res := make(map[Module]Decision, len(out.Value))
	for _, rec := range out.Value {
		if rec.IsActive {
			res[rec.Module] = rec.Decision()
		}
	}
	return res, nil
}
