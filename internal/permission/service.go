package permission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Service applies administrator changes to department records and keeps
// the decision cache consistent with them.
type Service struct {
	store Store
	cache *Cache
	now   func() time.Time
}

// NewService returns a Service. cache may be nil when caching is disabled.
func NewService(store Store, cache *Cache) *Service {
	return &Service{store: store, cache: cache, now: time.Now}
}

// SetPermission upserts rec and drops cached decisions for its department.
// It returns the previous record, or nil when there was none.
func (s *Service) SetPermission(ctx context.Context, rec Record) (*Record, Record, error) {
	rec.Department = strings.TrimSpace(rec.Department)
	if rec.Department == "" {
		return nil, Record{}, fmt.Errorf("%w: department is required", ErrInvalidInput)
	}
	m, err := ParseModule(string(rec.Module))
	if err != nil {
		return nil, Record{}, err
	}
	rec.Module = m

	var before *Record
	prev, err := s.store.GetPermission(ctx, rec.Department, rec.Module)
	switch {
	case err == nil:
		before = &prev
	case !errors.Is(err, ErrNotFound):
		return nil, Record{}, err
	}

	rec.UpdatedAt = s.now().UTC()
	saved, err := s.store.UpsertPermission(ctx, rec)
	if err != nil {
		return nil, Record{}, err
	}
	if s.cache != nil {
		s.cache.ClearDepartment(rec.Department)
	}
	return before, saved, nil
}

// ListPermissions returns every record of department, active or not.
func (s *Service) ListPermissions(ctx context.Context, department string) ([]Record, error) {
	department = strings.TrimSpace(department)
	if department == "" {
		return nil, fmt.Errorf("%w: department is required", ErrInvalidInput)
	}
	return s.store.ListPermissions(ctx, department)
}
