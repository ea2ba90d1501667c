package permission

import (
	"context"
	"sort"
	"sync"
)

// Store persists department permission records.
type Store interface {
	// GetPermission returns the record for (department, module) regardless
	// of IsActive, or ErrNotFound.
	GetPermission(ctx context.Context, department string, module Module) (Record, error)
	// ListPermissions returns every record for department.
	ListPermissions(ctx context.Context, department string) ([]Record, error)
	UpsertPermission(ctx context.Context, rec Record) (Record, error)
}

type recordKey struct {
	department string
	module     Module
}

// InMemoryStore implements Store with in-process concurrency safety.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[recordKey]Record
}

func NewInMemoryStore(seed ...Record) *InMemoryStore {
	s := &InMemoryStore{records: make(map[recordKey]Record, len(seed))}
	for _, r := range seed {
		s.records[recordKey{r.Department, r.Module}] = r
	}
	return s
}

func (s *InMemoryStore) GetPermission(ctx context.Context, department string, module Module) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[recordKey{department, module}]
	if !ok {
		return Record{}, ErrNotFound
	}
	return r, nil
}

func (s *InMemoryStore) ListPermissions(ctx context.Context, department string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for k, r := range s.records {
		if k.department == department {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Module < out[j].Module })
	return out, nil
}

func (s *InMemoryStore) UpsertPermission(ctx context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[recordKey{rec.Department, rec.Module}] = rec
	return rec, nil
}
