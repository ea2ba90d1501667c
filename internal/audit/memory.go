package audit

import (
	"context"
	"errors"
	"sync"

	"assetdesk.org/internal/logging"
)

// InMemoryStore keeps entries in process, newest last.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewInMemoryStore() *InMemoryStore { return &InMemoryStore{} }

func (s *InMemoryStore) AppendEntry(ctx context.Context, e Entry) error {
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) ListEntries(ctx context.Context, f Filter) ([]Entry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if f.UserID != "" && e.UserID != f.UserID ||
			f.Action != "" && e.Action != f.Action ||
			f.ResourceType != "" && e.ResourceType != f.ResourceType ||
			f.ResourceID != "" && e.ResourceID != f.ResourceID {
			continue
		}
		matched = append(matched, e)
	}
	total := len(matched)
	if f.Offset >= total {
		return []Entry{}, total, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

// LogStore emits each entry as a structured "audit" log line.
type LogStore struct{}

func (LogStore) AppendEntry(ctx context.Context, e Entry) error {
	ev := logging.Ctx(ctx).Info().
		Str("type", "audit").
		Str("audit_id", e.ID).
		Str("actor_id", e.UserID).
		Str("action", e.Action).
		Str("resource_type", e.ResourceType).
		Str("resource_id", e.ResourceID).
		Time("occurred_at", e.CreatedAt)
	if e.IPAddress != "" {
		ev = ev.Str("ip", e.IPAddress)
	}
	ev.Msg("audit")
	return nil
}

// Tee appends to every store in order and joins their errors.
func Tee(stores ...Store) Store { return tee(stores) }

type tee []Store

func (t tee) AppendEntry(ctx context.Context, e Entry) error {
	var errs []error
	for _, s := range t {
		if err := s.AppendEntry(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
