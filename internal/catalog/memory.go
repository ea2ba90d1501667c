package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// table is a concurrency-safe map of rows keyed by id.
type table[T any] struct {
	mu   sync.RWMutex
	rows map[string]T
}

func newTable[T any]() *table[T] { return &table[T]{rows: make(map[string]T)} }

func (t *table[T]) get(id string) (T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.rows[id]
	if !ok {
		var zero T
		return zero, ErrNotFound
	}
	return row, nil
}

func (t *table[T]) put(id string, row T, mustExist bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[id]; mustExist && !ok {
		return ErrNotFound
	}
	t.rows[id] = row
	return nil
}

func (t *table[T]) delete(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[id]; !ok {
		return ErrNotFound
	}
	delete(t.rows, id)
	return nil
}

// list returns matching rows ordered by id descending (newest first) and
// the total before paging.
func (t *table[T]) list(f Filter, id func(T) string, match func(T) bool) ([]T, int) {
	t.mu.RLock()
	out := make([]T, 0, len(t.rows))
	for _, row := range t.rows {
		if match(row) {
			out = append(out, row)
		}
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return id(out[i]) > id(out[j]) })
	total := len(out)
	if f.Offset >= total {
		return []T{}, total
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, total
}

func (t *table[T]) all() []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]T, 0, len(t.rows))
	for _, row := range t.rows {
		out = append(out, row)
	}
	return out
}

// InMemoryStore implements Store for development and tests.
type InMemoryStore struct {
	assets    *table[Asset]
	documents *table[Document]
	digital   *table[DigitalAsset]

	tagMu sync.Mutex
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		assets:    newTable[Asset](),
		documents: newTable[Document](),
		digital:   newTable[DigitalAsset](),
	}
}

func contains(haystack, q string) bool {
	return q == "" || strings.Contains(strings.ToLower(haystack), strings.ToLower(q))
}

func (s *InMemoryStore) tagTaken(tag, exceptID string) bool {
	for _, a := range s.assets.all() {
		if a.AssetTag == tag && a.ID != exceptID {
			return true
		}
	}
	return false
}

func (s *InMemoryStore) CreateAsset(ctx context.Context, a Asset) (Asset, error) {
	s.tagMu.Lock()
	defer s.tagMu.Unlock()
	if s.tagTaken(a.AssetTag, a.ID) {
		return Asset{}, fmt.Errorf("%w: asset tag %s already exists", ErrConflict, a.AssetTag)
	}
	return a, s.assets.put(a.ID, a, false)
}

func (s *InMemoryStore) GetAsset(ctx context.Context, id string) (Asset, error) {
	return s.assets.get(id)
}

func (s *InMemoryStore) ListAssets(ctx context.Context, f Filter) ([]Asset, int, error) {
	rows, total := s.assets.list(f, func(a Asset) string { return a.ID }, func(a Asset) bool {
		return (f.Department == "" || a.Department == f.Department) &&
			(f.Kind == "" || strings.EqualFold(a.Category, f.Kind)) &&
			(f.Status == "" || a.Status == f.Status) &&
			(contains(a.Name, f.Query) || contains(a.AssetTag, f.Query) || contains(a.SerialNumber, f.Query))
	})
	return rows, total, nil
}

func (s *InMemoryStore) UpdateAsset(ctx context.Context, a Asset) (Asset, error) {
	s.tagMu.Lock()
	defer s.tagMu.Unlock()
	if s.tagTaken(a.AssetTag, a.ID) {
		return Asset{}, fmt.Errorf("%w: asset tag %s already exists", ErrConflict, a.AssetTag)
	}
	return a, s.assets.put(a.ID, a, true)
}

func (s *InMemoryStore) DeleteAsset(ctx context.Context, id string) error {
	return s.assets.delete(id)
}

func (s *InMemoryStore) CreateDocument(ctx context.Context, d Document) (Document, error) {
	return d, s.documents.put(d.ID, d, false)
}

func (s *InMemoryStore) GetDocument(ctx context.Context, id string) (Document, error) {
	return s.documents.get(id)
}

func (s *InMemoryStore) ListDocuments(ctx context.Context, f Filter) ([]Document, int, error) {
	rows, total := s.documents.list(f, func(d Document) string { return d.ID }, func(d Document) bool {
		return (f.Department == "" || d.Department == f.Department) &&
			(f.Kind == "" || strings.EqualFold(d.Category, f.Kind)) &&
			(contains(d.Title, f.Query) || contains(d.FileName, f.Query))
	})
	return rows, total, nil
}

func (s *InMemoryStore) UpdateDocument(ctx context.Context, d Document) (Document, error) {
	return d, s.documents.put(d.ID, d, true)
}

func (s *InMemoryStore) DeleteDocument(ctx context.Context, id string) error {
	return s.documents.delete(id)
}

func (s *InMemoryStore) CreateDigitalAsset(ctx context.Context, d DigitalAsset) (DigitalAsset, error) {
	return d, s.digital.put(d.ID, d, false)
}

func (s *InMemoryStore) GetDigitalAsset(ctx context.Context, id string) (DigitalAsset, error) {
	return s.digital.get(id)
}

func (s *InMemoryStore) ListDigitalAssets(ctx context.Context, f Filter) ([]DigitalAsset, int, error) {
	rows, total := s.digital.list(f, func(d DigitalAsset) string { return d.ID }, func(d DigitalAsset) bool {
		return (f.Department == "" || d.Department == f.Department) &&
			(f.Kind == "" || d.Type == f.Kind) &&
			(contains(d.Name, f.Query) || contains(strings.Join(d.Tags, " "), f.Query))
	})
	return rows, total, nil
}

func (s *InMemoryStore) UpdateDigitalAsset(ctx context.Context, d DigitalAsset) (DigitalAsset, error) {
	return d, s.digital.put(d.ID, d, true)
}

func (s *InMemoryStore) DeleteDigitalAsset(ctx context.Context, id string) error {
	return s.digital.delete(id)
}

func (s *InMemoryStore) Summary(ctx context.Context) (Summary, error) {
	sum := Summary{AssetsByStatus: make(map[string]int)}
	for _, a := range s.assets.all() {
		sum.Assets++
		sum.AssetsByStatus[a.Status]++
		sum.AssetValue += a.PurchaseCost
	}
	sum.Documents = len(s.documents.all())
	sum.DigitalAssets = len(s.digital.all())
	return sum, nil
}
