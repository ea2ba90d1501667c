package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// InMemoryUserStore implements UserStore with in-process concurrency safety.
type InMemoryUserStore struct {
	mu      sync.RWMutex
	byID    map[string]User
	byEmail map[string]string
}

func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{
		byID:    make(map[string]User),
		byEmail: make(map[string]string),
	}
}

func (s *InMemoryUserStore) CreateUser(ctx context.Context, u User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[u.Email]; ok {
		return User{}, fmt.Errorf("%w: email %s", ErrConflict, u.Email)
	}
	s.byID[u.ID] = u
	s.byEmail[u.Email] = u.ID
	return u, nil
}

func (s *InMemoryUserStore) GetUser(ctx context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *InMemoryUserStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return User{}, ErrNotFound
	}
	return s.byID[id], nil
}

func (s *InMemoryUserStore) ListUsers(ctx context.Context, f UserFilter) ([]User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := strings.ToLower(f.Query)
	out := make([]User, 0, len(s.byID))
	for _, u := range s.byID {
		if f.Department != "" && u.Department != f.Department {
			continue
		}
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(u.Name), q) && !strings.Contains(u.Email, q) {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := len(out)
	return window(out, f.Limit, f.Offset), total, nil
}

func (s *InMemoryUserStore) UpdateUser(ctx context.Context, id string, upd UserUpdate) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	if upd.Email != nil && *upd.Email != u.Email {
		if _, taken := s.byEmail[*upd.Email]; taken {
			return User{}, fmt.Errorf("%w: email %s", ErrConflict, *upd.Email)
		}
		delete(s.byEmail, u.Email)
		u.Email = *upd.Email
		s.byEmail[u.Email] = id
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Password != nil {
		u.PasswordHash = *upd.Password
	}
	if upd.Role != nil {
		u.Role = Role(*upd.Role)
	}
	if upd.Department != nil {
		u.Department = *upd.Department
	}
	if upd.IsActive != nil {
		u.IsActive = *upd.IsActive
	}
	u.UpdatedAt = time.Now().UTC()
	s.byID[id] = u
	return u, nil
}

func (s *InMemoryUserStore) CountUsers(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID), nil
}

func window[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
