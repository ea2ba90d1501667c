package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"assetdesk.org/internal/ids"
	"assetdesk.org/internal/validation"
)

// UserService validates account changes and authenticates logins.
type UserService struct {
	store UserStore
	codec *Codec
	now   func() time.Time
}

func NewUserService(store UserStore, codec *Codec) (*UserService, error) {
	if store == nil {
		return nil, errors.New("auth: user store is required")
	}
	if codec == nil {
		return nil, errors.New("auth: codec is required")
	}
	return &UserService{store: store, codec: codec, now: time.Now}, nil
}

// Session is the result of a successful login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

// Login checks credentials and issues a token. Unknown emails, inactive
// accounts and wrong passwords all yield ErrInvalidCredentials.
func (s *UserService) Login(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}
	u, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		_ = VerifyPassword(string(dummyHash), password)
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if err := VerifyPassword(u.PasswordHash, password); err != nil || !u.IsActive {
		return Session{}, ErrInvalidCredentials
	}
	token, exp, err := s.codec.Issue(u.Identity())
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: exp, User: u}, nil
}

func (s *UserService) CreateUser(ctx context.Context, in NewUser) (User, error) {
	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	in.Role = strings.ToUpper(strings.TrimSpace(in.Role))
	in.Department = strings.TrimSpace(in.Department)
	if err := validation.Struct(in); err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return User{}, err
	}
	now := s.now().UTC()
	return s.store.CreateUser(ctx, User{
		ID:           ids.New(),
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: hash,
		Role:         Role(in.Role),
		Department:   in.Department,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

func (s *UserService) GetUser(ctx context.Context, id string) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.GetUser(ctx, id)
}

func (s *UserService) ListUsers(ctx context.Context, f UserFilter) ([]User, int, error) {
	f.Department = strings.TrimSpace(f.Department)
	f.Query = strings.TrimSpace(f.Query)
	if f.Role != "" {
		r, err := ParseRole(string(f.Role))
		if err != nil {
			return nil, 0, err
		}
		f.Role = r
	}
	return s.store.ListUsers(ctx, f)
}

func (s *UserService) UpdateUser(ctx context.Context, id string, upd UserUpdate) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if upd.Email != nil {
		e := normalizeEmail(*upd.Email)
		if e == "" || !strings.Contains(e, "@") {
			return User{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
		}
		upd.Email = &e
	}
	if upd.Name != nil {
		n := strings.TrimSpace(*upd.Name)
		if n == "" {
			return User{}, fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
		}
		upd.Name = &n
	}
	if upd.Role != nil {
		r, err := ParseRole(*upd.Role)
		if err != nil {
			return User{}, err
		}
		rs := string(r)
		upd.Role = &rs
	}
	if upd.Department != nil {
		d := strings.TrimSpace(*upd.Department)
		upd.Department = &d
	}
	if upd.Password != nil {
		hash, err := HashPassword(*upd.Password)
		if err != nil {
			return User{}, err
		}
		upd.Password = &hash
	}
	return s.store.UpdateUser(ctx, id, upd)
}

// DeactivateUser disables login for id. Accounts are never hard-deleted so
// audit rows keep a valid actor.
func (s *UserService) DeactivateUser(ctx context.Context, id string) (User, error) {
	inactive := false
	return s.UpdateUser(ctx, id, UserUpdate{IsActive: &inactive})
}

// EnsureAdmin creates an ADMIN account when the store holds no users. It
// reports whether an account was created.
func (s *UserService) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return false, nil
	}
	n, err := s.store.CountUsers(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	_, err = s.CreateUser(ctx, NewUser{Email: email, Name: "Administrator", Password: password, Role: string(RoleAdmin)})
	if err != nil {
		return false, err
	}
	return true, nil
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}
