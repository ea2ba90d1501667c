package auth

import "context"

// UserStore persists accounts. Implementations return ErrNotFound for
// unknown ids or emails and ErrConflict for duplicate emails.
type UserStore interface {
	CreateUser(ctx context.Context, u User) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context, f UserFilter) ([]User, int, error)
	UpdateUser(ctx context.Context, id string, upd UserUpdate) (User, error)
	CountUsers(ctx context.Context) (int, error)
}
