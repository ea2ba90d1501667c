package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"assetdesk.org/internal/auth"
)

var _ auth.UserStore = (*Store)(nil)

const userColumns = `id, email, name, password_hash, role, department, is_active, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (auth.User, error) {
	var (
		u    auth.User
		role string
		dept sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &role, &dept, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return auth.User{}, err
	}
	u.Role = auth.Role(role)
	u.Department = dept.String
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u auth.User) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, email, name, password_hash, role, department, is_active, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning `+userColumns,
		u.ID, u.Email, u.Name, u.PasswordHash, string(u.Role), nullIfEmpty(u.Department), u.IsActive, u.CreatedAt, u.UpdatedAt)
	created, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.User{}, fmt.Errorf("%w: email %s", auth.ErrConflict, u.Email)
		}
		return auth.User{}, err
	}
	return created, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (auth.User, error) {
	return s.userWhere(ctx, "id", id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (auth.User, error) {
	return s.userWhere(ctx, "email", email)
}

func (s *Store) userWhere(ctx context.Context, column, value string) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where `+column+` = $1`, value))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	return u, err
}

func (s *Store) ListUsers(ctx context.Context, f auth.UserFilter) ([]auth.User, int, error) {
	if s.db == nil {
		return nil, 0, errNoDB
	}
	var c conds
	if f.Department != "" {
		c.add("department = $%[1]d", f.Department)
	}
	if f.Role != "" {
		c.add("role = $%[1]d", string(f.Role))
	}
	if f.Query != "" {
		c.add("(name ilike $%[1]d or email ilike $%[1]d)", likePattern(f.Query))
	}
	total, err := s.count(ctx, "users", &c)
	if err != nil {
		return nil, 0, err
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	suffix, args := c.page(limit, f.Offset)
	rows, err := s.db.QueryContext(ctx, `select `+userColumns+` from users`+c.where()+` order by id desc`+suffix, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := []auth.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (s *Store) UpdateUser(ctx context.Context, id string, upd auth.UserUpdate) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errNoDB
	}
	var (
		set  []string
		args []any
	)
	add := func(column string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if upd.Email != nil {
		add("email", *upd.Email)
	}
	if upd.Name != nil {
		add("name", *upd.Name)
	}
	if upd.Password != nil {
		add("password_hash", *upd.Password)
	}
	if upd.Role != nil {
		add("role", *upd.Role)
	}
	if upd.Department != nil {
		add("department", nullIfEmpty(*upd.Department))
	}
	if upd.IsActive != nil {
		add("is_active", *upd.IsActive)
	}
	if len(set) == 0 {
		return s.GetUser(ctx, id)
	}
	set = append(set, "updated_at = now()")
	args = append(args, id)
	query := fmt.Sprintf(`update users set %s where id = $%d returning `+userColumns, strings.Join(set, ", "), len(args))

	u, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return auth.User{}, auth.ErrNotFound
	case isUniqueViolation(err):
		return auth.User{}, fmt.Errorf("%w: email already in use", auth.ErrConflict)
	case err != nil:
		return auth.User{}, err
	}
	return u, nil
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, errNoDB
	}
	return s.count(ctx, "users", &conds{})
}
