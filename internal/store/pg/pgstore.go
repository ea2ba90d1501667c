// Package pg implements the auth, permission, audit and catalog stores on
// PostgreSQL through database/sql and the pgx driver.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const pgErrUniqueViolation = "23505"

var errNoDB = errors.New("database connection unavailable")

type Store struct {
	db *sql.DB
}

// PoolConfig tunes the database/sql pool; zero values keep driver defaults.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func Open(dsn string, pool PoolConfig) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("pg: dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle, used by tests with sqlmock.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return errNoDB
	}
	return s.db.PingContext(ctx)
}

// --- helpers ---

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func isUniqueViolation(err error) bool {
	pgErr, ok := maybePgError(err)
	return ok && pgErr.Code == pgErrUniqueViolation
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// conds accumulates a WHERE clause with positional arguments. Each cond
// uses %[1]d for its placeholder index.
type conds struct {
	clauses []string
	args    []any
}

func (c *conds) add(cond string, arg any) {
	c.args = append(c.args, arg)
	c.clauses = append(c.clauses, fmt.Sprintf(cond, len(c.args)))
}

func (c *conds) where() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return " where " + strings.Join(c.clauses, " and ")
}

// page appends limit/offset placeholders and returns the suffix.
func (c *conds) page(limit, offset int) (string, []any) {
	args := append(append([]any{}, c.args...), limit, offset)
	return fmt.Sprintf(" limit $%d offset $%d", len(c.args)+1, len(c.args)+2), args
}

func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}

func (s *Store) count(ctx context.Context, table string, c *conds) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "select count(*) from "+table+c.where(), c.args...).Scan(&n)
	return n, err
}
