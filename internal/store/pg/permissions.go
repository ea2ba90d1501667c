package pg

import (
	"context"
	"database/sql"
	"errors"

	"assetdesk.org/internal/permission"
)

var _ permission.Store = (*Store)(nil)

const permissionColumns = `department, module, can_read, can_write, can_delete, is_active, updated_by, updated_at`

func scanPermission(row scanner) (permission.Record, error) {
	var (
		r         permission.Record
		module    string
		updatedBy sql.NullString
	)
	if err := row.Scan(&r.Department, &module, &r.CanRead, &r.CanWrite, &r.CanDelete, &r.IsActive, &updatedBy, &r.UpdatedAt); err != nil {
		return permission.Record{}, err
	}
	r.Module = permission.Module(module)
	r.UpdatedBy = updatedBy.String
	return r, nil
}

func (s *Store) GetPermission(ctx context.Context, department string, module permission.Module) (permission.Record, error) {
	if s.db == nil {
		return permission.Record{}, errNoDB
	}
	r, err := scanPermission(s.db.QueryRowContext(ctx, `
		select `+permissionColumns+`
		from department_permissions
		where department = $1 and module = $2
	`, department, string(module)))
	if errors.Is(err, sql.ErrNoRows) {
		return permission.Record{}, permission.ErrNotFound
	}
	return r, err
}

func (s *Store) ListPermissions(ctx context.Context, department string) ([]permission.Record, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+permissionColumns+`
		from department_permissions
		where department = $1
		order by module
	`, department)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []permission.Record
	for rows.Next() {
		r, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertPermission registers the department if needed and writes the record
// in one transaction.
func (s *Store) UpsertPermission(ctx context.Context, rec permission.Record) (permission.Record, error) {
	if s.db == nil {
		return permission.Record{}, errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return permission.Record{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `insert into departments (name) values ($1) on conflict do nothing`, rec.Department); err != nil {
		return permission.Record{}, err
	}
	saved, err := scanPermission(tx.QueryRowContext(ctx, `
		insert into department_permissions (department, module, can_read, can_write, can_delete, is_active, updated_by, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		on conflict (department, module) do update
		set can_read = excluded.can_read,
		    can_write = excluded.can_write,
		    can_delete = excluded.can_delete,
		    is_active = excluded.is_active,
		    updated_by = excluded.updated_by,
		    updated_at = excluded.updated_at
		returning `+permissionColumns,
		rec.Department, string(rec.Module), rec.CanRead, rec.CanWrite, rec.CanDelete, rec.IsActive, nullIfEmpty(rec.UpdatedBy), rec.UpdatedAt))
	if err != nil {
		return permission.Record{}, err
	}
	if err := tx.Commit(); err != nil {
		return permission.Record{}, err
	}
	return saved, nil
}
