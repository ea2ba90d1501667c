package pg

import (
	"context"
	"database/sql"

	"assetdesk.org/internal/audit"
)

var (
	_ audit.Store  = (*Store)(nil)
	_ audit.Reader = (*Store)(nil)
)

func (s *Store) AppendEntry(ctx context.Context, e audit.Entry) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_logs (id, user_id, action, resource_type, resource_id, old_values, new_values, ip_address, user_agent, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, nullIfEmpty(e.UserID), e.Action, e.ResourceType, e.ResourceID,
		nullString(e.OldValues), nullString(e.NewValues),
		nullIfEmpty(e.IPAddress), nullIfEmpty(e.UserAgent), e.CreatedAt)
	return err
}

func (s *Store) ListEntries(ctx context.Context, f audit.Filter) ([]audit.Entry, int, error) {
	if s.db == nil {
		return nil, 0, errNoDB
	}
	var c conds
	if f.UserID != "" {
		c.add("user_id = $%[1]d", f.UserID)
	}
	if f.Action != "" {
		c.add("action = $%[1]d", f.Action)
	}
	if f.ResourceType != "" {
		c.add("resource_type = $%[1]d", f.ResourceType)
	}
	if f.ResourceID != "" {
		c.add("resource_id = $%[1]d", f.ResourceID)
	}
	total, err := s.count(ctx, "audit_logs", &c)
	if err != nil {
		return nil, 0, err
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	suffix, args := c.page(limit, f.Offset)
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, action, resource_type, resource_id, old_values, new_values, ip_address, user_agent, created_at
		from audit_logs`+c.where()+`
		order by created_at desc, id desc`+suffix, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := []audit.Entry{}
	for rows.Next() {
		var (
			e                audit.Entry
			userID, ip, ua   sql.NullString
			oldVals, newVals sql.NullString
		)
		if err := rows.Scan(&e.ID, &userID, &e.Action, &e.ResourceType, &e.ResourceID, &oldVals, &newVals, &ip, &ua, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		e.UserID, e.IPAddress, e.UserAgent = userID.String, ip.String, ua.String
		e.OldValues, e.NewValues = stringPtr(oldVals), stringPtr(newVals)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
