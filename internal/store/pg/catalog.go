package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"assetdesk.org/internal/catalog"
)

var _ catalog.Store = (*Store)(nil)

// --- assets ---

const assetColumns = `id, asset_tag, name, category, status, department, location, assigned_to,
	serial_number, purchase_date, purchase_cost, notes, created_by, created_at, updated_at`

func scanAsset(row scanner) (catalog.Asset, error) {
	var (
		a                                  catalog.Asset
		dept, loc, assigned, serial, notes sql.NullString
		purchased                          sql.NullTime
	)
	err := row.Scan(&a.ID, &a.AssetTag, &a.Name, &a.Category, &a.Status, &dept, &loc, &assigned,
		&serial, &purchased, &a.PurchaseCost, &notes, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return catalog.Asset{}, err
	}
	a.Department, a.Location, a.AssignedTo = dept.String, loc.String, assigned.String
	a.SerialNumber, a.Notes = serial.String, notes.String
	if purchased.Valid {
		t := purchased.Time
		a.PurchaseDate = &t
	}
	return a, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (s *Store) CreateAsset(ctx context.Context, a catalog.Asset) (catalog.Asset, error) {
	if s.db == nil {
		return catalog.Asset{}, errNoDB
	}
	created, err := scanAsset(s.db.QueryRowContext(ctx, `
		insert into assets (id, asset_tag, name, category, status, department, location, assigned_to,
			serial_number, purchase_date, purchase_cost, notes, created_by, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		returning `+assetColumns,
		a.ID, a.AssetTag, a.Name, a.Category, a.Status, nullIfEmpty(a.Department), nullIfEmpty(a.Location),
		nullIfEmpty(a.AssignedTo), nullIfEmpty(a.SerialNumber), nullTime(a.PurchaseDate), a.PurchaseCost,
		nullIfEmpty(a.Notes), a.CreatedBy, a.CreatedAt, a.UpdatedAt))
	if isUniqueViolation(err) {
		return catalog.Asset{}, fmt.Errorf("%w: asset tag %s already exists", catalog.ErrConflict, a.AssetTag)
	}
	return created, err
}

func (s *Store) GetAsset(ctx context.Context, id string) (catalog.Asset, error) {
	if s.db == nil {
		return catalog.Asset{}, errNoDB
	}
	a, err := scanAsset(s.db.QueryRowContext(ctx, `select `+assetColumns+` from assets where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Asset{}, catalog.ErrNotFound
	}
	return a, err
}

func (s *Store) ListAssets(ctx context.Context, f catalog.Filter) ([]catalog.Asset, int, error) {
	if s.db == nil {
		return nil, 0, errNoDB
	}
	var c conds
	if f.Department != "" {
		c.add("department = $%[1]d", f.Department)
	}
	if f.Kind != "" {
		c.add("lower(category) = lower($%[1]d)", f.Kind)
	}
	if f.Status != "" {
		c.add("status = $%[1]d", f.Status)
	}
	if f.Query != "" {
		c.add("(name ilike $%[1]d or asset_tag ilike $%[1]d or serial_number ilike $%[1]d)", likePattern(f.Query))
	}
	return listRows(ctx, s, "assets", assetColumns, &c, f, scanAsset)
}

func (s *Store) UpdateAsset(ctx context.Context, a catalog.Asset) (catalog.Asset, error) {
	if s.db == nil {
		return catalog.Asset{}, errNoDB
	}
	updated, err := scanAsset(s.db.QueryRowContext(ctx, `
		update assets
		set asset_tag = $2, name = $3, category = $4, status = $5, department = $6, location = $7,
			assigned_to = $8, serial_number = $9, purchase_date = $10, purchase_cost = $11, notes = $12,
			updated_at = $13
		where id = $1
		returning `+assetColumns,
		a.ID, a.AssetTag, a.Name, a.Category, a.Status, nullIfEmpty(a.Department), nullIfEmpty(a.Location),
		nullIfEmpty(a.AssignedTo), nullIfEmpty(a.SerialNumber), nullTime(a.PurchaseDate), a.PurchaseCost,
		nullIfEmpty(a.Notes), a.UpdatedAt))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return catalog.Asset{}, catalog.ErrNotFound
	case isUniqueViolation(err):
		return catalog.Asset{}, fmt.Errorf("%w: asset tag %s already exists", catalog.ErrConflict, a.AssetTag)
	}
	return updated, err
}

func (s *Store) DeleteAsset(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "assets", id)
}

// --- documents ---

const documentColumns = `id, title, category, department, description, file_name, file_url,
	mime_type, file_size, created_by, created_at, updated_at`

func scanDocument(row scanner) (catalog.Document, error) {
	var (
		d                catalog.Document
		dept, desc, mime sql.NullString
	)
	err := row.Scan(&d.ID, &d.Title, &d.Category, &dept, &desc, &d.FileName, &d.FileURL,
		&mime, &d.FileSize, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return catalog.Document{}, err
	}
	d.Department, d.Description, d.MimeType = dept.String, desc.String, mime.String
	return d, nil
}

func (s *Store) CreateDocument(ctx context.Context, d catalog.Document) (catalog.Document, error) {
	if s.db == nil {
		return catalog.Document{}, errNoDB
	}
	return scanDocument(s.db.QueryRowContext(ctx, `
		insert into documents (id, title, category, department, description, file_name, file_url,
			mime_type, file_size, created_by, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		returning `+documentColumns,
		d.ID, d.Title, d.Category, nullIfEmpty(d.Department), nullIfEmpty(d.Description), d.FileName, d.FileURL,
		nullIfEmpty(d.MimeType), d.FileSize, d.CreatedBy, d.CreatedAt, d.UpdatedAt))
}

func (s *Store) GetDocument(ctx context.Context, id string) (catalog.Document, error) {
	if s.db == nil {
		return catalog.Document{}, errNoDB
	}
	d, err := scanDocument(s.db.QueryRowContext(ctx, `select `+documentColumns+` from documents where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Document{}, catalog.ErrNotFound
	}
	return d, err
}

func (s *Store) ListDocuments(ctx context.Context, f catalog.Filter) ([]catalog.Document, int, error) {
	if s.db == nil {
		return nil, 0, errNoDB
	}
	var c conds
	if f.Department != "" {
		c.add("department = $%[1]d", f.Department)
	}
	if f.Kind != "" {
		c.add("lower(category) = lower($%[1]d)", f.Kind)
	}
	if f.Query != "" {
		c.add("(title ilike $%[1]d or file_name ilike $%[1]d)", likePattern(f.Query))
	}
	return listRows(ctx, s, "documents", documentColumns, &c, f, scanDocument)
}

func (s *Store) UpdateDocument(ctx context.Context, d catalog.Document) (catalog.Document, error) {
	if s.db == nil {
		return catalog.Document{}, errNoDB
	}
	updated, err := scanDocument(s.db.QueryRowContext(ctx, `
		update documents
		set title = $2, category = $3, department = $4, description = $5, file_name = $6, file_url = $7,
			mime_type = $8, file_size = $9, updated_at = $10
		where id = $1
		returning `+documentColumns,
		d.ID, d.Title, d.Category, nullIfEmpty(d.Department), nullIfEmpty(d.Description), d.FileName, d.FileURL,
		nullIfEmpty(d.MimeType), d.FileSize, d.UpdatedAt))
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Document{}, catalog.ErrNotFound
	}
	return updated, err
}

func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "documents", id)
}

// --- digital assets ---

const digitalColumns = `id, name, type, department, description, file_url, thumbnail_url,
	mime_type, file_size, tags, created_by, created_at, updated_at`

func scanDigital(row scanner) (catalog.DigitalAsset, error) {
	var (
		d                       catalog.DigitalAsset
		dept, desc, thumb, mime sql.NullString
		tags                    []byte
	)
	err := row.Scan(&d.ID, &d.Name, &d.Type, &dept, &desc, &d.FileURL, &thumb,
		&mime, &d.FileSize, &tags, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return catalog.DigitalAsset{}, err
	}
	d.Department, d.Description, d.ThumbURL, d.MimeType = dept.String, desc.String, thumb.String, mime.String
	d.Tags = []string{}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &d.Tags); err != nil {
			return catalog.DigitalAsset{}, fmt.Errorf("decode tags: %w", err)
		}
	}
	return d, nil
}

func encodeTags(tags []string) ([]byte, error) {
	if tags == nil {
		tags = []string{}
	}
	return json.Marshal(tags)
}

func (s *Store) CreateDigitalAsset(ctx context.Context, d catalog.DigitalAsset) (catalog.DigitalAsset, error) {
	if s.db == nil {
		return catalog.DigitalAsset{}, errNoDB
	}
	tags, err := encodeTags(d.Tags)
	if err != nil {
		return catalog.DigitalAsset{}, err
	}
	return scanDigital(s.db.QueryRowContext(ctx, `
		insert into digital_assets (id, name, type, department, description, file_url, thumbnail_url,
			mime_type, file_size, tags, created_by, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		returning `+digitalColumns,
		d.ID, d.Name, d.Type, nullIfEmpty(d.Department), nullIfEmpty(d.Description), d.FileURL, nullIfEmpty(d.ThumbURL),
		nullIfEmpty(d.MimeType), d.FileSize, string(tags), d.CreatedBy, d.CreatedAt, d.UpdatedAt))
}

func (s *Store) GetDigitalAsset(ctx context.Context, id string) (catalog.DigitalAsset, error) {
	if s.db == nil {
		return catalog.DigitalAsset{}, errNoDB
	}
	d, err := scanDigital(s.db.QueryRowContext(ctx, `select `+digitalColumns+` from digital_assets where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.DigitalAsset{}, catalog.ErrNotFound
	}
	return d, err
}

func (s *Store) ListDigitalAssets(ctx context.Context, f catalog.Filter) ([]catalog.DigitalAsset, int, error) {
	if s.db == nil {
		return nil, 0, errNoDB
	}
	var c conds
	if f.Department != "" {
		c.add("department = $%[1]d", f.Department)
	}
	if f.Kind != "" {
		c.add("type = $%[1]d", f.Kind)
	}
	if f.Query != "" {
		c.add("(name ilike $%[1]d or tags::text ilike $%[1]d)", likePattern(f.Query))
	}
	return listRows(ctx, s, "digital_assets", digitalColumns, &c, f, scanDigital)
}

func (s *Store) UpdateDigitalAsset(ctx context.Context, d catalog.DigitalAsset) (catalog.DigitalAsset, error) {
	if s.db == nil {
		return catalog.DigitalAsset{}, errNoDB
	}
	tags, err := encodeTags(d.Tags)
	if err != nil {
		return catalog.DigitalAsset{}, err
	}
	updated, err := scanDigital(s.db.QueryRowContext(ctx, `
		update digital_assets
		set name = $2, type = $3, department = $4, description = $5, file_url = $6, thumbnail_url = $7,
			mime_type = $8, file_size = $9, tags = $10, updated_at = $11
		where id = $1
		returning `+digitalColumns,
		d.ID, d.Name, d.Type, nullIfEmpty(d.Department), nullIfEmpty(d.Description), d.FileURL, nullIfEmpty(d.ThumbURL),
		nullIfEmpty(d.MimeType), d.FileSize, string(tags), d.UpdatedAt))
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.DigitalAsset{}, catalog.ErrNotFound
	}
	return updated, err
}

func (s *Store) DeleteDigitalAsset(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "digital_assets", id)
}

// --- shared ---

func (s *Store) Summary(ctx context.Context) (catalog.Summary, error) {
	if s.db == nil {
		return catalog.Summary{}, errNoDB
	}
	sum := catalog.Summary{AssetsByStatus: map[string]int{}}
	err := s.db.QueryRowContext(ctx, `
		select
			(select count(*) from assets),
			(select coalesce(sum(purchase_cost), 0) from assets),
			(select count(*) from documents),
			(select count(*) from digital_assets)
	`).Scan(&sum.Assets, &sum.AssetValue, &sum.Documents, &sum.DigitalAssets)
	if err != nil {
		return catalog.Summary{}, err
	}
	rows, err := s.db.QueryContext(ctx, `select status, count(*) from assets group by status`)
	if err != nil {
		return catalog.Summary{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return catalog.Summary{}, err
		}
		sum.AssetsByStatus[status] = n
	}
	return sum, rows.Err()
}

func (s *Store) deleteByID(ctx context.Context, table, id string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from `+table+` where id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func listRows[T any](ctx context.Context, s *Store, table, columns string, c *conds, f catalog.Filter, scan func(scanner) (T, error)) ([]T, int, error) {
	total, err := s.count(ctx, table, c)
	if err != nil {
		return nil, 0, err
	}
	limit := f.Limit
	if limit <= 0 {
		limit = catalog.DefaultPageSize
	}
	suffix, args := c.page(limit, f.Offset)
	rows, err := s.db.QueryContext(ctx, `select `+columns+` from `+table+c.where()+` order by id desc`+suffix, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
