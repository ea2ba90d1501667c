package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"assetdesk.org/internal/ids"
	"assetdesk.org/internal/validation"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Service validates inventory changes before they reach the store. Update
// and Delete return the prior state so callers can audit it.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("catalog: store is required")
	}
	return &Service{store: store, now: time.Now}, nil
}

func (s *Service) CreateAsset(ctx context.Context, actorID string, in AssetInput) (Asset, error) {
	in = normalizeAsset(in)
	if err := validate(in); err != nil {
		return Asset{}, err
	}
	now := s.now().UTC()
	return s.store.CreateAsset(ctx, applyAsset(Asset{
		ID:        ids.New(),
		CreatedBy: actorID,
		CreatedAt: now,
	}, in, now))
}

func (s *Service) GetAsset(ctx context.Context, id string) (Asset, error) {
	if err := requireID(id); err != nil {
		return Asset{}, err
	}
	return s.store.GetAsset(ctx, id)
}

func (s *Service) ListAssets(ctx context.Context, f Filter) ([]Asset, int, error) {
	f = normalizeFilter(f)
	if f.Status != "" && !isStatus(f.Status) {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, f.Status)
	}
	return s.store.ListAssets(ctx, f)
}

func (s *Service) UpdateAsset(ctx context.Context, id string, in AssetInput) (before, after Asset, err error) {
	if err := requireID(id); err != nil {
		return Asset{}, Asset{}, err
	}
	in = normalizeAsset(in)
	if err := validate(in); err != nil {
		return Asset{}, Asset{}, err
	}
	before, err = s.store.GetAsset(ctx, id)
	if err != nil {
		return Asset{}, Asset{}, err
	}
	after, err = s.store.UpdateAsset(ctx, applyAsset(before, in, s.now().UTC()))
	return before, after, err
}

func (s *Service) DeleteAsset(ctx context.Context, id string) (Asset, error) {
	if err := requireID(id); err != nil {
		return Asset{}, err
	}
	before, err := s.store.GetAsset(ctx, id)
	if err != nil {
		return Asset{}, err
	}
	return before, s.store.DeleteAsset(ctx, id)
}

func (s *Service) CreateDocument(ctx context.Context, actorID string, in DocumentInput) (Document, error) {
	in = normalizeDocument(in)
	if err := validate(in); err != nil {
		return Document{}, err
	}
	now := s.now().UTC()
	return s.store.CreateDocument(ctx, applyDocument(Document{
		ID:        ids.New(),
		CreatedBy: actorID,
		CreatedAt: now,
	}, in, now))
}

func (s *Service) GetDocument(ctx context.Context, id string) (Document, error) {
	if err := requireID(id); err != nil {
		return Document{}, err
	}
	return s.store.GetDocument(ctx, id)
}

func (s *Service) ListDocuments(ctx context.Context, f Filter) ([]Document, int, error) {
	return s.store.ListDocuments(ctx, normalizeFilter(f))
}

func (s *Service) UpdateDocument(ctx context.Context, id string, in DocumentInput) (before, after Document, err error) {
	if err := requireID(id); err != nil {
		return Document{}, Document{}, err
	}
	in = normalizeDocument(in)
	if err := validate(in); err != nil {
		return Document{}, Document{}, err
	}
	before, err = s.store.GetDocument(ctx, id)
	if err != nil {
		return Document{}, Document{}, err
	}
	after, err = s.store.UpdateDocument(ctx, applyDocument(before, in, s.now().UTC()))
	return before, after, err
}

func (s *Service) DeleteDocument(ctx context.Context, id string) (Document, error) {
	if err := requireID(id); err != nil {
		return Document{}, err
	}
	before, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return Document{}, err
	}
	return before, s.store.DeleteDocument(ctx, id)
}

func (s *Service) CreateDigitalAsset(ctx context.Context, actorID string, in DigitalAssetInput) (DigitalAsset, error) {
	in = normalizeDigital(in)
	if err := validate(in); err != nil {
		return DigitalAsset{}, err
	}
	now := s.now().UTC()
	return s.store.CreateDigitalAsset(ctx, applyDigital(DigitalAsset{
		ID:        ids.New(),
		CreatedBy: actorID,
		CreatedAt: now,
	}, in, now))
}

func (s *Service) GetDigitalAsset(ctx context.Context, id string) (DigitalAsset, error) {
	if err := requireID(id); err != nil {
		return DigitalAsset{}, err
	}
	return s.store.GetDigitalAsset(ctx, id)
}

func (s *Service) ListDigitalAssets(ctx context.Context, f Filter) ([]DigitalAsset, int, error) {
	f = normalizeFilter(f)
	f.Kind = strings.ToUpper(f.Kind)
	return s.store.ListDigitalAssets(ctx, f)
}

func (s *Service) UpdateDigitalAsset(ctx context.Context, id string, in DigitalAssetInput) (before, after DigitalAsset, err error) {
	if err := requireID(id); err != nil {
		return DigitalAsset{}, DigitalAsset{}, err
	}
	in = normalizeDigital(in)
	if err := validate(in); err != nil {
		return DigitalAsset{}, DigitalAsset{}, err
	}
	before, err = s.store.GetDigitalAsset(ctx, id)
	if err != nil {
		return DigitalAsset{}, DigitalAsset{}, err
	}
	after, err = s.store.UpdateDigitalAsset(ctx, applyDigital(before, in, s.now().UTC()))
	return before, after, err
}

func (s *Service) DeleteDigitalAsset(ctx context.Context, id string) (DigitalAsset, error) {
	if err := requireID(id); err != nil {
		return DigitalAsset{}, err
	}
	before, err := s.store.GetDigitalAsset(ctx, id)
	if err != nil {
		return DigitalAsset{}, err
	}
	return before, s.store.DeleteDigitalAsset(ctx, id)
}

func (s *Service) Summary(ctx context.Context) (Summary, error) {
	sum, err := s.store.Summary(ctx)
	if err != nil {
		return Summary{}, err
	}
	if sum.AssetsByStatus == nil {
		sum.AssetsByStatus = make(map[string]int, len(AssetStatuses))
	}
	for _, st := range AssetStatuses {
		if _, ok := sum.AssetsByStatus[st]; !ok {
			sum.AssetsByStatus[st] = 0
		}
	}
	return sum, nil
}

func validate(v any) error {
	if err := validation.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func requireID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	return nil
}

func isStatus(s string) bool {
	for _, st := range AssetStatuses {
		if s == st {
			return true
		}
	}
	return false
}

func normalizeFilter(f Filter) Filter {
	f.Query = strings.TrimSpace(f.Query)
	f.Department = strings.TrimSpace(f.Department)
	f.Kind = strings.TrimSpace(f.Kind)
	f.Status = strings.ToUpper(strings.TrimSpace(f.Status))
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

func normalizeAsset(in AssetInput) AssetInput {
	in.AssetTag = strings.ToUpper(strings.TrimSpace(in.AssetTag))
	in.Name = strings.TrimSpace(in.Name)
	in.Category = strings.TrimSpace(in.Category)
	in.Status = strings.ToUpper(strings.TrimSpace(in.Status))
	if in.Status == "" {
		in.Status = AssetAvailable
	}
	in.Department = strings.TrimSpace(in.Department)
	in.Location = strings.TrimSpace(in.Location)
	in.AssignedTo = strings.TrimSpace(in.AssignedTo)
	in.SerialNumber = strings.TrimSpace(in.SerialNumber)
	return in
}

func applyAsset(a Asset, in AssetInput, now time.Time) Asset {
	a.AssetTag = in.AssetTag
	a.Name = in.Name
	a.Category = in.Category
	a.Status = in.Status
	a.Department = in.Department
	a.Location = in.Location
	a.AssignedTo = in.AssignedTo
	a.SerialNumber = in.SerialNumber
	a.PurchaseDate = in.PurchaseDate
	a.PurchaseCost = in.PurchaseCost
	a.Notes = in.Notes
	a.UpdatedAt = now
	return a
}

func normalizeDocument(in DocumentInput) DocumentInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Category = strings.TrimSpace(in.Category)
	in.Department = strings.TrimSpace(in.Department)
	in.FileName = strings.TrimSpace(in.FileName)
	in.FileURL = strings.TrimSpace(in.FileURL)
	return in
}

func applyDocument(d Document, in DocumentInput, now time.Time) Document {
	d.Title = in.Title
	d.Category = in.Category
	d.Department = in.Department
	d.Description = in.Description
	d.FileName = in.FileName
	d.FileURL = in.FileURL
	d.MimeType = in.MimeType
	d.FileSize = in.FileSize
	d.UpdatedAt = now
	return d
}

func normalizeDigital(in DigitalAssetInput) DigitalAssetInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Type = strings.ToUpper(strings.TrimSpace(in.Type))
	in.Department = strings.TrimSpace(in.Department)
	in.FileURL = strings.TrimSpace(in.FileURL)
	in.Tags = dedupeTags(in.Tags)
	return in
}

func applyDigital(d DigitalAsset, in DigitalAssetInput, now time.Time) DigitalAsset {
	d.Name = in.Name
	d.Type = in.Type
	d.Department = in.Department
	d.Description = in.Description
	d.FileURL = in.FileURL
	d.ThumbURL = in.ThumbURL
	d.MimeType = in.MimeType
	d.FileSize = in.FileSize
	d.Tags = in.Tags
	d.UpdatedAt = now
	return d
}

func dedupeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
