// Package catalog holds the inventory records guarded by the permission
// layer: physical assets, archived documents and digital assets.
package catalog

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("catalog: not found")
	ErrInvalidInput = errors.New("catalog: invalid input")
	ErrConflict     = errors.New("catalog: conflict")
)

const (
	AssetAvailable   = "AVAILABLE"
	AssetInUse       = "IN_USE"
	AssetMaintenance = "MAINTENANCE"
	AssetRetired     = "RETIRED"
)

// AssetStatuses lists valid asset statuses in display order.
var AssetStatuses = []string{AssetAvailable, AssetInUse, AssetMaintenance, AssetRetired}

type Asset struct {
	ID           string     `json:"id"`
	AssetTag     string     `json:"asset_tag"`
	Name         string     `json:"name"`
	Category     string     `json:"category"`
	Status       string     `json:"status"`
	Department   string     `json:"department,omitempty"`
	Location     string     `json:"location,omitempty"`
	AssignedTo   string     `json:"assigned_to,omitempty"`
	SerialNumber string     `json:"serial_number,omitempty"`
	PurchaseDate *time.Time `json:"purchase_date,omitempty"`
	PurchaseCost int64      `json:"purchase_cost"`
	Notes        string     `json:"notes,omitempty"`
	CreatedBy    string     `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// AssetInput is the body accepted on create and full update.
type AssetInput struct {
	AssetTag     string     `json:"asset_tag" validate:"required,max=64"`
	Name         string     `json:"name" validate:"required,max=200"`
	Category     string     `json:"category" validate:"required,max=100"`
	Status       string     `json:"status" validate:"omitempty,oneof=AVAILABLE IN_USE MAINTENANCE RETIRED"`
	Department   string     `json:"department" validate:"max=100"`
	Location     string     `json:"location" validate:"max=200"`
	AssignedTo   string     `json:"assigned_to" validate:"max=64"`
	SerialNumber string     `json:"serial_number" validate:"max=100"`
	PurchaseDate *time.Time `json:"purchase_date"`
	PurchaseCost int64      `json:"purchase_cost" validate:"gte=0"`
	Notes        string     `json:"notes" validate:"max=2000"`
}

type Document struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	Department  string    `json:"department,omitempty"`
	Description string    `json:"description,omitempty"`
	FileName    string    `json:"file_name"`
	FileURL     string    `json:"file_url"`
	MimeType    string    `json:"mime_type,omitempty"`
	FileSize    int64     `json:"file_size"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type DocumentInput struct {
	Title       string `json:"title" validate:"required,max=200"`
	Category    string `json:"category" validate:"required,max=100"`
	Department  string `json:"department" validate:"max=100"`
	Description string `json:"description" validate:"max=2000"`
	FileName    string `json:"file_name" validate:"required,max=255"`
	FileURL     string `json:"file_url" validate:"required,url"`
	MimeType    string `json:"mime_type" validate:"max=100"`
	FileSize    int64  `json:"file_size" validate:"gte=0"`
}

const (
	DigitalImage    = "IMAGE"
	DigitalVideo    = "VIDEO"
	DigitalAudio    = "AUDIO"
	DigitalDesign   = "DESIGN"
	DigitalDocument = "DOCUMENT"
	DigitalOther    = "OTHER"
)

type DigitalAsset struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Department  string    `json:"department,omitempty"`
	Description string    `json:"description,omitempty"`
	FileURL     string    `json:"file_url"`
	ThumbURL    string    `json:"thumbnail_url,omitempty"`
	MimeType    string    `json:"mime_type,omitempty"`
	FileSize    int64     `json:"file_size"`
	Tags        []string  `json:"tags"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type DigitalAssetInput struct {
	Name        string   `json:"name" validate:"required,max=200"`
	Type        string   `json:"type" validate:"required,oneof=IMAGE VIDEO AUDIO DESIGN DOCUMENT OTHER"`
	Department  string   `json:"department" validate:"max=100"`
	Description string   `json:"description" validate:"max=2000"`
	FileURL     string   `json:"file_url" validate:"required,url"`
	ThumbURL    string   `json:"thumbnail_url" validate:"omitempty,url"`
	MimeType    string   `json:"mime_type" validate:"max=100"`
	FileSize    int64    `json:"file_size" validate:"gte=0"`
	Tags        []string `json:"tags" validate:"max=20,dive,max=50"`
}

// Filter narrows list queries. Kind matches asset category, document
// category or digital asset type depending on the resource.
type Filter struct {
	Query      string
	Department string
	Kind       string
	Status     string
	Limit      int
	Offset     int
}

// Summary backs the reports endpoint.
type Summary struct {
	Assets         int            `json:"assets"`
	Documents      int            `json:"documents"`
	DigitalAssets  int            `json:"digital_assets"`
	AssetsByStatus map[string]int `json:"assets_by_status"`
	AssetValue     int64          `json:"asset_value"`
}

type Store interface {
	CreateAsset(ctx context.Context, a Asset) (Asset, error)
	GetAsset(ctx context.Context, id string) (Asset, error)
	ListAssets(ctx context.Context, f Filter) ([]Asset, int, error)
	UpdateAsset(ctx context.Context, a Asset) (Asset, error)
	DeleteAsset(ctx context.Context, id string) error

	CreateDocument(ctx context.Context, d Document) (Document, error)
	GetDocument(ctx context.Context, id string) (Document, error)
	ListDocuments(ctx context.Context, f Filter) ([]Document, int, error)
	UpdateDocument(ctx context.Context, d Document) (Document, error)
	DeleteDocument(ctx context.Context, id string) error

	CreateDigitalAsset(ctx context.Context, d DigitalAsset) (DigitalAsset, error)
	GetDigitalAsset(ctx context.Context, id string) (DigitalAsset, error)
	ListDigitalAssets(ctx context.Context, f Filter) ([]DigitalAsset, int, error)
	UpdateDigitalAsset(ctx context.Context, d DigitalAsset) (DigitalAsset, error)
	DeleteDigitalAsset(ctx context.Context, id string) error

	Summary(ctx context.Context) (Summary, error)
}
