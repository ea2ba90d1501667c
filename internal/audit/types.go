package audit

import (
	"context"
	"errors"
	"time"
)

// ErrWriteFailed wraps any failure to persist an entry.
var ErrWriteFailed = errors.New("audit: write failed")

// Action keywords stored in audit_logs.action.
const (
	ActionCreate           = "CREATE"
	ActionUpdate           = "UPDATE"
	ActionDelete           = "DELETE"
	ActionLogin            = "LOGIN"
	ActionPermissionChange = "PERMISSION_UPDATE"
)

// Event describes one mutation. OldState and NewState may be nil; other
// values are serialized to JSON text.
type Event struct {
	ActorID      string
	Action       string
	ResourceType string
	ResourceID   string
	OldState     any
	NewState     any
	IPAddress    string
	UserAgent    string
}

// Entry is the immutable persisted form of an Event.
type Entry struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	OldValues    *string   `json:"old_values"`
	NewValues    *string   `json:"new_values"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type Filter struct {
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	Limit        int
	Offset       int
}

// Store appends entries. Entries are never updated or deleted.
type Store interface {
	AppendEntry(ctx context.Context, e Entry) error
}

// Reader lists entries newest first, returning the total match count.
type Reader interface {
	ListEntries(ctx context.Context, f Filter) ([]Entry, int, error)
}
