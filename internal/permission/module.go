// Package permission decides what a caller may do in each application
// module, based on role, department and the per-department records kept by
// administrators.
package permission

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound      = errors.New("permission: not found")
	ErrUnknownModule = errors.New("permission: unknown module")
	ErrUnknownAction = errors.New("permission: unknown action")
	ErrInvalidInput  = errors.New("permission: invalid input")
)

type Module string

const (
	ModuleAssets        Module = "ASSETS"
	ModuleDocuments     Module = "DOCUMENTS"
	ModuleDigitalAssets Module = "DIGITAL_ASSETS"
	ModuleUsers         Module = "USERS"
	ModuleAuditLogs     Module = "AUDIT_LOGS"
	ModuleReports       Module = "REPORTS"
	ModuleSettings      Module = "SETTINGS"
)

// Modules is the closed set of modules, in display order.
var Modules = []Module{
	ModuleAssets, ModuleDocuments, ModuleDigitalAssets, ModuleUsers,
	ModuleAuditLogs, ModuleReports, ModuleSettings,
}

func ParseModule(s string) (Module, error) {
	m := Module(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Modules {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownModule, s)
}

type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionRead, ActionWrite, ActionDelete:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
}

// Decision is the effective access to one module.
type Decision struct {
	CanRead   bool `json:"can_read"`
	CanWrite  bool `json:"can_write"`
	CanDelete bool `json:"can_delete"`
}

var (
	FullAccess = Decision{CanRead: true, CanWrite: true, CanDelete: true}
	// ReadOnly is the default for callers without a department, for
	// departments without a record, and whenever the lookup fails.
	ReadOnly = Decision{CanRead: true}
)

// Allows reports whether d grants a. Unknown actions are never allowed.
func (d Decision) Allows(a Action) bool {
	switch a {
	case ActionRead:
		return d.CanRead
	case ActionWrite:
		return d.CanWrite
	case ActionDelete:
		return d.CanDelete
	default:
		return false
	}
}

// Record is the persisted policy for one (department, module) pair.
type Record struct {
	Department string    `json:"department"`
	Module     Module    `json:"module"`
	CanRead    bool      `json:"can_read"`
	CanWrite   bool      `json:"can_write"`
	CanDelete  bool      `json:"can_delete"`
	IsActive   bool      `json:"is_active"`
	UpdatedBy  string    `json:"updated_by,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (r Record) Decision() Decision {
	return Decision{CanRead: r.CanRead, CanWrite: r.CanWrite, CanDelete: r.CanDelete}
}
