// Package migrations embeds the schema and seed SQL applied by cmd/migrate
// and, when database.auto_migrate is set, by cmd/api at startup.
package migrations

import "embed"

//go:embed sql/*.sql seeds/*.sql
var FS embed.FS

const (
	SQLDir   = "sql"
	SeedsDir = "seeds"
)
