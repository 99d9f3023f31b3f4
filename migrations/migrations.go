// Package migrations embeds the SQL migrations applied by internal/migrate.
package migrations

import "embed"

// FS holds every goose migration file.
//
//go:embed *.sql
var FS embed.FS
