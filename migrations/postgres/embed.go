// Package migrations embeds SQL migration files for PostgreSQL.
package migrations

import "embed"

// FS contains the schema migrations (*_up.sql / *_down.sql).
//
//go:embed *.sql
var FS embed.FS
