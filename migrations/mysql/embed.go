// Package mysql embeds SQL migration files for MySQL databases.
package mysql

import "embed"

// FS contains the schema migrations (*_up.sql / *_down.sql).
//
//go:embed *.sql
var FS embed.FS
