// Package migrations holds the row store schema as numbered SQL scripts.
// NNN_name.up.sql files run in version order; .down.sql files are kept
// for manual rollback.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
