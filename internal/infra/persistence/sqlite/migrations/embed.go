// Package migrations holds the embedded SQLite schema migrations.
package migrations

import "embed"

// FS contains the item store migrations, applied in file name order.
//
//go:embed *.sql
var FS embed.FS
