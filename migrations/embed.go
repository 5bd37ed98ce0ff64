// Package migrations holds the goose SQL migrations for the storefront schema.
package migrations

import "embed"

// FS contains every migration file, applied in version order.
//
//go:embed *.sql
var FS embed.FS
