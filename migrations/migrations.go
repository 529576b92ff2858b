// Package migrations embeds the goose-annotated SQL schema files.
package migrations

import "embed"

// FS holds every *.sql file; goose orders them by their numeric prefix.
//
//go:embed *.sql
var FS embed.FS
