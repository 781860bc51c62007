// Package migrations embeds the SQL schema files.
//
// Files are named NNNNNN_name.up.sql / NNNNNN_name.down.sql and are applied
// in lexical order.
package migrations

import "embed"

// FS holds every migration file.
//
//go:embed *.sql
var FS embed.FS
