// Package migrations embeds the goose SQL migrations for both databases.
//
// local/ holds the schema of the client-side product cache, server/ the
// schema of the document service.
package migrations

import "embed"

// FS contains every migration file, rooted at this directory.
//
//go:embed local/*.sql server/*.sql
var FS embed.FS

// Directories within FS.
const (
	LocalDir  = "local"
	ServerDir = "server"
)
