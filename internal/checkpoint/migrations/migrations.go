// Package migrations embeds the checkpoint schema's versioned SQL files
// so the binary can self-bootstrap run_info/run_details without a
// separate migrations directory on disk, the way platform/internal/
// database/db.go drives golang-migrate from a file:// source.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
