// Package migrations holds the SQLite schema of a settings node.
//
// Importing it for side effects registers the embedded files with the
// database package, so the daemon and the CLI migrate without SQL on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-settings/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.RegisterMigrations(files)
}
