package db

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
)

// DevMode selects local migration files over the embedded copies so schema
// work does not require a rebuild. Set by main at startup.
var DevMode bool

//go:embed migrations
var migrationsFS embed.FS

// devMigrationsDir is where the migration sources live relative to the repo
// root, the working directory in dev mode.
const devMigrationsDir = "internal/db/migrations"

// getMigrationsFS returns the migration set as a filesystem rooted at the
// .sql files: the embedded copy in production, the on-disk directory in dev
// mode.
func getMigrationsFS() (fs.FS, error) {
	if DevMode {
		if _, err := os.Stat(devMigrationsDir); err != nil {
			return nil, fmt.Errorf("dev mode migrations directory: %w", err)
		}
		return os.DirFS(devMigrationsDir), nil
	}
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("embedded migrations: %w", err)
	}
	return sub, nil
}
