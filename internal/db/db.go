// Package db persists construction sites and grading analysis runs in
// sqlite. The schema is owned by the embedded migrations; constructors
// differ only in how much migration work they are willing to do.
package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/gradeworks/gradeplan/internal/monitoring"
)

type DB struct {
	*sql.DB
}

// sessionPragmas are applied to every connection-opening path. WAL keeps
// readers unblocked while runs are inserted; busy_timeout covers the CLI
// and daemon sharing one file.
var sessionPragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// OpenDB opens the sqlite database at path and applies the session pragmas.
// The schema is not touched; migrations own it.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	for _, pragma := range sessionPragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	return &DB{sqlDB}, nil
}

// NewDB opens the database and applies any pending migrations from the
// embedded set. Intended for fresh stores and tests; the daemon goes through
// NewDBWithMigrationCheck so an operator decides when schema changes run.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	migrations, err := getMigrationsFS()
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := db.MigrateUp(migrations); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// NewDBWithMigrationCheck opens the database and verifies the schema is at
// the latest available migration version. When it is not, the database is
// closed and the returned error names the migrate command to run.
func NewDBWithMigrationCheck(path string, devMode bool) (*DB, error) {
	DevMode = devMode

	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	migrations, err := getMigrationsFS()
	if err != nil {
		db.Close()
		return nil, err
	}

	needsExit, err := db.CheckAndPromptMigrations(migrations)
	if needsExit || err != nil {
		db.Close()
		if err == nil {
			err = fmt.Errorf("database schema is out of date")
		}
		return nil, err
	}

	return db, nil
}

// AttachAdminRoutes mounts the operational debug surface on mux: the tsweb
// /debug/ index, a live SQL console over this database, and an on-demand
// gzipped backup download.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://gradeplan.db", db.DB, &tailsql.DBOptions{
		Label: "Gradeplan DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(db.handleBackup))
}

// handleBackup snapshots the database with VACUUM INTO and streams the file
// back gzipped. The snapshot is removed once sent.
func (db *DB) handleBackup(w http.ResponseWriter, r *http.Request) {
	backupPath := fmt.Sprintf("gradeplan-backup-%d.db", time.Now().Unix())
	if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}

	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		backupFile.Close()
		if err := os.Remove(backupPath); err != nil {
			monitoring.Errorf("failed to remove backup file: %v", err)
		}
	}()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Encoding", "gzip")

	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, backupFile); err != nil {
		monitoring.Errorf("failed to stream backup: %v", err)
	}
}
