package db

import (
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
)

// openBareDB opens a database without running any migrations.
func openBareDB(t *testing.T) *DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "bare.db")
	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()

	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name,
	).Scan(&count)
	if err != nil {
		t.Fatalf("Failed to check for table %s: %v", name, err)
	}
	return count == 1
}

// TestMigrateUpDownCycle walks the schema up, back down, and up again.
func TestMigrateUpDownCycle(t *testing.T) {
	db := openBareDB(t)

	migrations, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS failed: %v", err)
	}

	// Fresh database reports version 0, clean.
	version, dirty, err := db.MigrateVersion(migrations)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 0 || dirty {
		t.Errorf("Expected version 0 clean on fresh DB, got %d (dirty: %v)", version, dirty)
	}

	if err := db.MigrateUp(migrations); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	if !tableExists(t, db, "sites") || !tableExists(t, db, "grading_runs") {
		t.Error("Expected sites and grading_runs tables after MigrateUp")
	}

	version, dirty, err = db.MigrateVersion(migrations)
	if err != nil {
		t.Fatalf("MigrateVersion after up failed: %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("Expected version 1 clean after up, got %d (dirty: %v)", version, dirty)
	}

	// MigrateUp again is a no-op.
	if err := db.MigrateUp(migrations); err != nil {
		t.Errorf("Expected MigrateUp at latest to be a no-op, got %v", err)
	}

	if err := db.MigrateDown(migrations); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}
	if tableExists(t, db, "sites") || tableExists(t, db, "grading_runs") {
		t.Error("Expected tables to be dropped after MigrateDown")
	}

	if err := db.MigrateTo(migrations, 1); err != nil {
		t.Fatalf("MigrateTo(1) failed: %v", err)
	}
	if !tableExists(t, db, "sites") {
		t.Error("Expected sites table after MigrateTo(1)")
	}
}

func TestGetLatestMigrationVersion(t *testing.T) {
	migrations, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS failed: %v", err)
	}

	latest, err := GetLatestMigrationVersion(migrations)
	if err != nil {
		t.Fatalf("GetLatestMigrationVersion failed: %v", err)
	}
	if latest < 1 {
		t.Errorf("Expected latest migration version >= 1, got %d", latest)
	}
}

func TestGetLatestMigrationVersion_SyntheticSets(t *testing.T) {
	tests := []struct {
		name    string
		files   []string
		want    uint
		wantErr bool
	}{
		{
			name:  "single migration",
			files: []string{"0001_init.up.sql", "0001_init.down.sql"},
			want:  1,
		},
		{
			name:  "picks highest version",
			files: []string{"0001_init.up.sql", "0002_add_costs.up.sql", "0010_rework.up.sql"},
			want:  10,
		},
		{
			name:    "empty set",
			files:   nil,
			wantErr: true,
		},
		{
			name:    "no parseable versions",
			files:   []string{"init.up.sql"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := fstest.MapFS{}
			for _, f := range tt.files {
				fsys[f] = &fstest.MapFile{Data: []byte("-- test")}
			}

			got, err := GetLatestMigrationVersion(fsys)
			if (err != nil) != tt.wantErr {
				t.Fatalf("GetLatestMigrationVersion() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Expected version %d, got %d", tt.want, got)
			}
		})
	}
}

// TestCheckAndPromptMigrations covers the stale and current schema states.
func TestCheckAndPromptMigrations(t *testing.T) {
	db := openBareDB(t)

	migrations, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS failed: %v", err)
	}

	shouldExit, err := db.CheckAndPromptMigrations(migrations)
	if !shouldExit {
		t.Error("Expected shouldExit=true for unmigrated database")
	}
	if err == nil || !strings.Contains(err.Error(), "out of date") {
		t.Errorf("Expected out-of-date error, got: %v", err)
	}

	if err := db.MigrateUp(migrations); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}

	shouldExit, err = db.CheckAndPromptMigrations(migrations)
	if shouldExit || err != nil {
		t.Errorf("Expected clean check after MigrateUp, got shouldExit=%v err=%v", shouldExit, err)
	}
}
