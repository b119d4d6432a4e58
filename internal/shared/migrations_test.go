package shared

import (
	"database/sql"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDatabase() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()

	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&count)
	if err != nil {
		t.Fatalf("failed to check table %s: %v", name, err)
	}
	return count > 0
}

func TestRunMigrations(t *testing.T) {
	t.Run("applies all migrations", func(t *testing.T) {
		db := openTestDB(t)

		if err := RunMigrations(db); err != nil {
			t.Fatalf("RunMigrations() error = %v", err)
		}

		if !tableExists(t, db, "schema_migrations") {
			t.Error("schema_migrations table not created")
		}
		if !tableExists(t, db, "track_matches") {
			t.Error("track_matches table not created")
		}
	})

	t.Run("is idempotent", func(t *testing.T) {
		db := openTestDB(t)

		if err := RunMigrations(db); err != nil {
			t.Fatalf("first RunMigrations() error = %v", err)
		}
		if err := RunMigrations(db); err != nil {
			t.Fatalf("second RunMigrations() error = %v", err)
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
			t.Fatal(err)
		}
		if count != 1 {
			t.Errorf("schema_migrations rows = %d, want 1", count)
		}
	})

	t.Run("migrated table accepts inserts", func(t *testing.T) {
		db := openTestDB(t)

		if err := RunMigrations(db); err != nil {
			t.Fatal(err)
		}

		_, err := db.Exec(`
			INSERT INTO track_matches (id, spotify_id, tidal_id, title, artist, isrc, matched_by, created_at, updated_at)
			VALUES ('m1', 's1', '101', 'Song', 'Artist', 'US1', 'isrc', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		`)
		if err != nil {
			t.Errorf("insert into track_matches failed: %v", err)
		}
	})
}

func TestRollbackMigration(t *testing.T) {
	t.Run("rolls back the latest migration", func(t *testing.T) {
		db := openTestDB(t)

		if err := RunMigrations(db); err != nil {
			t.Fatal(err)
		}

		if err := RollbackMigration(db); err != nil {
			t.Fatalf("RollbackMigration() error = %v", err)
		}

		if tableExists(t, db, "track_matches") {
			t.Error("track_matches table still exists after rollback")
		}
	})

	t.Run("nothing to roll back", func(t *testing.T) {
		db := openTestDB(t)

		if err := RunMigrations(db); err != nil {
			t.Fatal(err)
		}
		if err := RollbackMigration(db); err != nil {
			t.Fatal(err)
		}

		if err := RollbackMigration(db); err == nil {
			t.Error("RollbackMigration() expected error with no applied migrations")
		}
	})
}
