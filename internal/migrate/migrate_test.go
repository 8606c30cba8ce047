package migrate_test

import (
	"testing"

	"govline/internal/db"
	"govline/internal/migrate"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("first run: %v", err)
	}
	// a second run sees the recorded version and applies nothing
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("second run: %v", err)
	}

	var version int
	if err := conn.QueryRow(`SELECT version FROM schema_version`).Scan(&version); err != nil {
		t.Fatalf("read version: %v", err)
	}
	if version < 1 {
		t.Fatalf("unexpected schema version %d", version)
	}
}
