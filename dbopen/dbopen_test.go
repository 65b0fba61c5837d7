package dbopen

import (
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestOpenMemoryAppliesPragmas(t *testing.T) {
	// WHAT: OpenMemory yields a usable DB with foreign keys enabled.
	// WHY: Every store test in the repo builds on this helper.
	db := OpenMemory(t)

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("pragma foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys: got %d, want 1", fk)
	}
}

func TestWithSchema(t *testing.T) {
	// WHAT: WithSchema executes inline DDL at open time.
	// WHY: tenantpool and observability both open shards with their schema.
	db := OpenMemory(t, WithSchema(`CREATE TABLE things (id TEXT PRIMARY KEY)`))

	if _, err := db.Exec(`INSERT INTO things (id) VALUES ('a')`); err != nil {
		t.Fatalf("insert into schema table: %v", err)
	}
}

func TestWithMkdirAll(t *testing.T) {
	// WHAT: WithMkdirAll creates missing parent directories.
	// WHY: Tenant shards live under data/<tenant>/ which may not exist yet.
	path := filepath.Join(t.TempDir(), "nested", "dir", "praxis.db")
	db, err := Open(path, WithMkdirAll())
	if err != nil {
		t.Fatalf("open with mkdir: %v", err)
	}
	db.Close()
}

func TestOpenBadSchemaFails(t *testing.T) {
	// WHAT: Invalid schema SQL surfaces as an open error.
	if _, err := Open(":memory:", WithSchema("CREATE GARBAGE")); err == nil {
		t.Error("expected error for invalid schema")
	}
}
