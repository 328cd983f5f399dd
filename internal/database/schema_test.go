package database

import (
	"strings"
	"testing"
)

func TestSchemaMatchesMigrations(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer s.Close()

	got, err := DumpSchema(s.db)
	if err != nil {
		t.Fatalf("DumpSchema() error = %v", err)
	}
	if got != Schema {
		t.Errorf("schema.sql is stale; run 'go generate ./internal/database'\ngot:\n%s\nwant:\n%s", got, Schema)
	}
}

func TestDumpSchema_Layout(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer s.Close()

	got, err := DumpSchema(s.db)
	if err != nil {
		t.Fatalf("DumpSchema() error = %v", err)
	}

	if strings.Contains(got, "schema_migrations") {
		t.Error("DumpSchema() includes migrate bookkeeping")
	}
	if strings.Contains(got, "sqlite_autoindex") {
		t.Error("DumpSchema() includes implicit indexes")
	}

	// Each table is followed by its own indexes.
	order := []string{"TABLE dupindex", "INDEX dupindex_hash", "INDEX dupindex_path", "TABLE runs", "INDEX runs_started_at"}
	last := -1
	for _, want := range order {
		i := strings.Index(got, want)
		if i < 0 {
			t.Fatalf("DumpSchema() missing %q", want)
		}
		if i < last {
			t.Errorf("%q appears out of order", want)
		}
		last = i
	}
}

func TestDumpSchema_Unmigrated(t *testing.T) {
	db, err := OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("OpenConnection() error = %v", err)
	}
	defer db.Close()

	if _, err := DumpSchema(db); err == nil {
		t.Error("DumpSchema() on an empty database succeeded, want error")
	}
}
