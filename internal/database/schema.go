package database

import (
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	"dupdb/internal/database/migrations"
)

// Schema is the schema the migrations produce, for tests that build a
// database without running them. TestSchemaMatchesMigrations fails when it
// goes stale.
//
//go:embed schema.sql
var Schema string

//go:generate sh -c "cd ../.. && go run internal/database/tools/generate_schema.go"

// DumpSchema renders the schema of a migrated database in the form stored in
// schema.sql: each table followed by its indexes, tables in name order.
func DumpSchema(db *sql.DB) (string, error) {
	version, _, err := migrations.Version(db)
	if err != nil {
		return "", fmt.Errorf("reading schema version: %w", err)
	}

	rows, err := db.Query(`
		SELECT sql
		FROM sqlite_master
		WHERE type IN ('table', 'index')
		  AND sql IS NOT NULL
		  AND tbl_name != 'schema_migrations'
		ORDER BY tbl_name, CASE type WHEN 'table' THEN 0 ELSE 1 END, name`)
	if err != nil {
		return "", fmt.Errorf("listing schema objects: %w", err)
	}
	defer rows.Close()

	var stmts []string
	for rows.Next() {
		var stmt string
		if err := rows.Scan(&stmt); err != nil {
			return "", fmt.Errorf("scanning schema object: %w", err)
		}
		stmts = append(stmts, stmt+";")
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("listing schema objects: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "-- Schema version %d, generated from internal/database/migrations/files.\n", version)
	b.WriteString("-- Edit the migrations and run 'go generate ./internal/database'.\n\n")
	b.WriteString(strings.Join(stmts, "\n\n"))
	b.WriteString("\n")
	return b.String(), nil
}
