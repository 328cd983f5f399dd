// Command generate_schema rewrites internal/database/schema.sql from the
// embedded migrations. Run it from the module root.
package main

import (
	"log"
	"os"
	"path/filepath"

	"dupdb/internal/database"
	"dupdb/internal/database/migrations"
)

func main() {
	db, err := database.OpenConnection(":memory:")
	if err != nil {
		log.Fatalf("opening scratch database: %v", err)
	}
	defer db.Close()
	if err := migrations.MigrateUp(db); err != nil {
		log.Fatalf("migrating scratch database: %v", err)
	}

	schema, err := database.DumpSchema(db)
	if err != nil {
		log.Fatalf("dumping schema: %v", err)
	}

	out := filepath.Join("internal", "database", "schema.sql")
	if err := os.WriteFile(out, []byte(schema), 0644); err != nil {
		log.Fatalf("writing %s: %v", out, err)
	}
	log.Printf("wrote %s", out)
}
