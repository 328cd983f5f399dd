package database

import (
	"fmt"
	"os"
	"path/filepath"

	"dupdb/internal/blobindex"
	"dupdb/internal/config"
	"dupdb/internal/dupdb"
)

// NewStoreFromConfig creates a Store implementation based on the index config type.
// Failed opens return a nil interface, never a typed nil pointer.
func NewStoreFromConfig(cfg config.IndexConfig) (dupdb.Store, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite index")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data_dir: %w", err)
		}
		s, err := NewSQLiteStore(filepath.Join(cfg.DataDir, "dupdb.db"))
		if err != nil {
			return nil, err
		}
		return s, nil
	case "blob":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for blob index")
		}
		idx, err := blobindex.Open(filepath.Join(cfg.DataDir, "index.dat"))
		if err != nil {
			return nil, err
		}
		return idx, nil
	case "memory":
		s, err := NewSQLiteStore(":memory:")
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown index type: %s", cfg.Type)
	}
}
