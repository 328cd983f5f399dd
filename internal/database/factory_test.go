package database

import (
	"path/filepath"
	"testing"

	"dupdb/internal/blobindex"
	"dupdb/internal/config"
)

func TestNewStoreFromConfig(t *testing.T) {
	t.Run("memory index", func(t *testing.T) {
		got, err := NewStoreFromConfig(config.IndexConfig{Type: "memory"})
		if err != nil {
			t.Fatalf("NewStoreFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		if _, ok := got.(*SQLiteStore); !ok {
			t.Errorf("NewStoreFromConfig() = %T, want *SQLiteStore", got)
		}
	})

	t.Run("sqlite index", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "db")
		got, err := NewStoreFromConfig(config.IndexConfig{Type: "sqlite", DataDir: dir})
		if err != nil {
			t.Fatalf("NewStoreFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		s, ok := got.(*SQLiteStore)
		if !ok {
			t.Fatalf("NewStoreFromConfig() = %T, want *SQLiteStore", got)
		}
		if s.Path() != filepath.Join(dir, "dupdb.db") {
			t.Errorf("Path() = %q, want %q", s.Path(), filepath.Join(dir, "dupdb.db"))
		}
		if err := s.CheckMigrations(); err != nil {
			t.Errorf("CheckMigrations() error = %v", err)
		}
	})

	t.Run("blob index", func(t *testing.T) {
		dir := t.TempDir()
		got, err := NewStoreFromConfig(config.IndexConfig{Type: "blob", DataDir: dir})
		if err != nil {
			t.Fatalf("NewStoreFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		b, ok := got.(*blobindex.Index)
		if !ok {
			t.Fatalf("NewStoreFromConfig() = %T, want *blobindex.Index", got)
		}
		if b.Path() != filepath.Join(dir, "index.dat") {
			t.Errorf("Path() = %q, want %q", b.Path(), filepath.Join(dir, "index.dat"))
		}
	})

	t.Run("sqlite index without data_dir", func(t *testing.T) {
		_, err := NewStoreFromConfig(config.IndexConfig{Type: "sqlite"})
		if err == nil {
			t.Error("NewStoreFromConfig() expected error for missing data_dir")
		}
	})

	t.Run("blob index without data_dir", func(t *testing.T) {
		_, err := NewStoreFromConfig(config.IndexConfig{Type: "blob"})
		if err == nil {
			t.Error("NewStoreFromConfig() expected error for missing data_dir")
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := NewStoreFromConfig(config.IndexConfig{Type: "redis"})
		if err == nil {
			t.Error("NewStoreFromConfig() expected error for unknown type")
		}
	})
}
