package vault

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dupdb/internal/dupdb"
)

func TestNewFileSystemVault(t *testing.T) {
	t.Run("creates directory structure", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "vault")

		v, err := NewFileSystemVault("test", root)
		if err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}

		if _, err := os.Stat(filepath.Join(root, "snapshots")); err != nil {
			t.Errorf("snapshots directory not created: %v", err)
		}
		if v.name != "test" {
			t.Errorf("name = %q, want %q", v.name, "test")
		}
	})

	t.Run("works with existing directory", func(t *testing.T) {
		if _, err := NewFileSystemVault("test", t.TempDir()); err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}
	})
}

func TestFileSystemVault_PutSnapshot(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		size    int64
		wantErr bool
	}{
		{
			name: "store snapshot successfully",
			data: "hello world",
			size: 11,
		},
		{
			name:    "size mismatch",
			data:    "hello",
			size:    100,
			wantErr: true,
		},
		{
			name: "empty snapshot",
			data: "",
			size: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewFileSystemVault("test", t.TempDir())
			if err != nil {
				t.Fatalf("NewFileSystemVault() error = %v", err)
			}

			err = v.PutSnapshot("host-1", "dupdb.db", strings.NewReader(tt.data), tt.size, 5)
			if (err != nil) != tt.wantErr {
				t.Fatalf("PutSnapshot() error = %v, wantErr %v", err, tt.wantErr)
			}

			if tt.wantErr {
				if _, err := os.Stat(v.snapshotPath("host-1", "dupdb.db")); !os.IsNotExist(err) {
					t.Errorf("snapshot file should not exist after failed put")
				}
				return
			}

			got, err := os.ReadFile(v.snapshotPath("host-1", "dupdb.db"))
			if err != nil {
				t.Fatalf("failed to read stored snapshot: %v", err)
			}
			if string(got) != tt.data {
				t.Errorf("stored snapshot = %q, want %q", got, tt.data)
			}
		})
	}
}

func TestFileSystemVault_GetSnapshot(t *testing.T) {
	v, err := NewFileSystemVault("test", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}

	data := "index snapshot"
	if err := v.PutSnapshot("host-1", "dupdb.db", strings.NewReader(data), int64(len(data)), 2); err != nil {
		t.Fatalf("PutSnapshot() error = %v", err)
	}

	var buf bytes.Buffer
	if err := v.GetSnapshot("host-1", "dupdb.db", &buf); err != nil {
		t.Fatalf("GetSnapshot() error = %v", err)
	}
	if buf.String() != data {
		t.Errorf("GetSnapshot() = %q, want %q", buf.String(), data)
	}

	buf.Reset()
	err = v.GetSnapshot("host-2", "dupdb.db", &buf)
	if !errors.Is(err, dupdb.ErrSnapshotNotFound) {
		t.Errorf("GetSnapshot() for other host error = %v, want ErrSnapshotNotFound", err)
	}
}

func TestFileSystemVault_SnapshotVersion(t *testing.T) {
	v, err := NewFileSystemVault("test", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}

	version, err := v.SnapshotVersion("host-1", "dupdb.db")
	if err != nil {
		t.Fatalf("SnapshotVersion() error = %v", err)
	}
	if version != 0 {
		t.Errorf("SnapshotVersion() before put = %d, want 0", version)
	}

	if err := v.PutSnapshot("host-1", "dupdb.db", strings.NewReader("x"), 1, 42); err != nil {
		t.Fatalf("PutSnapshot() error = %v", err)
	}

	version, err = v.SnapshotVersion("host-1", "dupdb.db")
	if err != nil {
		t.Fatalf("SnapshotVersion() error = %v", err)
	}
	if version != 42 {
		t.Errorf("SnapshotVersion() = %d, want 42", version)
	}

	if err := os.WriteFile(v.snapshotPath("host-1", "dupdb.db")+".version", []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := v.SnapshotVersion("host-1", "dupdb.db"); err == nil {
		t.Error("SnapshotVersion() expected parse error for corrupt version file")
	}
}

func TestFileSystemVault_ValidateSetup(t *testing.T) {
	t.Run("valid setup", func(t *testing.T) {
		v, err := NewFileSystemVault("test", t.TempDir())
		if err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}
		if err := v.ValidateSetup(); err != nil {
			t.Errorf("ValidateSetup() error = %v", err)
		}
	})

	t.Run("root removed", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "vault")
		v, err := NewFileSystemVault("test", root)
		if err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}
		if err := os.RemoveAll(root); err != nil {
			t.Fatal(err)
		}
		if err := v.ValidateSetup(); err == nil {
			t.Error("ValidateSetup() expected error for missing root")
		}
	})
}

func TestFileSystemVault_AtomicWrite(t *testing.T) {
	v, err := NewFileSystemVault("test", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}

	data := "hello world"
	if err := v.PutSnapshot("host-1", "dupdb.db", strings.NewReader(data), int64(len(data)), 1); err != nil {
		t.Fatalf("PutSnapshot() error = %v", err)
	}
	// Failed write must not leave its temp file behind either.
	_ = v.PutSnapshot("host-1", "dupdb.db", strings.NewReader("short"), 99, 2)

	entries, err := os.ReadDir(filepath.Dir(v.snapshotPath("host-1", "dupdb.db")))
	if err != nil {
		t.Fatalf("failed to read host dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", entry.Name())
		}
	}
}
