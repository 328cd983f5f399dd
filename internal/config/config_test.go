package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	noExt := false
	original := &Config{
		HostID:  "test-host-abc",
		BaseDir: "/home/user/.local/share/dupdb",
		LogDir:  "/home/user/.local/share/dupdb/log",
		Watch: WatchConfig{
			Root:             "/home/user/Pictures",
			Mode:             "poll",
			Debounce:         Duration{2 * time.Second},
			MaxWait:          Duration{30 * time.Second},
			PollInterval:     Duration{time.Minute},
			Ignore:           []string{".dupdb", "*.tmp"},
			RequireExtension: &noExt,
		},
		Index:  IndexConfig{Type: "blob", DataDir: "/home/user/.local/share/dupdb/db"},
		Notify: NotifyConfig{Type: "log", AppName: "Dups", Timeout: Duration{time.Second}, MaxListed: 3},
		Vaults: []VaultConfig{
			{Type: "filesystem", Name: "local", FSVaultRoot: "/backup/vault"},
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  "/home/user/.local/share/dupdb/keys/dupdb.pub",
			PrivateKeyPath: "/home/user/.local/share/dupdb/keys/dupdb.key",
		},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.HostID != original.HostID {
		t.Errorf("HostID = %q, want %q", got.HostID, original.HostID)
	}
	if got.BaseDir != original.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, original.BaseDir)
	}
	if got.LogDir != original.LogDir {
		t.Errorf("LogDir = %q, want %q", got.LogDir, original.LogDir)
	}
	if got.Watch.Root != "/home/user/Pictures" {
		t.Errorf("Watch.Root = %q, want %q", got.Watch.Root, "/home/user/Pictures")
	}
	if got.Watch.Mode != "poll" {
		t.Errorf("Watch.Mode = %q, want %q", got.Watch.Mode, "poll")
	}
	if got.Watch.Debounce.Duration != 2*time.Second {
		t.Errorf("Watch.Debounce = %v, want 2s", got.Watch.Debounce.Duration)
	}
	if got.Watch.MaxWait.Duration != 30*time.Second {
		t.Errorf("Watch.MaxWait = %v, want 30s", got.Watch.MaxWait.Duration)
	}
	if got.Watch.PollInterval.Duration != time.Minute {
		t.Errorf("Watch.PollInterval = %v, want 1m", got.Watch.PollInterval.Duration)
	}
	if len(got.Watch.Ignore) != 2 {
		t.Fatalf("len(Watch.Ignore) = %d, want 2", len(got.Watch.Ignore))
	}
	if got.Watch.RequireExtension == nil || *got.Watch.RequireExtension {
		t.Errorf("Watch.RequireExtension = %v, want false", got.Watch.RequireExtension)
	}
	if got.Index.Type != "blob" {
		t.Errorf("Index.Type = %q, want %q", got.Index.Type, "blob")
	}
	if got.Notify.Type != "log" || got.Notify.AppName != "Dups" || got.Notify.MaxListed != 3 {
		t.Errorf("Notify = %+v, want log/Dups/3", got.Notify)
	}
	if len(got.Vaults) != 1 {
		t.Fatalf("len(Vaults) = %d, want 1", len(got.Vaults))
	}
	if got.Vaults[0].FSVaultRoot != "/backup/vault" {
		t.Errorf("Vault.FSVaultRoot = %q, want %q", got.Vaults[0].FSVaultRoot, "/backup/vault")
	}
	if got.Encryption.PrivateKeyPath != original.Encryption.PrivateKeyPath {
		t.Errorf("Encryption.PrivateKeyPath = %q, want %q", got.Encryption.PrivateKeyPath, original.Encryption.PrivateKeyPath)
	}
}

func TestManager_Read_DurationStrings(t *testing.T) {
	input := `
host_id = "h"
[watch]
root = "/w"
debounce = "250ms"
max_wait = "5s"
`
	m := &Manager{}
	cfg, err := m.Read(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if cfg.Watch.Debounce.Duration != 250*time.Millisecond {
		t.Errorf("Watch.Debounce = %v, want 250ms", cfg.Watch.Debounce.Duration)
	}
	if cfg.Watch.MaxWait.Duration != 5*time.Second {
		t.Errorf("Watch.MaxWait = %v, want 5s", cfg.Watch.MaxWait.Duration)
	}

	_, err = m.Read(strings.NewReader("[watch]\ndebounce = \"soon\"\n"))
	if err == nil {
		t.Fatal("Read() expected error for invalid duration")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{BaseDir: "/data/dupdb"}
	cfg.ApplyDefaults()

	if cfg.LogDir != "/data/dupdb/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/dupdb/log")
	}
	if cfg.Watch.Mode != DefaultWatchMode {
		t.Errorf("Watch.Mode = %q, want %q", cfg.Watch.Mode, DefaultWatchMode)
	}
	if cfg.Watch.Debounce.Duration != DefaultDebounce {
		t.Errorf("Watch.Debounce = %v, want %v", cfg.Watch.Debounce.Duration, DefaultDebounce)
	}
	if cfg.Watch.MaxWait.Duration != DefaultMaxWait {
		t.Errorf("Watch.MaxWait = %v, want %v", cfg.Watch.MaxWait.Duration, DefaultMaxWait)
	}
	if len(cfg.Watch.Ignore) != 1 || cfg.Watch.Ignore[0] != ".dupdb" {
		t.Errorf("Watch.Ignore = %v, want [.dupdb]", cfg.Watch.Ignore)
	}
	if cfg.Watch.RequireExtension == nil || !*cfg.Watch.RequireExtension {
		t.Error("Watch.RequireExtension should default to true")
	}
	if cfg.Index.Type != "sqlite" || cfg.Index.DataDir != "/data/dupdb/db" {
		t.Errorf("Index = %+v, want sqlite in /data/dupdb/db", cfg.Index)
	}
	if cfg.Notify.Type != "desktop" || cfg.Notify.AppName != "Dup DB" {
		t.Errorf("Notify = %+v, want desktop/Dup DB", cfg.Notify)
	}
	if cfg.Notify.Timeout.Duration != 5*time.Second {
		t.Errorf("Notify.Timeout = %v, want 5s", cfg.Notify.Timeout.Duration)
	}
	if cfg.Notify.MaxListed != DefaultMaxListed {
		t.Errorf("Notify.MaxListed = %d, want %d", cfg.Notify.MaxListed, DefaultMaxListed)
	}
}

func TestApplyDefaults_KeepsExplicitEmptyIgnore(t *testing.T) {
	cfg := &Config{Watch: WatchConfig{Ignore: []string{}}}
	cfg.ApplyDefaults()

	if len(cfg.Watch.Ignore) != 0 {
		t.Errorf("Watch.Ignore = %v, want empty", cfg.Watch.Ignore)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"poll mode", func(c *Config) { c.Watch.Mode = "poll" }, false},
		{"unknown mode", func(c *Config) { c.Watch.Mode = "inotify" }, true},
		{"max wait shorter than debounce", func(c *Config) {
			c.Watch.Debounce = Duration{10 * time.Second}
			c.Watch.MaxWait = Duration{time.Second}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("h", "/data")
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("host-1", "/data/dupdb")

	if cfg.HostID != "host-1" {
		t.Errorf("HostID = %q, want %q", cfg.HostID, "host-1")
	}
	if cfg.BaseDir != "/data/dupdb" {
		t.Errorf("BaseDir = %q, want %q", cfg.BaseDir, "/data/dupdb")
	}
	if cfg.LogDir != "/data/dupdb/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/dupdb/log")
	}
	if cfg.Encryption.PublicKeyPath != "/data/dupdb/keys/dupdb.pub" {
		t.Errorf("Encryption.PublicKeyPath = %q, want %q", cfg.Encryption.PublicKeyPath, "/data/dupdb/keys/dupdb.pub")
	}
	if cfg.Encryption.PrivateKeyPath != "/data/dupdb/keys/dupdb.key" {
		t.Errorf("Encryption.PrivateKeyPath = %q, want %q", cfg.Encryption.PrivateKeyPath, "/data/dupdb/keys/dupdb.key")
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "dupdb.toml")
		cfg := NewConfig("h1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "dupdb.toml")
		cfg := NewConfig("h1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "dupdb.toml")
		cfg := NewConfig("read-test", dir)
		cfg.Index = IndexConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.HostID != "read-test" {
			t.Errorf("HostID = %q, want %q", got.HostID, "read-test")
		}
		if got.Index.Type != "memory" {
			t.Errorf("Index.Type = %q, want %q", got.Index.Type, "memory")
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/dupdb.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
