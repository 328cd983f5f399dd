package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults applied by ApplyDefaults to zero-valued fields.
const (
	DefaultWatchMode      = "notify"
	DefaultDebounce       = time.Second
	DefaultMaxWait        = 10 * time.Second
	DefaultPollInterval   = 5 * time.Second
	DefaultIndexType      = "sqlite"
	DefaultNotifyType     = "desktop"
	DefaultAppName        = "Dup DB"
	DefaultNotifyTimeout  = 5 * time.Second
	DefaultMaxListed      = 10
	DefaultStateDirIgnore = ".dupdb"
)

// Config represents the main configuration for dupdb.
type Config struct {
	HostID     string           `toml:"host_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Watch      WatchConfig      `toml:"watch"`
	Index      IndexConfig      `toml:"index"`
	Notify     NotifyConfig     `toml:"notify"`
	Vaults     []VaultConfig    `toml:"vaults"`
	Encryption EncryptionConfig `toml:"encryption"`
}

// WatchConfig describes the directory tree being kept in sync.
type WatchConfig struct {
	Root         string   `toml:"root"`
	Mode         string   `toml:"mode"`          // "notify" (default) or "poll"
	Debounce     Duration `toml:"debounce"`      // quiet window before a batch is flushed
	MaxWait      Duration `toml:"max_wait"`      // upper bound on how long an event can wait
	PollInterval Duration `toml:"poll_interval"` // only used for mode=poll
	// Ignore holds gitignore-style patterns relative to Root.
	Ignore           []string `toml:"ignore"`
	RequireExtension *bool    `toml:"require_extension,omitempty"`
}

// IndexConfig represents configuration for the content index.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type IndexConfig struct {
	Type    string `toml:"type"`               // "sqlite", "blob" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // used for type=sqlite and type=blob
}

// NotifyConfig selects how duplicate alerts are delivered.
type NotifyConfig struct {
	Type      string   `toml:"type"` // "desktop", "log" or "none"
	AppName   string   `toml:"app_name"`
	Timeout   Duration `toml:"timeout"`
	MaxListed int      `toml:"max_listed"`
}

// EncryptionConfig holds paths to the age key pair used for snapshot encryption.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default), "test" or "none"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// VaultConfig represents configuration for a snapshot vault.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// Duration is a time.Duration written as a string ("1s", "250ms") in TOML.
type Duration struct {
	time.Duration
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// NewConfig creates a new Config with the provided values, default key paths
// and default settings.
func NewConfig(hostID, baseDir string) *Config {
	cfg := &Config{
		HostID:  hostID,
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Index: IndexConfig{
			Type:    DefaultIndexType,
			DataDir: filepath.Join(baseDir, "db"),
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "dupdb.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "dupdb.key"),
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued settings in place.
func (c *Config) ApplyDefaults() {
	if c.LogDir == "" && c.BaseDir != "" {
		c.LogDir = filepath.Join(c.BaseDir, "log")
	}

	if c.Watch.Mode == "" {
		c.Watch.Mode = DefaultWatchMode
	}
	if c.Watch.Debounce.Duration <= 0 {
		c.Watch.Debounce.Duration = DefaultDebounce
	}
	if c.Watch.MaxWait.Duration <= 0 {
		c.Watch.MaxWait.Duration = DefaultMaxWait
	}
	if c.Watch.PollInterval.Duration <= 0 {
		c.Watch.PollInterval.Duration = DefaultPollInterval
	}
	if c.Watch.Ignore == nil {
		c.Watch.Ignore = []string{DefaultStateDirIgnore}
	}
	if c.Watch.RequireExtension == nil {
		v := true
		c.Watch.RequireExtension = &v
	}

	if c.Index.Type == "" {
		c.Index.Type = DefaultIndexType
	}
	if c.Index.DataDir == "" && c.BaseDir != "" {
		c.Index.DataDir = filepath.Join(c.BaseDir, "db")
	}

	if c.Notify.Type == "" {
		c.Notify.Type = DefaultNotifyType
	}
	if c.Notify.AppName == "" {
		c.Notify.AppName = DefaultAppName
	}
	if c.Notify.Timeout.Duration <= 0 {
		c.Notify.Timeout.Duration = DefaultNotifyTimeout
	}
	if c.Notify.MaxListed <= 0 {
		c.Notify.MaxListed = DefaultMaxListed
	}
}

// Validate checks settings that have no sensible default.
func (c *Config) Validate() error {
	switch c.Watch.Mode {
	case "notify", "poll":
	default:
		return fmt.Errorf("unknown watch mode: %s", c.Watch.Mode)
	}
	if c.Watch.MaxWait.Duration < c.Watch.Debounce.Duration {
		return fmt.Errorf("watch.max_wait (%s) must not be shorter than watch.debounce (%s)",
			c.Watch.MaxWait.Duration, c.Watch.Debounce.Duration)
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader and applies defaults.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
