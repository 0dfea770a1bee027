package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for alertsync.
type Config struct {
	DeviceID string          `toml:"device_id"`
	BaseDir  string          `toml:"base_dir"`
	LogDir   string          `toml:"log_dir"`
	Server   ServerConfig    `toml:"server"`
	Session  SessionConfig   `toml:"session"`
	Database DatabaseConfig  `toml:"database"`
	Location LocationConfig  `toml:"location"`
	Notifier NotifierConfig  `toml:"notifier"`
	Sync     SyncConfig      `toml:"sync"`
	Archives []ArchiveConfig `toml:"archives"`
	API      APIConfig       `toml:"api"`
}

// ServerConfig describes the remote alert service.
type ServerConfig struct {
	BaseURL string `toml:"base_url"`
	Timeout string `toml:"timeout"` // per-request timeout, Go duration syntax; defaults to 30s
}

// RequestTimeout parses Timeout, falling back to 30s when unset.
func (c ServerConfig) RequestTimeout() (time.Duration, error) {
	return parseDuration(c.Timeout, 30*time.Second)
}

// SessionConfig represents configuration for the session store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type SessionConfig struct {
	Type       string `toml:"type"`                 // "file" (default) or "memory"
	Path       string `toml:"path,omitempty"`       // only used for type=file
	Encryption string `toml:"encryption,omitempty"` // "age" (default) or "test"
	KeyPath    string `toml:"key_path,omitempty"`   // age identity, created on first login
}

// DatabaseConfig represents configuration for the local history database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// LocationConfig selects the device location provider.
type LocationConfig struct {
	Type      string  `toml:"type"` // "static", "file" or "none"
	Latitude  float64 `toml:"latitude,omitempty"`
	Longitude float64 `toml:"longitude,omitempty"`
	Path      string  `toml:"path,omitempty"` // JSON {"latitude":..,"longitude":..}, type=file only
}

// NotifierConfig selects how new alerts are announced.
type NotifierConfig struct {
	Type     string   `toml:"type"`                // "log" or "command"
	Command  string   `toml:"command,omitempty"`   // e.g. "paplay"; the sound file is appended to Args
	Args     []string `toml:"args,omitempty"`
	SoundDir string   `toml:"sound_dir,omitempty"` // holds emergency.wav, warning.wav, notification.wav
}

// SyncConfig controls the refresh cycle.
type SyncConfig struct {
	RadiusMeters float64 `toml:"radius_meters"`
	Interval     string  `toml:"interval"`           // periodic trigger, Go duration syntax; defaults to 1m
	Schedule     string  `toml:"schedule,omitempty"` // cron expression, overrides Interval
}

// PollInterval parses Interval, falling back to one minute when unset.
func (c SyncConfig) PollInterval() (time.Duration, error) {
	return parseDuration(c.Interval, time.Minute)
}

// ArchiveConfig represents configuration for a history archive backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type ArchiveConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"`
	// Static credentials; when empty the default AWS credential chain is used.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSArchiveRoot string `toml:"fs_archive_root,omitempty"`
}

// APIConfig configures the local read-model API served by `alertsync serve`.
type APIConfig struct {
	Listen string `toml:"listen"`
}

// NewConfig creates a new Config with the provided values and default paths.
func NewConfig(deviceID, baseDir string) *Config {
	return &Config{
		DeviceID: deviceID,
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		Server: ServerConfig{
			BaseURL: "http://localhost:3000/api",
			Timeout: "30s",
		},
		Session: SessionConfig{
			Type:       "file",
			Path:       filepath.Join(baseDir, "session", "session.age"),
			Encryption: "age",
			KeyPath:    filepath.Join(baseDir, "keys", "session.key"),
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Location: LocationConfig{Type: "none"},
		Notifier: NotifierConfig{Type: "log"},
		Sync: SyncConfig{
			RadiusMeters: 5000,
			Interval:     "1m",
		},
		API: APIConfig{Listen: "127.0.0.1:8787"},
	}
}

func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %q", s)
	}
	return d, nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
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

	// The file may carry archive credentials.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
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
