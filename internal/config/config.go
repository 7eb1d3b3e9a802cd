package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MinTokenSecretLength is the shortest accepted token signing secret.
const MinTokenSecretLength = 32

// devTokenSecret signs tokens when SMARTSHOP_DEV_MODE=true and no secret is set.
const devTokenSecret = "smartshop-development-secret-not-for-production"

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Remote   RemoteConfig   `yaml:"remote"`
	Auth     AuthConfig     `yaml:"auth"`
	Media    MediaConfig    `yaml:"media"`
	Client   ClientConfig   `yaml:"client"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig contains document service HTTP settings.
type ServerConfig struct {
	Port int `yaml:"port"`
	// PublicURL is the base URL clients use to reach the service; image
	// links are built from it. Empty means http://localhost:<port>.
	PublicURL       string   `yaml:"public_url"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains document service database settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RemoteConfig tells the client where the document service lives.
type RemoteConfig struct {
	URL        string `yaml:"url"`
	Collection string `yaml:"collection"`
}

// AuthConfig contains account and token settings.
type AuthConfig struct {
	TokenSecret        string   `yaml:"-"` // env-only, never in YAML
	TokenTTL           Duration `yaml:"token_ttl"`
	ResetPurgeInterval Duration `yaml:"reset_purge_interval"`
}

// MediaConfig contains image storage settings. Images live in Dir unless
// Bucket names an S3-compatible bucket.
type MediaConfig struct {
	Dir       string   `yaml:"dir"`
	Bucket    string   `yaml:"bucket"`
	Endpoint  string   `yaml:"endpoint"`
	Region    string   `yaml:"region"`
	UseSSL    *bool    `yaml:"use_ssl"`
	AccessKey string   `yaml:"-"` // env-only
	SecretKey string   `yaml:"-"` // env-only
	URLExpiry Duration `yaml:"url_expiry"`
}

// ClientConfig contains settings for the smartshop client commands.
type ClientConfig struct {
	CachePath   string `yaml:"cache_path"`
	SessionPath string `yaml:"session_path"`
}

// LogConfig contains logging settings. File, when set, also receives logs
// through a rotating writer.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// PublicBaseURL returns the externally visible service URL.
func (c *Config) PublicBaseURL() string {
	if c.Server.PublicURL != "" {
		return strings.TrimRight(c.Server.PublicURL, "/")
	}
	return fmt.Sprintf("http://localhost:%d", c.Server.Port)
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	// Determine config path
	configPath := getEnv("SMARTSHOP_CONFIG_PATH", "config/smartshop.yaml")

	// Load YAML file if it exists (missing file is not an error)
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	return finish(cfg)
}

// LoadFromFile loads configuration from a specific path.
// Used by tests and by callers that pass an explicit path.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	// Load YAML file (file must exist for this function)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			ReadTimeout: Duration(30 * time.Second),
			// Watch connections stay open; handlers bound their own writes.
			WriteTimeout:    0,
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Path: "data/smartshop.db",
		},
		Remote: RemoteConfig{
			URL:        "http://localhost:8080",
			Collection: "products",
		},
		Auth: AuthConfig{
			TokenTTL:           Duration(24 * time.Hour),
			ResetPurgeInterval: Duration(1 * time.Hour),
		},
		Media: MediaConfig{
			Dir:       "data/images",
			URLExpiry: Duration(15 * time.Minute),
		},
		Client: ClientConfig{
			CachePath:   "~/.smartshop/cache.db",
			SessionPath: "~/.smartshop/session.json",
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
// Missing file is not an error; we just use defaults.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Missing file is OK; use defaults
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("SMARTSHOP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SMARTSHOP_PUBLIC_URL"); v != "" {
		cfg.Server.PublicURL = v
	}
	setDuration("SMARTSHOP_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	setDuration("SMARTSHOP_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	setDuration("SMARTSHOP_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	// Database
	if v := os.Getenv("SMARTSHOP_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Remote
	if v := os.Getenv("SMARTSHOP_REMOTE_URL"); v != "" {
		cfg.Remote.URL = v
	}
	if v := os.Getenv("SMARTSHOP_COLLECTION"); v != "" {
		cfg.Remote.Collection = v
	}

	// Auth
	if v := os.Getenv("SMARTSHOP_TOKEN_SECRET"); v != "" {
		cfg.Auth.TokenSecret = v
	}
	setDuration("SMARTSHOP_TOKEN_TTL", &cfg.Auth.TokenTTL)
	setDuration("SMARTSHOP_RESET_PURGE_INTERVAL", &cfg.Auth.ResetPurgeInterval)

	// Media
	if v := os.Getenv("SMARTSHOP_MEDIA_DIR"); v != "" {
		cfg.Media.Dir = v
	}
	if v := os.Getenv("SMARTSHOP_MEDIA_BUCKET"); v != "" {
		cfg.Media.Bucket = v
	}
	if v := os.Getenv("SMARTSHOP_S3_ENDPOINT"); v != "" {
		cfg.Media.Endpoint = v
	}
	if v := os.Getenv("SMARTSHOP_S3_REGION"); v != "" {
		cfg.Media.Region = v
	}
	if v := os.Getenv("SMARTSHOP_S3_ACCESS_KEY"); v != "" {
		cfg.Media.AccessKey = v
	}
	if v := os.Getenv("SMARTSHOP_S3_SECRET_KEY"); v != "" {
		cfg.Media.SecretKey = v
	}
	if v := os.Getenv("SMARTSHOP_S3_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Media.UseSSL = &b
		}
	}
	setDuration("SMARTSHOP_S3_URL_EXPIRY", &cfg.Media.URLExpiry)

	// Client
	if v := os.Getenv("SMARTSHOP_CACHE_PATH"); v != "" {
		cfg.Client.CachePath = v
	}
	if v := os.Getenv("SMARTSHOP_SESSION_PATH"); v != "" {
		cfg.Client.SessionPath = v
	}

	// Log
	if v := os.Getenv("SMARTSHOP_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SMARTSHOP_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("SMARTSHOP_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
}

func setDuration(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}

// expandPaths resolves a leading ~/ in every path setting.
func (c *Config) expandPaths() error {
	for _, p := range []*string{
		&c.Database.Path,
		&c.Media.Dir,
		&c.Client.CachePath,
		&c.Client.SessionPath,
		&c.Log.File,
	} {
		expanded, err := ExpandHome(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

// ExpandHome replaces a leading ~/ with the user's home directory.
func ExpandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}

// validate checks settings every command depends on.
func (c *Config) validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Remote.Collection == "" {
		return errors.New("remote collection is required")
	}
	return nil
}

// ValidateServer checks settings only the document service needs.
// In dev mode (SMARTSHOP_DEV_MODE=true) a missing token secret is replaced
// with a fixed development secret.
func (c *Config) ValidateServer() error {
	if c.Auth.TokenSecret == "" && os.Getenv("SMARTSHOP_DEV_MODE") == "true" {
		c.Auth.TokenSecret = devTokenSecret
	}
	if c.Auth.TokenSecret == "" {
		return errors.New("SMARTSHOP_TOKEN_SECRET is required")
	}
	if len(c.Auth.TokenSecret) < MinTokenSecretLength {
		return fmt.Errorf("SMARTSHOP_TOKEN_SECRET must be at least %d characters", MinTokenSecretLength)
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}
	if c.Media.Bucket != "" {
		if c.Media.Endpoint == "" {
			return errors.New("media.endpoint is required when media.bucket is set")
		}
		if c.Media.URLExpiry <= 0 {
			return errors.New("media.url_expiry must be positive")
		}
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
