package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the collector
type Config struct {
	CacheDir    string        `yaml:"cache_dir"`
	BearerToken string        `yaml:"bearer_token"`
	TimeRange   string        `yaml:"time_range"`
	API         APIConfig     `yaml:"api"`
	Lock        LockConfig    `yaml:"lock"`
	Archive     ArchiveConfig `yaml:"archive"`
}

// APIConfig holds Dropbox team-log API configuration
type APIConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LockConfig holds run-lock configuration
type LockConfig struct {
	TTLMinutes int `yaml:"ttl_minutes"`
}

// TTL returns the stale-lock threshold as a duration
func (c LockConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// ArchiveConfig holds S3 archival configuration. When static credentials
// are empty, the default AWS credential chain is used (IAM role on ECS).
type ArchiveConfig struct {
	Enabled         bool   `yaml:"enabled"`
	S3Bucket        string `yaml:"s3_bucket"`
	S3Region        string `yaml:"s3_region"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// applyDefaults fills zero values. TimeRange stays empty on purpose: an
// unset range means the fetch window starts at the stored watermark.
func applyDefaults(cfg *Config) {
	if cfg.CacheDir == "" {
		cfg.CacheDir = "/var/tmp/dropbox"
	}
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = "https://api.dropboxapi.com"
	}
	if cfg.API.TimeoutSeconds == 0 {
		cfg.API.TimeoutSeconds = 60
	}
	if cfg.Lock.TTLMinutes == 0 {
		cfg.Lock.TTLMinutes = 60
	}
	if cfg.Archive.S3Region == "" {
		cfg.Archive.S3Region = "us-east-1"
	}
	if cfg.Archive.Prefix == "" {
		cfg.Archive.Prefix = "auditlog/"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so the bearer token can live in .env locally and in real env vars on a
// scheduler host. An empty path yields the built-in defaults.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	// Override with environment variables if present
	if token := os.Getenv("DROPBOX_BEARER_TOKEN"); token != "" {
		cfg.BearerToken = token
	}
	if dir := os.Getenv("DROPBOX_CACHE_DIR"); dir != "" {
		cfg.CacheDir = dir
	}
	if timeRange := os.Getenv("DROPBOX_TIME_RANGE"); timeRange != "" {
		cfg.TimeRange = timeRange
	}
	if baseURL := os.Getenv("DROPBOX_API_BASE_URL"); baseURL != "" {
		cfg.API.BaseURL = baseURL
	}
	if bucket := os.Getenv("ARCHIVE_S3_BUCKET"); bucket != "" {
		cfg.Archive.S3Bucket = bucket
		if !cfg.Archive.Enabled {
			cfg.Archive.Enabled = true
		}
	}
	if region := os.Getenv("ARCHIVE_S3_REGION"); region != "" {
		cfg.Archive.S3Region = region
	}

	return cfg, nil
}
