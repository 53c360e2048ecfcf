package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	// Server
	Port        string `yaml:"port" toml:"port" env:"PORT" env-default:"8080"`
	Environment string `yaml:"environment" toml:"environment" env:"ENVIRONMENT" env-default:"development"`
	LogLevel    string `yaml:"log_level" toml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	// Archive layout
	ArchivePath    string `yaml:"archive_path" toml:"archive_path" env:"ARCHIVE_PATH" env-default:"/var/www/story-archive/archive" env-description:"Root holding YYYYMMDD/<user>/ story folders and Avatars/"`
	AutoExportPath string `yaml:"auto_export_path" toml:"auto_export_path" env:"AUTO_EXPORT_PATH" env-default:"/mnt/nfs/MM/AutoExport" env-description:"Root holding YYYYMMDD/AccountCaptures and AllResharedUserStories"`

	ReshareAccount             string   `yaml:"reshare_account" toml:"reshare_account" env:"RESHARE_ACCOUNT" env-description:"Only annotate reshares for this account; empty annotates every user"`
	SnapshotExcludedUsers      []string `yaml:"snapshot_excluded_users" toml:"snapshot_excluded_users" env:"SNAPSHOT_EXCLUDED_USERS" env-separator:"," env-default:"medicalmedium"`
	SnapshotExcludedSubstrings []string `yaml:"snapshot_excluded_substrings" toml:"snapshot_excluded_substrings" env:"SNAPSHOT_EXCLUDED_SUBSTRINGS" env-separator:"," env-default:"cymbiotika"`

	// Export
	TempDir       string        `yaml:"temp_dir" toml:"temp_dir" env:"TEMP_DIR"`
	FFmpegBinary  string        `yaml:"ffmpeg_binary" toml:"ffmpeg_binary" env:"FFMPEG_BINARY" env-default:"ffmpeg"`
	FFmpegPreset  string        `yaml:"ffmpeg_preset" toml:"ffmpeg_preset" env:"FFMPEG_PRESET" env-default:"ultrafast"`
	FFmpegCRF     int           `yaml:"ffmpeg_crf" toml:"ffmpeg_crf" env:"FFMPEG_CRF" env-default:"23"`
	FFmpegTimeout time.Duration `yaml:"ffmpeg_timeout" toml:"ffmpeg_timeout" env:"FFMPEG_TIMEOUT" env-default:"0s"`
	ImageSeconds  int           `yaml:"image_seconds" toml:"image_seconds" env:"IMAGE_SECONDS" env-default:"6"`
	MaxUploadMB   int64         `yaml:"max_upload_mb" toml:"max_upload_mb" env:"MAX_UPLOAD_MB" env-default:"32"`
	SweepInterval time.Duration `yaml:"sweep_interval" toml:"sweep_interval" env:"SWEEP_INTERVAL" env-default:"15m"`
	SweepMaxAge   time.Duration `yaml:"sweep_max_age" toml:"sweep_max_age" env:"SWEEP_MAX_AGE" env-default:"1h"`
	ExportWorkers int           `yaml:"export_workers" toml:"export_workers" env:"EXPORT_WORKERS" env-default:"2" env-description:"Concurrent ffmpeg exports; 0 disables the limit"`
	ExportQueue   int           `yaml:"export_queue" toml:"export_queue" env:"EXPORT_QUEUE" env-default:"8" env-description:"Exports allowed to wait for a worker before requests are refused"`

	// Auth
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret" env:"JWT_SECRET"`

	// Job log
	DatabaseURL string `yaml:"database_url" toml:"database_url" env:"DATABASE_URL"`
	JobsDBPath  string `yaml:"jobs_db_path" toml:"jobs_db_path" env:"JOBS_DB_PATH" env-default:"story-archive.db"`

	// Supabase Storage publishing
	SupabaseURL           string `yaml:"supabase_url" toml:"supabase_url" env:"SUPABASE_URL"`
	SupabaseServiceKey    string `yaml:"supabase_service_key" toml:"supabase_service_key" env:"SUPABASE_SERVICE_KEY"`
	SupabaseStorageBucket string `yaml:"supabase_storage_bucket" toml:"supabase_storage_bucket" env:"SUPABASE_STORAGE_BUCKET" env-default:"story-exports"`

	// Error reporting
	SentryDSN string `yaml:"sentry_dsn" toml:"sentry_dsn" env:"SENTRY_DSN"`
}

// Load reads the configuration from path when given (YAML or TOML, env overrides),
// otherwise from the environment alone.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}

	cfg := &Config{}
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, cfg)
	} else {
		err = cleanenv.ReadEnv(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	cfg.SnapshotExcludedUsers = trimAll(cfg.SnapshotExcludedUsers)
	cfg.SnapshotExcludedSubstrings = trimAll(cfg.SnapshotExcludedSubstrings)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ArchivePath == "" {
		return fmt.Errorf("ARCHIVE_PATH is required")
	}
	if c.FFmpegBinary == "" {
		return fmt.Errorf("FFMPEG_BINARY is required")
	}
	if c.FFmpegCRF < 0 || c.FFmpegCRF > 51 {
		return fmt.Errorf("FFMPEG_CRF must be between 0 and 51, got %d", c.FFmpegCRF)
	}
	if c.ImageSeconds <= 0 {
		return fmt.Errorf("IMAGE_SECONDS must be positive, got %d", c.ImageSeconds)
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", c.MaxUploadMB)
	}
	if c.FFmpegTimeout < 0 {
		return fmt.Errorf("FFMPEG_TIMEOUT must not be negative")
	}
	if c.ExportWorkers < 0 || c.ExportQueue < 0 {
		return fmt.Errorf("EXPORT_WORKERS and EXPORT_QUEUE must not be negative")
	}
	if (c.SupabaseURL == "") != (c.SupabaseServiceKey == "") {
		return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY must be set together")
	}
	return nil
}

// IsProduction reports whether the server runs with production defaults.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// StorageEnabled reports whether finished exports are published to Supabase Storage.
func (c *Config) StorageEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseServiceKey != ""
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
