// Package config loads process configuration from environment variables,
// optionally preloaded from a .env file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every environment variable enumerated in the specification's
// external interfaces section, loaded via struct tags.
type Config struct {
	Mode string `env:"MODE" envDefault:"development"`
	Host string `env:"HOST" envDefault:"0.0.0.0"`
	Port int    `env:"PORT" envDefault:"8080"`

	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// SecretKey derives the vault cipher key (C1) and signs session tokens
	// (C10). Must be at least 32 bytes.
	SecretKey string `env:"SECRET_KEY,required"`

	// ProviderAPIKey is the bootstrap/default LLM provider key, encrypted
	// into the vault on first boot if no ProviderKey rows exist.
	ProviderAPIKey   string `env:"PROVIDER_API_KEY"`
	DefaultModelID   string `env:"DEFAULT_MODEL_ID" envDefault:"openrouter/auto"`
	EmbeddingModelID string `env:"EMBEDDING_MODEL_ID" envDefault:"text-embedding-3-small"`

	FileStoreRoot   string `env:"FILE_STORE_ROOT" envDefault:"./data/files"`
	UploadSizeCapMB int64  `env:"UPLOAD_SIZE_CAP_MB" envDefault:"50"`

	VectorStorePath string `env:"VECTOR_STORE_PATH" envDefault:"./data/vectors"`

	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	Production       bool `env:"PRODUCTION" envDefault:"false"`

	// AdminPassword is plaintext in development and an adaptive hash
	// ($2... bcrypt) in production; pkg/auth discriminates by prefix.
	AdminPassword string `env:"ADMIN_PASSWORD"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	IngestionReaperIntervalSeconds int `env:"INGESTION_REAPER_INTERVAL_SECONDS" envDefault:"300"`
	StaleProcessingMinutes         int `env:"STALE_PROCESSING_MINUTES" envDefault:"15"`

	// Connection pool settings, carried forward from the teacher's database
	// config defaults.
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:""`
}

// Load reads a .env file from dir (if present) then parses the process
// environment into a Config, mirroring the teacher's godotenv-before-parse
// bootstrap order.
func Load(dir string) (*Config, error) {
	if dir != "" {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			if loadErr := godotenv.Load(envPath); loadErr != nil {
				slog.Warn("failed to load .env file", "path", envPath, "error", loadErr)
			}
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if len(cfg.SecretKey) < 32 {
		return nil, fmt.Errorf("SECRET_KEY must be at least 32 bytes, got %d", len(cfg.SecretKey))
	}
	if cfg.Production && len(cfg.AllowedOrigins) == 0 {
		return nil, fmt.Errorf("ALLOWED_ORIGINS must be set explicitly in production (no wildcard)")
	}
	return cfg, nil
}

// ListenAddr returns the host:port pair gin/http.Server should bind to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// UploadSizeCapBytes converts the configured MB cap to bytes.
func (c *Config) UploadSizeCapBytes() int64 {
	return c.UploadSizeCapMB * 1024 * 1024
}
