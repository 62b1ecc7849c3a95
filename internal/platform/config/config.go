package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// Storage selects and configures the item store backend.
type Storage struct {
	Driver      string `env:"ITEMCORE_STORAGE_DRIVER" envDefault:"sqlite"`
	SQLitePath  string `env:"ITEMCORE_SQLITE_PATH" envDefault:"itemcore.db"`
	PostgresDSN string `env:"ITEMCORE_POSTGRES_DSN"`
}

// Blob selects and configures the archive blob backend.
type Blob struct {
	Driver      string `env:"ITEMCORE_BLOB_DRIVER" envDefault:"fs"`
	FSRoot      string `env:"ITEMCORE_BLOB_FS_ROOT" envDefault:"blobdata"`
	S3Bucket    string `env:"ITEMCORE_BLOB_S3_BUCKET"`
	S3Region    string `env:"ITEMCORE_BLOB_S3_REGION" envDefault:"us-east-1"`
	S3Endpoint  string `env:"ITEMCORE_BLOB_S3_ENDPOINT"`
	S3PathStyle bool   `env:"ITEMCORE_BLOB_S3_PATH_STYLE"`

	// Static credentials; empty means the default AWS chain.
	S3AccessKeyID     string `env:"ITEMCORE_BLOB_S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"ITEMCORE_BLOB_S3_SECRET_ACCESS_KEY"`
}

// Config is the itemd process configuration.
type Config struct {
	Storage Storage
	Blob    Blob

	CatalogPath      string `env:"ITEMCORE_CATALOG_PATH" envDefault:"types.yaml"`
	HTTPAddr         string `env:"ITEMCORE_HTTP_ADDR" envDefault:":8080"`
	LogLevel         string `env:"ITEMCORE_LOG_LEVEL" envDefault:"info"`
	StrictInvariants bool   `env:"ITEMCORE_STRICT_INVARIANTS"`
	NotifyQueue      int    `env:"ITEMCORE_NOTIFY_QUEUE" envDefault:"64"`
	ServiceName      string `env:"ITEMCORE_SERVICE_NAME" envDefault:"itemd"`
	// OTLPEndpoint enables trace export when set.
	OTLPEndpoint string `env:"ITEMCORE_OTLP_ENDPOINT"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects unknown drivers and unusable settings.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "sqlite":
	case "postgres":
		if strings.TrimSpace(c.Storage.PostgresDSN) == "" {
			return fmt.Errorf("ITEMCORE_POSTGRES_DSN required for postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Blob.Driver {
	case "fs", "memory":
	case "s3":
		if strings.TrimSpace(c.Blob.S3Bucket) == "" {
			return fmt.Errorf("ITEMCORE_BLOB_S3_BUCKET required for s3 driver")
		}
	default:
		return fmt.Errorf("unknown blob driver %q", c.Blob.Driver)
	}
	if c.NotifyQueue <= 0 {
		return fmt.Errorf("ITEMCORE_NOTIFY_QUEUE must be positive, got %d", c.NotifyQueue)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel maps LogLevel onto a slog level.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid ITEMCORE_LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return level, nil
}
