// Package config loads runtime settings from an optional .env file and
// FIELDLEDGER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"fieldledger/internal/blob"
	"fieldledger/internal/core"
	"fieldledger/internal/infra/logging"
)

const prefix = "FIELDLEDGER_"

// Config is the full process configuration.
type Config struct {
	Server   ServerConfig
	Log      logging.Config
	Ledger   LedgerConfig
	Storage  core.StorageConfig
	Blob     blob.Config
	Redis    RedisConfig
	PubSub   PubSubConfig
	Tracing  TracingConfig
	CacheLRU int
}

type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
	GinMode         string
}

type LedgerConfig struct {
	Policy core.ReservationPolicy
}

// RedisConfig enables the distributed ledger lock when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockKey  string
	LockTTL  time.Duration
}

// PubSubConfig enables change events when ProjectID is set.
type PubSubConfig struct {
	ProjectID       string
	Topic           string
	CredentialsFile string
}

type TracingConfig struct {
	Enabled bool
	Service string
}

// Load reads files (default ".env") if present, then the environment.
// Missing files are ignored; variables already set win over file values.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	policy, err := core.ParseReservationPolicy(getEnv("RESERVATION_POLICY", ""))
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Server: ServerConfig{
			Addr:            getEnv("HTTP_ADDR", ":8080"),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
			GinMode:         getEnv("GIN_MODE", "release"),
		},
		Log: logging.Config{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: logging.Format(getEnv("LOG_FORMAT", string(logging.FormatJSON))),
		},
		Ledger: LedgerConfig{Policy: policy},
		Storage: core.StorageConfig{
			Driver:      core.StorageDriver(getEnv("STORAGE_DRIVER", string(core.StorageSQLite))),
			SQLitePath:  getEnv("SQLITE_PATH", "fieldledger.db"),
			PostgresDSN: getEnv("POSTGRES_DSN", ""),
			Account:     getEnv("ACCOUNT", ""),
			MaxAttempts: getEnvInt("TX_MAX_ATTEMPTS", 0),
		},
		Blob: blob.Config{
			Driver: blob.Driver(getEnv("BLOB_DRIVER", string(blob.DriverFilesystem))),
			FSRoot: getEnv("BLOB_FS_ROOT", "./exports"),
			S3: blob.S3Config{
				Bucket:          getEnv("BLOB_S3_BUCKET", ""),
				Region:          getEnv("BLOB_S3_REGION", ""),
				Endpoint:        getEnv("BLOB_S3_ENDPOINT", ""),
				AccessKeyID:     getEnv("BLOB_S3_ACCESS_KEY_ID", ""),
				SecretAccessKey: getEnv("BLOB_S3_SECRET_ACCESS_KEY", ""),
				PathStyle:       getEnvBool("BLOB_S3_PATH_STYLE", false),
			},
			MinIO: blob.MinIOConfig{
				Endpoint:        getEnv("BLOB_MINIO_ENDPOINT", ""),
				Bucket:          getEnv("BLOB_MINIO_BUCKET", ""),
				AccessKeyID:     getEnv("BLOB_MINIO_ACCESS_KEY", ""),
				SecretAccessKey: getEnv("BLOB_MINIO_SECRET_KEY", ""),
				Region:          getEnv("BLOB_MINIO_REGION", ""),
				UseSSL:          getEnvBool("BLOB_MINIO_USE_SSL", false),
				CreateBucket:    getEnvBool("BLOB_MINIO_CREATE_BUCKET", true),
			},
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			LockKey:  getEnv("REDIS_LOCK_KEY", "fieldledger:ledger"),
			LockTTL:  getEnvDuration("REDIS_LOCK_TTL", 30*time.Second),
		},
		PubSub: PubSubConfig{
			ProjectID:       getEnv("PUBSUB_PROJECT_ID", ""),
			Topic:           getEnv("PUBSUB_TOPIC", "fieldledger-changes"),
			CredentialsFile: getEnv("PUBSUB_CREDENTIALS_FILE", ""),
		},
		Tracing: TracingConfig{
			Enabled: getEnvBool("TRACING_ENABLED", false),
			Service: getEnv("SERVICE_NAME", "fieldledger"),
		},
		CacheLRU: getEnvInt("SUPPLY_CACHE_SIZE", 256),
	}
	return cfg, cfg.Validate()
}

// Validate checks cross-field requirements.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case core.StorageMemory, core.StorageSQLite:
	case core.StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New(prefix+"POSTGRES_DSN required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	switch c.Blob.Driver {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, errors.New(prefix+"BLOB_S3_BUCKET required for s3 blobs"))
		}
	case blob.DriverMinIO:
		if c.Blob.MinIO.Endpoint == "" || c.Blob.MinIO.Bucket == "" {
			errs = append(errs, errors.New(prefix+"BLOB_MINIO_ENDPOINT and BLOB_MINIO_BUCKET required for minio blobs"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob driver %q", c.Blob.Driver))
	}
	if c.Storage.MaxAttempts < 0 {
		errs = append(errs, errors.New(prefix+"TX_MAX_ATTEMPTS must not be negative"))
	}
	if c.CacheLRU <= 0 {
		errs = append(errs, errors.New(prefix+"SUPPLY_CACHE_SIZE must be positive"))
	}
	if c.Redis.Addr != "" && c.Redis.LockTTL <= 0 {
		errs = append(errs, errors.New(prefix+"REDIS_LOCK_TTL must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(prefix + key); ok {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(prefix + key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(prefix + key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(prefix + key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}
