// Package config loads agrorec settings from an optional YAML file, an
// optional .env file and AGROREC_* environment variables, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"agrorec/internal/blob"
	"agrorec/internal/core"
	"agrorec/internal/platform/logger"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvFile is the dotenv file read from the working directory when present.
const EnvFile = ".env"

// Config is the full runtime configuration.
type Config struct {
	Storage  StorageConfig `yaml:"storage"`
	Blob     BlobConfig    `yaml:"blob"`
	Log      LogConfig     `yaml:"log"`
	PageSize int           `yaml:"pageSize"`
}

// StorageConfig selects the local store backend.
type StorageConfig struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlitePath"`
	PostgresDSN string `yaml:"postgresDSN"`
}

// BlobConfig selects the media archive backend.
type BlobConfig struct {
	Driver string   `yaml:"driver"`
	FSRoot string   `yaml:"fsRoot"`
	S3     S3Config `yaml:"s3"`
}

// S3Config holds the bucket coordinates of the s3 blob driver.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"pathStyle"`
	AccessKeyID     string `yaml:"accessKeyId"`
	SecretAccessKey string `yaml:"secretAccessKey"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Mode      string `yaml:"mode"`
	Redaction bool   `yaml:"redaction"`
	HashSalt  string `yaml:"hashSalt"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Storage:  StorageConfig{Driver: string(core.StorageSQLite)},
		Blob:     BlobConfig{Driver: string(blob.DriverFilesystem)},
		Log:      LogConfig{Mode: "dev", Redaction: true},
		PageSize: core.DefaultPageSize,
	}
}

// Load builds the configuration. path may be empty, in which case
// AGROREC_CONFIG names the YAML file, if any.
func Load(path string) (Config, error) {
	if err := godotenv.Load(EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", EnvFile, err)
	}
	cfg := Default()
	if path == "" {
		path = os.Getenv("AGROREC_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // operator supplied path
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"AGROREC_STORAGE_DRIVER":            &cfg.Storage.Driver,
		"AGROREC_SQLITE_PATH":               &cfg.Storage.SQLitePath,
		"AGROREC_POSTGRES_DSN":              &cfg.Storage.PostgresDSN,
		"AGROREC_BLOB_DRIVER":               &cfg.Blob.Driver,
		"AGROREC_BLOB_FS_ROOT":              &cfg.Blob.FSRoot,
		"AGROREC_BLOB_S3_BUCKET":            &cfg.Blob.S3.Bucket,
		"AGROREC_BLOB_S3_REGION":            &cfg.Blob.S3.Region,
		"AGROREC_BLOB_S3_ENDPOINT":          &cfg.Blob.S3.Endpoint,
		"AGROREC_BLOB_S3_ACCESS_KEY_ID":     &cfg.Blob.S3.AccessKeyID,
		"AGROREC_BLOB_S3_SECRET_ACCESS_KEY": &cfg.Blob.S3.SecretAccessKey,
		"AGROREC_LOG_MODE":                  &cfg.Log.Mode,
		"AGROREC_LOG_HASH_SALT":             &cfg.Log.HashSalt,
	}
	for key, dst := range strs {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	bools := map[string]*bool{
		"AGROREC_BLOB_S3_PATH_STYLE": &cfg.Blob.S3.PathStyle,
		"AGROREC_LOG_REDACTION":      &cfg.Log.Redaction,
	}
	for key, dst := range bools {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			continue
		}
		b, err := parseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
	}
	if v := strings.TrimSpace(os.Getenv("AGROREC_PAGE_SIZE")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AGROREC_PAGE_SIZE: %w", err)
		}
		cfg.PageSize = n
	}
	return nil
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", v)
}

// Validate checks driver names and numeric bounds.
func (c Config) Validate() error {
	switch core.StorageDriver(c.Storage.Driver) {
	case core.StorageMemory, core.StorageSQLite, core.StoragePostgres:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch blob.Driver(c.Blob.Driver) {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			return fmt.Errorf("blob driver s3 requires a bucket")
		}
	default:
		return fmt.Errorf("unknown blob driver %q", c.Blob.Driver)
	}
	if c.PageSize < 1 {
		return fmt.Errorf("page size must be positive, got %d", c.PageSize)
	}
	return nil
}

// StorageOptions maps the storage section onto core.OpenPersistentStore.
func (c Config) StorageOptions() core.StorageOptions {
	return core.StorageOptions{
		Driver:      core.StorageDriver(c.Storage.Driver),
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
	}
}

// BlobOptions maps the blob section onto blob.Open.
func (c Config) BlobOptions() blob.Options {
	return blob.Options{
		Driver: blob.Driver(c.Blob.Driver),
		FSRoot: c.Blob.FSRoot,
		S3: blob.S3Config{
			Bucket:          c.Blob.S3.Bucket,
			Region:          c.Blob.S3.Region,
			Endpoint:        c.Blob.S3.Endpoint,
			PathStyle:       c.Blob.S3.PathStyle,
			AccessKeyID:     c.Blob.S3.AccessKeyID,
			SecretAccessKey: c.Blob.S3.SecretAccessKey,
		},
	}
}

// Logger builds the zap logger described by the log section.
func (c Config) Logger() (*logger.Logger, error) {
	return logger.New(c.Log.Mode, logger.WithRedaction(c.Log.Redaction), logger.WithHashSalt(c.Log.HashSalt))
}
