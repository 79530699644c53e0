package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ekaya-inc/ekaya-feedmap/pkg/apperrors"
)

// DefaultConfigPath is read when no explicit path is given.
const DefaultConfigPath = "config.yaml"

// Storage backends.
const (
	StorageBackendFile     = "file"
	StorageBackendS3       = "s3"
	StorageBackendPostgres = "postgres"
)

// Config holds all configuration for feedmap.
// Configuration can come from a YAML file or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	HTTP      HTTPConfig      `yaml:"http"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Mapper    MapperConfig    `yaml:"mapper"`
	Workers   WorkersConfig   `yaml:"workers"`
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`

	// KeywordsFile optionally replaces the built-in keyword dictionaries.
	KeywordsFile string `yaml:"keywords_file" env:"FEEDMAP_KEYWORDS_FILE" env-default:""`
}

// HTTPConfig configures the fetch collaborator.
type HTTPConfig struct {
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"FEEDMAP_HTTP_TIMEOUT_SECONDS" env-default:"30"`
	MaxRetries     int    `yaml:"max_retries" env:"FEEDMAP_HTTP_MAX_RETRIES" env-default:"3"`
	InitialDelayMs int    `yaml:"initial_delay_ms" env:"FEEDMAP_HTTP_INITIAL_DELAY_MS" env-default:"500"`
	MaxDelayMs     int    `yaml:"max_delay_ms" env:"FEEDMAP_HTTP_MAX_DELAY_MS" env-default:"8000"`
	UserAgent      string `yaml:"user_agent" env:"FEEDMAP_HTTP_USER_AGENT" env-default:"feedmap/1.0"`
}

// Timeout returns the per-request timeout.
func (c *HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DiscoveryConfig configures endpoint discovery.
type DiscoveryConfig struct {
	MaxPages      int  `yaml:"max_pages" env:"FEEDMAP_MAX_PAGES" env-default:"5"`
	ProbeEntities bool `yaml:"probe_entities" env:"FEEDMAP_PROBE_ENTITIES" env-default:"true"`
	DetectRegion  bool `yaml:"detect_region" env:"FEEDMAP_DETECT_REGION" env-default:"true"`

	// ProbeSuffixesStr is a comma-separated list of sub-resource names to probe.
	// Empty means the built-in list.
	ProbeSuffixesStr string `yaml:"probe_suffixes" env:"FEEDMAP_PROBE_SUFFIXES" env-default:""`

	// ProbeSuffixes is parsed from ProbeSuffixesStr (not from config file).
	ProbeSuffixes []string `yaml:"-"`

	// RegionParamsStr is a comma-separated list of query parameters tried
	// when detecting region filtering. Empty means the built-in list.
	RegionParamsStr string   `yaml:"region_params" env:"FEEDMAP_REGION_PARAMS" env-default:""`
	RegionParams    []string `yaml:"-"`
}

// MapperConfig bounds the schema mapper traversal.
type MapperConfig struct {
	MaxDepth         int `yaml:"max_depth" env:"FEEDMAP_MAX_DEPTH" env-default:"10"`
	ArraySampleSize  int `yaml:"array_sample_size" env:"FEEDMAP_ARRAY_SAMPLE_SIZE" env-default:"50"`
	ExampleMaxLength int `yaml:"example_max_length" env:"FEEDMAP_EXAMPLE_MAX_LENGTH" env-default:"100"`
	EnumThreshold    int `yaml:"enum_threshold" env:"FEEDMAP_ENUM_THRESHOLD" env-default:"20"`
}

// WorkersConfig bounds per-endpoint inference fan-out.
type WorkersConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" env:"FEEDMAP_MAX_CONCURRENT" env-default:"4"`
}

// StorageConfig selects and configures the artifact store.
type StorageConfig struct {
	Backend    string `yaml:"backend" env:"FEEDMAP_STORAGE_BACKEND" env-default:"file"`
	Dir        string `yaml:"dir" env:"FEEDMAP_STORAGE_DIR" env-default:"./feedmap-data"`
	S3Bucket   string `yaml:"s3_bucket" env:"FEEDMAP_S3_BUCKET" env-default:""`
	S3Prefix   string `yaml:"s3_prefix" env:"FEEDMAP_S3_PREFIX" env-default:"feedmap"`
	S3Region   string `yaml:"s3_region" env:"FEEDMAP_S3_REGION" env-default:"us-east-1"`
	S3Endpoint string `yaml:"s3_endpoint" env:"FEEDMAP_S3_ENDPOINT" env-default:""` // MinIO and similar
}

// DatabaseConfig holds PostgreSQL configuration for the postgres storage backend.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"feedmap"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"feedmap"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"5"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"FEEDMAP_MIGRATIONS_PATH" env-default:"./migrations"`
}

// Load reads configuration from path with environment variable overrides.
// A missing file at the default path is not an error; configuration then comes
// from the environment alone.
func Load(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) && path == DefaultConfigPath {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	cfg.parseComplexFields()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() {
	c.Discovery.ProbeSuffixes = parseList(c.Discovery.ProbeSuffixesStr)
	c.Discovery.RegionParams = parseList(c.Discovery.RegionParamsStr)
}

// Validate rejects configurations the inference components cannot honour.
func (c *Config) Validate() error {
	m := c.Mapper
	if m.MaxDepth < 1 || m.ArraySampleSize < 1 || m.ExampleMaxLength < 1 || m.EnumThreshold < 2 {
		return fmt.Errorf("%w: mapper limits must be positive (enum_threshold >= 2)", apperrors.ErrInvalidConfig)
	}
	if c.Discovery.MaxPages < 1 {
		return fmt.Errorf("%w: discovery.max_pages must be >= 1", apperrors.ErrInvalidConfig)
	}

	switch c.Storage.Backend {
	case StorageBackendFile, StorageBackendPostgres:
	case StorageBackendS3:
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("%w: storage.s3_bucket is required for the s3 backend", apperrors.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage backend %q", apperrors.ErrInvalidConfig, c.Storage.Backend)
	}
	return nil
}

// parseList splits a comma-separated value, dropping empty entries.
func parseList(value string) []string {
	if value == "" {
		return nil
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.Trim(strings.TrimSpace(part), "/")
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ConnectionString returns a PostgreSQL connection URL.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, ResolveHostForDocker(c.Host), c.Port, c.Database, c.SSLMode,
	)
}
