package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "trackforge.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	path := DefaultConfigFile
	if p := os.Getenv("TRACKFORGE_CONFIG"); p != "" {
		path = p
	}
	return LoadFrom(path)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is operator supplied
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "TRACKFORGE_PORT")
	setString(&cfg.Server.CORSOrigin, "TRACKFORGE_CORS_ORIGIN")
	setFloat64(&cfg.Server.RateLimitRPS, "TRACKFORGE_RATE_LIMIT_RPS")
	setInt(&cfg.Server.RateLimitBurst, "TRACKFORGE_RATE_LIMIT_BURST")
	setDuration(&cfg.Server.IdempotencyTTL, "TRACKFORGE_IDEMPOTENCY_TTL")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "TRACKFORGE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "TRACKFORGE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "TRACKFORGE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "TRACKFORGE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "TRACKFORGE_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Stream, "TRACKFORGE_NATS_STREAM")

	setString(&cfg.Logging.Level, "TRACKFORGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "TRACKFORGE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "TRACKFORGE_LOG_ASYNC")

	setInt(&cfg.Breaker.MaxFailures, "TRACKFORGE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "TRACKFORGE_BREAKER_TIMEOUT")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "TRACKFORGE_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.L1TTL, "TRACKFORGE_CACHE_L1_TTL")
	setString(&cfg.Cache.L2Bucket, "TRACKFORGE_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "TRACKFORGE_CACHE_L2_TTL")

	// Tasks
	setString(&cfg.Tasks.CalendarTimezone, "TRACKFORGE_CALENDAR_TIMEZONE")
	setInt(&cfg.Tasks.MaxCommentLength, "TRACKFORGE_MAX_COMMENT_LENGTH")

	// Attachments
	setString(&cfg.Attachments.Bucket, "TRACKFORGE_ATTACHMENTS_BUCKET")
	setInt64(&cfg.Attachments.MaxSizeMB, "TRACKFORGE_ATTACHMENTS_MAX_SIZE_MB")
	setInt(&cfg.Attachments.MaxConcurrent, "TRACKFORGE_ATTACHMENTS_MAX_CONCURRENT")
	setDuration(&cfg.Attachments.UploadTimeout, "TRACKFORGE_UPLOAD_TIMEOUT")
	setDuration(&cfg.Attachments.ResultTTL, "TRACKFORGE_UPLOAD_RESULT_TTL")

	// MCP
	setBool(&cfg.MCP.Enabled, "TRACKFORGE_MCP_ENABLED")
	setString(&cfg.MCP.Addr, "TRACKFORGE_MCP_ADDR")
	setString(&cfg.MCP.APIKey, "TRACKFORGE_MCP_API_KEY")

	// OpenTelemetry
	setBool(&cfg.OTEL.Enabled, "TRACKFORGE_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.OTEL.Insecure, "TRACKFORGE_OTEL_INSECURE")
	setFloat64(&cfg.OTEL.SampleRate, "TRACKFORGE_OTEL_SAMPLE_RATE")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Server.RateLimitRPS > 0 && cfg.Server.RateLimitBurst < 1 {
		return errors.New("server.rate_limit_burst must be >= 1 when rate limiting is enabled")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Attachments.MaxConcurrent < 1 {
		return errors.New("attachments.max_concurrent must be >= 1")
	}
	if cfg.Attachments.UploadTimeout <= 0 {
		return errors.New("attachments.upload_timeout must be > 0")
	}
	if cfg.Attachments.MaxSizeMB < 1 {
		return errors.New("attachments.max_size_mb must be >= 1")
	}
	if _, err := cfg.Tasks.Location(); err != nil {
		return fmt.Errorf("tasks.calendar_timezone: %w", err)
	}
	if cfg.OTEL.SampleRate < 0 || cfg.OTEL.SampleRate > 1 {
		return errors.New("otel.sample_rate must be between 0 and 1")
	}
	if cfg.MCP.Enabled && cfg.MCP.Addr == "" {
		return errors.New("mcp.addr is required when mcp is enabled")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
