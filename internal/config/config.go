package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config represents runtime configuration derived from environment variables.
type Config struct {
	Server    ServerConfig
	Logging   LoggingConfig
	Database  DatabaseConfig
	Anthropic AnthropicConfig
	Cursor    CursorConfig
	Ingest    IngestConfig
}

// ServerConfig holds HTTP server runtime parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// DatabaseConfig holds warehouse connection parameters.
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	ConnectTimeout     time.Duration
}

// AnthropicConfig holds settings for the admin reporting API.
type AnthropicConfig struct {
	BaseURL string
	// CodeWorkspaceID is the workspace the code assistant bills against; used as
	// a fallback signal when an API key is not in the surface mapping file.
	CodeWorkspaceID string
	// SurfaceMappingPath points at the YAML file mapping api_key_id -> surface.
	SurfaceMappingPath string
}

// CursorConfig holds settings for the IDE vendor admin API.
type CursorConfig struct {
	BaseURL string
	// PerRequestUSD is an optional flat per-request price used to estimate event
	// costs. Vendor-side pricing is unverified, so 0 disables the estimate.
	PerRequestUSD float64
}

// IngestConfig holds ingestion pipeline tunables.
type IngestConfig struct {
	// DailyCostCeilingUSD is the post-load sanity threshold: a daily cost sum
	// above it aborts the run as a likely unit-conversion regression.
	DailyCostCeilingUSD float64
	// ScheduleHourUTC is the hour of day the server's scheduler ingests yesterday.
	ScheduleHourUTC int
	// PacingInterval is the default pause between dates during backfills.
	PacingInterval time.Duration
}

const (
	defaultPort            = "8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	defaultLogFormat = "json"

	defaultMaxConnections     = 25
	defaultMaxIdleConnections = 5
	defaultConnMaxLifetime    = 5 * time.Minute
	defaultConnectTimeout     = 10 * time.Second

	defaultAnthropicBaseURL = "https://api.anthropic.com/v1"
	defaultCursorBaseURL    = "https://api.cursor.com"

	defaultDailyCostCeilingUSD = 5000.0
	defaultScheduleHourUTC     = 6
	defaultPacingInterval      = 3 * time.Second
)

// Load reads configuration from environment variables, applying defaults when
// values are not provided or invalid.
func Load() (Config, error) {
	// Cloud Run sets PORT, but allow SERVER_PORT override for local dev
	port := getEnv("PORT", "")
	if port == "" {
		port = getEnv("SERVER_PORT", defaultPort)
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            port,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
		Database: DatabaseConfig{
			URL:                os.Getenv("DATABASE_URL"),
			MaxConnections:     defaultMaxConnections,
			MaxIdleConnections: defaultMaxIdleConnections,
			ConnMaxLifetime:    defaultConnMaxLifetime,
			ConnectTimeout:     defaultConnectTimeout,
		},
		Anthropic: AnthropicConfig{
			BaseURL:            getEnv("ANTHROPIC_BASE_URL", defaultAnthropicBaseURL),
			CodeWorkspaceID:    os.Getenv("ANTHROPIC_CODE_WORKSPACE_ID"),
			SurfaceMappingPath: getEnv("SURFACE_MAPPING_PATH", "surface_mapping.yaml"),
		},
		Cursor: CursorConfig{
			BaseURL: getEnv("CURSOR_BASE_URL", defaultCursorBaseURL),
		},
		Ingest: IngestConfig{
			DailyCostCeilingUSD: defaultDailyCostCeilingUSD,
			ScheduleHourUTC:     defaultScheduleHourUTC,
			PacingInterval:      defaultPacingInterval,
		},
	}

	if v := os.Getenv("SERVER_READ_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_READ_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ReadTimeout = d
	}

	if v := os.Getenv("SERVER_WRITE_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_WRITE_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.WriteTimeout = d
	}

	if v := os.Getenv("SERVER_SHUTDOWN_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_SHUTDOWN_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ShutdownTimeout = d
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	if v := os.Getenv("DB_MAX_CONNECTIONS"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DB_MAX_CONNECTIONS: %w", err)
		}
		cfg.Database.MaxConnections = n
	}

	if v := os.Getenv("DB_MAX_IDLE_CONNECTIONS"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DB_MAX_IDLE_CONNECTIONS: %w", err)
		}
		cfg.Database.MaxIdleConnections = n
	}

	if v := os.Getenv("DAILY_COST_CEILING_USD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return Config{}, fmt.Errorf("invalid DAILY_COST_CEILING_USD: must be a positive number")
		}
		cfg.Ingest.DailyCostCeilingUSD = f
	}

	if v := os.Getenv("INGEST_SCHEDULE_HOUR_UTC"); v != "" {
		h, err := strconv.Atoi(v)
		if err != nil || h < 0 || h > 23 {
			return Config{}, fmt.Errorf("invalid INGEST_SCHEDULE_HOUR_UTC: must be 0-23")
		}
		cfg.Ingest.ScheduleHourUTC = h
	}

	if v := os.Getenv("INGEST_PACING_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid INGEST_PACING_SECONDS: %w", err)
		}
		cfg.Ingest.PacingInterval = d
	}

	if v := os.Getenv("CURSOR_PER_REQUEST_USD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return Config{}, fmt.Errorf("invalid CURSOR_PER_REQUEST_USD: must be a non-negative number")
		}
		cfg.Cursor.PerRequestUSD = f
	}

	return cfg, nil
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("must be a positive integer")
	}
	return n, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
