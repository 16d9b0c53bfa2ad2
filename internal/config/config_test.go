package config

import (
	"testing"
	"time"

	"log/slog"
)

func TestLoadDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.Port != defaultPort {
		t.Errorf("expected default port %q, got %q", defaultPort, cfg.Server.Port)
	}
	if cfg.Logging.Level != slog.LevelInfo {
		t.Errorf("expected default log level %v, got %v", slog.LevelInfo, cfg.Logging.Level)
	}
	if cfg.Logging.Format != defaultLogFormat {
		t.Errorf("expected default log format %q, got %q", defaultLogFormat, cfg.Logging.Format)
	}
	if cfg.Anthropic.BaseURL != defaultAnthropicBaseURL {
		t.Errorf("expected default anthropic base URL %q, got %q", defaultAnthropicBaseURL, cfg.Anthropic.BaseURL)
	}
	if cfg.Ingest.DailyCostCeilingUSD != defaultDailyCostCeilingUSD {
		t.Errorf("expected default cost ceiling %v, got %v", defaultDailyCostCeilingUSD, cfg.Ingest.DailyCostCeilingUSD)
	}
	if cfg.Ingest.PacingInterval != defaultPacingInterval {
		t.Errorf("expected default pacing %v, got %v", defaultPacingInterval, cfg.Ingest.PacingInterval)
	}
	if cfg.Cursor.PerRequestUSD != 0 {
		t.Errorf("expected per-request price disabled by default, got %v", cfg.Cursor.PerRequestUSD)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	clearConfigEnv(t)

	overrides := map[string]string{
		"SERVER_PORT":              "9090",
		"LOG_LEVEL":                "debug",
		"LOG_FORMAT":               "text",
		"DATABASE_URL":             "postgres://localhost/ledger",
		"DB_MAX_CONNECTIONS":       "50",
		"DAILY_COST_CEILING_USD":   "2500",
		"INGEST_SCHEDULE_HOUR_UTC": "9",
		"INGEST_PACING_SECONDS":    "10",
		"CURSOR_PER_REQUEST_USD":   "0.04",
	}
	for key, value := range overrides {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected overridden port 9090, got %q", cfg.Server.Port)
	}
	if cfg.Logging.Level != slog.LevelDebug {
		t.Errorf("expected log level debug, got %v", cfg.Logging.Level)
	}
	if cfg.Database.URL != "postgres://localhost/ledger" {
		t.Errorf("unexpected database URL %q", cfg.Database.URL)
	}
	if cfg.Database.MaxConnections != 50 {
		t.Errorf("expected 50 max connections, got %d", cfg.Database.MaxConnections)
	}
	if cfg.Ingest.DailyCostCeilingUSD != 2500 {
		t.Errorf("expected cost ceiling 2500, got %v", cfg.Ingest.DailyCostCeilingUSD)
	}
	if cfg.Ingest.ScheduleHourUTC != 9 {
		t.Errorf("expected schedule hour 9, got %d", cfg.Ingest.ScheduleHourUTC)
	}
	if cfg.Ingest.PacingInterval != 10*time.Second {
		t.Errorf("expected pacing 10s, got %v", cfg.Ingest.PacingInterval)
	}
	if cfg.Cursor.PerRequestUSD != 0.04 {
		t.Errorf("expected per-request price 0.04, got %v", cfg.Cursor.PerRequestUSD)
	}
}

func TestLoadWithInvalidValues(t *testing.T) {
	tests := map[string]string{
		"SERVER_READ_TIMEOUT_SECONDS": "-1",
		"LOG_LEVEL":                   "verbose",
		"LOG_FORMAT":                  "xml",
		"DB_MAX_CONNECTIONS":          "0",
		"DAILY_COST_CEILING_USD":      "-100",
		"INGEST_SCHEDULE_HOUR_UTC":    "24",
		"CURSOR_PER_REQUEST_USD":      "cheap",
	}

	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv(key, value)

			if _, err := Load(); err == nil {
				t.Fatalf("expected error when %s=%q", key, value)
			}
		})
	}
}

func TestParseLogLevelAliases(t *testing.T) {
	tests := map[string]slog.Level{
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
	}

	for input, expected := range tests {
		level, err := parseLogLevel(input)
		if err != nil {
			t.Fatalf("parseLogLevel(%q) returned error: %v", input, err)
		}

		if level != expected {
			t.Errorf("parseLogLevel(%q) = %v, want %v", input, level, expected)
		}
	}
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"PORT",
		"SERVER_PORT",
		"SERVER_READ_TIMEOUT_SECONDS",
		"SERVER_WRITE_TIMEOUT_SECONDS",
		"SERVER_SHUTDOWN_TIMEOUT_SECONDS",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"DATABASE_URL",
		"DB_MAX_CONNECTIONS",
		"DB_MAX_IDLE_CONNECTIONS",
		"ANTHROPIC_BASE_URL",
		"ANTHROPIC_CODE_WORKSPACE_ID",
		"SURFACE_MAPPING_PATH",
		"CURSOR_BASE_URL",
		"CURSOR_PER_REQUEST_USD",
		"DAILY_COST_CEILING_USD",
		"INGEST_SCHEDULE_HOUR_UTC",
		"INGEST_PACING_SECONDS",
	}

	for _, key := range keys {
		t.Setenv(key, "")
	}
}
