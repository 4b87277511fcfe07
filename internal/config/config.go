/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// CatalogBackend selects how shortlist candidates are retrieved.
type CatalogBackend string

const (
	CatalogFullScan CatalogBackend = "fullscan"
	CatalogRanged   CatalogBackend = "ranged"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	DBBackend   DatabaseBackend
	DBDSN       string
	MetricsBind string

	// Remote player connection
	PlayerURL            string // websocket URL of the remote player bridge
	PlayerReconnectDelay time.Duration

	// Oracle transport
	NATSURL          string
	VibeSubject      string
	RecommendSubject string
	OracleTimeout    time.Duration

	// Redis mirror (best effort; engine runs fine without it)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Catalog index
	CatalogBackendKind CatalogBackend

	// Director timing
	ChatPollInterval time.Duration
	PickDebounce     time.Duration
	QueueRetryDelay  time.Duration
	SyncPickTimeout  time.Duration

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Optional YAML tuning file overriding selection heuristics
	TuningPath string

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"MUNINN_ENV", "MDJ_ENV"}, "development"),
		HTTPBind:    getEnvAny([]string{"MUNINN_HTTP_BIND", "MDJ_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:    getEnvIntAny([]string{"MUNINN_HTTP_PORT", "MDJ_HTTP_PORT"}, 8090),
		DBBackend:   DatabaseBackend(getEnvAny([]string{"MUNINN_DB_BACKEND", "MDJ_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:       getEnvAny([]string{"MUNINN_DB_DSN", "MDJ_DB_DSN"}, ""),
		MetricsBind: getEnvAny([]string{"MUNINN_METRICS_BIND", "MDJ_METRICS_BIND"}, "127.0.0.1:9100"),

		PlayerURL:            getEnvAny([]string{"MUNINN_PLAYER_URL", "MDJ_PLAYER_URL"}, ""),
		PlayerReconnectDelay: time.Duration(getEnvIntAny([]string{"MUNINN_PLAYER_RECONNECT_SECONDS", "MDJ_PLAYER_RECONNECT_SECONDS"}, 5)) * time.Second,

		NATSURL:          getEnvAny([]string{"MUNINN_NATS_URL", "MDJ_NATS_URL"}, "nats://localhost:4222"),
		VibeSubject:      getEnvAny([]string{"MUNINN_VIBE_SUBJECT", "MDJ_VIBE_SUBJECT"}, "muninn.oracle.vibe"),
		RecommendSubject: getEnvAny([]string{"MUNINN_RECOMMEND_SUBJECT", "MDJ_RECOMMEND_SUBJECT"}, "muninn.oracle.recommend"),
		OracleTimeout:    time.Duration(getEnvIntAny([]string{"MUNINN_ORACLE_TIMEOUT_SECONDS", "MDJ_ORACLE_TIMEOUT_SECONDS"}, 60)) * time.Second,

		RedisAddr:     getEnvAny([]string{"MUNINN_REDIS_ADDR", "MDJ_REDIS_ADDR"}, ""),
		RedisPassword: getEnvAny([]string{"MUNINN_REDIS_PASSWORD", "MDJ_REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"MUNINN_REDIS_DB", "MDJ_REDIS_DB"}, 0),

		CatalogBackendKind: CatalogBackend(getEnvAny([]string{"MUNINN_CATALOG_BACKEND", "MDJ_CATALOG_BACKEND"}, string(CatalogRanged))),

		ChatPollInterval: time.Duration(getEnvIntAny([]string{"MUNINN_CHAT_POLL_SECONDS", "MDJ_CHAT_POLL_SECONDS"}, 2)) * time.Second,
		PickDebounce:     time.Duration(getEnvIntAny([]string{"MUNINN_PICK_DEBOUNCE_SECONDS", "MDJ_PICK_DEBOUNCE_SECONDS"}, 20)) * time.Second,
		QueueRetryDelay:  time.Duration(getEnvIntAny([]string{"MUNINN_QUEUE_RETRY_SECONDS", "MDJ_QUEUE_RETRY_SECONDS"}, 90)) * time.Second,
		SyncPickTimeout:  time.Duration(getEnvIntAny([]string{"MUNINN_SYNC_PICK_TIMEOUT_SECONDS", "MDJ_SYNC_PICK_TIMEOUT_SECONDS"}, 30)) * time.Second,

		TracingEnabled:    getEnvBoolAny([]string{"MUNINN_TRACING_ENABLED", "MDJ_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"MUNINN_OTLP_ENDPOINT", "MDJ_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"MUNINN_TRACING_SAMPLE_RATE", "MDJ_TRACING_SAMPLE_RATE"}, 1.0),

		TuningPath: getEnvAny([]string{"MUNINN_TUNING_PATH", "MDJ_TUNING_PATH"}, ""),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("MUNINN_DB_DSN or MDJ_DB_DSN must be provided")
	}

	if cfg.CatalogBackendKind != CatalogFullScan && cfg.CatalogBackendKind != CatalogRanged {
		return nil, fmt.Errorf("unsupported catalog backend %q", cfg.CatalogBackendKind)
	}

	if strings.EqualFold(cfg.Environment, "production") && cfg.PlayerURL == "" {
		return nil, fmt.Errorf("MUNINN_PLAYER_URL must be set in production")
	}

	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"ENVIRONMENT":     "use MUNINN_ENV (or MDJ_ENV)",
		"TRACING_ENABLED": "use MUNINN_TRACING_ENABLED (or MDJ_TRACING_ENABLED)",
		"OTLP_ENDPOINT":   "use MUNINN_OTLP_ENDPOINT (or MDJ_OTLP_ENDPOINT)",
		"NATS_URL":        "use MUNINN_NATS_URL (or MDJ_NATS_URL)",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
