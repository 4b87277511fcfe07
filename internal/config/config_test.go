package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadReadsCriticalEnvKeys(t *testing.T) {
	t.Setenv("MUNINN_DB_DSN", "file:test.db?mode=memory")
	t.Setenv("MUNINN_ENV", "development")
	t.Setenv("MUNINN_NATS_URL", "nats://broker:4222")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBDSN == "" {
		t.Fatal("expected DB DSN to be set")
	}
	if cfg.NATSURL != "nats://broker:4222" {
		t.Fatalf("unexpected NATS URL: %q", cfg.NATSURL)
	}
	if cfg.CatalogBackendKind != CatalogRanged {
		t.Fatalf("unexpected default catalog backend: %q", cfg.CatalogBackendKind)
	}
	if cfg.PickDebounce != 20*time.Second {
		t.Fatalf("unexpected default pick debounce: %v", cfg.PickDebounce)
	}
}

func TestLoadHonorsShortPrefixFallback(t *testing.T) {
	t.Setenv("MDJ_DB_DSN", "file:test.db?mode=memory")
	t.Setenv("MDJ_HTTP_PORT", "9999")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HTTPPort != 9999 {
		t.Fatalf("expected MDJ_ fallback to apply, got port %d", cfg.HTTPPort)
	}
}

func TestLoadRejectsUnknownBackends(t *testing.T) {
	t.Setenv("MUNINN_DB_DSN", "file:test.db?mode=memory")
	t.Setenv("MUNINN_DB_BACKEND", "oracle")

	if _, err := Load(); err == nil {
		t.Fatal("expected unknown database backend to fail")
	}

	t.Setenv("MUNINN_DB_BACKEND", "sqlite")
	t.Setenv("MUNINN_CATALOG_BACKEND", "kdtree")
	if _, err := Load(); err == nil {
		t.Fatal("expected unknown catalog backend to fail")
	}
}

func TestLoadRequiresDSN(t *testing.T) {
	t.Setenv("MUNINN_DB_DSN", "")
	t.Setenv("MDJ_DB_DSN", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected missing DSN to fail")
	}
}

func TestLoadProductionRequiresPlayerURL(t *testing.T) {
	t.Setenv("MUNINN_DB_DSN", "file:test.db?mode=memory")
	t.Setenv("MUNINN_ENV", "production")
	t.Setenv("MUNINN_PLAYER_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected production config load to fail without a player URL")
	}

	t.Setenv("MUNINN_PLAYER_URL", "ws://player:8765/ws")
	if _, err := Load(); err != nil {
		t.Fatalf("expected production config load with player URL to succeed: %v", err)
	}
}

func TestLoadReportsLegacyEnvWarnings(t *testing.T) {
	t.Setenv("MUNINN_DB_DSN", "file:test.db?mode=memory")
	t.Setenv("NATS_URL", "nats://legacy:4222")
	t.Setenv("TRACING_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.LegacyEnvWarnings) < 2 {
		t.Fatalf("expected legacy env warnings, got %v", cfg.LegacyEnvWarnings)
	}
}

func TestLoadTuningDefaultsWithoutFile(t *testing.T) {
	tuning, err := LoadTuning("")
	if err != nil {
		t.Fatalf("load tuning: %v", err)
	}
	if tuning != DefaultTuning() {
		t.Fatal("expected empty path to return defaults")
	}
}

func TestLoadTuningMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	body := "track_recovery_per_day: 0.2\nranged_window: 15\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write tuning file: %v", err)
	}

	tuning, err := LoadTuning(path)
	if err != nil {
		t.Fatalf("load tuning: %v", err)
	}
	if tuning.TrackRecoveryPerDay != 0.2 {
		t.Fatalf("expected override to apply, got %v", tuning.TrackRecoveryPerDay)
	}
	if tuning.RangedWindow != 15 {
		t.Fatalf("expected override to apply, got %v", tuning.RangedWindow)
	}
	// Untouched knobs keep their defaults.
	if tuning.ArtistRecoveryPerDay != 0.25 {
		t.Fatalf("expected default artist recovery, got %v", tuning.ArtistRecoveryPerDay)
	}
}

func TestLoadTuningRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"negative recovery", "track_recovery_per_day: -1\n"},
		{"floor above one", "track_score_floor: 1.5\n"},
		{"inverted loudness anchors", "loudness_low_db: -5\nloudness_high_db: -23\n"},
		{"pool smaller than sample", "nearest_pool_size: 3\nprompt_sample_size: 10\n"},
		{"shortlist cap too high", "max_from_shortlist: 8\n"},
		{"total below shortlist cap", "total_candidates: 2\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "tuning.yaml")
			if err := os.WriteFile(path, []byte(tc.body), 0o644); err != nil {
				t.Fatalf("write tuning file: %v", err)
			}
			if _, err := LoadTuning(path); err == nil {
				t.Fatal("expected validation failure")
			}
		})
	}
}
