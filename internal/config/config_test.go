package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	for _, key := range []string{"PORT", "SERVER_PORT", "BASE_CURRENCY", "EXCHANGE_RATE_JOB_SCHEDULE", "RATE_CACHE_TTL_SECONDS", "TRANSFER_RATE_LIMIT_PER_MINUTE", "EXCHANGE_RATE_BACKFILL_DAYS"} {
		unsetEnvWithCleanup(t, key)
	}

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.ServerPort)
	}
	if cfg.BaseCurrency != "RUB" {
		t.Fatalf("expected default base currency RUB, got %q", cfg.BaseCurrency)
	}
	if cfg.ExchangeRateJobSchedule != "0 */6 * * *" {
		t.Fatalf("expected default schedule, got %q", cfg.ExchangeRateJobSchedule)
	}
	if cfg.RateCacheTTL() != 5*time.Minute {
		t.Fatalf("expected 5m cache ttl, got %s", cfg.RateCacheTTL())
	}
	if cfg.ExchangeRateBackfillDays != 7 {
		t.Fatalf("expected 7 backfill days, got %d", cfg.ExchangeRateBackfillDays)
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "9000")
	setEnvWithCleanup(t, "PORT", "9100")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9100" {
		t.Fatalf("expected PORT to win, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_SanitizesInvalidValues(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "BASE_CURRENCY", " usd ")
	setEnvWithCleanup(t, "EXCHANGE_RATE_JOB_SCHEDULE", "every now and then")
	setEnvWithCleanup(t, "RATE_CACHE_TTL_SECONDS", "-5")
	setEnvWithCleanup(t, "TRANSFER_RATE_LIMIT_PER_MINUTE", "0")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.BaseCurrency != "USD" {
		t.Fatalf("expected normalized USD, got %q", cfg.BaseCurrency)
	}
	if cfg.ExchangeRateJobSchedule != "0 */6 * * *" {
		t.Fatalf("expected fallback schedule, got %q", cfg.ExchangeRateJobSchedule)
	}
	if cfg.RateCacheTTLSeconds != 300 {
		t.Fatalf("expected fallback ttl 300, got %d", cfg.RateCacheTTLSeconds)
	}
	if cfg.TransferRateLimitPerMinute != 30 {
		t.Fatalf("expected fallback limit 30, got %d", cfg.TransferRateLimitPerMinute)
	}
}

func TestLoadConfig_BoundsBackfillDays(t *testing.T) {
	for value, want := range map[string]int{"-3": 0, "0": 0, "30": 30, "5000": 366} {
		viper.Reset()
		setEnvWithCleanup(t, "EXCHANGE_RATE_BACKFILL_DAYS", value)

		cfg, err := LoadConfig(t.TempDir())
		if err != nil {
			t.Fatalf("LoadConfig returned error: %v", err)
		}
		if cfg.ExchangeRateBackfillDays != want {
			t.Fatalf("EXCHANGE_RATE_BACKFILL_DAYS=%s: expected %d, got %d", value, want, cfg.ExchangeRateBackfillDays)
		}
	}
	viper.Reset()
}

func TestLoadConfig_ReadsDotEnvFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "JWT_SECRET")
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("JWT_SECRET=from-file\n"), 0o600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.JWTSecret != "from-file" {
		t.Fatalf("expected JWT secret from .env, got %q", cfg.JWTSecret)
	}
}

func TestAllowedOrigins_SplitsAndTrims(t *testing.T) {
	cfg := Config{CORSAllowedOrigins: " https://app.example.com, ,http://localhost:3000"}

	origins := cfg.AllowedOrigins()

	if len(origins) != 2 || origins[0] != "https://app.example.com" || origins[1] != "http://localhost:3000" {
		t.Fatalf("unexpected origins %v", origins)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
		}
	})
}
