package config

import (
	"os"
	"testing"
	"time"

	"vereinskasse/backend/internal/money"
)

// unsetEnv clears keys for the test and restores them afterwards. An empty
// but present variable would override the default.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	unsetEnv(t, "PORT", "DATABASE_URL", "REDIS_ADDR", "REDIS_DB", "TIMEZONE", "TIP_BOOKING",
		"DAY_SUMMARY_TTL_SECONDS", "CLOSE_CRON", "WRITE_RATE_LIMIT_PER_MINUTE")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("expected :8080, got %s", cfg.Address())
	}
	if cfg.TipBooking != "at_commit" {
		t.Fatalf("expected at_commit by default, got %q", cfg.TipBooking)
	}
	if cfg.DaySummaryTTL() != 30*time.Second {
		t.Fatalf("expected 30s ttl, got %s", cfg.DaySummaryTTL())
	}
	if cfg.DatabaseURL != "" || cfg.RedisAddr != "" {
		t.Fatalf("expected memory store and noop cache defaults")
	}
	if cfg.CloseCron != "" {
		t.Fatalf("automatic close must be opt-in, got cron %q", cfg.CloseCron)
	}
}

func TestLoadRejectsUnknownTipBooking(t *testing.T) {
	unsetEnv(t, "TIMEZONE", "REDIS_DB", "DAY_SUMMARY_TTL_SECONDS")
	t.Setenv("TIP_BOOKING", "sometimes")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown TIP_BOOKING")
	}
}

func TestLoadNormalizesTipBookingAndTTL(t *testing.T) {
	unsetEnv(t, "TIMEZONE", "REDIS_DB")
	t.Setenv("TIP_BOOKING", " AT_CLOSE ")
	t.Setenv("DAY_SUMMARY_TTL_SECONDS", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TipBooking != "at_close" {
		t.Fatalf("expected at_close, got %q", cfg.TipBooking)
	}
	if cfg.DaySummaryTTLSeconds != 30 {
		t.Fatalf("expected ttl fallback 30, got %d", cfg.DaySummaryTTLSeconds)
	}
}

func TestLoadRejectsUnknownTimezone(t *testing.T) {
	unsetEnv(t, "TIP_BOOKING", "REDIS_DB", "DAY_SUMMARY_TTL_SECONDS")
	t.Setenv("TIMEZONE", "Mars/Olympus")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown TIMEZONE")
	}
}

func TestTillDenominations(t *testing.T) {
	unsetEnv(t, "TIP_BOOKING", "TIMEZONE", "REDIS_DB", "DAY_SUMMARY_TTL_SECONDS", "DENOMINATIONS")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	denoms, err := cfg.TillDenominations()
	if err != nil || len(denoms) != 11 || denoms[0] != 20000 {
		t.Fatalf("expected euro default, got %v (%v)", denoms, err)
	}

	t.Setenv("DENOMINATIONS", "0,50 20  5 2")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	denoms, err = cfg.TillDenominations()
	if err != nil {
		t.Fatalf("denominations: %v", err)
	}
	want := []money.Cents{2000, 500, 200, 50}
	if len(denoms) != len(want) {
		t.Fatalf("expected %v, got %v", want, denoms)
	}
	for i := range want {
		if denoms[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, denoms)
		}
	}

	t.Setenv("DENOMINATIONS", "20 zehn")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid DENOMINATIONS")
	}
}
