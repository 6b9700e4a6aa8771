package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("WHOLESTOCK_APP_ENV", "dev")
	t.Setenv("WHOLESTOCK_APP_PORT", "8080")
	t.Setenv("WHOLESTOCK_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("WHOLESTOCK_JWT_SECRET", "test-secret")
	t.Setenv("WHOLESTOCK_JWT_ISSUER", "wholestock-test")
}

func TestLoadWithDSN(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("WHOLESTOCK_DB_DSN", "postgres://ws:pw@localhost:5432/wholestock?sslmode=disable")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.DB.DSN != "postgres://ws:pw@localhost:5432/wholestock?sslmode=disable" {
		t.Fatalf("unexpected DSN: %s", cfg.DB.DSN)
	}
	if !cfg.App.IsDev() {
		t.Fatal("expected dev environment")
	}
	if cfg.Engine.ReservationTTL != 30*time.Minute {
		t.Fatalf("unexpected reservation TTL default: %s", cfg.Engine.ReservationTTL)
	}
	if cfg.Engine.BalanceDueDays != 14 {
		t.Fatalf("unexpected balance due days default: %d", cfg.Engine.BalanceDueDays)
	}
}

func TestLoadAssemblesLegacyDSN(t *testing.T) {
	setRequiredEnv(t)
	os.Unsetenv("WHOLESTOCK_DB_DSN")
	t.Setenv("WHOLESTOCK_DB_HOST", "db.internal")
	t.Setenv("WHOLESTOCK_DB_USER", "ws")
	t.Setenv("WHOLESTOCK_DB_PASSWORD", "p@ss word")
	t.Setenv("WHOLESTOCK_DB_NAME", "wholestock")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !strings.HasPrefix(cfg.DB.DSN, "postgres://ws:") {
		t.Fatalf("unexpected DSN user info: %s", cfg.DB.DSN)
	}
	if !strings.Contains(cfg.DB.DSN, "db.internal:5432/wholestock") {
		t.Fatalf("unexpected DSN host/path: %s", cfg.DB.DSN)
	}
	if !strings.Contains(cfg.DB.DSN, "sslmode=disable") {
		t.Fatalf("expected sslmode in DSN: %s", cfg.DB.DSN)
	}
}

func TestLoadMissingLegacyPartsFails(t *testing.T) {
	setRequiredEnv(t)
	os.Unsetenv("WHOLESTOCK_DB_DSN")
	t.Setenv("WHOLESTOCK_DB_HOST", "db.internal")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when DSN and legacy vars are both incomplete")
	}
	if !strings.Contains(err.Error(), EnvDBDSN) {
		t.Fatalf("error should name %s: %v", EnvDBDSN, err)
	}
}
