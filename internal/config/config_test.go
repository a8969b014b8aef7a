package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("MP_FIREBASE_PROJECT_ID", "mp-test")
	t.Setenv("MP_PAYMENT_BASE_URL", "http://payments.local")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Matching.RadiusKm != 3.0 || cfg.Matching.TickSeconds != 3 {
		t.Errorf("matching = %+v", cfg.Matching)
	}
	if cfg.LockTTL() != 30*time.Second {
		t.Errorf("lock ttl = %v", cfg.LockTTL())
	}
	if cfg.Log.Level != "info" || cfg.Log.Dev {
		t.Errorf("log = %+v", cfg.Log)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("MP_HTTP_ADDR", ":9090")
	t.Setenv("MP_MATCH_RADIUS_KM", "7.5")
	t.Setenv("MP_DB_MEMORY", "true")
	t.Setenv("MP_PAYMENT_TIMEOUT_SECONDS", "4")
	t.Setenv("MP_REDIS_DB", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":9090" || cfg.Matching.RadiusKm != 7.5 || !cfg.DB.Memory {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.PaymentTimeout() != 4*time.Second {
		t.Errorf("payment timeout = %v", cfg.PaymentTimeout())
	}
	if cfg.Redis.DB != 0 {
		t.Errorf("bad int should fall back to default, got %d", cfg.Redis.DB)
	}
}

func TestLoad_YAMLFileThenEnv(t *testing.T) {
	setRequired(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "marketpace.yaml")
	body := []byte("http:\n  addr: \":7070\"\nmatching:\n  radius_km: 5\nlog:\n  level: debug\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MP_CONFIG_FILE", path)
	t.Setenv("MP_LOG_LEVEL", "warn")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":7070" || cfg.Matching.RadiusKm != 5 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("env should win over file, got %q", cfg.Log.Level)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("defaults lost: %q", cfg.Redis.Addr)
	}
}

func TestLoad_Validation(t *testing.T) {
	t.Setenv("MP_FIREBASE_PROJECT_ID", "")
	t.Setenv("MP_PAYMENT_BASE_URL", "http://payments.local")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without firebase project")
	}

	setRequired(t)
	t.Setenv("MP_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
