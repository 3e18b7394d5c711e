package config

import (
	"strings"
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "local")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "comms")
	t.Setenv("DB_SSLMODE", "")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("JWT_SECRET", "unit-test-secret")
	t.Setenv("ENGINE_MODEL", "gpt-4o-mini")
	t.Setenv("ENGINE_API_KEY", "")
	t.Setenv("JWT_ACCESS_TTL", "")
	t.Setenv("ENGINE_CALL_TIMEOUT", "")
	t.Setenv("BATCH_DEBOUNCE_WINDOW", "")
	t.Setenv("BATCH_SWEEP_CLAIM_LIMIT", "")
	t.Setenv("BATCH_IMMEDIATE_MODE", "")
	t.Setenv("ENGINE_MAX_CONCURRENT_PER_COMPANY", "")
	t.Setenv("ENGINE_PROVIDER", "")
	t.Setenv("JWT_ISSUER", "")
	t.Setenv("JWT_AUDIENCE", "")
}

func TestLoadAppliesDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.DB.SSLMode != "disable" {
		t.Fatalf("expected local sslmode default, got %q", cfg.DB.SSLMode)
	}
	if cfg.Auth.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("expected default token ttl, got %v", cfg.Auth.AccessTokenTTL)
	}
	if cfg.Engine.Provider != "openai" {
		t.Fatalf("expected default provider, got %q", cfg.Engine.Provider)
	}
	if cfg.Engine.CallTimeout != 120*time.Second {
		t.Fatalf("expected default call timeout, got %v", cfg.Engine.CallTimeout)
	}
	if cfg.Batch.DebounceWindow != time.Minute {
		t.Fatalf("expected default debounce window, got %v", cfg.Batch.DebounceWindow)
	}
	if cfg.Batch.SweepClaimLimit != 20 {
		t.Fatalf("expected default claim limit, got %d", cfg.Batch.SweepClaimLimit)
	}
}

func TestLoadRejectsMissingRequired(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DB_HOST", "")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected validation failure")
	}
	for _, want := range []string{"DB_HOST", "JWT_SECRET"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error should mention %s: %v", want, err)
		}
	}
}

func TestLoadProductionRequiresExplicitPosture(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "production")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected production validation failure")
	}
	for _, want := range []string{"DB_SSLMODE", "JWT_ISSUER", "JWT_AUDIENCE", "ENGINE_API_KEY"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error should mention %s: %v", want, err)
		}
	}
}

func TestLoadRejectsBadPort(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_PORT", "not-a-port")

	if _, err := Load(); err == nil {
		t.Fatalf("expected parse failure")
	}
}

func TestPostgresDSNIncludesSSLMode(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DB_SSLMODE", "require")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !strings.Contains(cfg.PostgresDSN(), "sslmode=require") {
		t.Fatalf("dsn missing sslmode: %q", cfg.PostgresDSN())
	}
}
