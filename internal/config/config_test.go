package config

import (
	"testing"
	"time"
)

func TestLoad_AppEnvValidation(t *testing.T) {
	t.Setenv("APP_ENV", "invalid")
	t.Setenv("DATABASE_URL", "postgres://localhost/brain")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid APP_ENV")
	}
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("DATABASE_URL", "postgres://localhost/brain")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected HTTPAddr: %q", cfg.HTTPAddr)
	}
	if cfg.MatchModel != MatchModelPoisson {
		t.Fatalf("unexpected MatchModel: %q", cfg.MatchModel)
	}
	if cfg.SimWriteRetries != 3 {
		t.Fatalf("unexpected SimWriteRetries: %d", cfg.SimWriteRetries)
	}
	if cfg.SimWriteBackoff != 500*time.Millisecond {
		t.Fatalf("unexpected SimWriteBackoff: %s", cfg.SimWriteBackoff)
	}
	if cfg.SimWriteThrottle != 100*time.Millisecond {
		t.Fatalf("unexpected SimWriteThrottle: %s", cfg.SimWriteThrottle)
	}
	if !cfg.CacheEnabled {
		t.Fatalf("expected CacheEnabled=true by default")
	}
	if cfg.IsProduction() {
		t.Fatalf("dev env reported as production")
	}
}

func TestLoad_MatchModelValidation(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("DATABASE_URL", "postgres://localhost/brain")
	t.Setenv("MATCH_MODEL", "dice")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown MATCH_MODEL")
	}
}

func TestLoad_ProdRequiresSecrets(t *testing.T) {
	t.Setenv("APP_ENV", EnvProd)
	t.Setenv("DATABASE_URL", "postgres://localhost/brain")
	t.Setenv("AUTH_JWT_SECRET", "")
	t.Setenv("BRAIN_HMAC_SECRET", "")
	t.Setenv("CRON_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when production is missing auth secrets")
	}

	t.Setenv("AUTH_JWT_SECRET", "jwt-secret")
	t.Setenv("BRAIN_HMAC_SECRET", "hmac-secret")
	t.Setenv("CRON_SECRET", "cron-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.IsProduction() {
		t.Fatalf("expected production env")
	}
}

func TestLoad_CORSList(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("DATABASE_URL", "postgres://localhost/brain")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("unexpected origins: %v", cfg.CORSAllowedOrigins)
	}
	if cfg.CORSAllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("unexpected second origin: %q", cfg.CORSAllowedOrigins[1])
	}
}
