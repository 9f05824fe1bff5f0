package config

import (
	"testing"
	"time"
)

func TestLoadDefaultsWithMemoryDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("ENV", "development")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":5300" {
		t.Fatalf("expected default addr :5300, got %q", cfg.HTTP.Addr)
	}
	if cfg.Scheduler.Interval != time.Minute {
		t.Fatalf("expected 1m scheduler interval, got %s", cfg.Scheduler.Interval)
	}
	if !cfg.Scheduler.Enabled {
		t.Fatalf("expected scheduler enabled by default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("SCHEDULER_INTERVAL", "30s")
	t.Setenv("SCHEDULER_WORKERS", "4")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , https://b.example ,")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Scheduler.Interval != 30*time.Second {
		t.Fatalf("expected 30s, got %s", cfg.Scheduler.Interval)
	}
	if cfg.Scheduler.Workers != 4 {
		t.Fatalf("expected 4 workers, got %d", cfg.Scheduler.Workers)
	}
	if got := cfg.AllowedOrigins(); got != "https://a.example,https://b.example" {
		t.Fatalf("unexpected origins %q", got)
	}
}

func TestLoadRequiresDatabaseURLForPostgres(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(t.TempDir()); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}
}

func TestLoadRequiresGatewayTokenInProduction(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("ENV", "production")
	t.Setenv("GATEWAY_TOKEN", "")

	if _, err := Load(t.TempDir()); err == nil {
		t.Fatalf("expected error without gateway token in production")
	}
}
