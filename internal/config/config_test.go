package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("BUSINESS_TIMEZONE", "")
	t.Setenv("SLOT_DURATION", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.Engine.BusinessTimezone != "America/Sao_Paulo" {
		t.Fatalf("expected default timezone, got %s", cfg.Engine.BusinessTimezone)
	}
	if cfg.Engine.SlotDuration != 30*time.Minute {
		t.Fatalf("expected 30m slots, got %s", cfg.Engine.SlotDuration)
	}
	if cfg.Engine.CacheTTL != 60*time.Second {
		t.Fatalf("expected 60s cache ttl, got %s", cfg.Engine.CacheTTL)
	}
	if cfg.NotifyWorkers != 4 {
		t.Fatalf("expected 4 notify workers, got %d", cfg.NotifyWorkers)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("BUSINESS_TIMEZONE", "America/New_York")
	t.Setenv("SLOT_DURATION", "45m")
	t.Setenv("STANDARD_POINTS_COST", "12")
	t.Setenv("AVAILABILITY_CACHE_TTL", "2m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("BOOK_RATE_LIMIT", "0.5")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.Engine.BusinessTimezone != "America/New_York" {
		t.Fatalf("expected timezone override, got %s", cfg.Engine.BusinessTimezone)
	}
	if cfg.Engine.SlotDuration != 45*time.Minute {
		t.Fatalf("expected slot override, got %s", cfg.Engine.SlotDuration)
	}
	if cfg.Engine.StandardPointsCost != 12 {
		t.Fatalf("expected points override, got %d", cfg.Engine.StandardPointsCost)
	}
	if cfg.Engine.CacheTTL != 2*time.Minute {
		t.Fatalf("expected ttl override, got %s", cfg.Engine.CacheTTL)
	}
	if cfg.BookRateLimit != 0.5 {
		t.Fatalf("expected rate override, got %v", cfg.BookRateLimit)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected cors origins %v", cfg.CORSAllowedOrigins)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRejectsBadEngineSettings(t *testing.T) {
	settings := DefaultEngineSettings()
	settings.BusinessTimezone = "Mars/Olympus"
	settings.SlotDuration = 0
	if err := settings.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestValidateRequiresDatabaseUnlessMemory(t *testing.T) {
	cfg := &Config{NotifyWorkers: 1, NotifyQueueSize: 1, Engine: DefaultEngineSettings()}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing DATABASE_URL error")
	}
	cfg.UseMemoryStore = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("memory store should not need a database: %v", err)
	}
}

func TestPointsAndPriceByKind(t *testing.T) {
	s := DefaultEngineSettings()
	if got := s.PointsFor("TRIAL_FREE"); got != 0 {
		t.Fatalf("trial should be free, got %d", got)
	}
	if got := s.PointsFor("STANDARD"); got != 10 {
		t.Fatalf("standard cost mismatch: %d", got)
	}
	if got := s.PointsFor("DISCOUNT_SECOND"); got != 5 {
		t.Fatalf("discount cost mismatch: %d", got)
	}
	if got := s.PriceCentsFor("DISCOUNT_SECOND"); got != 2500 {
		t.Fatalf("discount price mismatch: %d", got)
	}
}
