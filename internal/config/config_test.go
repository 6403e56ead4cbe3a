package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "test-secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.HTTPAddress != "0.0.0.0:8080" {
		t.Fatalf("unexpected http address %q", cfg.HTTPAddress)
	}
	if cfg.DatabasePath != "phrasal.db" {
		t.Fatalf("unexpected database path %q", cfg.DatabasePath)
	}
	if cfg.TokenTTL != 30*24*time.Hour {
		t.Fatalf("unexpected token ttl %v", cfg.TokenTTL)
	}
	if cfg.RedisAddress != "" {
		t.Fatalf("redis should default to disabled, got %q", cfg.RedisAddress)
	}
	if cfg.ContributionTTLHours != 48 || cfg.ContributionMaxUses != 3 {
		t.Fatalf("unexpected contribution defaults: %d hours, %d uses",
			cfg.ContributionTTLHours, cfg.ContributionMaxUses)
	}
	if cfg.SweepSchedule != "*/15 * * * *" {
		t.Fatalf("unexpected sweep schedule %q", cfg.SweepSchedule)
	}
}

func TestLoadRequiresSigningSecret(t *testing.T) {
	configViper := NewViper()

	if _, err := Load(configViper); err == nil || !strings.Contains(err.Error(), "signing_secret") {
		t.Fatalf("expected signing secret error, got %v", err)
	}
}

func TestLoadRejectsNonPositiveBounds(t *testing.T) {
	cases := map[string]interface{}{
		"auth.token_ttl_minutes": 0,
		"contribution.ttl_hours": -1,
		"contribution.max_uses":  0,
	}
	for key, value := range cases {
		configViper := NewViper()
		configViper.Set("auth.signing_secret", "test-secret")
		configViper.Set(key, value)
		if _, err := Load(configViper); err == nil {
			t.Fatalf("expected validation error for %s", key)
		}
	}
}

func TestLoadHonorsOverrides(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "test-secret")
	configViper.Set("http.address", "127.0.0.1:9999")
	configViper.Set("redis.address", "localhost:6379")
	configViper.Set("contribution.base_url", "https://example.test/share")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.HTTPAddress != "127.0.0.1:9999" {
		t.Fatalf("override ignored: %q", cfg.HTTPAddress)
	}
	if cfg.RedisAddress != "localhost:6379" {
		t.Fatalf("override ignored: %q", cfg.RedisAddress)
	}
	if cfg.ContributionBaseURL != "https://example.test/share" {
		t.Fatalf("override ignored: %q", cfg.ContributionBaseURL)
	}
}
