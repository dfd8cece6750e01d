package config

import (
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
	if cfg.HTTPAddress != "0.0.0.0:4000" {
		t.Fatalf("unexpected http address: %q", cfg.HTTPAddress)
	}
	if cfg.TokenTTL != 168*time.Hour {
		t.Fatalf("unexpected token ttl: %v", cfg.TokenTTL)
	}
	if cfg.TypingQuietPeriod != 2000*time.Millisecond {
		t.Fatalf("unexpected typing quiet period: %v", cfg.TypingQuietPeriod)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "http://localhost:3000" {
		t.Fatalf("unexpected allowed origins: %v", cfg.AllowedOrigins)
	}
}

func TestLoadSplitsAllowedOrigins(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "test-secret")
	configViper.Set("http.allowed_origins", "http://localhost:3000, https://notes.example.com ,")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://notes.example.com" {
		t.Fatalf("unexpected allowed origins: %v", cfg.AllowedOrigins)
	}
}

func TestLoadRequiresSigningSecret(t *testing.T) {
	configViper := NewViper()
	if _, err := Load(configViper); err == nil {
		t.Fatal("expected error for missing signing secret")
	}
}

func TestLoadRejectsNonPositiveQuietPeriod(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "test-secret")
	configViper.Set("realtime.typing_quiet_ms", 0)
	if _, err := Load(configViper); err == nil {
		t.Fatal("expected error for zero quiet period")
	}
}
