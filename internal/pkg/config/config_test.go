package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(context.Background(), envconfig.MapLookuper(map[string]string{
		"JWT_SECRET": "secret",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != "8080" || cfg.Env != "development" || cfg.IsProduction() {
		t.Errorf("unexpected server defaults: %+v", cfg)
	}
	if cfg.JWT.ExpiresIn != 720*time.Hour {
		t.Errorf("expected 720h session lifetime, got %s", cfg.JWT.ExpiresIn)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Errorf("unexpected CORS origins: %v", cfg.CORSOrigins)
	}
	if cfg.RateLimit.Max != 100 || cfg.RateLimit.Window != time.Hour {
		t.Errorf("unexpected rate limit: %+v", cfg.RateLimit)
	}
	if cfg.Mail.Timeout != 10*time.Second || cfg.Hashing.Workers != 4 {
		t.Errorf("unexpected mail/hashing defaults: %+v %+v", cfg.Mail, cfg.Hashing)
	}
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := load(context.Background(), envconfig.MapLookuper(map[string]string{
		"JWT_SECRET":     "secret",
		"JWT_EXPIRES_IN": "2h",
		"ENV":            "Production",
		"CORS_ORIGINS":   "https://a.example,https://b.example",
		"MAIL_PORT":      "2525",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.IsProduction() {
		t.Error("expected production")
	}
	if cfg.JWT.ExpiresIn != 2*time.Hour || cfg.Mail.Port != 2525 || len(cfg.CORSOrigins) != 2 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{}},
		{"bad duration", map[string]string{"JWT_SECRET": "s", "JWT_EXPIRES_IN": "soon"}},
		{"non-positive lifetime", map[string]string{"JWT_SECRET": "s", "JWT_EXPIRES_IN": "0s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := load(context.Background(), envconfig.MapLookuper(tt.env)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
