package config

import (
	"os"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	os.Setenv("MONGODB_URI", "mongodb://localhost:27017/testdb")
	os.Setenv("MONGODB_DATABASE", "docsy_test")
	os.Setenv("REDIS_HOST", "localhost")
	os.Setenv("REDIS_PORT", "6379")
	os.Setenv("JWT_SECRET", "testsecret123456789012345678901234")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.MongoDB.URI == "" || cfg.Redis.Host == "" {
		t.Fatalf("unexpected empty config values: %+v", cfg)
	}
	if cfg.Invites.PerInviterHour != 10 || cfg.Invites.PerEmailPerDay != 3 {
		t.Fatalf("unexpected invite cap defaults: %+v", cfg.Invites)
	}
	if cfg.Invites.TTL.Hours() != 168 {
		t.Fatalf("expected 7 day invite TTL default, got %v", cfg.Invites.TTL)
	}
}
