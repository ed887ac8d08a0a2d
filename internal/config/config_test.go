package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	c := Config{
		App:     AppConfig{Env: "local"},
		Backend: BackendConfig{AccessToken: "tok"},
		Auth:    AuthConfig{JWTSecret: "secret"},
	}
	c.ApplyDefaults()
	return c
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"APP_ENV", "AGENT_JWT_SECRET", "EDUTALKS_ACCESS_TOKEN"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %q", want, err)
		}
	}
}

func TestApplyDefaults(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.Backend.BaseURL != "http://localhost:3000" || c.Backend.Timeout != time.Minute {
		t.Fatalf("unexpected backend defaults: %+v", c.Backend)
	}
	if c.Calls.RingTimeout != 30*time.Second || c.Calls.PollInterval != 10*time.Second {
		t.Fatalf("unexpected call defaults: %+v", c.Calls)
	}
	if c.PostgresEnabled() || c.RedisEnabled() {
		t.Fatalf("storage should be disabled by default")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validConfig()
	c.App.Env = "production"
	c.Auth.JWTIssuer, c.Auth.JWTAudience = "iss", "aud"
	c.DB = DBConfig{Host: "localhost", Port: 5432, User: "postgres", Name: "edutalks"}
	c.ApplyDefaults()
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestApplyDefaults_LocalSSLMode(t *testing.T) {
	c := validConfig()
	c.DB = DBConfig{Host: "localhost", Port: 5432, User: "postgres", Name: "edutalks"}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
}

func TestValidate_RedisNeedsLearner(t *testing.T) {
	c := validConfig()
	c.Redis = RedisConfig{Host: "localhost", Port: 6379}
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "LEARNER_ID") {
		t.Fatalf("expected LEARNER_ID error, got %v", err)
	}
}

func TestValidate_SignalURLScheme(t *testing.T) {
	c := validConfig()
	c.Backend.SignalURL = "http://localhost:3000/ws"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected scheme error")
	}
	c.Backend.SignalURL = "wss://api.edutalks.example/ws/calls"
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoad_ReadsEnvFileWithoutOverriding(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.env")
	body := "APP_ENV=dev\nAGENT_JWT_SECRET=from-file\nEDUTALKS_ACCESS_TOKEN=file-token\nRING_TIMEOUT=45s\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("ENV_FILE", path)
	t.Setenv("AGENT_JWT_SECRET", "from-env")
	// registered so the values loaded from the file are unset after the test
	t.Setenv("APP_ENV", "")
	t.Setenv("EDUTALKS_ACCESS_TOKEN", "")
	t.Setenv("RING_TIMEOUT", "")
	os.Unsetenv("APP_ENV")
	os.Unsetenv("EDUTALKS_ACCESS_TOKEN")
	os.Unsetenv("RING_TIMEOUT")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Auth.JWTSecret != "from-env" {
		t.Fatalf("process env must win, got %q", c.Auth.JWTSecret)
	}
	if c.App.Env != "dev" || c.Calls.RingTimeout != 45*time.Second {
		t.Fatalf("expected values from file, got %+v / %v", c.App, c.Calls.RingTimeout)
	}
}

func TestLoad_RejectsBadDuration(t *testing.T) {
	t.Setenv("ENV_FILE", "")
	t.Setenv("APP_ENV", "local")
	t.Setenv("AGENT_JWT_SECRET", "s")
	t.Setenv("EDUTALKS_ACCESS_TOKEN", "t")
	t.Setenv("RING_TIMEOUT", "thirty")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "RING_TIMEOUT") {
		t.Fatalf("expected RING_TIMEOUT error, got %v", err)
	}
}
