package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
server:
  host: "0.0.0.0"
  port: 8080
database:
  host: "localhost"
  port: 5432
  name: "repguide"
  user: "repguide"
  password: "secret"
  sslmode: "disable"
auth:
  api_key: "test-key-123"
session:
  tick_ms: 100
  state_dir: "/var/lib/repguide"
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestLoadValid verifies that a well-formed YAML config loads with all fields populated.
func TestLoadValid(t *testing.T) {
	cfg, err := Load(writeTemp(t, validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("server.host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("server.port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Name != "repguide" {
		t.Errorf("database.name = %q, want %q", cfg.Database.Name, "repguide")
	}
	if cfg.Auth.APIKey != "test-key-123" {
		t.Errorf("auth.api_key = %q, want %q", cfg.Auth.APIKey, "test-key-123")
	}
	if got := cfg.Session.TickInterval(); got != 100*time.Millisecond {
		t.Errorf("session tick interval = %v, want 100ms", got)
	}
}

// TestEnvOverride verifies that REPGUIDE_ env vars take precedence over YAML values.
// This ensures production deployments can override config via environment.
func TestEnvOverride(t *testing.T) {
	t.Setenv("REPGUIDE_DB_HOST", "override-host")
	t.Setenv("REPGUIDE_DB_PORT", "9999")
	t.Setenv("REPGUIDE_SESSION_TICK_MS", "50")

	cfg, err := Load(writeTemp(t, validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Host != "override-host" {
		t.Errorf("database.host = %q, want %q", cfg.Database.Host, "override-host")
	}
	if cfg.Database.Port != 9999 {
		t.Errorf("database.port = %d, want 9999", cfg.Database.Port)
	}
	if cfg.Session.TickMS != 50 {
		t.Errorf("session.tick_ms = %d, want 50", cfg.Session.TickMS)
	}
	if cfg.Database.Name != "repguide" {
		t.Errorf("database.name = %q, want unchanged %q", cfg.Database.Name, "repguide")
	}
}

// TestValidationErrors verifies that missing required fields are rejected
// with a message naming the field.
func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{
			name:    "missing server port without tailscale",
			yaml:    strings.Replace(validYAML, "port: 8080", "port: 0", 1),
			wantMsg: "server.port",
		},
		{
			name:    "missing database host",
			yaml:    strings.Replace(validYAML, `host: "localhost"`, `host: ""`, 1),
			wantMsg: "database.host",
		},
		{
			name: "tailscale without hostname",
			yaml: validYAML + "\ntailscale:\n  enabled: true\n",
			wantMsg: "tailscale.hostname",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTemp(t, tt.yaml))
			if err == nil {
				t.Fatal("Load succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

// TestDSN verifies the PostgreSQL connection string format and the sslmode
// default.
func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, Name: "repguide", User: "u", Password: "p"}
	want := "postgres://u:p@db:5432/repguide?sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
