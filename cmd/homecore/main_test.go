package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/homecore/internal/auth"
	"github.com/nerrad567/homecore/internal/infrastructure/mqtt"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// writeConfig writes a minimal config pointing at a temp database and the
// given broker port, and points HOMECORE_CONFIG at it.
func writeConfig(t *testing.T, brokerPort int) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
site:
  id: test-site
  timezone: UTC

database:
  path: "` + filepath.Join(dir, "test.db") + `"
  wal_mode: true
  busy_timeout: 5

mqtt:
  broker:
    host: "127.0.0.1"
    port: ` + strconv.Itoa(brokerPort) + `
    client_id: "homecore-test"
  qos: 1
  connect_timeout: 1

influxdb:
  enabled: false

logging:
  level: error
  format: text
  output: stdout

api:
  host: "127.0.0.1"
  port: 18080

security:
  jwt:
    secret: "` + testSecret + `"
    access_token_ttl: 30
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("HOMECORE_CONFIG", path)
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("HOMECORE_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestRun_BrokerUnreachableAbortsStartup(t *testing.T) {
	writeConfig(t, 19999)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := run(ctx)
	if !errors.Is(err, mqtt.ErrConnectionFailed) {
		t.Fatalf("run() error = %v, want ErrConnectionFailed", err)
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("HOMECORE_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("HOMECORE_CONFIG", "/etc/homecore/config.yaml")
	if got := getConfigPath(); got != "/etc/homecore/config.yaml" {
		t.Errorf("getConfigPath() = %q, want env override", got)
	}
}

func TestRunToken(t *testing.T) {
	writeConfig(t, 1883)

	var out bytes.Buffer
	if err := runToken([]string{"-subject", "alice", "-role", "admin"}, &out); err != nil {
		t.Fatalf("runToken() error = %v", err)
	}

	claims, err := auth.ParseToken(strings.TrimSpace(out.String()), testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "alice" || claims.Role != auth.RoleAdmin {
		t.Errorf("claims = %+v", claims)
	}
	ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time)
	if ttl != 30*time.Minute {
		t.Errorf("token lifetime = %v, want configured 30m", ttl)
	}
}

func TestRunToken_Errors(t *testing.T) {
	writeConfig(t, 1883)

	tests := []struct {
		name string
		args []string
	}{
		{"missing subject", nil},
		{"unknown role", []string{"-subject", "alice", "-role", "owner"}},
		{"bad flag", []string{"-nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := runToken(tt.args, &bytes.Buffer{}); err == nil {
				t.Error("runToken() succeeded, want error")
			}
		})
	}
}
