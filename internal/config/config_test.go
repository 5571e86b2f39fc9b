package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bigwindlee/mysqlproxy/internal/backend"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "proxy.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
backends:
  - name: primary
    host: 10.0.0.1
    port: 3306
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen.MySQLAddr != "0.0.0.0:3307" {
		t.Errorf("expected default mysql_addr, got %q", cfg.Listen.MySQLAddr)
	}
	if cfg.Pool.MinIdleConnections != 2 {
		t.Errorf("expected default min_idle_connections 2, got %d", cfg.Pool.MinIdleConnections)
	}
	if cfg.Backends[0].ParseRole() != backend.ReadWrite {
		t.Error("expected default role read-write")
	}
}

func TestLoadEnvVarSubstitution(t *testing.T) {
	os.Setenv("MYSQLPROXY_TEST_HOST", "10.9.9.9")
	defer os.Unsetenv("MYSQLPROXY_TEST_HOST")

	path := writeTempConfig(t, `
backends:
  - name: primary
    host: ${MYSQLPROXY_TEST_HOST}
    port: 3306
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backends[0].Host != "10.9.9.9" {
		t.Errorf("expected substituted host, got %q", cfg.Backends[0].Host)
	}
}

func TestValidateRejectsDuplicateBackendNames(t *testing.T) {
	path := writeTempConfig(t, `
backends:
  - name: primary
    host: 10.0.0.1
    port: 3306
  - name: primary
    host: 10.0.0.2
    port: 3306
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected duplicate-name validation error")
	}
}

func TestValidateRejectsUnknownRole(t *testing.T) {
	path := writeTempConfig(t, `
backends:
  - name: primary
    host: 10.0.0.1
    port: 3306
    role: archive
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected unknown-role validation error")
	}
}

func TestReadOnlyRoleParsed(t *testing.T) {
	b := BackendConfig{Name: "replica", Host: "h", Port: 1, Role: "read-only"}
	if b.ParseRole() != backend.ReadOnly {
		t.Fatal("expected read-only role to parse as backend.ReadOnly")
	}
	addr := b.Address()
	if addr.Name != "replica" || addr.Host != "h" || addr.Port != 1 {
		t.Fatalf("unexpected address: %+v", addr)
	}
}
