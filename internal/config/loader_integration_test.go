package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// These tests exercise the full LoadFrom pipeline:
// defaults < YAML < environment variables.

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFrom_FullHierarchy(t *testing.T) {
	yamlPath := writeYAML(t, `
server:
  port: "9090"
logging:
  level: "debug"
`)

	t.Setenv("TRACKFORGE_PORT", "7070")
	t.Setenv("TRACKFORGE_LOG_LEVEL", "warn")

	cfg, err := LoadFrom(yamlPath)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("env should override YAML port: got %s", cfg.Server.Port)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("env should override YAML level: got %s", cfg.Logging.Level)
	}
}

func TestLoadFrom_EnvInvalidValues(t *testing.T) {
	t.Setenv("TRACKFORGE_PG_MAX_CONNS", "many")
	t.Setenv("TRACKFORGE_UPLOAD_TIMEOUT", "soon")

	cfg, err := LoadFrom("/nonexistent.yaml")
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Postgres.MaxConns != 15 {
		t.Errorf("invalid int should keep default, got %d", cfg.Postgres.MaxConns)
	}
	if cfg.Attachments.UploadTimeout != 5*time.Minute {
		t.Errorf("invalid duration should keep default, got %v", cfg.Attachments.UploadTimeout)
	}
}

func TestLoadFrom_MalformedYAML(t *testing.T) {
	yamlPath := writeYAML(t, "server: [unterminated")
	if _, err := LoadFrom(yamlPath); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestLoadFrom_ValidationAfterOverride(t *testing.T) {
	yamlPath := writeYAML(t, `
attachments:
  max_concurrent: 0
`)
	if _, err := LoadFrom(yamlPath); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestReload_UpdatesFields(t *testing.T) {
	yamlPath := writeYAML(t, `
logging:
  level: "info"
attachments:
  max_concurrent: 2
`)

	cfg, err := LoadFrom(yamlPath)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	holder := NewHolder(cfg, yamlPath)

	if err := os.WriteFile(yamlPath, []byte(`
logging:
  level: "debug"
attachments:
  max_concurrent: 6
`), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := holder.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	got := holder.Get()
	if got.Logging.Level != "debug" {
		t.Errorf("after reload: got level %q, want debug", got.Logging.Level)
	}
	if got.Attachments.MaxConcurrent != 6 {
		t.Errorf("after reload: got max_concurrent %d, want 6", got.Attachments.MaxConcurrent)
	}
}

func TestReload_ValidationFails_PreservesOld(t *testing.T) {
	yamlPath := writeYAML(t, `
server:
  port: "9090"
`)

	cfg, err := LoadFrom(yamlPath)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	holder := NewHolder(cfg, yamlPath)

	if err := os.WriteFile(yamlPath, []byte(`
server:
  port: ""
`), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := holder.Reload(); err == nil {
		t.Fatal("expected reload to fail for invalid config")
	}
	if got := holder.Get(); got.Server.Port != "9090" {
		t.Errorf("old config should be preserved: got port %q, want 9090", got.Server.Port)
	}
}
