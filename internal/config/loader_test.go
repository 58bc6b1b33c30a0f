package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.ListenAddr != Default().ListenAddr {
		t.Errorf("ListenAddr = %q, want default %q", cfg.ListenAddr, Default().ListenAddr)
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "agentfsm.yaml", `
listen_addr: ":9090"
log_level: debug
log_format: json
metrics_enabled: false
shutdown_timeout: 5s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want :9090", cfg.ListenAddr)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.MetricsEnabled {
		t.Error("MetricsEnabled = true, want false")
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 5s", cfg.ShutdownTimeout)
	}
}

func TestLoad_InvalidLogLevelRejected(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "agentfsm.yaml", `log_level: verbose`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an invalid log_level")
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("AGENTFSM_TEST_ADDR", ":7070")
	dir := t.TempDir()
	path := writeFile(t, dir, "agentfsm.yaml", `listen_addr: "${AGENTFSM_TEST_ADDR}"`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ListenAddr != ":7070" {
		t.Errorf("ListenAddr = %q, want :7070", cfg.ListenAddr)
	}
}

func TestLoad_ResolvesIncludeDirective(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
log_level: warn
log_format: json
`)
	path := writeFile(t, dir, "agentfsm.yaml", `
$include: base.yaml
listen_addr: ":6060"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn (from include)", cfg.LogLevel)
	}
	if cfg.ListenAddr != ":6060" {
		t.Errorf("ListenAddr = %q, want :6060 (override)", cfg.ListenAddr)
	}
}

func TestLoadRaw_DetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")
	if err := os.WriteFile(a, []byte("$include: b.yaml\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("$include: a.yaml\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadRaw(a); err == nil {
		t.Fatal("expected a cycle-detection error")
	}
}

func TestLoad_JSON5Config(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "agentfsm.json5", `{
  // trailing commas and comments are fine in json5
  listen_addr: ":5050",
  log_level: "error",
  log_format: "text",
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ListenAddr != ":5050" {
		t.Errorf("ListenAddr = %q, want :5050", cfg.ListenAddr)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want error", cfg.LogLevel)
	}
}

func TestDefault_PassesValidate(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v, want nil", err)
	}
}
