package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	p := writeFile(t, t.TempDir(), "cfg.yaml", `
addr: ":9090"
registry_path: /etc/browserd/models.yaml
default_model: gemini-2.5-pro
max_queue_depth: 8
stream_timeout_sec: 120
console_url: https://console.example.com/app
headful: true
cors_enabled: true
cors_origins:
  - https://chat.example.com
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.DefaultModel != "gemini-2.5-pro" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.MaxQueueDepth != 8 || cfg.StreamTimeoutSec != 120 {
		t.Fatalf("numeric fields not loaded: %+v", cfg)
	}
	if !cfg.Headful || !cfg.CORSEnabled || len(cfg.CORSOrigins) != 1 {
		t.Fatalf("bool/list fields not loaded: %+v", cfg)
	}
}

func TestLoadJSON(t *testing.T) {
	p := writeFile(t, t.TempDir(), "cfg.json", `{"addr": ":7070", "max_attempts": 5}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7070" || cfg.MaxAttempts != 5 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	p := writeFile(t, t.TempDir(), "cfg.toml", `
addr = ":6060"
silence_timeout_sec = 90
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":6060" || cfg.SilenceTimeoutSec != 90 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	p := writeFile(t, t.TempDir(), "cfg.ini", "addr=:1")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected error for unsupported extension")
	}
}

func TestLoadEmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
