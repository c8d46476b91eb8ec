package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr         string `json:"addr" yaml:"addr" toml:"addr"`
	RegistryPath string `json:"registry_path" yaml:"registry_path" toml:"registry_path"`
	DefaultModel string `json:"default_model" yaml:"default_model" toml:"default_model"`

	// Admission and retry bounds.
	MaxQueueDepth int `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	MaxAttempts   int `json:"max_attempts" yaml:"max_attempts" toml:"max_attempts"`

	// Per-stage deadlines, seconds. The cancel timeout must be at least as
	// coarse as the browser automation's own timeout granularity.
	SwitchTimeoutSec  int `json:"switch_timeout_sec" yaml:"switch_timeout_sec" toml:"switch_timeout_sec"`
	SubmitTimeoutSec  int `json:"submit_timeout_sec" yaml:"submit_timeout_sec" toml:"submit_timeout_sec"`
	StreamTimeoutSec  int `json:"stream_timeout_sec" yaml:"stream_timeout_sec" toml:"stream_timeout_sec"`
	SilenceTimeoutSec int `json:"silence_timeout_sec" yaml:"silence_timeout_sec" toml:"silence_timeout_sec"`
	CancelTimeoutSec  int `json:"cancel_timeout_sec" yaml:"cancel_timeout_sec" toml:"cancel_timeout_sec"`

	// Browser session.
	ConsoleURL    string `json:"console_url" yaml:"console_url" toml:"console_url"`
	AuthStatePath string `json:"auth_state_path" yaml:"auth_state_path" toml:"auth_state_path"`
	// Headful runs the browser with a visible window; default is headless.
	Headful bool `json:"headful" yaml:"headful" toml:"headful"`

	// CORS (opt-in).
	CORSEnabled bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
