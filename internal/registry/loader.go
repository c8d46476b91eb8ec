// Package registry loads the static model registry: which model identifiers
// clients may request and which are excluded. Loaded once at process start,
// read-only afterwards.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"browserd/pkg/types"
)

// registryFile is the on-disk shape. Excluded ids override the per-model
// enabled flag; the original console proxy keeps the two lists separate and
// so do we.
type registryFile struct {
	Models   []types.Model `json:"models" yaml:"models" toml:"models"`
	Excluded []string      `json:"excluded" yaml:"excluded" toml:"excluded"`
}

// Registry is the immutable runtime view of the model list.
type Registry struct {
	models []types.Model
	byID   map[string]types.Model
}

// Load reads a registry file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (*Registry, error) {
	if path == "" {
		return nil, fmt.Errorf("empty registry path")
	}
	expanded, err := expandHome(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(expanded)
	if err != nil {
		return nil, err
	}
	var f registryFile
	switch ext := strings.ToLower(filepath.Ext(expanded)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &f); err != nil {
			return nil, err
		}
	case ".json":
		if err := json.Unmarshal(b, &f); err != nil {
			return nil, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &f); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported registry extension: %s", ext)
	}

	excluded := make(map[string]bool, len(f.Excluded))
	for _, id := range f.Excluded {
		excluded[types.NormalizeModelID(id)] = true
	}
	models := make([]types.Model, 0, len(f.Models))
	for _, m := range f.Models {
		m.ID = types.NormalizeModelID(m.ID)
		if m.ID == "" {
			continue
		}
		if excluded[m.ID] {
			m.Enabled = false
		}
		models = append(models, m)
	}
	return New(models), nil
}

// New builds a Registry from an in-memory model list.
func New(models []types.Model) *Registry {
	byID := make(map[string]types.Model, len(models))
	out := make([]types.Model, 0, len(models))
	for _, m := range models {
		if _, dup := byID[m.ID]; dup {
			continue
		}
		byID[m.ID] = m
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return &Registry{models: out, byID: byID}
}

// Lookup returns the model with the given (already normalized) id.
func (r *Registry) Lookup(id string) (types.Model, bool) {
	m, ok := r.byID[id]
	return m, ok
}

// Allowed reports whether the id names an enabled model.
func (r *Registry) Allowed(id string) bool {
	m, ok := r.byID[id]
	return ok && m.Enabled
}

// Available returns the enabled models; a copy, callers may not mutate the
// registry.
func (r *Registry) Available() []types.Model {
	out := make([]types.Model, 0, len(r.models))
	for _, m := range r.models {
		if m.Enabled {
			out = append(out, m)
		}
	}
	return out
}

// expandHome expands a leading '~' to the user's home directory.
func expandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}
