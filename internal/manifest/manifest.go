// Package manifest loads the core asset manifest: the fixed list of
// root-relative paths primed into the cache when a new deployment
// generation installs.
package manifest

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest is the list of core assets to prime at install time.
type Manifest struct {
	Assets []string `yaml:"assets"`
}

// Default returns the built-in manifest covering the application shell.
func Default() Manifest {
	return Manifest{
		Assets: []string{
			"/",
			"/manifest.json",
			"/icons/icon-192x192.png",
			"/icons/icon-512x512.png",
		},
	}
}

// Load reads a manifest from a YAML file and validates it.
func Load(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

// Validate checks that every asset path is root-relative.
func (m Manifest) Validate() error {
	if len(m.Assets) == 0 {
		return fmt.Errorf("no assets listed")
	}
	for _, asset := range m.Assets {
		if asset == "" {
			return fmt.Errorf("empty asset path")
		}
		if !strings.HasPrefix(asset, "/") {
			return fmt.Errorf("asset path %q is not root-relative", asset)
		}
	}
	return nil
}
