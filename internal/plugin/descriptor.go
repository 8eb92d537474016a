// Package plugin loads extension manifests and resolves the deterministic
// order in which enabled extensions initialize.
package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/sitebuilder/internal/version"
)

// ManifestFile is the per-plugin metadata file name.
const ManifestFile = "plugin.yaml"

// EntryFile is the script executed when a plugin loads.
const EntryFile = "main.lua"

// Descriptor is one extension's declared metadata.
type Descriptor struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version,omitempty"`
	Description string `yaml:"description,omitempty"`
	Author      string `yaml:"author,omitempty"`
	Homepage    string `yaml:"homepage,omitempty"`

	// MinEngine is the lowest engine version the plugin supports.
	MinEngine string `yaml:"min_engine,omitempty"`

	// After lists plugins that must initialize before this one.
	After []string `yaml:"after,omitempty"`

	// Conflicts lists plugins that must not be enabled together with this one.
	Conflicts []string `yaml:"conflicts,omitempty"`
}

// Validate checks the descriptor for structural problems.
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("plugin manifest is missing a name")
	}
	if d.MinEngine != "" && version.Version != "unknown" && version.Less(version.Version, d.MinEngine) {
		return fmt.Errorf("plugin %s requires engine >= %s, running %s", d.Name, d.MinEngine, version.Version)
	}
	return nil
}

// LoadDescriptor reads and validates one plugin.yaml.
func LoadDescriptor(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plugin manifest %s: %w", path, err)
	}
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse plugin manifest %s: %w", path, err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// LoadEnabled loads the descriptors of all enabled plugins from pluginsDir.
func LoadEnabled(pluginsDir string, enabled []string) (map[string]*Descriptor, error) {
	descriptors := make(map[string]*Descriptor, len(enabled))
	for _, name := range enabled {
		manifest := filepath.Join(pluginsDir, name, ManifestFile)
		d, err := LoadDescriptor(manifest)
		if err != nil {
			return nil, fmt.Errorf("plugin %s: %w", name, err)
		}
		descriptors[name] = d
	}
	return descriptors, nil
}

// ListAvailable returns the names of all plugin directories carrying a
// manifest, sorted.
func ListAvailable(pluginsDir string) ([]string, error) {
	entries, err := os.ReadDir(pluginsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read plugins dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(pluginsDir, entry.Name(), ManifestFile)); err == nil {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
