// Package config loads and validates the site configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the full site configuration.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Build    BuildConfig    `yaml:"build"`
	Theme    ThemeConfig    `yaml:"theme"`
	Plugins  PluginsConfig  `yaml:"plugins"`
	Events   EventsConfig   `yaml:"events"`
	Features FeaturesConfig `yaml:"features,omitempty"`
}

// SiteConfig describes the published site.
type SiteConfig struct {
	Title       string       `yaml:"title"`
	Subtitle    string       `yaml:"subtitle,omitempty"`
	Description string       `yaml:"description,omitempty"`
	URL         string       `yaml:"url"`
	Language    string       `yaml:"language,omitempty"`
	Author      AuthorConfig `yaml:"author,omitempty"`
}

// AuthorConfig identifies the site author.
type AuthorConfig struct {
	Name   string `yaml:"name,omitempty"`
	Email  string `yaml:"email,omitempty"`
	Avatar string `yaml:"avatar,omitempty"`
	Bio    string `yaml:"bio,omitempty"`
}

// BuildConfig controls build behavior and directory layout.
type BuildConfig struct {
	OutputDir    string `yaml:"output_dir"`
	CacheDir     string `yaml:"cache_dir"`
	Database     string `yaml:"database"`
	PostsPerPage int    `yaml:"posts_per_page"`
	Workers      int    `yaml:"workers,omitempty"` // 0 = GOMAXPROCS
}

// ThemeConfig selects the active theme.
type ThemeConfig struct {
	Active string         `yaml:"active"`
	Dir    string         `yaml:"dir,omitempty"`
	Params map[string]any `yaml:"params,omitempty"`
}

// PluginsConfig lists enabled extensions and per-extension settings.
type PluginsConfig struct {
	Dir      string                    `yaml:"dir,omitempty"`
	Enabled  []string                  `yaml:"enabled,omitempty"`
	Settings map[string]map[string]any `yaml:"settings,omitempty"`
}

// EventsConfig configures optional build event publishing.
type EventsConfig struct {
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// FeaturesConfig toggles optional output transformations.
type FeaturesConfig struct {
	ImageOptimize ImageOptimizeConfig `yaml:"image_optimize,omitempty"`
}

// ImageOptimizeConfig controls image-related HTML post-processing.
type ImageOptimizeConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load loads configuration from the specified file.
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists so ${VAR} expansion below can see it.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Note: .env file couldn't be loaded: %v\n", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Site.Title == "" {
		c.Site.Title = "My Site"
	}
	if c.Site.Language == "" {
		c.Site.Language = "en"
	}
	if c.Build.OutputDir == "" {
		c.Build.OutputDir = "public"
	}
	if c.Build.CacheDir == "" {
		c.Build.CacheDir = ".cache"
	}
	if c.Build.Database == "" {
		c.Build.Database = "site.db"
	}
	if c.Build.PostsPerPage <= 0 {
		c.Build.PostsPerPage = 10
	}
	if c.Theme.Active == "" {
		c.Theme.Active = "default"
	}
	if c.Theme.Dir == "" {
		c.Theme.Dir = "themes"
	}
	if c.Plugins.Dir == "" {
		c.Plugins.Dir = "plugins"
	}
	if c.Events.Subject == "" {
		c.Events.Subject = "sitebuilder.build.events"
	}
}

// Validate checks the configuration for structural problems.
func (c *Config) Validate() error {
	if c.Site.URL == "" {
		return fmt.Errorf("site.url is required")
	}
	if filepath.IsAbs(c.Build.OutputDir) && c.Build.OutputDir == "/" {
		return fmt.Errorf("build.output_dir must not be the filesystem root")
	}
	if c.Build.Workers < 0 {
		return fmt.Errorf("build.workers must not be negative")
	}
	for name := range c.Plugins.Settings {
		found := false
		for _, enabled := range c.Plugins.Enabled {
			if enabled == name {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("plugins.settings references %q which is not in plugins.enabled", name)
		}
	}
	return nil
}

// Init creates a new configuration file with example content.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := Config{
		Site: SiteConfig{
			Title:    "My Site",
			URL:      "https://example.com",
			Language: "en",
			Author:   AuthorConfig{Name: "Author"},
		},
		Build: BuildConfig{
			OutputDir:    "public",
			CacheDir:     ".cache",
			Database:     "site.db",
			PostsPerPage: 10,
		},
		Theme:   ThemeConfig{Active: "default"},
		Plugins: PluginsConfig{Enabled: []string{}},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return fmt.Errorf("failed to marshal example config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
