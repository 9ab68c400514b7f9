package store

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config describes a store: its name, the engine it persists to and the
// collections it serves. Index declarations are carried for engines that can
// use them; the bundled engines ignore them.
type Config struct {
	Name        string             `yaml:"name"`
	URL         string             `yaml:"url"`
	Version     int                `yaml:"version"`
	Collections []CollectionConfig `yaml:"collections"`
}

// CollectionConfig declares one served class hierarchy.
type CollectionConfig struct {
	Class   string   `yaml:"class"`
	Indexes []string `yaml:"indexes"`
}

// LoadConfig reads a store configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.check()
}

func (cfg *Config) check() error {
	if cfg.Name == "" {
		return fmt.Errorf("store config needs a name")
	}
	if cfg.URL == "" {
		return fmt.Errorf("store config needs an engine url")
	}
	if cfg.Version < 0 {
		return fmt.Errorf("store version must not be negative")
	}
	return nil
}

// parseEngineURL splits an engine url of the form "type://location" into the
// engine type and its location.
func parseEngineURL(url string) (engineType, location string, err error) {
	engineType, location, ok := strings.Cut(url, "://")
	if !ok || engineType == "" {
		return "", "", fmt.Errorf("invalid engine url %q, expected type://location", url)
	}
	return engineType, location, nil
}
