// Package config loads the llmtape configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all configurable parameters. Command-line flags override
// anything set here.
type Config struct {
	// Proxy is the capture/replay proxy settings.
	Proxy ProxyConfig `yaml:"proxy"`

	// Viewer is the session browsing API settings.
	Viewer ViewerConfig `yaml:"viewer"`

	// StoreDir is where session files are kept. Empty selects
	// ~/.llmtape/sessions.
	StoreDir string `yaml:"store_dir"`

	// Scrub toggles secret redaction during capture. On by default;
	// turning it off is recorded in the session's metadata.
	Scrub bool `yaml:"scrub"`

	// ScrubConfig is the path to a scrub customization file. Empty
	// selects ~/.llmtape/scrub.yaml.
	ScrubConfig string `yaml:"scrub_config"`
}

// ProxyConfig configures the recording/replaying HTTP proxy.
type ProxyConfig struct {
	Listen   string `yaml:"listen"`
	Upstream string `yaml:"upstream"`
}

// ViewerConfig configures the session browsing API.
type ViewerConfig struct {
	Listen string `yaml:"listen"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Proxy: ProxyConfig{
			Listen:   "127.0.0.1:8384",
			Upstream: "https://api.anthropic.com",
		},
		Viewer: ViewerConfig{
			Listen: "127.0.0.1:8385",
		},
		Scrub: true,
	}
}

// Load reads configuration from a YAML file. Empty path falls back to
// LLMTAPE_CONFIG, then ~/.llmtape/config.yaml. Missing file returns
// defaults. Invalid YAML returns an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("LLMTAPE_CONFIG")
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return DefaultConfig(), nil
		}
		path = filepath.Join(home, ".llmtape", "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Start with defaults, YAML overwrites only specified fields
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// DefaultConfigYAML returns a commented YAML string for init.
func DefaultConfigYAML() string {
	return `# llmtape configuration
# Generated by: llmtape init
#
# Command-line flags override anything set here.

proxy:
  # Address the capture/replay proxy listens on.
  listen: 127.0.0.1:8384
  # Upstream LLM API base URL for capture mode.
  upstream: https://api.anthropic.com

viewer:
  # Address the session browsing API listens on.
  listen: 127.0.0.1:8385

# Where session files are kept. Defaults to ~/.llmtape/sessions.
#store_dir: /var/lib/llmtape/sessions

# Redact secrets before they reach disk. Turning this off marks the
# resulting sessions as unscrubbed.
scrub: true

# Extra scrub patterns. Defaults to ~/.llmtape/scrub.yaml.
#scrub_config: /etc/llmtape/scrub.yaml
`
}
