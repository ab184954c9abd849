package scrub

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds operator-defined scrubbing customizations.
type Config struct {
	ExtraPatterns []ExtraPatternDef `yaml:"extra_patterns"`
	Literals      []LiteralDef      `yaml:"literals"`
	RedactEmails  *bool             `yaml:"redact_emails"`
}

// ExtraPatternDef defines a custom pattern from config. The name becomes
// the redaction marker: name "slack_token" yields [REDACTED_SLACK_TOKEN].
type ExtraPatternDef struct {
	Name  string `yaml:"name"`
	Regex string `yaml:"regex"`
}

// LiteralDef defines an exact string replacement from config.
type LiteralDef struct {
	Value       string `yaml:"value"`
	Replacement string `yaml:"replacement"`
}

// LoadConfig loads scrub config from the given path. If path is empty,
// tries LLMTAPE_SCRUB_CONFIG env var, then ~/.llmtape/scrub.yaml.
// Returns nil config (not error) if no file exists.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("LLMTAPE_SCRUB_CONFIG")
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, nil
		}
		path = filepath.Join(home, ".llmtape", "scrub.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read scrub config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse scrub config: %w", err)
	}

	return &cfg, nil
}

// compileExtra validates and compiles the config's extra patterns.
func (c *Config) compileExtra() ([]pattern, error) {
	var patterns []pattern
	for i, def := range c.ExtraPatterns {
		if def.Name == "" {
			return nil, fmt.Errorf("extra_patterns[%d]: name is required", i)
		}
		if def.Regex == "" {
			return nil, fmt.Errorf("extra_patterns[%d]: regex is required", i)
		}
		re, err := regexp.Compile(def.Regex)
		if err != nil {
			return nil, fmt.Errorf("extra_patterns[%d] %q: invalid regex: %w", i, def.Name, err)
		}
		patterns = append(patterns, pattern{
			re:          re,
			replacement: markerFor(def.Name),
		})
	}
	return patterns, nil
}

// literals converts config literal defs, defaulting the replacement.
func (c *Config) literals() []Literal {
	var out []Literal
	for _, def := range c.Literals {
		repl := def.Replacement
		if repl == "" {
			repl = "[REDACTED]"
		}
		out = append(out, Literal{Value: def.Value, Replacement: repl})
	}
	return out
}

var markerNameRe = regexp.MustCompile(`[^A-Z0-9]+`)

func markerFor(name string) string {
	upper := markerNameRe.ReplaceAllString(strings.ToUpper(name), "_")
	return "[REDACTED_" + upper + "]"
}
