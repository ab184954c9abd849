package scrub

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg != nil {
		t.Error("missing file should yield nil config")
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scrub.yaml")
	data := `
extra_patterns:
  - name: slack_token
    regex: "xoxb-[0-9A-Za-z-]{20,}"
literals:
  - value: hunter2
    replacement: "[CLASSIFIED]"
redact_emails: false
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.ExtraPatterns) != 1 || cfg.ExtraPatterns[0].Name != "slack_token" {
		t.Errorf("extra patterns: %+v", cfg.ExtraPatterns)
	}
	if len(cfg.Literals) != 1 || cfg.Literals[0].Replacement != "[CLASSIFIED]" {
		t.Errorf("literals: %+v", cfg.Literals)
	}
	if cfg.RedactEmails == nil || *cfg.RedactEmails {
		t.Error("redact_emails: false not parsed")
	}
}

func TestLoadConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scrub.yaml")
	if err := os.WriteFile(path, []byte("extra_patterns: {not: [a, list"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected parse error")
	}
}
