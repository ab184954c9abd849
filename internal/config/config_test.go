package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	def := DefaultConfig()
	if cfg.Proxy.Listen != def.Proxy.Listen || !cfg.Scrub {
		t.Errorf("got %+v, want defaults", cfg)
	}
}

func TestLoadOverridesOnlySpecifiedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
proxy:
  upstream: https://api.openai.com
store_dir: /tmp/tapes
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Proxy.Upstream != "https://api.openai.com" {
		t.Errorf("upstream %q", cfg.Proxy.Upstream)
	}
	if cfg.StoreDir != "/tmp/tapes" {
		t.Errorf("store_dir %q", cfg.StoreDir)
	}
	// Unspecified fields keep their defaults.
	if cfg.Proxy.Listen != DefaultConfig().Proxy.Listen {
		t.Errorf("listen %q lost its default", cfg.Proxy.Listen)
	}
	if !cfg.Scrub {
		t.Error("scrub default lost")
	}
}

func TestLoadScrubOffIsExplicit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("scrub: false\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Scrub {
		t.Error("scrub: false not honored")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("proxy: [broken"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}
