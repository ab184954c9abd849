package store

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Meta is the YAML sidecar written next to a sealed session. It holds
// what a listing needs without opening the tape itself; most
// importantly whether the recording was scrubbed, since an unscrubbed
// session must never be shared.
type Meta struct {
	Scrubbed  bool   `yaml:"scrubbed"`
	Records   int    `yaml:"records"`
	StartedAt uint64 `yaml:"started_at"`
	SealedAt  uint64 `yaml:"sealed_at"`
	Upstream  string `yaml:"upstream,omitempty"`
	Revision  string `yaml:"revision,omitempty"`
}

func (s *Store) metaPath(id string) string {
	return filepath.Join(s.dir, id+metaExt)
}

// WriteMeta writes the sidecar for a session.
func (s *Store) WriteMeta(id string, m *Meta) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal session meta: %w", err)
	}
	if err := os.WriteFile(s.metaPath(id), data, 0600); err != nil {
		return fmt.Errorf("write session meta: %w", err)
	}
	return nil
}

// ReadMeta reads the sidecar for a session. A missing sidecar is an
// error; callers treat it as "no metadata", not as a broken store.
func (s *Store) ReadMeta(id string) (*Meta, error) {
	data, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		return nil, fmt.Errorf("read session meta: %w", err)
	}
	var m Meta
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse session meta: %w", err)
	}
	return &m, nil
}
