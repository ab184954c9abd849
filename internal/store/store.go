// Package store manages the on-disk collection of session files.
//
// Sessions live in a flat directory (default ~/.llmtape/sessions), one
// .tape file per recording plus an optional .meta.yaml sidecar. The
// store hands out paths and listings; the tape package owns the file
// contents.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// TapeExt is the session file extension.
	TapeExt = ".tape"

	// metaExt is the metadata sidecar extension.
	metaExt = ".meta.yaml"
)

// Store is a session directory.
type Store struct {
	dir string
}

// DefaultDir returns ~/.llmtape/sessions, or a relative fallback when
// the home directory cannot be determined.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".llmtape", "sessions")
	}
	return filepath.Join(home, ".llmtape", "sessions")
}

// Open ensures dir exists and returns a store over it. An empty dir
// selects the default location.
func Open(dir string) (*Store, error) {
	if dir == "" {
		dir = DefaultDir()
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store's directory.
func (s *Store) Dir() string {
	return s.dir
}

// NewSession allocates an id and path for a fresh recording. The id
// leads with a UTC timestamp so lexical order is chronological, and
// ends with a UUID so concurrent recorders never collide.
func (s *Store) NewSession(now time.Time) (id, path string) {
	id = now.UTC().Format("20060102T150405") + "-" + uuid.NewString()
	return id, filepath.Join(s.dir, id+TapeExt)
}

// Resolve maps a session id to its file path. Ids come from URLs and
// CLI arguments, so anything that could escape the store directory is
// rejected.
func (s *Store) Resolve(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return "", fmt.Errorf("invalid session id %q", id)
	}
	path := filepath.Join(s.dir, id+TapeExt)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("session %q not found", id)
		}
		return "", fmt.Errorf("stat session %q: %w", id, err)
	}
	return path, nil
}

// Info describes one stored session.
type Info struct {
	ID      string
	Path    string
	Size    int64
	ModTime time.Time
	Meta    *Meta // nil when no sidecar exists
}

// List returns all sessions in the store, newest first.
func (s *Store) List() ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read session dir: %w", err)
	}

	var infos []Info
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), TapeExt) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		id := strings.TrimSuffix(e.Name(), TapeExt)
		info := Info{
			ID:      id,
			Path:    filepath.Join(s.dir, e.Name()),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		}
		if meta, err := s.ReadMeta(id); err == nil {
			info.Meta = meta
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ID > infos[j].ID
	})
	return infos, nil
}

// Latest returns the most recent session, for "replay the last run"
// without naming it.
func (s *Store) Latest() (*Info, error) {
	infos, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("no sessions in %s", s.dir)
	}
	return &infos[0], nil
}

// Remove deletes a session file and its sidecar, if any.
func (s *Store) Remove(id string) error {
	path, err := s.Resolve(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove session %q: %w", id, err)
	}
	// Sidecar is best-effort.
	os.Remove(s.metaPath(id))
	return nil
}
