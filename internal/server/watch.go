package server

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher invalidates the server's session listing when tape files
// appear, grow, or vanish in the store directory.
type Watcher struct {
	watcher *fsnotify.Watcher
	server  *Server
}

// NewWatcher creates a file watcher over the store directory.
func NewWatcher(s *Server) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(s.store.Dir()); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", s.store.Dir(), err)
	}
	return &Watcher{watcher: watcher, server: s}, nil
}

// Run watches for session file changes. Blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	// Debounce: wait 500ms after last event before invalidating
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !isSessionFile(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Remove) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, w.server.Invalidate)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "file watcher error: %v\n", err)
		}
	}
}

// isSessionFile matches tape files and their metadata sidecars, skipping
// editor temp files and the like.
func isSessionFile(path string) bool {
	return strings.HasSuffix(path, ".tape") || strings.HasSuffix(path, ".meta.yaml")
}
