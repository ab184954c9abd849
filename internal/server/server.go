// Package server is the viewer-facing HTTP API: session listings, raw
// tape downloads, and a live stream of in-progress captures.
package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ppiankov/llmtape/internal/live"
	"github.com/ppiankov/llmtape/internal/store"
	"github.com/ppiankov/llmtape/internal/tape"
)

// listingTTL bounds how stale the cached session listing can get when
// the directory watcher misses an event.
const listingTTL = 2 * time.Second

// Config holds viewer API configuration.
type Config struct {
	Listen string
}

// Server serves the viewer API over a session store. The broadcaster is
// optional; without it /api/live streams nothing but stays valid.
type Server struct {
	cfg   Config
	store *store.Store
	bcast *live.Broadcaster
	srv   *http.Server

	mu        sync.Mutex
	listing   []store.Info
	listedAt  time.Time
	listStale bool
}

// New creates the viewer API server.
func New(cfg Config, st *store.Store, bcast *live.Broadcaster) *Server {
	s := &Server{
		cfg:       cfg,
		store:     st,
		bcast:     bcast,
		listStale: true,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/sessions", s.handleSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleSessionRaw)
	mux.HandleFunc("GET /api/sessions/{id}/meta", s.handleSessionMeta)
	mux.HandleFunc("GET /api/live", s.handleLive)

	s.srv = &http.Server{
		Addr:    cfg.Listen,
		Handler: mux,
	}
	return s
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start begins listening. Blocks until context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}()

	err = s.srv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Invalidate marks the cached listing stale. Called by the directory
// watcher when session files change.
func (s *Server) Invalidate() {
	s.mu.Lock()
	s.listStale = true
	s.mu.Unlock()
}

// sessions returns the cached listing, refreshing it when stale.
func (s *Server) sessions() ([]store.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.listStale && time.Since(s.listedAt) < listingTTL {
		return s.listing, nil
	}
	infos, err := s.store.List()
	if err != nil {
		return nil, err
	}
	s.listing = infos
	s.listedAt = time.Now()
	s.listStale = false
	return infos, nil
}

type sessionJSON struct {
	ID        string      `json:"id"`
	Size      int64       `json:"size"`
	SizeHuman string      `json:"size_human"`
	ModTime   string      `json:"mod_time"`
	Meta      *store.Meta `json:"meta,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	infos, err := s.sessions()
	if err != nil {
		httpError(w, http.StatusInternalServerError, err)
		return
	}

	subscribers := 0
	if s.bcast != nil {
		subscribers = s.bcast.Subscribers()
	}
	writeJSON(w, map[string]any{
		"store_dir":        s.store.Dir(),
		"sessions":         len(infos),
		"live_subscribers": subscribers,
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	infos, err := s.sessions()
	if err != nil {
		httpError(w, http.StatusInternalServerError, err)
		return
	}

	out := make([]sessionJSON, 0, len(infos))
	for _, info := range infos {
		out = append(out, sessionJSON{
			ID:        info.ID,
			Size:      info.Size,
			SizeHuman: humanize.Bytes(uint64(info.Size)),
			ModTime:   info.ModTime.UTC().Format(time.RFC3339),
			Meta:      info.Meta,
		})
	}
	writeJSON(w, out)
}

func (s *Server) handleSessionRaw(w http.ResponseWriter, r *http.Request) {
	path, err := s.store.Resolve(r.PathValue("id"))
	if err != nil {
		httpError(w, http.StatusNotFound, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeFile(w, r, path)
}

func (s *Server) handleSessionMeta(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	path, err := s.store.Resolve(id)
	if err != nil {
		httpError(w, http.StatusNotFound, err)
		return
	}

	out := map[string]any{"id": id, "sealed": false}

	sess, err := tape.OpenForReplay(path)
	switch {
	case err == nil:
		out["sealed"] = true
		out["records"] = sess.Count()
		out["started_at"] = sess.Header.StartedAt
		if len(sess.Header.Revision) > 0 {
			out["revision"] = hex.EncodeToString(sess.Header.Revision)
		}
		sess.Close()
	case isTruncated(err):
		// Unsealed capture, likely still being written or crashed.
	default:
		httpError(w, http.StatusInternalServerError, err)
		return
	}

	if meta, err := s.store.ReadMeta(id); err == nil {
		out["meta"] = meta
	}
	writeJSON(w, out)
}

// handleLive streams capture summaries as server-sent events. A viewer
// that stops reading gets dropped summaries, never a stalled capture.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if s.bcast == nil {
		httpError(w, http.StatusNotFound, fmt.Errorf("no capture in progress"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, cancel := s.bcast.Subscribe()
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case sum, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(sum)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func isTruncated(err error) bool {
	var te *tape.TruncatedIndexError
	return errors.As(err, &te)
}
