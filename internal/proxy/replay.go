package proxy

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/ppiankov/llmtape/internal/tape"
)

// ReplayMissError reports a request with no recorded response. The
// replay proxy never falls through to a network call; a miss is a hard
// failure the agent under test has to see.
type ReplayMissError struct {
	Method string
	Path   string
	Hash   [tape.HashLen]byte
}

func (e *ReplayMissError) Error() string {
	return fmt.Sprintf("no recorded response for %s %s (hash %s)",
		e.Method, e.Path, hex.EncodeToString(e.Hash[:8]))
}

// ReplayConfig holds replay proxy configuration.
type ReplayConfig struct {
	Listen string
}

// ReplayServer answers requests from a sealed session. It is strictly
// offline: every response comes from the tape or is a 404 miss.
type ReplayServer struct {
	cfg     ReplayConfig
	session *tape.Session
	srv     *http.Server

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewReplayServer creates a replay proxy over an open session.
func NewReplayServer(cfg ReplayConfig, s *tape.Session) *ReplayServer {
	rs := &ReplayServer{
		cfg:     cfg,
		session: s,
	}
	rs.srv = &http.Server{
		Addr:    cfg.Listen,
		Handler: rs,
	}
	return rs
}

// Start begins listening. Blocks until context is cancelled.
func (s *ReplayServer) Start(ctx context.Context) error {
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

// Hits returns the number of answered lookups so far.
func (s *ReplayServer) Hits() uint64 { return s.hits.Load() }

// Misses returns the number of failed lookups so far.
func (s *ReplayServer) Misses() uint64 { return s.misses.Load() }

// ServeHTTP answers one request from the tape.
func (s *ReplayServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if isStatusPath(r) {
		s.serveStatus(w)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read request: %v", err), http.StatusBadRequest)
		return
	}

	reqPath := requestPath(r)
	hash := tape.HashRequest(r.Method, reqPath, body)
	rec, ok, err := s.session.LookupHash(hash)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read record: %v", err), http.StatusInternalServerError)
		return
	}
	if !ok {
		s.misses.Add(1)
		miss := &ReplayMissError{Method: r.Method, Path: reqPath, Hash: hash}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("x-llmtape-proxy", "replay")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"error":        miss.Error(),
			"request_hash": hex.EncodeToString(hash[:]),
		})
		return
	}

	s.hits.Add(1)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("x-llmtape-proxy", "replay")
	w.Header().Set("x-llmtape-replay", "hit")
	w.Header().Set("x-llmtape-latency-ms", strconv.FormatUint(rec.LatencyMS, 10))
	w.WriteHeader(http.StatusOK)
	w.Write(rec.Response)
}

// serveStatus reports replay progress for tooling and humans.
func (s *ReplayServer) serveStatus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"mode":    "replay",
		"records": s.session.Count(),
		"hits":    s.hits.Load(),
		"misses":  s.misses.Load(),
	})
}
