package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/ppiankov/llmtape/internal/live"
	"github.com/ppiankov/llmtape/internal/tape"
)

// CaptureConfig holds recording proxy configuration.
type CaptureConfig struct {
	Listen   string
	Upstream string // e.g. "https://api.anthropic.com"
}

// CaptureServer forwards requests to the upstream API and records each
// completed call to the session writer. The upstream exchange is driven
// to completion even when the client disconnects mid-call, so the tape
// never holds a half-recorded call.
type CaptureServer struct {
	cfg       CaptureConfig
	upstream  *url.URL
	writer    *tape.Writer
	bcast     *live.Broadcaster
	transport http.RoundTripper
	srv       *http.Server
}

// NewCaptureServer creates a recording proxy over an open session
// writer. The broadcaster may be nil when no live viewers are wanted.
func NewCaptureServer(cfg CaptureConfig, w *tape.Writer, bcast *live.Broadcaster) (*CaptureServer, error) {
	upstream, err := url.Parse(cfg.Upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}
	if upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("upstream URL %q needs scheme and host", cfg.Upstream)
	}

	s := &CaptureServer{
		cfg:       cfg,
		upstream:  upstream,
		writer:    w,
		bcast:     bcast,
		transport: http.DefaultTransport,
	}
	s.srv = &http.Server{
		Addr:    cfg.Listen,
		Handler: s,
	}
	return s, nil
}

// Start begins listening. Blocks until context is cancelled.
func (s *CaptureServer) Start(ctx context.Context) error {
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

// ServeHTTP forwards one call upstream and records the outcome.
func (s *CaptureServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqBody, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read request: %v", err), http.StatusBadRequest)
		return
	}

	// The upstream call is detached from the client's context: once a
	// call is in flight it completes and is recorded even if the client
	// goes away.
	outCtx := context.WithoutCancel(r.Context())

	outURL := *s.upstream
	outURL.Path = r.URL.Path
	outURL.RawQuery = r.URL.RawQuery

	outReq, err := http.NewRequestWithContext(outCtx, r.Method, outURL.String(), bytes.NewReader(reqBody))
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to create request: %v", err), http.StatusInternalServerError)
		return
	}
	copyHeaders(outReq.Header, r.Header)
	outReq.Host = s.upstream.Host
	outReq.ContentLength = int64(len(reqBody))

	start := time.Now()
	resp, err := s.transport.RoundTrip(outReq)
	if err != nil {
		// Nothing completed upstream, so nothing is recorded.
		http.Error(w, fmt.Sprintf("upstream error: %v", err), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read upstream response: %v", err), http.StatusBadGateway)
		return
	}
	latency := time.Since(start)

	// The call completed: record it before answering the client, so a
	// write failure is visible instead of silently losing the call.
	reqPath := requestPath(r)
	if _, err := s.writer.Append(r.Method, reqPath, reqBody, respBody, uint64(latency.Milliseconds())); err != nil {
		http.Error(w, fmt.Sprintf("failed to record call: %v", err), http.StatusInternalServerError)
		return
	}

	if s.bcast != nil {
		s.bcast.Publish(live.Summary{
			Timestamp:    uint64(time.Now().UnixMilli()),
			RequestSize:  len(reqBody),
			ResponseSize: len(respBody),
			LatencyMS:    uint64(latency.Milliseconds()),
		})
	}

	copyHeaders(w.Header(), resp.Header)
	w.Header().Set("x-llmtape-proxy", "capture")
	w.WriteHeader(resp.StatusCode)
	w.Write(respBody)
}
