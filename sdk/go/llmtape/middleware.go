package llmtape

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ppiankov/llmtape/internal/tape"
)

// maxBodyBytes bounds request and response bodies read into memory.
const maxBodyBytes = 32 << 20

// MissError is returned by a replay transport for a call that was never
// recorded. Replay never touches the network.
type MissError struct {
	Method string
	Path   string
	Hash   [tape.HashLen]byte
}

func (e *MissError) Error() string {
	return fmt.Sprintf("llmtape: no recorded response for %s %s (hash %s)",
		e.Method, e.Path, hex.EncodeToString(e.Hash[:8]))
}

// requestPath joins path and query so record and replay hash the same
// bytes.
func requestPath(r *http.Request) string {
	p := r.URL.Path
	if r.URL.RawQuery != "" {
		p += "?" + r.URL.RawQuery
	}
	return p
}

type recordTransport struct {
	rec  *Recorder
	base http.RoundTripper
}

func (t *recordTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var reqBody []byte
	if req.Body != nil {
		var err error
		reqBody, err = io.ReadAll(io.LimitReader(req.Body, maxBodyBytes))
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("llmtape: read request body: %w", err)
		}
		req.Body = io.NopCloser(bytes.NewReader(reqBody))
	}

	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		// Nothing completed, nothing recorded.
		return nil, err
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("llmtape: read response body: %w", err)
	}
	latency := time.Since(start)

	if _, err := t.rec.writer.Append(req.Method, requestPath(req), reqBody, respBody, uint64(latency.Milliseconds())); err != nil {
		return nil, fmt.Errorf("llmtape: record call: %w", err)
	}

	resp.Body = io.NopCloser(bytes.NewReader(respBody))
	resp.ContentLength = int64(len(respBody))
	return resp, nil
}

type replayTransport struct {
	rep *Replayer
}

func (t *replayTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(io.LimitReader(req.Body, maxBodyBytes))
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("llmtape: read request body: %w", err)
		}
	}

	reqPath := requestPath(req)
	hash := tape.HashRequest(req.Method, reqPath, body)
	rec, ok, err := t.rep.session.LookupHash(hash)
	if err != nil {
		return nil, fmt.Errorf("llmtape: %w", err)
	}
	if !ok {
		return nil, &MissError{Method: req.Method, Path: reqPath, Hash: hash}
	}

	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	header.Set("x-llmtape-replay", "hit")
	header.Set("x-llmtape-latency-ms", strconv.FormatUint(rec.LatencyMS, 10))

	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(rec.Response)),
		ContentLength: int64(len(rec.Response)),
		Request:       req,
	}, nil
}
