// Package proxy is the HTTP front door: a recording proxy that forwards
// to a real LLM API while capturing every call, and a replay proxy that
// answers from a sealed session without any network.
package proxy

import (
	"net/http"
	"strings"
)

// maxBodyBytes bounds request and response bodies read into memory.
const maxBodyBytes = 32 << 20

// hopByHop are headers that belong to a single connection and must not
// be forwarded.
var hopByHop = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// copyHeaders copies h into dst, skipping hop-by-hop headers.
func copyHeaders(dst http.Header, h http.Header) {
	for k, vv := range h {
		if hopByHop[http.CanonicalHeaderKey(k)] {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// requestPath joins path and query the way they were captured, so a
// replayed request with the same query string hashes identically.
func requestPath(r *http.Request) string {
	p := r.URL.Path
	if r.URL.RawQuery != "" {
		p += "?" + r.URL.RawQuery
	}
	return p
}

// isStatusPath reports whether the request targets the proxy's own
// status endpoint rather than the proxied API.
func isStatusPath(r *http.Request) bool {
	return r.Method == http.MethodGet && strings.TrimSuffix(r.URL.Path, "/") == "/status"
}
