// Package scrub removes secrets from payloads before they reach disk.
//
// Scrubbing is one-way: matched values are replaced with fixed markers,
// never tokenized, so a session file can be shared without carrying a
// reverse mapping. Patterns are applied in declaration order: specific
// vendor prefixes before the generic fallbacks that would otherwise
// swallow them.
package scrub

import (
	"regexp"
	"strings"
)

// pattern pairs a compiled regex with its fixed replacement marker.
type pattern struct {
	re          *regexp.Regexp
	replacement string
}

// defaultPatterns covers the common credential shapes. Order matters:
// sk-ant- and sk-proj- must run before the generic sk- fallback.
var defaultPatterns = []pattern{
	{regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`), "[REDACTED_ANTHROPIC_KEY]"},
	{regexp.MustCompile(`sk-proj-[A-Za-z0-9_-]{20,}`), "[REDACTED_OPENAI_KEY]"},
	{regexp.MustCompile(`sk_live_[A-Za-z0-9_-]{20,}`), "[REDACTED_STRIPE_KEY]"},
	{regexp.MustCompile(`sk_test_[A-Za-z0-9_-]{20,}`), "[REDACTED_STRIPE_KEY]"},
	{regexp.MustCompile(`pk_live_[A-Za-z0-9_-]{20,}`), "[REDACTED_STRIPE_KEY]"},
	{regexp.MustCompile(`pk_test_[A-Za-z0-9_-]{20,}`), "[REDACTED_STRIPE_KEY]"},
	{regexp.MustCompile(`sk-[A-Za-z0-9_-]{20,}`), "[REDACTED_API_KEY]"},
	{regexp.MustCompile(`AKIA[A-Z0-9]{16}`), "[REDACTED_AWS_KEY]"},
	{regexp.MustCompile(`ghp_[A-Za-z0-9]{36}`), "[REDACTED_GITHUB_TOKEN]"},
	{regexp.MustCompile(`gho_[A-Za-z0-9]{36}`), "[REDACTED_GITHUB_TOKEN]"},
	{regexp.MustCompile(`github_pat_[A-Za-z0-9_]{22,}`), "[REDACTED_GITHUB_TOKEN]"},
	{regexp.MustCompile(`Bearer\s+[A-Za-z0-9_\-.]{20,}`), "Bearer [REDACTED_TOKEN]"},
	{regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password|authorization)(["']?\s*[:=]\s*["']?)[A-Za-z0-9+/=]{32,}`), "$1$2[REDACTED_SECRET]"},
}

var emailPattern = pattern{
	regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
	"[REDACTED_EMAIL]",
}

// Scrubber applies an ordered pattern list plus exact-string replacements.
// Compile it once at session start; the zero value is not usable.
type Scrubber struct {
	patterns []pattern
	literals []Literal
}

// Literal is an exact string to replace, for secrets the operator knows
// outright (a specific API key) rather than by shape.
type Literal struct {
	Value       string
	Replacement string
}

// New builds a Scrubber from the default pattern set and a config's
// additions. cfg may be nil.
func New(cfg *Config) (*Scrubber, error) {
	s := &Scrubber{}

	s.patterns = append(s.patterns, defaultPatterns...)
	if cfg == nil || cfg.RedactEmails == nil || *cfg.RedactEmails {
		s.patterns = append(s.patterns, emailPattern)
	}

	if cfg != nil {
		extra, err := cfg.compileExtra()
		if err != nil {
			return nil, err
		}
		s.patterns = append(s.patterns, extra...)
		s.literals = cfg.literals()
	}
	return s, nil
}

// Bytes scrubs a payload. The input is never modified; if nothing
// matches, the input slice is returned as-is.
func (s *Scrubber) Bytes(b []byte) []byte {
	if len(b) == 0 {
		return b
	}

	text := string(b)
	out := text
	for _, p := range s.patterns {
		out = p.re.ReplaceAllString(out, p.replacement)
	}
	for _, l := range s.literals {
		out = strings.ReplaceAll(out, l.Value, l.Replacement)
	}

	if out == text {
		return b
	}
	return []byte(out)
}

// String is a convenience wrapper around Bytes.
func (s *Scrubber) String(text string) string {
	return string(s.Bytes([]byte(text)))
}

// ContainsMarker reports whether a payload already carries a redaction
// marker. Used by inspection tooling to flag scrubbed sessions.
func ContainsMarker(b []byte) bool {
	return strings.Contains(string(b), "[REDACTED_")
}
