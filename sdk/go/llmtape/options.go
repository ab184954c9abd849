package llmtape

import "net/http"

// Option configures Record and Replay at creation time.
type Option func(*config)

type config struct {
	storeDir    string
	sessionID   string
	scrub       bool
	scrubConfig string
	base        http.RoundTripper
}

// WithStoreDir sets the session directory (default: ~/.llmtape/sessions).
func WithStoreDir(dir string) Option {
	return func(c *config) { c.storeDir = dir }
}

// WithSession selects a session id for replay. Without it, Replay uses
// the most recent session in the store.
func WithSession(id string) Option {
	return func(c *config) { c.sessionID = id }
}

// WithoutScrub disables secret redaction for a recording. The session's
// metadata records the choice.
func WithoutScrub() Option {
	return func(c *config) { c.scrub = false }
}

// WithScrubConfig sets the path to a scrub customization YAML file.
func WithScrubConfig(path string) Option {
	return func(c *config) { c.scrubConfig = path }
}

// WithTransport sets the underlying transport a recording forwards
// through (default: http.DefaultTransport).
func WithTransport(rt http.RoundTripper) Option {
	return func(c *config) { c.base = rt }
}
