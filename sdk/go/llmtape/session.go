package llmtape

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ppiankov/llmtape/internal/scrub"
	"github.com/ppiankov/llmtape/internal/store"
	"github.com/ppiankov/llmtape/internal/tape"
)

// Recorder is an open recording session. Safe for concurrent calls
// through its transport.
type Recorder struct {
	id     string
	st     *store.Store
	writer *tape.Writer
	cfg    config
	start  time.Time
}

// Record opens a fresh recording session in the store.
func Record(opts ...Option) (*Recorder, error) {
	cfg := config{
		scrub: true,
		base:  http.DefaultTransport,
	}
	for _, o := range opts {
		o(&cfg)
	}

	st, err := store.Open(cfg.storeDir)
	if err != nil {
		return nil, fmt.Errorf("llmtape: %w", err)
	}

	var scrubFn tape.ScrubFunc
	if cfg.scrub {
		scrubCfg, err := scrub.LoadConfig(cfg.scrubConfig)
		if err != nil {
			return nil, fmt.Errorf("llmtape: %w", err)
		}
		scrubber, err := scrub.New(scrubCfg)
		if err != nil {
			return nil, fmt.Errorf("llmtape: %w", err)
		}
		scrubFn = scrubber.Bytes
	}

	start := time.Now()
	id, path := st.NewSession(start)
	w, err := tape.OpenForCapture(path, &tape.Header{StartedAt: uint64(start.UnixMilli())}, scrubFn)
	if err != nil {
		return nil, fmt.Errorf("llmtape: %w", err)
	}

	return &Recorder{
		id:     id,
		st:     st,
		writer: w,
		cfg:    cfg,
		start:  start,
	}, nil
}

// ID returns the session id, usable with Replay(WithSession(id)).
func (r *Recorder) ID() string { return r.id }

// Count returns the number of calls recorded so far.
func (r *Recorder) Count() int { return r.writer.Count() }

// Transport returns an http.RoundTripper that forwards through the
// configured base transport and records each completed call.
func (r *Recorder) Transport() http.RoundTripper {
	return &recordTransport{rec: r, base: r.cfg.base}
}

// Seal finalizes the session and writes its metadata sidecar. After
// Seal, the transport fails every call with tape.ErrSessionClosed.
func (r *Recorder) Seal() error {
	count := r.writer.Count()
	if err := r.writer.Finalize(); err != nil {
		return fmt.Errorf("llmtape: %w", err)
	}
	meta := &store.Meta{
		Scrubbed:  r.cfg.scrub,
		Records:   count,
		StartedAt: uint64(r.start.UnixMilli()),
		SealedAt:  uint64(time.Now().UnixMilli()),
	}
	if err := r.st.WriteMeta(r.id, meta); err != nil {
		return fmt.Errorf("llmtape: %w", err)
	}
	return nil
}

// Abort closes the session without sealing it. The file stays on disk
// and can be rebuilt with tape recovery.
func (r *Recorder) Abort() error {
	if err := r.writer.Abort(); err != nil && !errors.Is(err, tape.ErrSessionClosed) {
		return fmt.Errorf("llmtape: %w", err)
	}
	return nil
}

// Capture opens a recording session, runs fn with it, and seals the
// session on every exit path, including a panic inside fn. The session
// id is returned even when fn fails, so a partial recording can still
// be replayed or inspected.
func Capture(fn func(*Recorder) error, opts ...Option) (id string, err error) {
	rec, err := Record(opts...)
	if err != nil {
		return "", err
	}
	defer func() {
		if sealErr := rec.Seal(); err == nil {
			err = sealErr
		}
	}()
	return rec.ID(), fn(rec)
}

// Replayer answers recorded calls from a sealed session. Safe for
// concurrent calls through its transport.
type Replayer struct {
	id      string
	session *tape.Session
}

// Replay opens a sealed session for offline replay. Without
// WithSession, the most recent session in the store is used.
func Replay(opts ...Option) (*Replayer, error) {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}

	st, err := store.Open(cfg.storeDir)
	if err != nil {
		return nil, fmt.Errorf("llmtape: %w", err)
	}

	id := cfg.sessionID
	var path string
	if id != "" {
		path, err = st.Resolve(id)
		if err != nil {
			return nil, fmt.Errorf("llmtape: %w", err)
		}
	} else {
		latest, err := st.Latest()
		if err != nil {
			return nil, fmt.Errorf("llmtape: %w", err)
		}
		id, path = latest.ID, latest.Path
	}

	sess, err := tape.OpenForReplay(path)
	if err != nil {
		return nil, fmt.Errorf("llmtape: cannot replay %s: %w", id, err)
	}
	return &Replayer{id: id, session: sess}, nil
}

// ID returns the session id being replayed.
func (r *Replayer) ID() string { return r.id }

// Count returns the number of recorded calls in the session.
func (r *Replayer) Count() int { return r.session.Count() }

// Transport returns an http.RoundTripper that answers from the tape.
// A call that was never recorded fails with *MissError.
func (r *Replayer) Transport() http.RoundTripper {
	return &replayTransport{rep: r}
}

// Close releases the underlying session file.
func (r *Replayer) Close() error {
	return r.session.Close()
}
