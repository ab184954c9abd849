package tape

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// ScrubFunc transforms a payload before it is persisted. See
// internal/scrub for the pattern-based implementation. A nil ScrubFunc
// disables scrubbing, an explicit caller choice that must be recorded in
// the session's metadata.
type ScrubFunc func([]byte) []byte

// Writer is the capture engine: an exclusively-owned handle on one session
// file being recorded. Appends are serialized by a lock scoped to the
// handle; hashing, scrubbing, and compression run outside it so concurrent
// requests only contend on the file write itself. Records land in the
// order their responses complete.
type Writer struct {
	path  string
	scrub ScrubFunc

	mu     sync.Mutex
	f      *os.File
	offset uint64
	index  []IndexEntry
	closed bool
}

// OpenForCapture creates path, writes the header, and returns a handle
// able to accept records. The file stays unsealed until Finalize.
func OpenForCapture(path string, h *Header, scrub ScrubFunc) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("tape: create session file: %w", err)
	}

	if h.Version == 0 {
		h.Version = FormatVersion
	}
	if err := WriteHeader(f, h); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("tape: write header: %w", err)
	}

	return &Writer{
		path:   path,
		scrub:  scrub,
		f:      f,
		offset: uint64(h.Len()),
	}, nil
}

// Append records one request/response pair and returns the request's
// content hash. The hash is computed over the unscrubbed request, the
// same bytes a replaying client will present, then both payloads are
// scrubbed, encoded, and appended.
func (w *Writer) Append(method, reqPath string, reqBody, respBody []byte, latencyMS uint64) ([HashLen]byte, error) {
	hash := HashRequest(method, reqPath, reqBody)

	if w.scrub != nil {
		reqBody = w.scrub(reqBody)
		respBody = w.scrub(respBody)
	}

	rec := &Record{
		Hash:      hash,
		Request:   reqBody,
		Response:  respBody,
		LatencyMS: latencyMS,
		Timestamp: uint64(time.Now().UnixMilli()),
	}
	return hash, w.AppendRecord(rec)
}

// AppendRecord appends an already-built record verbatim, preserving its
// stored hash and timestamp. Used by the recovery pass; live capture goes
// through Append.
func (w *Writer) AppendRecord(rec *Record) error {
	blob, err := EncodeRecord(rec)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrSessionClosed
	}

	off := w.offset
	if _, err := w.f.Write(blob); err != nil {
		return fmt.Errorf("tape: append record: %w", err)
	}
	w.offset += uint64(len(blob))
	w.index = append(w.index, IndexEntry{Hash: rec.Hash, Offset: off})
	return nil
}

// Finalize writes the accumulated index and the trailing pointer, syncs,
// and seals the session. It is a one-time act: subsequent Append and
// Finalize calls fail with ErrSessionClosed.
func (w *Writer) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrSessionClosed
	}
	w.closed = true

	indexOff := w.offset
	if err := WriteIndex(w.f, w.index); err != nil {
		w.f.Close()
		return fmt.Errorf("tape: write index: %w", err)
	}
	if err := writeTrailer(w.f, indexOff); err != nil {
		w.f.Close()
		return fmt.Errorf("tape: write trailer: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return fmt.Errorf("tape: sync: %w", err)
	}
	return w.f.Close()
}

// Abort closes the file without sealing it, leaving an unsealed capture
// on disk. The file is not replayable until recovered.
func (w *Writer) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrSessionClosed
	}
	w.closed = true
	return w.f.Close()
}

// Count returns the number of records appended so far. It is also the
// sequence index of the most recent record, for live summaries.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.index)
}

// Path returns the session file path.
func (w *Writer) Path() string {
	return w.path
}

// Scrubbing reports whether a scrubber is attached to this session.
func (w *Writer) Scrubbing() bool {
	return w.scrub != nil
}
