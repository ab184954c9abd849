package tape

import (
	"errors"
	"fmt"
)

// ErrSessionClosed is returned by Append and Finalize after a session has
// been sealed. Appending to a sealed session is a programming error.
var ErrSessionClosed = errors.New("tape: session closed")

// FormatError reports an unusable file: bad magic, unsupported version,
// or a malformed preamble. Fatal: the file cannot be read at all.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "tape: " + e.Reason
}

// CorruptRecordError reports a single unreadable record. It carries the
// byte offset of the record's length prefix so callers can decide whether
// to abort or skip past the damaged entry.
type CorruptRecordError struct {
	Offset int64
	Err    error
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("tape: corrupt record at offset %d: %v", e.Offset, e.Err)
}

func (e *CorruptRecordError) Unwrap() error {
	return e.Err
}

// TruncatedIndexError reports that the file ends before the declared index
// is fully readable. Fatal for replay; the file must be treated as an
// unsealed capture.
type TruncatedIndexError struct {
	Size        int64
	IndexOffset int64
	Count       int
}

func (e *TruncatedIndexError) Error() string {
	return fmt.Sprintf("tape: truncated index: file size %d cannot hold %d entries starting at offset %d",
		e.Size, e.Count, e.IndexOffset)
}
