package tape

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Session is the replay engine's read-only view of a sealed tape. The
// index lives in memory; record reads go through ReadAt, so a Session is
// safe for unlimited concurrent lookups once opened.
type Session struct {
	Header *Header

	f      *os.File
	size   int64
	index  []IndexEntry
	byHash map[[HashLen]byte]int // hash → first index entry with that hash
}

// OpenForReplay opens a sealed session file: it reads the header, follows
// the trailing pointer to the index, and validates that the declared entry
// count exactly fills the index region. An unsealed or cut-short file
// yields TruncatedIndexError; a file that is not a tape yields FormatError.
func OpenForReplay(path string) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tape: open session file: %w", err)
	}

	s, err := newSession(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func newSession(f *os.File) (*Session, error) {
	h, err := ReadHeader(f)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("tape: stat session file: %w", err)
	}

	entries, indexOff, err := ReadIndex(f, info.Size())
	if err != nil {
		return nil, err
	}
	if indexOff < h.Len() {
		return nil, &TruncatedIndexError{Size: info.Size(), IndexOffset: indexOff, Count: len(entries)}
	}

	byHash := make(map[[HashLen]byte]int, len(entries))
	for i, e := range entries {
		if _, ok := byHash[e.Hash]; !ok {
			byHash[e.Hash] = i
		}
	}

	return &Session{
		Header: h,
		f:      f,
		size:   info.Size(),
		index:  entries,
		byHash: byHash,
	}, nil
}

// Lookup canonicalizes and hashes a live request with the same rule used
// at capture time and returns the matching record, if any. Hash equality
// only. There is no fuzzy or partial matching, so a miss is deterministic.
func (s *Session) Lookup(method, reqPath string, body []byte) (*Record, bool, error) {
	return s.LookupHash(HashRequest(method, reqPath, body))
}

// LookupHash performs a point lookup by content hash.
func (s *Session) LookupHash(hash [HashLen]byte) (*Record, bool, error) {
	i, ok := s.byHash[hash]
	if !ok {
		return nil, false, nil
	}
	rec, err := s.RecordAt(i)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// RecordAt reads and decodes the i-th record. Decoding failure is
// reported as CorruptRecordError carrying the record's byte offset.
func (s *Session) RecordAt(i int) (*Record, error) {
	if i < 0 || i >= len(s.index) {
		return nil, fmt.Errorf("tape: record index %d out of range [0,%d)", i, len(s.index))
	}
	off := int64(s.index[i].Offset)

	var prefix [4]byte
	if _, err := s.f.ReadAt(prefix[:], off); err != nil {
		return nil, &CorruptRecordError{Offset: off, Err: err}
	}
	n := binary.LittleEndian.Uint32(prefix[:])
	if n > maxCompressedRecord {
		return nil, &CorruptRecordError{Offset: off, Err: fmt.Errorf("implausible compressed size %d", n)}
	}

	compressed := make([]byte, n)
	if _, err := s.f.ReadAt(compressed, off+4); err != nil {
		return nil, &CorruptRecordError{Offset: off, Err: err}
	}

	rec, err := decodeCompressed(compressed)
	if err != nil {
		return nil, &CorruptRecordError{Offset: off, Err: err}
	}
	return rec, nil
}

// Count returns the number of indexed records.
func (s *Session) Count() int {
	return len(s.index)
}

// Index returns the raw index entries in record order.
func (s *Session) Index() []IndexEntry {
	return s.index
}

// Close releases the underlying file.
func (s *Session) Close() error {
	return s.f.Close()
}

var _ io.Closer = (*Session)(nil)
