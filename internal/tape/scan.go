package tape

import (
	"encoding/binary"
	"fmt"
	"os"
)

// ScanFunc receives each record in file order during a linear scan. When a
// record cannot be decoded, rec is nil and cerr describes the damage.
// Return false to stop the scan early.
type ScanFunc func(offset int64, rec *Record, cerr *CorruptRecordError) bool

// Scan walks the record region of a session file linearly, without using
// the index. For a sealed file the region ends exactly at the index offset
// named by the trailing pointer; for an unsealed file it ends at EOF. A
// record whose payload fails to decompress is reported and skipped using
// its length prefix; a record cut short by truncation ends the scan, since
// nothing after it can be trusted.
//
// Scan exists for inspection and recovery. Replay never scans: point
// lookups require a sealed index.
func Scan(path string, fn ScanFunc) (*Header, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, fmt.Errorf("tape: open session file: %w", err)
	}
	defer f.Close()

	h, err := ReadHeader(f)
	if err != nil {
		return nil, false, err
	}

	info, err := f.Stat()
	if err != nil {
		return h, false, fmt.Errorf("tape: stat session file: %w", err)
	}

	end := info.Size()
	sealed := false
	if _, indexOff, err := ReadIndex(f, info.Size()); err == nil && indexOff >= h.Len() {
		end = indexOff
		sealed = true
	}

	off := h.Len()
	for off < end {
		if off+4 > end {
			fn(off, nil, &CorruptRecordError{Offset: off, Err: fmt.Errorf("truncated length prefix")})
			return h, sealed, nil
		}

		var prefix [4]byte
		if _, err := f.ReadAt(prefix[:], off); err != nil {
			fn(off, nil, &CorruptRecordError{Offset: off, Err: err})
			return h, sealed, nil
		}
		n := int64(binary.LittleEndian.Uint32(prefix[:]))

		if n > maxCompressedRecord || off+4+n > end {
			fn(off, nil, &CorruptRecordError{Offset: off, Err: fmt.Errorf("record of %d bytes overruns region end %d", n, end)})
			return h, sealed, nil
		}

		compressed := make([]byte, n)
		if _, err := f.ReadAt(compressed, off+4); err != nil {
			fn(off, nil, &CorruptRecordError{Offset: off, Err: err})
			return h, sealed, nil
		}

		rec, err := decodeCompressed(compressed)
		if err != nil {
			// The length prefix still places the next record, so the
			// scan continues past the damaged entry.
			if !fn(off, nil, &CorruptRecordError{Offset: off, Err: err}) {
				return h, sealed, nil
			}
		} else if !fn(off, rec, nil) {
			return h, sealed, nil
		}

		off += 4 + n
	}

	return h, sealed, nil
}

// RecoverResult summarizes a recovery pass.
type RecoverResult struct {
	Recovered int
	Corrupt   int
	Sealed    bool // whether the source already carried a valid index
}

// Recover linearly re-scans src, typically an unsealed capture left by a
// crashed process, and writes every readable record to a new sealed
// session at dst, preserving stored hashes and timestamps.
func Recover(src, dst string) (*RecoverResult, error) {
	// Read the header first so the recovered file carries the original
	// start time and revision.
	f, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("tape: open source: %w", err)
	}
	h, err := ReadHeader(f)
	f.Close()
	if err != nil {
		return nil, err
	}

	w, err := OpenForCapture(dst, &Header{
		Version:   h.Version,
		StartedAt: h.StartedAt,
		Revision:  h.Revision,
	}, nil)
	if err != nil {
		return nil, err
	}

	res, err := recoverInto(src, w)
	if err != nil {
		w.Abort()
		os.Remove(dst)
		return nil, err
	}

	if err := w.Finalize(); err != nil {
		os.Remove(dst)
		return nil, err
	}
	return res, nil
}

// recoverInto copies every readable record from src to w. A write
// failure aborts the copy and is returned, so the caller never seals a
// partial recovery as if it were complete.
func recoverInto(src string, w *Writer) (*RecoverResult, error) {
	res := &RecoverResult{}
	var appendErr error
	_, sealed, err := Scan(src, func(off int64, rec *Record, cerr *CorruptRecordError) bool {
		if cerr != nil {
			res.Corrupt++
			return true
		}
		if aerr := w.AppendRecord(rec); aerr != nil {
			appendErr = fmt.Errorf("tape: recover record at offset %d: %w", off, aerr)
			return false
		}
		res.Recovered++
		return true
	})
	res.Sealed = sealed
	if err == nil {
		err = appendErr
	}
	return res, err
}
