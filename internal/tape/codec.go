package tape

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// WriteHeader writes the file preamble: magic(8) version(4,LE)
// started_at(8,LE) has_rev(1) [rev(20)].
func WriteHeader(w io.Writer, h *Header) error {
	if len(h.Revision) != 0 && len(h.Revision) != RevisionLen {
		return &FormatError{Reason: fmt.Sprintf("revision must be %d bytes, got %d", RevisionLen, len(h.Revision))}
	}

	buf := make([]byte, 0, h.Len())
	buf = append(buf, Magic...)
	buf = binary.LittleEndian.AppendUint32(buf, h.Version)
	buf = binary.LittleEndian.AppendUint64(buf, h.StartedAt)
	if len(h.Revision) == RevisionLen {
		buf = append(buf, 1)
		buf = append(buf, h.Revision...)
	} else {
		buf = append(buf, 0)
	}

	_, err := w.Write(buf)
	return err
}

// ReadHeader reads and validates the file preamble.
func ReadHeader(r io.Reader) (*Header, error) {
	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, &FormatError{Reason: fmt.Sprintf("short header: %v", err)}
	}
	if !bytes.Equal(magic, Magic) {
		return nil, &FormatError{Reason: fmt.Sprintf("bad magic %q", magic)}
	}

	fixed := make([]byte, 4+8+1)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return nil, &FormatError{Reason: fmt.Sprintf("short header: %v", err)}
	}

	h := &Header{
		Version:   binary.LittleEndian.Uint32(fixed[0:4]),
		StartedAt: binary.LittleEndian.Uint64(fixed[4:12]),
	}
	if h.Version != FormatVersion {
		return nil, &FormatError{Reason: fmt.Sprintf("unsupported version %d", h.Version)}
	}

	switch fixed[12] {
	case 0:
	case 1:
		rev := make([]byte, RevisionLen)
		if _, err := io.ReadFull(r, rev); err != nil {
			return nil, &FormatError{Reason: fmt.Sprintf("short revision: %v", err)}
		}
		h.Revision = rev
	default:
		return nil, &FormatError{Reason: fmt.Sprintf("invalid revision flag %d", fixed[12])}
	}

	return h, nil
}

// EncodeRecord serializes a record to its on-disk form: a 4-byte LE length
// prefix holding the compressed size, followed by the zstd-compressed
// payload. Compression is per record so a damaged record never poisons
// its neighbors.
func EncodeRecord(r *Record) ([]byte, error) {
	payload := encodePayload(r)
	compressed := zstdEnc.EncodeAll(payload, make([]byte, 0, len(payload)))
	if len(compressed) > maxCompressedRecord {
		return nil, fmt.Errorf("tape: record too large: %d compressed bytes", len(compressed))
	}

	out := make([]byte, 0, 4+len(compressed))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(compressed)))
	return append(out, compressed...), nil
}

// DecodeRecord is the exact inverse of EncodeRecord. The input must be a
// single length-prefixed compressed record.
func DecodeRecord(b []byte) (*Record, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("tape: record shorter than length prefix")
	}
	n := binary.LittleEndian.Uint32(b[0:4])
	if int(n) != len(b)-4 {
		return nil, fmt.Errorf("tape: length prefix %d does not match %d payload bytes", n, len(b)-4)
	}
	return decodeCompressed(b[4:])
}

func encodePayload(r *Record) []byte {
	payload := make([]byte, 0, HashLen+4+len(r.Request)+4+len(r.Response)+16)
	payload = append(payload, r.Hash[:]...)
	payload = binary.LittleEndian.AppendUint32(payload, uint32(len(r.Request)))
	payload = append(payload, r.Request...)
	payload = binary.LittleEndian.AppendUint32(payload, uint32(len(r.Response)))
	payload = append(payload, r.Response...)
	payload = binary.LittleEndian.AppendUint64(payload, r.LatencyMS)
	payload = binary.LittleEndian.AppendUint64(payload, r.Timestamp)
	return payload
}

func decodeCompressed(compressed []byte) (*Record, error) {
	payload, err := zstdDec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("tape: decompress record: %w", err)
	}
	return decodePayload(payload)
}

func decodePayload(payload []byte) (*Record, error) {
	if len(payload) < HashLen+4 {
		return nil, fmt.Errorf("tape: record payload too short: %d bytes", len(payload))
	}

	r := &Record{}
	copy(r.Hash[:], payload[:HashLen])
	rest := payload[HashLen:]

	// Declared lengths come from untrusted bytes; compare in int64 so a
	// near-MaxUint32 value cannot wrap the bound and slice out of range.
	reqLen := binary.LittleEndian.Uint32(rest[0:4])
	rest = rest[4:]
	if int64(reqLen)+4 > int64(len(rest)) {
		return nil, fmt.Errorf("tape: request length %d exceeds payload", reqLen)
	}
	r.Request = rest[:reqLen:reqLen]
	rest = rest[reqLen:]

	respLen := binary.LittleEndian.Uint32(rest[0:4])
	rest = rest[4:]
	if int64(respLen)+16 != int64(len(rest)) {
		return nil, fmt.Errorf("tape: response length %d does not match remaining %d bytes", respLen, len(rest))
	}
	r.Response = rest[:respLen:respLen]
	rest = rest[respLen:]

	r.LatencyMS = binary.LittleEndian.Uint64(rest[0:8])
	r.Timestamp = binary.LittleEndian.Uint64(rest[8:16])
	return r, nil
}

// WriteIndex writes the index region: {hash(32) offset(8,LE)}*count
// followed by count(4,LE). The trailing pointer is written separately by
// the capture engine at finalization.
func WriteIndex(w io.Writer, entries []IndexEntry) error {
	buf := make([]byte, 0, len(entries)*indexEntryLen+4)
	for _, e := range entries {
		buf = append(buf, e.Hash[:]...)
		buf = binary.LittleEndian.AppendUint64(buf, e.Offset)
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(entries)))
	_, err := w.Write(buf)
	return err
}

// writeTrailer writes the final 8 bytes of the file: the byte offset at
// which the index region starts.
func writeTrailer(w io.Writer, indexOff uint64) error {
	buf := binary.LittleEndian.AppendUint64(make([]byte, 0, 8), indexOff)
	_, err := w.Write(buf)
	return err
}

// ReadIndex reads the trailing pointer from the final 8 bytes of the file
// and then the full index region it points at. It never infers the index
// boundary from record decoding; a mismatch between the declared count and
// the region the pointer delimits yields TruncatedIndexError.
func ReadIndex(r io.ReaderAt, size int64) ([]IndexEntry, int64, error) {
	if size < 12 {
		return nil, 0, &TruncatedIndexError{Size: size}
	}

	tail := make([]byte, 12)
	if _, err := r.ReadAt(tail, size-12); err != nil {
		return nil, 0, &TruncatedIndexError{Size: size}
	}
	count := int(binary.LittleEndian.Uint32(tail[0:4]))
	indexOff := int64(binary.LittleEndian.Uint64(tail[4:12]))

	if indexOff < 0 || indexOff > size-12 {
		return nil, 0, &TruncatedIndexError{Size: size, IndexOffset: indexOff, Count: count}
	}
	if indexOff+int64(count)*indexEntryLen+12 != size {
		return nil, 0, &TruncatedIndexError{Size: size, IndexOffset: indexOff, Count: count}
	}

	buf := make([]byte, count*indexEntryLen)
	if _, err := r.ReadAt(buf, indexOff); err != nil {
		return nil, 0, &TruncatedIndexError{Size: size, IndexOffset: indexOff, Count: count}
	}

	entries := make([]IndexEntry, count)
	for i := range entries {
		base := i * indexEntryLen
		copy(entries[i].Hash[:], buf[base:base+HashLen])
		entries[i].Offset = binary.LittleEndian.Uint64(buf[base+HashLen : base+indexEntryLen])
	}
	return entries, indexOff, nil
}
