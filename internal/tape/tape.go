// Package tape implements the .tape on-disk format for recorded LLM call
// sessions: a fixed header, a sequence of length-prefixed zstd-compressed
// records, a flat hash index, and an 8-byte trailing pointer to the index.
// The trailing pointer is the only authoritative boundary between the
// record region and the index region.
package tape

import (
	"github.com/klauspost/compress/zstd"
)

// Magic identifies a .tape file. Always the first 8 bytes.
var Magic = []byte("LLMTAPE1")

// FormatVersion is the current on-disk format version.
const FormatVersion uint32 = 1

// RevisionLen is the size of the optional source-revision identifier.
const RevisionLen = 20

// HashLen is the size of a content hash (SHA-256).
const HashLen = 32

// indexEntryLen is hash(32) + offset(8).
const indexEntryLen = HashLen + 8

// maxCompressedRecord bounds a single record's compressed size. A length
// prefix above this is treated as corruption, not as a real record.
const maxCompressedRecord = 64 << 20

// maxDecompressedRecord bounds decompression output per record.
const maxDecompressedRecord = 128 << 20

// Header is the immutable per-file preamble.
type Header struct {
	Version   uint32
	StartedAt uint64 // unix milliseconds when capture started
	Revision  []byte // optional source revision, exactly RevisionLen bytes when set
}

// Len returns the encoded header size in bytes.
func (h *Header) Len() int64 {
	n := int64(len(Magic) + 4 + 8 + 1)
	if len(h.Revision) == RevisionLen {
		n += RevisionLen
	}
	return n
}

// Record is one captured request/response pair. Records are never mutated
// after being written; the scrubber transforms payloads before the first
// write, not after.
type Record struct {
	Hash      [HashLen]byte // content hash of the canonicalized request
	Request   []byte
	Response  []byte
	LatencyMS uint64
	Timestamp uint64 // unix milliseconds at capture
}

// IndexEntry maps a content hash to the byte offset of the corresponding
// record's length prefix.
type IndexEntry struct {
	Hash   [HashLen]byte
	Offset uint64
}

// Shared zstd coders. EncodeAll and DecodeAll are safe for concurrent use.
var (
	zstdEnc *zstd.Encoder
	zstdDec *zstd.Decoder
)

func init() {
	var err error
	zstdEnc, err = zstd.NewWriter(nil)
	if err != nil {
		panic(err)
	}
	zstdDec, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecompressedRecord))
	if err != nil {
		panic(err)
	}
}
