package tape

import (
	"bytes"
	"crypto/sha256"
	"sort"
	"strconv"
	"strings"

	"github.com/valyala/fastjson"
)

// volatileFields are top-level JSON body fields excluded from the content
// hash so that semantically identical calls collide across runs. They
// carry client-generated identifiers or wall-clock values that change on
// every invocation without changing the call's meaning.
var volatileFields = []string{
	"request_id",
	"client_request_id",
	"idempotency_key",
	"nonce",
	"timestamp",
	"created_at",
}

// HashRequest computes the SHA-256 content hash of a request over its
// canonical encoding. The identical rule is applied at capture and replay
// time, so a request hashes the same regardless of when it is made or how
// its JSON keys happen to be ordered.
func HashRequest(method, path string, body []byte) [HashLen]byte {
	return sha256.Sum256(Canonicalize(method, path, body))
}

// Canonicalize produces the stable byte encoding hashed by HashRequest:
// upper-cased method, path, and the body re-serialized with object keys
// sorted and volatile top-level fields removed. A body that is not valid
// JSON is included verbatim.
func Canonicalize(method, path string, body []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(strings.ToUpper(method))
	buf.WriteByte('\n')
	buf.WriteString(path)
	buf.WriteByte('\n')

	var p fastjson.Parser
	v, err := p.ParseBytes(body)
	if err != nil {
		buf.Write(body)
		return buf.Bytes()
	}

	if v.Type() == fastjson.TypeObject {
		o, _ := v.Object()
		for _, f := range volatileFields {
			o.Del(f)
		}
	}

	writeCanonical(&buf, v)
	return buf.Bytes()
}

// writeCanonical serializes a parsed JSON value deterministically: object
// keys sorted lexicographically at every depth, no insignificant
// whitespace.
func writeCanonical(buf *bytes.Buffer, v *fastjson.Value) {
	switch v.Type() {
	case fastjson.TypeObject:
		o, _ := v.Object()
		type member struct {
			key string
			val *fastjson.Value
		}
		var members []member
		o.Visit(func(key []byte, val *fastjson.Value) {
			members = append(members, member{key: string(key), val: val})
		})
		sort.Slice(members, func(i, j int) bool { return members[i].key < members[j].key })

		buf.WriteByte('{')
		for i, m := range members {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(strconv.Quote(m.key))
			buf.WriteByte(':')
			writeCanonical(buf, m.val)
		}
		buf.WriteByte('}')

	case fastjson.TypeArray:
		items, _ := v.Array()
		buf.WriteByte('[')
		for i, item := range items {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonical(buf, item)
		}
		buf.WriteByte(']')

	default:
		buf.Write(v.MarshalTo(nil))
	}
}
