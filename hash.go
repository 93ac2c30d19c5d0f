// hash.go implements the Hasher component (spec §4.1): a deterministic
// content hash over canonical JSON, used both to address object content in
// DataStorage and to identify DeltaBlocks.
//
// Canonicalization walks the same universe of native go types a
// json.Unmarshal into interface{} produces (map[string]interface{},
// []interface{}, string, float64/json.Number, bool, nil) that this
// package's ancestor (a structural differ) walked to compute subtree
// signatures; here the walk sorts object keys and writes a single
// digest per value, not per-subtree, because content-addressing only
// needs whole-value equality.
package melda

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// digestSize is the width in bytes of a content hash (256 bits).
const digestSize = sha256.Size

// canonicalJSON writes v's canonical JSON encoding to buf. Object keys are
// sorted lexicographically, there is no insignificant whitespace, float64
// numbers are written in their shortest round-tripping form, and strings
// go through appendCanonicalString, so the same bytes are produced
// regardless of which replica, or which order fields were set in,
// produced v. A json.Number is written as its literal text unchanged: it
// is not reduced to shortest form, so a decoded "1.0" and a float64 1
// encode (and hash) differently.
func canonicalJSON(buf *[]byte, v Value) error {
	switch x := v.(type) {
	case nil:
		*buf = append(*buf, "null"...)
		return nil
	case bool:
		if x {
			*buf = append(*buf, "true"...)
		} else {
			*buf = append(*buf, "false"...)
		}
		return nil
	case float64:
		*buf = append(*buf, strconv.FormatFloat(x, 'g', -1, 64)...)
		return nil
	case json.Number:
		// x.String() is already the exact literal text json.Decoder read
		// off the wire (UseNumber), so it is written verbatim instead of
		// round-tripping through float64 and losing precision or the
		// original "1.0"-vs-"1" shape.
		*buf = append(*buf, x.String()...)
		return nil
	case string:
		appendCanonicalString(buf, x)
		return nil
	case []Value:
		*buf = append(*buf, '[')
		for i, el := range x {
			if i > 0 {
				*buf = append(*buf, ',')
			}
			if err := canonicalJSON(buf, el); err != nil {
				return err
			}
		}
		*buf = append(*buf, ']')
		return nil
	case map[string]Value:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		*buf = append(*buf, '{')
		for i, k := range keys {
			if i > 0 {
				*buf = append(*buf, ',')
			}
			appendCanonicalString(buf, k)
			*buf = append(*buf, ':')
			if err := canonicalJSON(buf, x[k]); err != nil {
				return err
			}
		}
		*buf = append(*buf, '}')
		return nil
	default:
		return newError(KindBadShape, nil, "canonicalJSON: unexpected type %T", v)
	}
}

// appendCanonicalString appends s JSON-quoted, escaping the quote, the
// backslash, \n, \r and \t, and every other control character as \u00XX.
// All other characters, including <, > and & (which encoding/json
// escapes by default), are written as-is.
func appendCanonicalString(buf *[]byte, s string) {
	*buf = append(*buf, '"')
	for _, r := range s {
		switch r {
		case '"':
			*buf = append(*buf, '\\', '"')
		case '\\':
			*buf = append(*buf, '\\', '\\')
		case '\n':
			*buf = append(*buf, '\\', 'n')
		case '\r':
			*buf = append(*buf, '\\', 'r')
		case '\t':
			*buf = append(*buf, '\\', 't')
		default:
			if r < 0x20 {
				*buf = append(*buf, fmt.Sprintf("\\u%04x", r)...)
			} else {
				*buf = append(*buf, string(r)...)
			}
		}
	}
	*buf = append(*buf, '"')
}

// CanonicalBytes returns v's canonical JSON encoding.
func CanonicalBytes(v Value) ([]byte, error) {
	var buf []byte
	if err := canonicalJSON(&buf, v); err != nil {
		return nil, err
	}
	return buf, nil
}

// ContentHash returns the hex digest of v's canonical JSON; this is the
// content address DataStorage keys object content by, and the basis for a
// DeltaBlock's own hash.
func ContentHash(v Value) (string, error) {
	buf, err := CanonicalBytes(v)
	if err != nil {
		return "", err
	}
	return hashBytes(buf), nil
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
