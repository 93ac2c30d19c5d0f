// Package czstore wraps any melda.Adapter with transparent gzip
// compression, the way the teacher pack's storage layers compose a thin
// codec step in front of a plain byte-oriented backend rather than
// building compression into the backend itself. Packs and delta blocks
// below Threshold are stored as-is; it isn't worth gzip's per-blob
// overhead on a two-line delta.
package czstore

import (
	"bytes"
	"compress/gzip"
	"io"

	"github.com/melda-dev/melda"
)

const defaultThreshold = 256

// magic prefixes a gzip-compressed blob so ReadObject can tell it apart
// from one the threshold left uncompressed, without needing a parallel
// key namespace or a second round trip to the backend.
var magic = []byte("cz1\n")

// Adapter compresses blobs at or above Threshold bytes before delegating
// to Next.
type Adapter struct {
	Next      melda.Adapter
	Threshold int
}

// New wraps next, compressing objects of Threshold bytes or more.
// Threshold <= 0 uses a built-in default.
func New(next melda.Adapter, threshold int) *Adapter {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	return &Adapter{Next: next, Threshold: threshold}
}

// ReadObject implements melda.Adapter, transparently decompressing
// blobs New wrote with gzip.
func (a *Adapter) ReadObject(key string) ([]byte, error) {
	raw, err := a.Next.ReadObject(key)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(raw, magic) {
		return raw, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw[len(magic):]))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// WriteObject implements melda.Adapter, gzip-compressing data before
// delegating when it meets Threshold.
func (a *Adapter) WriteObject(key string, data []byte) error {
	if len(data) < a.Threshold {
		return a.Next.WriteObject(key, data)
	}

	var buf bytes.Buffer
	buf.Write(magic)
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return a.Next.WriteObject(key, buf.Bytes())
}

// ListObjects implements melda.Adapter by delegating directly: key names
// are unaffected by compression.
func (a *Adapter) ListObjects(prefix string) ([]string, error) {
	return a.Next.ListObjects(prefix)
}
