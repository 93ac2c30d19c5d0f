// Package memstore implements melda.Adapter entirely in process memory,
// backed by a sync.Map the way this pack's store types guard concurrent
// access to an in-memory map. It is the reference in-process Adapter
// (store/czstore's tests run against it); it holds nothing on disk and
// is discarded with the process.
package memstore

import (
	"sync"

	"github.com/melda-dev/melda"
)

// Adapter is an in-process melda.Adapter. The zero value is ready to use.
type Adapter struct {
	objects sync.Map // string -> []byte
}

// New returns an empty Adapter.
func New() *Adapter {
	return &Adapter{}
}

// ReadObject implements melda.Adapter.
func (a *Adapter) ReadObject(key string) ([]byte, error) {
	v, ok := a.objects.Load(key)
	if !ok {
		return nil, melda.ErrNotFound
	}
	return append([]byte(nil), v.([]byte)...), nil
}

// WriteObject implements melda.Adapter.
func (a *Adapter) WriteObject(key string, data []byte) error {
	a.objects.Store(key, append([]byte(nil), data...))
	return nil
}

// ListObjects implements melda.Adapter.
func (a *Adapter) ListObjects(prefix string) ([]string, error) {
	var keys []string
	a.objects.Range(func(k, _ interface{}) bool {
		key := k.(string)
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			keys = append(keys, key)
		}
		return true
	})
	return keys, nil
}
