// storage.go implements DataStorage (spec §4.5) and defines the Adapter
// boundary (spec §6) DataStorage mediates between MeldaCore and.
package melda

import (
	"container/list"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/melda-dev/melda/internal/log"
)

// ErrNotFound is returned by an Adapter's ReadObject when key is absent.
var ErrNotFound = errors.New("melda: key not found")

// Adapter is the external key/blob persistence contract (spec §6). melda
// never implements storage backends itself; store/memstore and
// store/fsstore ship reference implementations.
type Adapter interface {
	// ReadObject returns the bytes stored under key, or ErrNotFound.
	ReadObject(key string) ([]byte, error)
	// WriteObject stores bytes under key. Writing the same key with the
	// same bytes twice is a no-op.
	WriteObject(key string, data []byte) error
	// ListObjects returns every key with the given prefix.
	ListObjects(prefix string) ([]string, error)
}

const (
	deltaKeySuffix = ".delta"
	packKeySuffix  = ".pack"
)

func deltaKey(hash string) string { return hash + deltaKeySuffix }
func packKey(hash string) string  { return hash + packKeySuffix }

// DataStorage mediates between MeldaCore and an Adapter: it stages
// pending revision contents in memory, and on commit emits one pack
// object per staged content item plus one delta block, each keyed by its
// own content hash. It
// also provides a small read-through cache for both.
type DataStorage struct {
	adapter Adapter
	log     zerolog.Logger

	mu         sync.Mutex
	pending    map[string]Value // content hash -> staged object content
	cacheLimit int
	cache      *lruCache
}

// DataStorageOption configures a DataStorage at construction.
type DataStorageOption func(*DataStorage)

// WithCacheSize overrides the default read-through cache size (256).
func WithCacheSize(n int) DataStorageOption {
	return func(s *DataStorage) { s.cacheLimit = n }
}

// WithLogger attaches a logger for diagnostic events; the default is a
// no-op logger.
func WithLogger(l zerolog.Logger) DataStorageOption {
	return func(s *DataStorage) { s.log = l }
}

// WithStandardLogger builds a logger from cfg via internal/log instead
// of the default no-op logger, tagging every line with the "datastorage"
// component.
func WithStandardLogger(cfg log.Config) DataStorageOption {
	return func(s *DataStorage) { s.log = log.WithComponent(log.New(cfg), "datastorage") }
}

// NewDataStorage wraps adapter.
func NewDataStorage(adapter Adapter, opts ...DataStorageOption) *DataStorage {
	s := &DataStorage{
		adapter:    adapter,
		log:        log.Nop(),
		pending:    map[string]Value{},
		cacheLimit: 256,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cache = newLRUCache(s.cacheLimit)
	return s
}

// Stage records content under its content hash for inclusion in the next
// commit's pack, returning the hash. Staging the same content twice is
// cheap: the map dedupes it.
func (s *DataStorage) Stage(content Value) (string, error) {
	hash, err := ContentHash(content)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.pending[hash] = content
	s.mu.Unlock()
	return hash, nil
}

// HasPending reports whether anything is staged.
func (s *DataStorage) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) > 0
}

// ReadContent fetches object content by its hash, checking staged
// content, then cache, then the adapter's packs. Corruption (stored bytes
// that don't hash back to the key) surfaces as ErrCorruption rather than
// silently returning bad data.
func (s *DataStorage) ReadContent(hash string) (Value, error) {
	s.mu.Lock()
	if v, ok := s.pending[hash]; ok {
		s.mu.Unlock()
		return v, nil
	}
	if v, ok := s.cache.get(hash); ok {
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	raw, err := s.adapter.ReadObject(packKey(hash))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, newError(KindCorruption, err, "content %s not found in any pack", hash)
		}
		return nil, newError(KindAdapterIO, err, "reading pack for %s", hash)
	}

	v, err := DecodeJSON(raw)
	if err != nil {
		return nil, newError(KindCorruption, err, "pack for %s did not decode", hash)
	}
	got, err := ContentHash(v)
	if err != nil || got != hash {
		return nil, newError(KindCorruption, nil, "pack content hash mismatch: want %s got %s", hash, got)
	}

	s.mu.Lock()
	s.cache.put(hash, v)
	s.mu.Unlock()
	return v, nil
}

// CommitPending writes every staged content item out as its own pack
// object, keyed by that content's own hash — the "simpler hash → content
// map" fallback spec §6 explicitly allows, specialized to one entry per
// map. That keeps a single hash domain for staging, caching, and
// fetching: the same contentHashes this returns are exactly the keys
// ReadContent and a later meld's pack fetch use. Adapter failure aborts
// and leaves no partial visible state: nothing is cleared from the
// pending buffer until every write has succeeded.
func (s *DataStorage) CommitPending() (contentHashes []string, err error) {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return nil, nil
	}
	entries := make(map[string]Value, len(s.pending))
	for k, v := range s.pending {
		entries[k] = v
	}
	s.mu.Unlock()

	written := make([]string, 0, len(entries))
	for hash, content := range entries {
		buf, err := CanonicalBytes(content)
		if err != nil {
			return nil, err
		}
		if err := s.adapter.WriteObject(packKey(hash), buf); err != nil {
			s.log.Warn().Err(err).Str("pack", hash).Msg("pack write failed")
			return nil, newError(KindAdapterIO, err, "writing pack %s", hash)
		}
		written = append(written, hash)
	}

	s.mu.Lock()
	for _, hash := range written {
		delete(s.pending, hash)
		s.cache.put(hash, entries[hash])
	}
	s.mu.Unlock()

	return written, nil
}

// FetchPack copies the pack object for hash from src into s, verifying
// its content hash on the way, if s does not already have it cached or
// staged. Used by meld to pull packs a remote block references on demand
// (spec §4.7, "import referenced packs on demand") rather than eagerly
// mirroring a peer's entire pack set.
func (s *DataStorage) FetchPack(src *DataStorage, hash string) error {
	if _, err := s.ReadContent(hash); err == nil {
		return nil
	}
	content, err := src.ReadContent(hash)
	if err != nil {
		return err
	}
	buf, err := CanonicalBytes(content)
	if err != nil {
		return err
	}
	if err := s.adapter.WriteObject(packKey(hash), buf); err != nil {
		return newError(KindAdapterIO, err, "copying pack %s", hash)
	}
	s.mu.Lock()
	s.cache.put(hash, content)
	s.mu.Unlock()
	return nil
}

// WriteDeltaBlock writes block (already assigned its hash by the
// caller) through the adapter. If the delta write fails after a
// preceding pack write succeeded, the orphaned pack is harmless: it is
// addressed by its own hash and simply becomes unreferenced garbage
// (spec §5).
func (s *DataStorage) WriteDeltaBlock(hash string, block DeltaBlock) error {
	buf, err := block.Encode()
	if err != nil {
		return err
	}
	if err := s.adapter.WriteObject(deltaKey(hash), buf); err != nil {
		return newError(KindAdapterIO, err, "writing delta block %s", hash)
	}
	return nil
}

// ReadDeltaBlock fetches a delta block by hash, verifying its bytes hash
// back to the key.
func (s *DataStorage) ReadDeltaBlock(hash string) (DeltaBlock, error) {
	raw, err := s.adapter.ReadObject(deltaKey(hash))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return DeltaBlock{}, newError(KindCorruption, err, "delta block %s not found", hash)
		}
		return DeltaBlock{}, newError(KindAdapterIO, err, "reading delta block %s", hash)
	}
	if got := hashBytes(raw); got != hash {
		return DeltaBlock{}, newError(KindCorruption, nil, "delta block hash mismatch: want %s got %s", hash, got)
	}
	block, err := DecodeDeltaBlock(raw)
	if err != nil {
		return DeltaBlock{}, err
	}
	return block, nil
}

// ListDeltaBlocks enumerates every delta block hash the adapter knows
// about.
func (s *DataStorage) ListDeltaBlocks() ([]string, error) {
	keys, err := s.adapter.ListObjects("")
	if err != nil {
		return nil, newError(KindAdapterIO, err, "listing delta blocks")
	}
	var hashes []string
	for _, k := range keys {
		if n := len(k) - len(deltaKeySuffix); n > 0 && k[n:] == deltaKeySuffix {
			hashes = append(hashes, k[:n])
		}
	}
	return hashes, nil
}

// lruCache is a small fixed-size least-recently-used cache, used by
// ReadContent to avoid re-fetching hot packs through the adapter.
type lruCache struct {
	limit   int
	ll      *list.List
	entries map[string]*list.Element
}

type lruEntry struct {
	key   string
	value Value
}

func newLRUCache(limit int) *lruCache {
	if limit <= 0 {
		limit = 1
	}
	return &lruCache{limit: limit, ll: list.New(), entries: map[string]*list.Element{}}
}

func (c *lruCache) get(key string) (Value, bool) {
	if el, ok := c.entries[key]; ok {
		c.ll.MoveToFront(el)
		return el.Value.(*lruEntry).value, true
	}
	return nil, false
}

func (c *lruCache) put(key string, value Value) {
	if el, ok := c.entries[key]; ok {
		c.ll.MoveToFront(el)
		el.Value.(*lruEntry).value = value
		return
	}
	el := c.ll.PushFront(&lruEntry{key: key, value: value})
	c.entries[key] = el
	if c.ll.Len() > c.limit {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.entries, oldest.Value.(*lruEntry).key)
		}
	}
}
