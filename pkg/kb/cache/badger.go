package cache

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/nicktill/kpiengine/pkg/config"
	"github.com/nicktill/kpiengine/pkg/formula"
	"github.com/nicktill/kpiengine/pkg/kb"
)

// Key prefixes
const (
	prefixExact   byte = 'e'
	prefixClosest byte = 'c'
)

// Cache is a read-through kb.Source decorator backed by BadgerDB.
// Successful lookups are stored with a TTL; not-found answers are never cached.
type Cache struct {
	source kb.Source
	db     *badger.DB
	ttl    time.Duration

	hits   atomic.Uint64
	misses atomic.Uint64
}

// Config holds cache configuration
type Config struct {
	// Path to store database files
	Path string

	// InMemory mode (for testing)
	InMemory bool

	// MaxMemoryMB limits BadgerDB memory usage in MB (0 = laptop-friendly default)
	MaxMemoryMB int64

	// TTL of cached entries (0 = config.DefaultCacheTTL)
	TTL time.Duration
}

// Stats describes cache usage
type Stats struct {
	Entries   uint64 `json:"entries"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	LSMBytes  int64  `json:"lsm_bytes"`
	VLogBytes int64  `json:"vlog_bytes"`
}

// entry is the stored value. Requested guards against hash collisions.
type entry struct {
	Requested string              `json:"requested"`
	Name      string              `json:"name"`
	Formulas  *formula.FormulaSet `json:"formulas"`
}

// New wraps source with a BadgerDB cache
func New(source kb.Source, cfg Config) (*Cache, error) {
	if source == nil {
		return nil, errors.New("cache requires a knowledge base source")
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithLogger(nil)
	}

	// Formula sets are small; stay well under badger's 320 MB default
	memTableSize := int64(16 * 1024 * 1024)
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB * 1024 * 1024 / 3
	}

	opts = opts.
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(memTableSize / 2).
		WithIndexCacheSize(memTableSize / 4).
		WithMaxLevels(4).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithNumCompactors(2).
		WithValueLogFileSize(64 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = config.DefaultCacheTTL
	}

	return &Cache{source: source, db: db, ttl: ttl}, nil
}

// Lookup serves name from the cache, falling back to the wrapped source
func (c *Cache) Lookup(ctx context.Context, name string) (*formula.FormulaSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := makeKey(prefixExact, name)
	if cached, ok := c.get(key, name); ok {
		return cached.Formulas, nil
	}

	set, err := c.source.Lookup(ctx, name)
	if err != nil {
		return nil, err
	}

	c.put(key, entry{Requested: name, Name: name, Formulas: set})
	return set, nil
}

// LookupClosest serves closest-name matches from the cache, falling back to the wrapped source
func (c *Cache) LookupClosest(ctx context.Context, name string) (*kb.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := makeKey(prefixClosest, name)
	if cached, ok := c.get(key, name); ok {
		return &kb.Match{Name: cached.Name, Formulas: cached.Formulas}, nil
	}

	match, err := c.source.LookupClosest(ctx, name)
	if err != nil {
		return nil, err
	}

	c.put(key, entry{Requested: name, Name: match.Name, Formulas: match.Formulas})
	return match, nil
}

// Invalidate drops every cached answer for name
func (c *Cache) Invalidate(name string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		for _, prefix := range []byte{prefixExact, prefixClosest} {
			if err := txn.Delete(makeKey(prefix, name)); err != nil {
				return fmt.Errorf("failed to invalidate %q: %w", name, err)
			}
		}
		return nil
	})
}

// Purge drops the whole cache
func (c *Cache) Purge() error {
	return c.db.DropAll()
}

// get reads a cached entry, counting the hit or miss.
// Decode failures are treated as misses so the entry gets refreshed.
func (c *Cache) get(key []byte, requested string) (entry, bool) {
	var cached entry
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &cached)
		})
	})

	if err != nil || cached.Requested != requested || cached.Formulas == nil {
		c.misses.Add(1)
		return entry{}, false
	}
	c.hits.Add(1)
	return cached, true
}

// put stores an entry. Write failures only cost a future miss.
func (c *Cache) put(key []byte, e entry) {
	value, err := json.Marshal(e)
	if err != nil {
		return
	}
	_ = c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key, value).WithTTL(c.ttl))
	})
}

// Close shuts down BadgerDB cleanly
func (c *Cache) Close() error {
	return c.db.Close()
}

// RunGC runs BadgerDB's value log garbage collection.
// Returns nil when there was nothing to rewrite or the cache lives in memory.
func (c *Cache) RunGC(discardRatio float64) error {
	err := c.db.RunValueLogGC(discardRatio)
	switch {
	case errors.Is(err, badger.ErrNoRewrite),
		errors.Is(err, badger.ErrRejected),
		errors.Is(err, badger.ErrGCInMemoryMode):
		return nil
	}
	return err
}

// Stats counts live entries and reports badger's on-disk size
func (c *Cache) Stats(ctx context.Context) (*Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats := &Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}

	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if stats.Entries%1000 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			stats.Entries++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count cache entries: %w", err)
	}

	stats.LSMBytes, stats.VLogBytes = c.db.Size()
	return stats, nil
}

// makeKey creates a cache key: prefix (1 byte) + xxhash(name) (8 bytes)
func makeKey(prefix byte, name string) []byte {
	key := make([]byte, 9)
	key[0] = prefix
	binary.BigEndian.PutUint64(key[1:], xxhash.Sum64String(name))
	return key
}
