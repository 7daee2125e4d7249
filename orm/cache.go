package orm

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"maps"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"
)

// CacheOptions enables the find cache. Concurrent identical finds
// outside a transaction share one query; with a positive TTL the result
// is also kept for later calls. Callbacks receive the entity name and
// the cache key.
type CacheOptions struct {
	TTL      time.Duration
	OnDedupe func(entity, key string)
	OnHit    func(entity, key string)
	OnMiss   func(entity, key string)
}

type cacheEntry struct {
	rows    []Row
	expires time.Time
}

type findCache struct {
	opts  CacheOptions
	group singleflight.Group

	mu      sync.Mutex
	entries map[string]cacheEntry
}

func newFindCache(opts CacheOptions) *findCache {
	return &findCache{opts: opts, entries: make(map[string]cacheEntry)}
}

func (c *findCache) wrap(entity string, next FindFunc) FindFunc {
	return func(ctx context.Context, opts FindOptions) ([]Row, error) {
		// transactional reads must see transaction-local state
		if opts.Tx != nil {
			return next(ctx, opts)
		}
		key, err := cacheKey(entity, opts)
		if err != nil {
			return next(ctx, opts)
		}
		if rows, ok := c.lookup(key); ok {
			c.notify(c.opts.OnHit, entity, key)
			return cloneRows(rows), nil
		}

		leader := false
		v, err, _ := c.group.Do(key, func() (any, error) {
			leader = true
			c.notify(c.opts.OnMiss, entity, key)
			rows, err := next(ctx, opts)
			if err == nil {
				c.store(key, rows)
			}
			return rows, err
		})
		if !leader {
			c.notify(c.opts.OnDedupe, entity, key)
		}
		if err != nil {
			return nil, err //nolint:wrapcheck // pass through
		}
		return cloneRows(v.([]Row)), nil
	}
}

func (c *findCache) lookup(key string) ([]Row, bool) {
	if c.opts.TTL <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.rows, true
}

func (c *findCache) store(key string, rows []Row) {
	if c.opts.TTL <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{rows: cloneRows(rows), expires: time.Now().Add(c.opts.TTL)}
}

func (c *findCache) notify(fn func(entity, key string), entity, key string) {
	if fn != nil {
		fn(entity, key)
	}
}

// cacheKey hashes the entity name and find options, with map keys
// sorted and the transaction stripped.
func cacheKey(entity string, opts FindOptions) (string, error) {
	opts.Tx = nil

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.EncodeString(entity); err != nil {
		return "", err //nolint:wrapcheck // pass through
	}
	if err := enc.Encode(opts); err != nil {
		return "", err //nolint:wrapcheck // pass through
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

func cloneRows(rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = maps.Clone(r)
	}
	return out
}
