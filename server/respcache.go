package server

import (
	"strings"
	"sync"

	"github.com/brain-cockpit/cockpit/cockpit"

	"github.com/coocood/freecache"
	"github.com/golang/groupcache/lru"
)

// DefaultLargeResponses is the number of responses too large for the
// response cache arena that are kept in memory.
const DefaultLargeResponses = 32

// responseCache holds encoded responses of aggregating queries.  Keys carry
// the store generation, so entries computed before a reload that changed a
// dataset are never served again and simply age out.
//
// freecache refuses entries larger than 1/1024 of its size, which full
// surface maps usually are.  Those go to an LRU bounded by entry count.
type responseCache struct {
	cache *freecache.Cache

	mu    sync.Mutex
	large *lru.Cache
	hits  int64
}

func newResponseCache(size, largeEntries int) *responseCache {
	return &responseCache{
		cache: freecache.NewCache(size),
		large: lru.New(largeEntries),
	}
}

func responseKey(d *FeaturesDataset, parts ...string) []byte {
	return []byte(d.ID + "/" + d.Store().Generation() + "/" + strings.Join(parts, "/"))
}

func (rc *responseCache) get(key []byte) ([]byte, bool) {
	if rc == nil {
		return nil, false
	}
	if value, err := rc.cache.Get(key); err == nil {
		return value, true
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if v, found := rc.large.Get(string(key)); found {
		rc.hits++
		return v.([]byte), true
	}
	return nil, false
}

func (rc *responseCache) set(key, value []byte) {
	if rc == nil {
		return
	}
	err := rc.cache.Set(key, value, 0)
	if err == nil {
		return
	}
	if err != freecache.ErrLargeEntry {
		cockpit.Debugf("Response %q not cached: %v\n", key, err)
		return
	}
	rc.mu.Lock()
	rc.large.Add(string(key), value)
	rc.mu.Unlock()
}

// counts returns the hits and misses of the cache.  Arena misses answered
// by the LRU count as hits.
func (rc *responseCache) counts() (hits, misses int64) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.cache.HitCount() + rc.hits, rc.cache.MissCount() - rc.hits
}
