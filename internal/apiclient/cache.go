package apiclient

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const listCacheCapacity = 64

// ListCache keeps recent list responses of one session for a short TTL so
// that re-rendering a page does not hit the backend again. Failed fetches are
// never stored. A nil or zero-TTL cache always fetches.
type ListCache struct {
	items *ttlcache.Cache[string, Records]
}

// NewListCache returns a cache whose entries expire after ttl. ttl <= 0
// disables caching.
func NewListCache(ttl time.Duration) *ListCache {
	if ttl <= 0 {
		return &ListCache{}
	}
	return &ListCache{
		items: ttlcache.New[string, Records](
			ttlcache.WithTTL[string, Records](ttl),
			ttlcache.WithCapacity[string, Records](listCacheCapacity),
			ttlcache.WithDisableTouchOnHit[string, Records](),
		),
	}
}

// Fetch returns the cached rows for key, calling fetch on a miss. hit reports
// whether the rows came from the cache.
func (c *ListCache) Fetch(key string, fetch func() (Records, error)) (rows Records, hit bool, err error) {
	if c == nil || c.items == nil {
		rows, err = fetch()
		return rows, false, err
	}

	if item := c.items.Get(key); item != nil {
		return item.Value(), true, nil
	}

	rows, err = fetch()
	if err != nil {
		return nil, false, err
	}
	c.items.Set(key, rows, ttlcache.DefaultTTL)
	return rows, false, nil
}

// Clear drops every cached entry
func (c *ListCache) Clear() {
	if c == nil || c.items == nil {
		return
	}
	c.items.DeleteAll()
}

// Len returns the number of live entries
func (c *ListCache) Len() int {
	if c == nil || c.items == nil {
		return 0
	}
	return c.items.Len()
}
