package cache

import (
	"context"
	"path/filepath"
)

// evictLocked removes least recently used entries until the total size is at
// most the limit. keep is never evicted. Caller holds the cache lock.
func (c *Cache) evictLocked(ctx context.Context, keep string) ([]Entry, error) {
	total, _, err := c.index.totals(ctx)
	if err != nil {
		return nil, err
	}
	if total <= c.limit {
		return nil, nil
	}
	list, err := c.index.list(ctx)
	if err != nil {
		return nil, err
	}
	var evicted []Entry
	for _, e := range list {
		if total <= c.limit {
			break
		}
		if e.URI == keep {
			continue
		}
		if err := c.removeLocked(ctx, e); err != nil {
			return evicted, err
		}
		total -= e.Size
		cacheEvictions.Inc()
		c.log.Info().Str("event", "cache_evict").Str("uri", e.URI).Int64("bytes", e.Size).Msg("evicted")
		e.Path = filepath.Join(c.dir, e.Path)
		evicted = append(evicted, e)
	}
	return evicted, nil
}
