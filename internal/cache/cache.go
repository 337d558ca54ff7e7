// Package cache keeps remote model files in a bounded local directory.
//
// Files are named after the sha256 of their origin URI. Entries (uri, file, size,
// last access) live in a SQLite index inside the cache directory so the LRU order
// survives restarts. Every mutation (insert, evict, clear) runs under an
// in-process mutex and an advisory lock on the directory, so two callers sharing a
// cache directory can never push the total past the size limit or observe a
// partially written file. Downloads themselves write to private partial files
// outside the lock.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	modelExt     = ".onnx"
	partExt      = ".part"
	indexFile    = "index.db"
	lockFileName = ".lock"
)

// ErrTooLarge is returned when a single download exceeds the cache size limit.
var ErrTooLarge = errors.New("download exceeds cache size limit")

// Options configures a Cache. Zero values pick the package defaults.
type Options struct {
	Dir           string
	SizeLimit     int64
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	// MaxAge marks entries older than this as stale (re-downloaded on fetch). Zero disables.
	MaxAge     time.Duration
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

const (
	defaultSizeLimit     = int64(1 << 30)
	defaultTimeout       = 30 * time.Second
	defaultRetryAttempts = 3
)

// Entry is one cached model file.
type Entry struct {
	URI        string    `json:"uri"`
	Path       string    `json:"path"`
	Size       int64     `json:"size_bytes"`
	CreatedAt  time.Time `json:"created_at"`
	LastAccess time.Time `json:"last_access"`
}

// FetchResult reports where a URI was materialized and what the insertion evicted.
type FetchResult struct {
	Path    string
	Hit     bool
	Evicted []Entry
}

// Stats summarizes the cache directory.
type Stats struct {
	Dir        string `json:"cache_dir"`
	TotalBytes int64  `json:"total_size_bytes"`
	FileCount  int    `json:"file_count"`
	LimitBytes int64  `json:"size_limit_bytes"`
}

// Cache is a size-bounded, LRU-evicted store of downloaded model files.
type Cache struct {
	dir      string
	limit    int64
	timeout  time.Duration
	attempts int
	delay    time.Duration
	maxAge   time.Duration
	client   *http.Client
	log      zerolog.Logger

	mu       sync.Mutex
	index    *index
	flock    *dirLock
	inflight singleflight.Group
	now      func() time.Time
}

// Open prepares dir (creating it when needed), opens the index and drops index
// rows whose files vanished.
func Open(opts Options) (*Cache, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, errors.New("cache dir is required")
	}
	c := &Cache{
		dir:      opts.Dir,
		limit:    opts.SizeLimit,
		timeout:  opts.Timeout,
		attempts: opts.RetryAttempts,
		delay:    opts.RetryDelay,
		maxAge:   opts.MaxAge,
		client:   opts.HTTPClient,
		log:      zerolog.Nop(),
		now:      time.Now,
	}
	if opts.Logger != nil {
		c.log = opts.Logger.With().Str("component", "cache").Logger()
	}
	if c.limit <= 0 {
		c.limit = defaultSizeLimit
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.attempts <= 0 {
		c.attempts = defaultRetryAttempts
	}
	if c.delay < 0 {
		c.delay = 0
	}
	if c.client == nil {
		c.client = &http.Client{}
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	lk, err := newDirLock(filepath.Join(c.dir, lockFileName))
	if err != nil {
		return nil, err
	}
	idx, err := openIndex(filepath.Join(c.dir, indexFile))
	if err != nil {
		_ = lk.close()
		return nil, err
	}
	c.index = idx
	c.flock = lk
	if err := c.reconcile(context.Background()); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// Close releases the index and the directory lock handle.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	if c.index != nil {
		errs = append(errs, c.index.close())
		c.index = nil
	}
	if c.flock != nil {
		errs = append(errs, c.flock.close())
		c.flock = nil
	}
	return errors.Join(errs...)
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// Limit returns the configured size limit in bytes.
func (c *Cache) Limit() int64 { return c.limit }

// Key returns the cache key (hex sha256) for uri.
func Key(uri string) string {
	h := sha256.Sum256([]byte(uri))
	return hex.EncodeToString(h[:])
}

// lock takes the process mutex and the directory lock. The returned func releases both.
func (c *Cache) lock(ctx context.Context) (func(), error) {
	c.mu.Lock()
	if c.index == nil {
		c.mu.Unlock()
		return nil, errors.New("cache is closed")
	}
	if err := c.flock.lock(ctx); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	return func() {
		if err := c.flock.unlock(); err != nil {
			c.log.Warn().Err(err).Msg("cache unlock")
		}
		c.mu.Unlock()
	}, nil
}

// Fetch returns a local path holding the content of uri, downloading it on a
// miss or when the cached copy is stale. The download runs without the cache
// lock so hits are never held up by it; concurrent fetches of the same uri
// share one download. Eviction runs synchronously after the insert and the
// evicted entries are returned.
func (c *Cache) Fetch(ctx context.Context, uri string) (FetchResult, error) {
	if strings.TrimSpace(uri) == "" {
		return FetchResult{}, errors.New("empty uri")
	}
	res, ok, err := c.lookup(ctx, uri)
	if err != nil || ok {
		return res, err
	}
	ch := c.inflight.DoChan(uri, func() (any, error) {
		// A fetch that finished since our lookup may have committed uri.
		if res, ok, err := c.lookup(ctx, uri); err != nil || ok {
			return res, err
		}
		return c.fill(ctx, uri)
	})
	select {
	case <-ctx.Done():
		return FetchResult{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return FetchResult{}, r.Err
		}
		return r.Val.(FetchResult), nil
	}
}

// lookup serves uri from the index when it can. A stale or broken entry is
// removed; a model file without an index row is adopted.
func (c *Cache) lookup(ctx context.Context, uri string) (FetchResult, bool, error) {
	unlock, err := c.lock(ctx)
	if err != nil {
		return FetchResult{}, false, err
	}
	defer unlock()

	file := Key(uri) + modelExt
	path := filepath.Join(c.dir, file)
	e, ok, err := c.index.get(ctx, uri)
	if err != nil {
		return FetchResult{}, false, err
	}
	if ok {
		if c.valid(e, path) {
			if err := c.index.touch(ctx, uri, c.now()); err != nil {
				return FetchResult{}, false, err
			}
			cacheHits.Inc()
			c.log.Debug().Str("event", "cache_hit").Str("uri", uri).Msg("cache hit")
			return FetchResult{Path: path, Hit: true}, true, nil
		}
		c.log.Info().Str("event", "cache_stale").Str("uri", uri).Msg("cached copy is stale")
		if err := c.removeLocked(ctx, e); err != nil {
			return FetchResult{}, false, err
		}
		return FetchResult{}, false, nil
	}
	fi, statErr := os.Stat(path)
	if statErr != nil || !fi.Mode().IsRegular() || fi.Size() > c.limit {
		return FetchResult{}, false, nil
	}
	// File without an index row (index recreated): adopt it.
	now := c.now()
	if err := c.index.put(ctx, Entry{URI: uri, Path: file, Size: fi.Size(), CreatedAt: now, LastAccess: now}); err != nil {
		return FetchResult{}, false, err
	}
	cacheHits.Inc()
	c.log.Info().Str("event", "cache_adopt").Str("uri", uri).Msg("adopted file without index entry")
	evicted, err := c.evictLocked(ctx, uri)
	if err != nil {
		return FetchResult{}, false, err
	}
	c.updateSizeGauge(ctx)
	return FetchResult{Path: path, Hit: true, Evicted: evicted}, true, nil
}

// fill downloads uri into a private partial file, then commits it under the lock.
func (c *Cache) fill(ctx context.Context, uri string) (FetchResult, error) {
	cacheMisses.Inc()
	c.log.Info().Str("event", "cache_miss").Str("uri", uri).Msg("downloading")
	key := Key(uri)
	tmp, size, err := c.download(ctx, uri, key)
	if err != nil {
		return FetchResult{}, err
	}
	if size > c.limit {
		_ = os.Remove(tmp)
		return FetchResult{}, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, size, c.limit)
	}
	unlock, err := c.lock(ctx)
	if err != nil {
		_ = os.Remove(tmp)
		return FetchResult{}, err
	}
	defer unlock()

	file := key + modelExt
	path := filepath.Join(c.dir, file)
	// Another process may have committed the same uri while we downloaded.
	if e, ok, err := c.index.get(ctx, uri); err != nil {
		_ = os.Remove(tmp)
		return FetchResult{}, err
	} else if ok && c.valid(e, path) {
		_ = os.Remove(tmp)
		if err := c.index.touch(ctx, uri, c.now()); err != nil {
			return FetchResult{}, err
		}
		return FetchResult{Path: path, Hit: true}, nil
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return FetchResult{}, fmt.Errorf("commit download: %w", err)
	}
	now := c.now()
	if err := c.index.put(ctx, Entry{URI: uri, Path: file, Size: size, CreatedAt: now, LastAccess: now}); err != nil {
		_ = os.Remove(path)
		return FetchResult{}, err
	}
	evicted, err := c.evictLocked(ctx, uri)
	if err != nil {
		return FetchResult{}, err
	}
	c.updateSizeGauge(ctx)
	return FetchResult{Path: path, Evicted: evicted}, nil
}

func (c *Cache) valid(e Entry, path string) bool {
	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() || fi.Size() != e.Size {
		return false
	}
	if c.maxAge > 0 && c.now().Sub(e.CreatedAt) > c.maxAge {
		return false
	}
	return true
}

func (c *Cache) removeLocked(ctx context.Context, e Entry) error {
	if err := os.Remove(filepath.Join(c.dir, e.Path)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove cached file: %w", err)
	}
	return c.index.delete(ctx, e.URI)
}

// Clear deletes every cached file and index entry. The index database, the
// lock file and partial files of downloads still in progress are kept.
func (c *Cache) Clear(ctx context.Context) error {
	unlock, err := c.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("read cache dir: %w", err)
	}
	for _, de := range entries {
		name := de.Name()
		if name == lockFileName || strings.HasPrefix(name, indexFile) {
			continue
		}
		p := filepath.Join(c.dir, name)
		if strings.HasSuffix(name, partExt) && !c.abandoned(p) {
			continue
		}
		if de.IsDir() {
			err = os.RemoveAll(p)
		} else {
			err = os.Remove(p)
		}
		if err != nil {
			return fmt.Errorf("clear %s: %w", name, err)
		}
	}
	if err := c.index.deleteAll(ctx); err != nil {
		return err
	}
	cacheSizeBytes.Set(0)
	c.log.Info().Str("event", "cache_clear").Str("dir", c.dir).Msg("cache cleared")
	return nil
}

// Stats reports the current cache footprint.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index == nil {
		return Stats{}, errors.New("cache is closed")
	}
	total, count, err := c.index.totals(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Dir: c.dir, TotalBytes: total, FileCount: count, LimitBytes: c.limit}, nil
}

// Entries lists cached entries in eviction order (least recently used first).
func (c *Cache) Entries(ctx context.Context) ([]Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index == nil {
		return nil, errors.New("cache is closed")
	}
	list, err := c.index.list(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].Path = filepath.Join(c.dir, list[i].Path)
	}
	return list, nil
}

// reconcile drops index rows whose files are gone and removes abandoned partial
// downloads. Partial files still being written, possibly by another process, are kept.
func (c *Cache) reconcile(ctx context.Context) error {
	unlock, err := c.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	list, err := c.index.list(ctx)
	if err != nil {
		return err
	}
	for _, e := range list {
		fi, err := os.Stat(filepath.Join(c.dir, e.Path))
		if err == nil && fi.Size() == e.Size {
			continue
		}
		c.log.Info().Str("event", "cache_reconcile_drop").Str("uri", e.URI).Msg("dropping entry without file")
		if err := c.removeLocked(ctx, e); err != nil {
			return err
		}
	}
	parts, _ := filepath.Glob(filepath.Join(c.dir, "*"+partExt))
	for _, p := range parts {
		if c.abandoned(p) {
			_ = os.Remove(p)
		}
	}
	c.updateSizeGauge(ctx)
	return nil
}

// abandoned reports whether the partial file at p has not been written for
// longer than any single download attempt may take.
func (c *Cache) abandoned(p string) bool {
	fi, err := os.Stat(p)
	if err != nil {
		return false
	}
	return c.now().Sub(fi.ModTime()) > 2*c.timeout
}

func (c *Cache) updateSizeGauge(ctx context.Context) {
	if total, _, err := c.index.totals(ctx); err == nil {
		cacheSizeBytes.Set(float64(total))
	}
}
