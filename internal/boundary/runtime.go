// Package boundary is the caller-facing surface of infera. Every value handed
// out is an owned handle released exactly once, every failure becomes a -1
// status plus a message in the calling session's ErrorChannel, and model
// descriptors are rendered as JSON.
package boundary

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"infera/internal/backend"
	"infera/internal/cache"
	"infera/internal/config"
	"infera/internal/manager"
	"infera/pkg/types"
)

// Version is reported by GetVersion. Overridden at link time for releases.
var Version = "0.1.0"

// CacheAdmin is the part of the remote-model cache the boundary exposes.
type CacheAdmin interface {
	Dir() string
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (cache.Stats, error)
}

// Runtime is a manager plus its cache, shared by every Session.
type Runtime struct {
	mgr   *manager.Manager
	cache CacheAdmin
	log   zerolog.Logger
	close func() error
}

// RuntimeConfig wires an existing manager and cache into a Runtime.
type RuntimeConfig struct {
	Manager *manager.Manager
	Cache   CacheAdmin
	Logger  *zerolog.Logger
}

// NewRuntime wraps already constructed components.
func NewRuntime(cfg RuntimeConfig) *Runtime {
	rt := &Runtime{mgr: cfg.Manager, cache: cfg.Cache, log: zerolog.Nop()}
	if cfg.Logger != nil {
		rt.log = cfg.Logger.With().Str("component", "boundary").Logger()
	}
	return rt
}

// Open builds the cache, backend and manager described by cfg. When
// cfg.AutoloadDir is set the directory is loaded before Open returns; its
// per-file failures are logged, never fatal.
func Open(cfg config.Config, logger *zerolog.Logger) (*Runtime, error) {
	cfg = cfg.WithDefaults()
	c, err := cache.Open(cache.Options{
		Dir:           cfg.CacheDir,
		SizeLimit:     cfg.CacheSizeLimit,
		Timeout:       cfg.HTTPTimeout(),
		RetryAttempts: cfg.RetryAttempts,
		RetryDelay:    cfg.RetryDelay(),
		MaxAge:        cfg.CacheMaxAge(),
		HTTPClient:    &http.Client{},
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	mgr := manager.NewWithConfig(manager.ManagerConfig{
		Backend: backend.NewGoMLX(cfg.Engine),
		Cache:   c,
		Logger:  logger,
	})
	rt := NewRuntime(RuntimeConfig{Manager: mgr, Cache: c, Logger: logger})
	rt.close = func() error {
		return errors.Join(mgr.Close(), c.Close())
	}
	if cfg.AutoloadDir != "" {
		res := mgr.Autoload(context.Background(), cfg.AutoloadDir)
		for _, e := range res.Errors {
			rt.log.Warn().Str("event", "autoload_error").Str("file", e.File).Str("reason", e.Reason).Msg("autoload failed for file")
		}
	}
	return rt, nil
}

// Manager exposes the underlying registry.
func (rt *Runtime) Manager() *manager.Manager { return rt.mgr }

// Cache exposes the cache (nil when the runtime has none).
func (rt *Runtime) Cache() CacheAdmin { return rt.cache }

// Close releases every model and the cache when Open created them.
func (rt *Runtime) Close() error {
	if rt.close != nil {
		return rt.close()
	}
	return rt.mgr.Close()
}

// VersionInfo reports the library version, backend and cache directory.
func (rt *Runtime) VersionInfo() types.VersionInfo {
	v := types.VersionInfo{Version: Version, Backend: rt.mgr.BackendName()}
	if rt.cache != nil {
		v.CacheDir = rt.cache.Dir()
	}
	return v
}

// CacheInfo reports the cache footprint.
func (rt *Runtime) CacheInfo(ctx context.Context) (types.CacheInfo, error) {
	if rt.cache == nil {
		return types.CacheInfo{}, errors.New("no cache configured")
	}
	st, err := rt.cache.Stats(ctx)
	if err != nil {
		return types.CacheInfo{}, err
	}
	return types.CacheInfo{
		CacheDir:       st.Dir,
		TotalSizeBytes: st.TotalBytes,
		FileCount:      st.FileCount,
		SizeLimitBytes: st.LimitBytes,
	}, nil
}

// ClearCache removes every cached model file.
func (rt *Runtime) ClearCache(ctx context.Context) error {
	if rt.cache == nil {
		return errors.New("no cache configured")
	}
	return rt.cache.Clear(ctx)
}

// NewSession returns a caller view with its own error channel.
func (rt *Runtime) NewSession() *Session {
	return &Session{rt: rt}
}
