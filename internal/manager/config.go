package manager

import (
	"context"

	"github.com/rs/zerolog"

	"infera/internal/backend"
	"infera/internal/cache"
)

// Fetcher materializes a remote URI as a local file. *cache.Cache implements it.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) (cache.FetchResult, error)
}

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	// Backend parses and runs graphs. Defaults to the gomlx engine.
	Backend backend.Backend
	// Cache resolves http(s) sources. Remote loads fail with an IO error when nil.
	Cache Fetcher
	// Logger receives lifecycle logs. Defaults to a no-op logger.
	Logger *zerolog.Logger
	// Publisher receives lifecycle events. Defaults to dropping them.
	Publisher EventPublisher
}

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig) *Manager {
	m := &Manager{
		models:    make(map[string]*Model),
		backend:   cfg.Backend,
		cache:     cfg.Cache,
		log:       zerolog.Nop(),
		publisher: cfg.Publisher,
	}
	if m.backend == nil {
		m.backend = backend.NewGoMLX("")
	}
	if cfg.Logger != nil {
		m.log = cfg.Logger.With().Str("component", "manager").Logger()
	}
	if m.publisher == nil {
		m.publisher = noopPublisher{}
	}
	m.startTime = timeNow()
	return m
}
