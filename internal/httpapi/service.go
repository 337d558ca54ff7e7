package httpapi

import (
	"context"

	"infera/internal/boundary"
	"infera/internal/manager"
	"infera/pkg/types"
)

// runtimeService serves a boundary.Runtime: registry calls go straight to the
// manager, cache and version calls to the runtime.
type runtimeService struct {
	*manager.Manager
	rt *boundary.Runtime
}

// FromRuntime adapts rt to Service.
func FromRuntime(rt *boundary.Runtime) Service {
	return runtimeService{Manager: rt.Manager(), rt: rt}
}

func (s runtimeService) CacheInfo(ctx context.Context) (types.CacheInfo, error) {
	return s.rt.CacheInfo(ctx)
}

func (s runtimeService) ClearCache(ctx context.Context) error { return s.rt.ClearCache(ctx) }

func (s runtimeService) VersionInfo() types.VersionInfo { return s.rt.VersionInfo() }
