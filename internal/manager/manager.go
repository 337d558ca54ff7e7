package manager

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"infera/internal/backend"
	"infera/pkg/types"
)

var timeNow = time.Now

// Manager is the concurrent name to Model registry and the inference engine
// running against it.
type Manager struct {
	mu     sync.RWMutex
	models map[string]*Model
	order  []string // insertion order of names
	closed bool

	backend   backend.Backend
	cache     Fetcher
	log       zerolog.Logger
	publisher EventPublisher
	startTime time.Time

	lastErr          atomic.Value // string
	loadsTotal       atomic.Uint64
	unloadsTotal     atomic.Uint64
	predictionsTotal atomic.Uint64
	failuresTotal    atomic.Uint64
}

// New builds a Manager using be for graphs and fetcher for remote sources.
func New(be backend.Backend, fetcher Fetcher) *Manager {
	return NewWithConfig(ManagerConfig{Backend: be, Cache: fetcher})
}

// SetEventPublisher replaces the lifecycle event sink. nil restores the default.
func (m *Manager) SetEventPublisher(p EventPublisher) {
	if p == nil {
		p = noopPublisher{}
	}
	m.mu.Lock()
	m.publisher = p
	m.mu.Unlock()
}

func (m *Manager) pub() EventPublisher {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.publisher
}

// BackendName reports the graph backend in use.
func (m *Manager) BackendName() string { return m.backend.Name() }

// Ready reports whether the manager accepts work (false after Close).
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed
}

// List returns loaded model names in insertion order. A reload keeps the
// name at its original position.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Info describes a loaded model.
func (m *Manager) Info(name string) (types.ModelInfo, error) {
	m.mu.RLock()
	mdl := m.models[name]
	m.mu.RUnlock()
	if mdl == nil {
		return types.ModelInfo{}, ErrModelNotFound(name)
	}
	return types.ModelInfo{
		Name:        mdl.Name,
		InputShape:  cloneShape(mdl.InputShape),
		OutputShape: cloneShape(mdl.OutputShape),
		Loaded:      true,
	}, nil
}

// Metadata returns the shape summary and tensor descriptors of a loaded model.
func (m *Manager) Metadata(name string) (types.ModelMetadata, error) {
	m.mu.RLock()
	mdl := m.models[name]
	m.mu.RUnlock()
	if mdl == nil {
		return types.ModelMetadata{}, ErrModelNotFound(name)
	}
	return types.ModelMetadata{
		InputShape:  cloneShape(mdl.InputShape),
		OutputShape: cloneShape(mdl.OutputShape),
		InputCount:  len(mdl.Inputs),
		OutputCount: len(mdl.Outputs),
		Inputs:      tensorDescs(mdl.Inputs),
		Outputs:     tensorDescs(mdl.Outputs),
	}, nil
}

// acquire returns the model bound to name with a reference held. The caller
// must call release.
func (m *Manager) acquire(name string) (*Model, error) {
	m.mu.RLock()
	mdl := m.models[name]
	ok := mdl != nil && mdl.acquire()
	m.mu.RUnlock()
	if !ok {
		return nil, ErrModelNotFound(name)
	}
	return mdl, nil
}

// releaseModel drops a reference and reports when the graph was closed.
func (m *Manager) releaseModel(mdl *Model) {
	closed, err := mdl.release()
	if !closed {
		return
	}
	if err != nil {
		m.log.Warn().Err(err).Str("event", "release").Str("model", mdl.Name).Msg("graph close failed")
	}
	m.pub().Publish(Event{Name: "release", Model: mdl.Name, Fields: map[string]any{"source": mdl.Source}})
}

func (m *Manager) recordFailure(err error) {
	m.failuresTotal.Add(1)
	m.lastErr.Store(err.Error())
}

func tensorDescs(in []backend.TensorInfo) []types.TensorDesc {
	out := make([]types.TensorDesc, len(in))
	for i, t := range in {
		out[i] = types.TensorDesc{Name: t.Name, Shape: cloneShape(t.Shape)}
	}
	return out
}
