package manager

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"infera/internal/common/fsutil"
)

// SourceKind distinguishes local files from remote URIs.
type SourceKind int

const (
	SourceLocal SourceKind = iota
	SourceRemote
)

// ClassifySource reports whether source is remote (http/https, any case) and
// returns the location to read: the URI itself, or a local path with any
// file:// prefix removed and '~' expanded.
func ClassifySource(source string) (SourceKind, string, error) {
	lower := strings.ToLower(source)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return SourceRemote, source, nil
	}
	p := source
	if strings.HasPrefix(lower, "file://") {
		p = source[len("file://"):]
	}
	p, err := fsutil.ExpandHome(p)
	if err != nil {
		return SourceLocal, "", err
	}
	return SourceLocal, p, nil
}

// resolve turns source into model bytes and the local path they came from.
func (m *Manager) resolve(ctx context.Context, name, source string) ([]byte, string, error) {
	kind, loc, err := ClassifySource(source)
	if err != nil {
		return nil, "", newError(KindIOError, "load", name, err)
	}
	path := loc
	if kind == SourceRemote {
		if m.cache == nil {
			return nil, "", errorf(KindIOError, "load", name, "remote source %s: no cache configured", source)
		}
		res, err := m.cache.Fetch(ctx, loc)
		if err != nil {
			return nil, "", newError(KindIOError, "load", name, err)
		}
		path = res.Path
		m.log.Debug().Str("event", "fetch").Str("model", name).Str("uri", loc).Bool("hit", res.Hit).Int("evicted", len(res.Evicted)).Msg("remote source resolved")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", newError(KindIOError, "load", name, err)
	}
	return data, path, nil
}

// loadModel resolves, parses and validates source without touching the registry.
func (m *Manager) loadModel(ctx context.Context, name, source string) (*Model, error) {
	data, path, err := m.resolve(ctx, name, source)
	if err != nil {
		return nil, err
	}
	g, err := m.backend.Parse(data)
	if err != nil {
		return nil, newError(KindParseError, "load", name, err)
	}
	if len(g.Inputs()) == 0 || len(g.Outputs()) == 0 {
		_ = g.Close()
		return nil, newError(KindParseError, "load", name, errors.New("graph declares no inputs or no outputs"))
	}
	return newModel(name, source, path, g), nil
}

// Load resolves source, parses it and binds the result to name. Loading a
// name that is already bound swaps in the new model; the old graph is closed
// once no prediction holds it. On failure the registry is unchanged.
func (m *Manager) Load(ctx context.Context, name, source string) error {
	if strings.TrimSpace(name) == "" {
		return errorf(KindInvalidInput, "load", name, "model name is empty")
	}
	if strings.TrimSpace(source) == "" {
		return errorf(KindInvalidInput, "load", name, "model source is empty")
	}
	pub := m.pub()
	pub.Publish(Event{Name: "load_start", Model: name, Fields: map[string]any{"source": source}})
	start := time.Now()

	mdl, err := m.loadModel(ctx, name, source)
	if err != nil {
		m.recordFailure(err)
		loadsTotal.WithLabelValues("error").Inc()
		m.log.Warn().Err(err).Str("event", "load_error").Str("model", name).Str("source", source).Msg("load failed")
		pub.Publish(Event{Name: "load_error", Model: name, Fields: map[string]any{"source": source, "error": err.Error(), "kind": string(KindOf(err))}})
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.releaseModel(mdl)
		return errorf(KindInvalidInput, "load", name, "manager is closed")
	}
	old := m.models[name]
	m.models[name] = mdl
	if old == nil {
		m.order = append(m.order, name)
	}
	n := len(m.models)
	m.mu.Unlock()

	if old != nil {
		m.releaseModel(old)
	}
	m.loadsTotal.Add(1)
	loadsTotal.WithLabelValues("ok").Inc()
	loadedModels.Set(float64(n))
	dur := time.Since(start)
	m.log.Info().Str("event", "load_done").Str("model", name).Str("source", source).
		Ints64("input_shape", mdl.InputShape).Ints64("output_shape", mdl.OutputShape).
		Bool("replaced", old != nil).Dur("dur", dur).Msg("model loaded")
	pub.Publish(Event{Name: "load_done", Model: name, Fields: map[string]any{"source": source, "replaced": old != nil, "dur_ms": dur.Milliseconds()}})
	return nil
}
