package manager

// Unload removes the binding for name. The graph is released once no
// in-flight prediction holds it. An unknown name returns a not-found error.
func (m *Manager) Unload(name string) error {
	m.mu.Lock()
	mdl := m.models[name]
	if mdl == nil {
		m.mu.Unlock()
		return ErrModelNotFound(name)
	}
	delete(m.models, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	left := len(m.models)
	pub := m.publisher
	m.mu.Unlock()

	m.unloadsTotal.Add(1)
	unloadsTotal.Inc()
	loadedModels.Set(float64(left))
	m.log.Info().Str("event", "unload").Str("model", name).Int64("refs", mdl.Refs()-1).Msg("model unloaded")
	pub.Publish(Event{Name: "unload", Model: name, Fields: map[string]any{"inflight": mdl.Refs() - 1}})
	m.releaseModel(mdl)
	return nil
}

// Close unloads every model and rejects further loads.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	names := make([]string, len(m.order))
	copy(names, m.order)
	m.mu.Unlock()
	for _, n := range names {
		_ = m.Unload(n)
	}
	return nil
}
