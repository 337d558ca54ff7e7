package manager

import "infera/pkg/types"

// Status builds a detailed status response for /status.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	resp := types.StatusResponse{
		Models:           make([]types.ModelStatus, 0, len(m.order)),
		LoadsTotal:       m.loadsTotal.Load(),
		UnloadsTotal:     m.unloadsTotal.Load(),
		PredictionsTotal: m.predictionsTotal.Load(),
		FailuresTotal:    m.failuresTotal.Load(),
		Backend:          m.backend.Name(),
	}
	for _, name := range m.order {
		mdl := m.models[name]
		resp.Models = append(resp.Models, types.ModelStatus{
			Name:        mdl.Name,
			Source:      mdl.Source,
			Refs:        mdl.Refs(),
			LoadedAt:    mdl.LoadedAt.Unix(),
			Predictions: mdl.predictions.Load(),
		})
	}
	m.mu.RUnlock()
	if v, ok := m.lastErr.Load().(string); ok {
		resp.LastError = v
	}
	now := timeNow()
	resp.UptimeSeconds = int64(now.Sub(m.startTime).Seconds())
	resp.ServerTimeUnix = now.Unix()
	return resp
}
