package manager

import (
	"context"

	"infera/internal/registry"
	"infera/pkg/types"
)

// Autoload loads every *.onnx file directly inside dir, named by filename
// stem. Failures are collected per file and never abort the scan. A missing
// or unreadable dir yields a single error entry naming dir.
func (m *Manager) Autoload(ctx context.Context, dir string) types.AutoloadResult {
	res := types.AutoloadResult{Loaded: []string{}, Errors: []types.AutoloadError{}}
	cands, err := registry.ScanDir(dir)
	if err != nil {
		res.Errors = append(res.Errors, types.AutoloadError{File: dir, Reason: err.Error()})
		m.log.Warn().Err(err).Str("event", "autoload").Str("dir", dir).Msg("autoload dir unreadable")
		return res
	}
	for _, c := range cands {
		if err := ctx.Err(); err != nil {
			res.Errors = append(res.Errors, types.AutoloadError{File: c.Path, Reason: err.Error()})
			continue
		}
		if err := m.Load(ctx, c.Name, c.Path); err != nil {
			res.Errors = append(res.Errors, types.AutoloadError{File: c.Path, Reason: err.Error()})
			continue
		}
		res.Loaded = append(res.Loaded, c.Name)
	}
	m.log.Info().Str("event", "autoload").Str("dir", dir).Int("loaded", len(res.Loaded)).Int("errors", len(res.Errors)).Msg("autoload done")
	return res
}
