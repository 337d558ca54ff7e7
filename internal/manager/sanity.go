package manager

import (
	"infera/internal/backend"
	"infera/internal/common/fsutil"
)

// SanityReport describes whether the graph backend can run.
type SanityReport struct {
	Backend          string `json:"backend"`
	BackendAvailable bool   `json:"backend_available"`
	Error            string `json:"error,omitempty"`
}

// availabler is implemented by backends that may lack an execution engine at runtime.
type availabler interface {
	Available() bool
}

// SanityCheck validates that the graph backend has an engine. It does not
// mutate state and is safe to call at any time.
func (m *Manager) SanityCheck() SanityReport {
	r := SanityReport{Backend: m.backend.Name(), BackendAvailable: true}
	if a, ok := m.backend.(availabler); ok && !a.Available() {
		r.BackendAvailable = false
		r.Error = "no execution engine available for " + r.Backend
	}
	return r
}

// PreflightCheck is one named doctor check.
type PreflightCheck struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// Preflight runs the backend check plus writability checks on the given
// cache and autoload directories (empty dirs are skipped).
func (m *Manager) Preflight(cacheDir, autoloadDir string) []PreflightCheck {
	var out []PreflightCheck
	s := m.SanityCheck()
	out = append(out, PreflightCheck{Name: "backend_available", OK: s.BackendAvailable, Detail: firstNonEmpty(s.Error, s.Backend)})
	if cacheDir != "" {
		c := PreflightCheck{Name: "cache_dir_writable", OK: true, Detail: cacheDir}
		if err := fsutil.WritableDir(cacheDir); err != nil {
			c.OK, c.Detail = false, err.Error()
		}
		out = append(out, c)
	}
	if autoloadDir != "" {
		p, err := fsutil.ExpandHome(autoloadDir)
		c := PreflightCheck{Name: "autoload_dir_exists", OK: err == nil && fsutil.PathExists(p), Detail: autoloadDir}
		out = append(out, c)
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

var _ availabler = (*backend.GoMLX)(nil)
