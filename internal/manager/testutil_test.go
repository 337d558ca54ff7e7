package manager

import (
	"context"
	"testing"
	"time"

	"infera/internal/backend/fakebackend"
)

// newTestManager returns a manager over the fake backend and a temp dir for model files.
func newTestManager(t *testing.T) (*Manager, *fakebackend.Backend, string) {
	t.Helper()
	be := fakebackend.New()
	m := NewWithConfig(ManagerConfig{Backend: be})
	t.Cleanup(func() { _ = m.Close() })
	return m, be, t.TempDir()
}

// writeModel writes a fake model file and returns its path.
func writeModel(t *testing.T, dir, name string, s fakebackend.Spec) string {
	t.Helper()
	p, err := fakebackend.WriteFile(dir, name, s)
	if err != nil {
		t.Fatalf("write model: %v", err)
	}
	return p
}

// mustLoad loads a linear in->out model under name.
func mustLoad(t *testing.T, m *Manager, dir, name string, in, out int64) string {
	t.Helper()
	p := writeModel(t, dir, name+".onnx", fakebackend.Linear(in, out))
	if err := m.Load(context.Background(), name, p); err != nil {
		t.Fatalf("load %s: %v", name, err)
	}
	return p
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}

func shapeEq(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
