package manager

import (
	"sync/atomic"
	"time"

	"infera/internal/backend"
)

// Model is a parsed graph bound to a registry name. Shapes never change after
// load. The graph is owned exclusively by the Model and closed when the last
// reference is released.
type Model struct {
	Name        string
	Source      string
	Path        string
	Inputs      []backend.TensorInfo
	Outputs     []backend.TensorInfo
	InputShape  []int64
	OutputShape []int64
	LoadedAt    time.Time

	graph       backend.Graph
	refs        atomic.Int64
	predictions atomic.Uint64
}

func newModel(name, source, path string, g backend.Graph) *Model {
	m := &Model{
		Name:     name,
		Source:   source,
		Path:     path,
		Inputs:   g.Inputs(),
		Outputs:  g.Outputs(),
		LoadedAt: time.Now(),
		graph:    g,
	}
	m.InputShape = cloneShape(m.Inputs[0].Shape)
	m.OutputShape = cloneShape(m.Outputs[0].Shape)
	m.refs.Store(1)
	return m
}

// acquire takes a reference. It fails once the graph has been released.
func (m *Model) acquire() bool {
	for {
		n := m.refs.Load()
		if n <= 0 {
			return false
		}
		if m.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// release drops a reference and closes the graph when it was the last one.
func (m *Model) release() (closed bool, err error) {
	if m.refs.Add(-1) != 0 {
		return false, nil
	}
	return true, m.graph.Close()
}

// Refs returns the current reference count.
func (m *Model) Refs() int64 { return m.refs.Load() }

// InputWidth is the product of the non-batch input dims. ok is false when any
// of them is dynamic.
func (m *Model) InputWidth() (width int, ok bool) {
	width = 1
	for i, d := range m.InputShape {
		if i == 0 {
			continue
		}
		if d < 0 {
			return 0, false
		}
		width *= int(d)
	}
	return width, true
}

// Output is a flattened row-major prediction result.
type Output struct {
	Data []float32
	Rows int
	Cols int
}

func cloneShape(s []int64) []int64 {
	out := make([]int64, len(s))
	copy(out, s)
	return out
}
