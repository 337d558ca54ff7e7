// Package fakebackend is a graph backend for tests. Model files are JSON
// documents describing tensor shapes; the graph sums each input row.
package fakebackend

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"infera/internal/backend"
)

// Spec is the on-disk model format understood by Backend.
type Spec struct {
	Inputs  []backend.TensorInfo `json:"inputs"`
	Outputs []backend.TensorInfo `json:"outputs"`
	// Op is "sum" (default): output[r][j] = sum(row r) + j, or "identity".
	Op string `json:"op,omitempty"`
	// Fail makes every Run return this message.
	Fail string `json:"fail,omitempty"`
	// DelayMS sleeps inside Run.
	DelayMS int `json:"delay_ms,omitempty"`
}

// Linear returns a single input/output spec with shapes [-1, in] and [-1, out].
func Linear(in, out int64) Spec {
	return Spec{
		Inputs:  []backend.TensorInfo{{Name: "x", Shape: []int64{backend.Dynamic, in}}},
		Outputs: []backend.TensorInfo{{Name: "y", Shape: []int64{backend.Dynamic, out}}},
	}
}

// Bytes encodes s as a model file.
func (s Spec) Bytes() []byte {
	b, _ := json.Marshal(s)
	return b
}

// WriteFile writes s to dir/name and returns the path.
func WriteFile(dir, name string, s Spec) (string, error) {
	p := filepath.Join(dir, name)
	return p, os.WriteFile(p, s.Bytes(), 0o644)
}

// Backend parses Spec documents. It counts runs and closes across all graphs.
type Backend struct {
	runs   atomic.Int64
	closes atomic.Int64
}

func New() *Backend { return &Backend{} }

func (*Backend) Name() string { return "fake" }

// Runs returns the number of forward passes executed.
func (b *Backend) Runs() int64 { return b.runs.Load() }

// Closes returns the number of graphs closed.
func (b *Backend) Closes() int64 { return b.closes.Load() }

func (b *Backend) Parse(data []byte) (backend.Graph, error) {
	var s Spec
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrMalformed, err)
	}
	return &graph{b: b, spec: s}, nil
}

type graph struct {
	b      *Backend
	spec   Spec
	mu     sync.Mutex
	closed bool
}

func (g *graph) Inputs() []backend.TensorInfo  { return g.spec.Inputs }
func (g *graph) Outputs() []backend.TensorInfo { return g.spec.Outputs }

func (g *graph) Run(in backend.Tensor) ([]backend.Tensor, error) {
	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		return nil, errors.New("run on closed graph")
	}
	if g.spec.DelayMS > 0 {
		time.Sleep(time.Duration(g.spec.DelayMS) * time.Millisecond)
	}
	g.b.runs.Add(1)
	if g.spec.Fail != "" {
		return nil, errors.New(g.spec.Fail)
	}
	n, err := backend.Elements(in.Shape)
	if err != nil {
		return nil, err
	}
	if n != len(in.Data) {
		return nil, fmt.Errorf("shape %v does not match %d values", in.Shape, len(in.Data))
	}
	rows := in.Shape[0]
	cols := 0
	if rows > 0 {
		cols = n / rows
	}
	outs := make([]backend.Tensor, 0, len(g.spec.Outputs))
	for _, o := range g.spec.Outputs {
		if g.spec.Op == "identity" {
			data := make([]float32, n)
			copy(data, in.Data)
			outs = append(outs, backend.Tensor{Shape: append([]int(nil), in.Shape...), Data: data})
			continue
		}
		width := 1
		for _, d := range o.Shape[min(1, len(o.Shape)):] {
			if d < 0 {
				d = int64(cols)
			}
			width *= int(d)
		}
		data := make([]float32, 0, rows*width)
		for r := 0; r < rows; r++ {
			var sum float32
			for _, v := range in.Data[r*cols : (r+1)*cols] {
				sum += v
			}
			for j := 0; j < width; j++ {
				data = append(data, sum+float32(j))
			}
		}
		outs = append(outs, backend.Tensor{Shape: []int{rows, width}, Data: data})
	}
	return outs, nil
}

func (g *graph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return errors.New("graph closed twice")
	}
	g.closed = true
	g.b.closes.Add(1)
	return nil
}
