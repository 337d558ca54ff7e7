// Package backend is the integration contract between the model manager and the
// tensor library that actually parses and executes ONNX graphs. The manager only
// needs three things from a backend: turn bytes into a graph, describe the graph's
// tensors, and run a forward pass.
package backend

import (
	"errors"
	"fmt"
)

// Dynamic marks a dimension whose size is only known at run time (usually batch).
const Dynamic int64 = -1

// TensorInfo describes one declared input or output of a graph.
type TensorInfo struct {
	Name  string
	Shape []int64
}

// Tensor is a dense float32 tensor in row-major order.
type Tensor struct {
	Shape []int
	Data  []float32
}

// Graph is a parsed, runnable model. Implementations must be safe for concurrent
// Run calls; backends that are not re-entrant serialize internally.
type Graph interface {
	// Inputs returns the declared input tensors in graph order.
	Inputs() []TensorInfo
	// Outputs returns the declared output tensors in graph order.
	Outputs() []TensorInfo
	// Run executes a forward pass feeding in to the first input.
	Run(in Tensor) ([]Tensor, error)
	// Close releases resources held by the graph. Run must not be called after Close.
	Close() error
}

// Backend parses model bytes into graphs.
type Backend interface {
	Name() string
	Parse(data []byte) (Graph, error)
}

// ErrMalformed is wrapped by backends when the model bytes cannot be parsed.
var ErrMalformed = errors.New("malformed model graph")

// Elements returns the number of elements described by shape. It returns an error
// for negative dimensions.
func Elements(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("negative dimension in shape %v", shape)
		}
		n *= d
	}
	return n, nil
}
