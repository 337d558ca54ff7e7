package boundary

import (
	"errors"
	"sync/atomic"

	"infera/pkg/types"
)

// ErrReleased is returned when a handle is released a second time.
var ErrReleased = errors.New("handle already released")

// Status codes carried by results and returned by status-only operations.
const (
	StatusOK    = 0
	StatusError = -1
)

// Result is an owned prediction result. It must be released exactly once;
// accessors on a released Result return zero values.
type Result struct {
	data     []float32
	rows     int
	cols     int
	status   int
	released atomic.Bool
}

func okResult(data []float32, rows, cols int) *Result {
	return &Result{data: data, rows: rows, cols: cols, status: StatusOK}
}

func errResult() *Result { return &Result{status: StatusError} }

func (r *Result) Data() []float32 {
	if r == nil || r.released.Load() {
		return nil
	}
	return r.data
}

func (r *Result) Len() int { return len(r.Data()) }

func (r *Result) Rows() int {
	if r == nil || r.released.Load() {
		return 0
	}
	return r.rows
}

func (r *Result) Cols() int {
	if r == nil || r.released.Load() {
		return 0
	}
	return r.cols
}

// Status is StatusOK or StatusError. A released Result reports StatusError.
func (r *Result) Status() int {
	if r == nil || r.released.Load() {
		return StatusError
	}
	return r.status
}

// Release frees the result. A second call returns ErrReleased and does nothing.
func (r *Result) Release() error {
	if r == nil {
		return nil
	}
	if !r.released.CompareAndSwap(false, true) {
		return ErrReleased
	}
	r.data = nil
	return nil
}

// OwnedString is a string handed to the caller; released exactly once.
type OwnedString struct {
	s        string
	released atomic.Bool
}

func ownString(s string) *OwnedString { return &OwnedString{s: s} }

func (o *OwnedString) String() string {
	if o == nil || o.released.Load() {
		return ""
	}
	return o.s
}

func (o *OwnedString) Release() error {
	if o == nil {
		return nil
	}
	if !o.released.CompareAndSwap(false, true) {
		return ErrReleased
	}
	o.s = ""
	return nil
}

// Metadata is an owned model metadata record.
type Metadata struct {
	md       types.ModelMetadata
	released atomic.Bool
}

func (m *Metadata) value() (types.ModelMetadata, bool) {
	if m == nil || m.released.Load() {
		return types.ModelMetadata{}, false
	}
	return m.md, true
}

func (m *Metadata) InputShape() []int64 {
	v, _ := m.value()
	return v.InputShape
}

func (m *Metadata) OutputShape() []int64 {
	v, _ := m.value()
	return v.OutputShape
}

func (m *Metadata) InputCount() int {
	v, _ := m.value()
	return v.InputCount
}

func (m *Metadata) OutputCount() int {
	v, _ := m.value()
	return v.OutputCount
}

func (m *Metadata) Release() error {
	if m == nil {
		return nil
	}
	if !m.released.CompareAndSwap(false, true) {
		return ErrReleased
	}
	m.md = types.ModelMetadata{}
	return nil
}
