package manager

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"time"

	"infera/internal/backend"
)

// Predict runs one batched forward pass over rows x cols row-major values.
// cols must match the model's input width when that width is static.
func (m *Manager) Predict(ctx context.Context, name string, data []float32, rows, cols int) (Output, error) {
	mdl, err := m.acquire(name)
	if err != nil {
		m.recordFailure(err)
		predictionsTotal.WithLabelValues("not_found").Inc()
		return Output{}, err
	}
	defer m.releaseModel(mdl)

	if rows <= 0 || cols <= 0 {
		return Output{}, m.failPredict(errorf(KindInvalidInput, "predict", name, "rows and cols must be positive (rows=%d cols=%d)", rows, cols))
	}
	if len(data) != rows*cols {
		return Output{}, m.failPredict(errorf(KindInvalidInput, "predict", name, "data has %d values, rows*cols is %d", len(data), rows*cols))
	}
	shape, err := inputShape(mdl, rows, cols)
	if err != nil {
		return Output{}, m.failPredict(err)
	}
	return m.run(ctx, mdl, shape, data, rows)
}

// PredictBlob decodes blob as little-endian float32 values and runs them as
// rows of the model's (static) input width.
func (m *Manager) PredictBlob(ctx context.Context, name string, blob []byte) (Output, error) {
	mdl, err := m.acquire(name)
	if err != nil {
		m.recordFailure(err)
		predictionsTotal.WithLabelValues("not_found").Inc()
		return Output{}, err
	}
	defer m.releaseModel(mdl)

	if len(blob) == 0 {
		return Output{}, m.failPredict(errorf(KindInvalidInput, "predict_blob", name, "blob is empty"))
	}
	if len(blob)%4 != 0 {
		return Output{}, m.failPredict(errorf(KindInvalidInput, "predict_blob", name, "blob length %d is not a multiple of 4", len(blob)))
	}
	width, ok := mdl.InputWidth()
	if !ok || width <= 0 {
		return Output{}, m.failPredict(errorf(KindShapeMismatch, "predict_blob", name, "input shape %v has no static width", mdl.InputShape))
	}
	floats := len(blob) / 4
	if floats%width != 0 {
		return Output{}, m.failPredict(errorf(KindShapeMismatch, "predict_blob", name, "%d values do not divide into rows of width %d", floats, width))
	}
	rows := floats / width
	shape, err := inputShape(mdl, rows, width)
	if err != nil {
		return Output{}, m.failPredict(err)
	}
	return m.run(ctx, mdl, shape, DecodeFloat32LE(blob), rows)
}

func (m *Manager) failPredict(err error) error {
	m.recordFailure(err)
	predictionsTotal.WithLabelValues(string(KindOf(err))).Inc()
	return err
}

func (m *Manager) run(ctx context.Context, mdl *Model, shape []int, data []float32, rows int) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, m.failPredict(newError(KindBackend, "predict", mdl.Name, err))
	}
	start := time.Now()
	outs, err := mdl.graph.Run(backend.Tensor{Shape: shape, Data: data})
	if err != nil {
		return Output{}, m.failPredict(newError(KindBackend, "predict", mdl.Name, err))
	}
	out, err := flattenOutputs(outs, rows)
	if err != nil {
		return Output{}, m.failPredict(newError(KindBackend, "predict", mdl.Name, err))
	}
	dur := time.Since(start)
	mdl.predictions.Add(1)
	m.predictionsTotal.Add(1)
	predictionsTotal.WithLabelValues("ok").Inc()
	predictDuration.Observe(dur.Seconds())
	m.log.Debug().Str("event", "predict").Str("model", mdl.Name).Int("rows", out.Rows).Int("cols", out.Cols).Dur("dur", dur).Msg("prediction done")
	return out, nil
}

// inputShape builds the tensor shape [rows] + input_shape[1:] for cols values
// per row. A single dynamic non-batch dimension is resolved from cols.
func inputShape(mdl *Model, rows, cols int) ([]int, error) {
	dims := mdl.InputShape
	shape := []int{rows}
	if len(dims) <= 1 {
		if cols != 1 {
			return nil, errorf(KindShapeMismatch, "predict", mdl.Name, "input has %d columns, model expects 1", cols)
		}
		return shape, nil
	}
	if width, static := mdl.InputWidth(); static {
		if cols != width {
			return nil, errorf(KindShapeMismatch, "predict", mdl.Name, "input has %d columns, model expects %d", cols, width)
		}
		for _, d := range dims[1:] {
			shape = append(shape, int(d))
		}
		return shape, nil
	}
	known, dyn := 1, -1
	for i, d := range dims[1:] {
		if d >= 0 {
			known *= int(d)
			continue
		}
		if dyn >= 0 {
			return nil, errorf(KindShapeMismatch, "predict", mdl.Name, "input shape %v has more than one dynamic feature dimension", dims)
		}
		dyn = i + 1
	}
	if known == 0 || cols%known != 0 {
		return nil, errorf(KindShapeMismatch, "predict", mdl.Name, "input has %d columns, not a multiple of %d", cols, known)
	}
	for i, d := range dims[1:] {
		if i+1 == dyn {
			shape = append(shape, cols/known)
		} else {
			shape = append(shape, int(d))
		}
	}
	return shape, nil
}

// flattenOutputs turns graph outputs into one row-major matrix. Multiple
// outputs are concatenated per row.
func flattenOutputs(outs []backend.Tensor, rows int) (Output, error) {
	if len(outs) == 0 {
		return Output{}, errors.New("graph produced no outputs")
	}
	if len(outs) == 1 {
		o := outs[0]
		n := len(o.Data)
		switch {
		case rows > 0 && n%rows == 0:
			return Output{Data: o.Data, Rows: rows, Cols: n / rows}, nil
		case len(o.Shape) > 0 && o.Shape[0] > 0 && n%o.Shape[0] == 0:
			return Output{Data: o.Data, Rows: o.Shape[0], Cols: n / o.Shape[0]}, nil
		default:
			return Output{Data: o.Data, Rows: 1, Cols: n}, nil
		}
	}
	widths := make([]int, len(outs))
	total := 0
	for i, o := range outs {
		if len(o.Data)%rows != 0 {
			return Output{}, errors.New("output is not aligned with the input batch")
		}
		widths[i] = len(o.Data) / rows
		total += widths[i]
	}
	data := make([]float32, 0, rows*total)
	for r := 0; r < rows; r++ {
		for i, o := range outs {
			data = append(data, o.Data[r*widths[i]:(r+1)*widths[i]]...)
		}
	}
	return Output{Data: data, Rows: rows, Cols: total}, nil
}

// DecodeFloat32LE reinterprets b (length a multiple of 4) as little-endian float32 values.
func DecodeFloat32LE(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// EncodeFloat32LE is the inverse of DecodeFloat32LE.
func EncodeFloat32LE(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}
