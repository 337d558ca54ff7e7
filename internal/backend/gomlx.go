package backend

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	mlctx "github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/onnx-gomlx/onnx"
	"github.com/pkg/errors"

	// Pure Go engine, always available (no CGO).
	_ "github.com/gomlx/gomlx/backends/simplego"
)

// defaultEngines are tried in order when no engine is configured.
var defaultEngines = []string{"go", "simplego"}

// GoMLX executes ONNX graphs by converting them to GoMLX computations.
type GoMLX struct {
	engineName string

	mu     sync.Mutex
	engine backends.Backend
}

// NewGoMLX returns a backend using the named GoMLX engine ("" picks the pure Go engine).
func NewGoMLX(engineName string) *GoMLX {
	return &GoMLX{engineName: engineName}
}

// Name reports the backend identifier used in version reports.
func (b *GoMLX) Name() string {
	if b.engineName == "" {
		return "gomlx"
	}
	return "gomlx/" + b.engineName
}

// Available reports whether an engine can be created in this build.
func (b *GoMLX) Available() bool {
	_, err := b.getEngine()
	return err == nil
}

func (b *GoMLX) getEngine() (backends.Backend, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.engine != nil {
		return b.engine, nil
	}
	candidates := defaultEngines
	if b.engineName != "" {
		candidates = []string{b.engineName}
	}
	var lastErr error
	for _, name := range candidates {
		engine, err := backends.NewWithConfig(name)
		if err == nil {
			b.engine = engine
			return engine, nil
		}
		lastErr = err
	}
	return nil, errors.Wrap(lastErr, "creating gomlx engine")
}

// Parse decodes ONNX protobuf bytes and loads the graph's initializers.
func (b *GoMLX) Parse(data []byte) (Graph, error) {
	engine, err := b.getEngine()
	if err != nil {
		return nil, err
	}
	om, err := onnx.Parse(data)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformed, "onnx: %v", err)
	}
	ctx := mlctx.New()
	if err := om.VariablesToContext(ctx); err != nil {
		return nil, errors.Wrapf(ErrMalformed, "onnx variables: %v", err)
	}
	g := &gomlxGraph{model: om, ctx: ctx, engine: engine}
	names, dshapes := om.Inputs()
	for i, name := range names {
		g.inputs = append(g.inputs, TensorInfo{Name: name, Shape: dynamicDims(dshapes[i].Dimensions)})
	}
	names, dshapes = om.Outputs()
	for i, name := range names {
		g.outputs = append(g.outputs, TensorInfo{Name: name, Shape: dynamicDims(dshapes[i].Dimensions)})
	}
	return g, nil
}

func dynamicDims(dims []int) []int64 {
	out := make([]int64, len(dims))
	for i, d := range dims {
		if d < 0 {
			out[i] = Dynamic
			continue
		}
		out[i] = int64(d)
	}
	return out
}

// maxCompiledShapes bounds how many input shapes one executor keeps compiled.
// A new shape past the bound starts a fresh executor.
const maxCompiledShapes = 16

type gomlxGraph struct {
	model   *onnx.Model
	ctx     *mlctx.Context
	engine  backends.Backend
	inputs  []TensorInfo
	outputs []TensorInfo

	// mu serializes executions; a GoMLX context is not safe for concurrent graph builds.
	mu     sync.Mutex
	closed bool
	exec   *mlctx.Exec
	shapes map[string]struct{}
}

func (g *gomlxGraph) Inputs() []TensorInfo  { return g.inputs }
func (g *gomlxGraph) Outputs() []TensorInfo { return g.outputs }

func (g *gomlxGraph) Run(in Tensor) ([]Tensor, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, errors.New("graph is closed")
	}
	if len(g.inputs) != 1 {
		return nil, errors.Errorf("graph declares %d inputs, only single-input graphs can be run", len(g.inputs))
	}
	exec, err := g.executor(in.Shape)
	if err != nil {
		return nil, err
	}
	t := tensors.FromFlatDataAndDimensions(in.Data, in.Shape...)
	results, err := exec.Exec(t)
	if err != nil {
		return nil, errors.Wrap(err, "exec failed")
	}
	out := make([]Tensor, 0, len(results))
	for i, r := range results {
		data, err := flattenFloat32(r.Value())
		if err != nil {
			return nil, errors.Wrapf(err, "output %d", i)
		}
		out = append(out, Tensor{Shape: append([]int(nil), r.Shape().Dimensions...), Data: data})
	}
	return out, nil
}

// executor returns the cached executor, compiling one on first use. Each
// distinct input shape is compiled once by the executor itself. Caller holds g.mu.
func (g *gomlxGraph) executor(shape []int) (*mlctx.Exec, error) {
	key := fmt.Sprint(shape)
	if g.exec != nil {
		if _, ok := g.shapes[key]; ok || len(g.shapes) < maxCompiledShapes {
			g.shapes[key] = struct{}{}
			return g.exec, nil
		}
		g.exec.Finalize()
		g.exec = nil
	}
	inputName := g.inputs[0].Name
	graphFn := func(mlCtx *mlctx.Context, inputs []*graph.Node) []*graph.Node {
		return g.model.CallGraph(mlCtx.Reuse(), inputs[0].Graph(), map[string]*graph.Node{inputName: inputs[0]})
	}
	exec, err := mlctx.NewExec(g.engine, g.ctx, graphFn)
	if err != nil {
		return nil, errors.Wrap(err, "building executor")
	}
	exec.SetMaxCache(maxCompiledShapes)
	g.exec = exec
	g.shapes = map[string]struct{}{key: {}}
	return exec, nil
}

func (g *gomlxGraph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.exec != nil {
		g.exec.Finalize()
		g.exec = nil
	}
	g.closed = true
	g.model = nil
	g.ctx = nil
	return nil
}

// flattenFloat32 walks the nested slices returned by Tensor.Value in row-major order.
func flattenFloat32(v any) ([]float32, error) {
	if f, ok := v.(float32); ok {
		return []float32{f}, nil
	}
	if f, ok := v.([]float32); ok {
		return append([]float32(nil), f...), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, errors.Errorf("unsupported output type %T (want float32)", v)
	}
	var out []float32
	for i := 0; i < rv.Len(); i++ {
		part, err := flattenFloat32(rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		out = append(out, part...)
	}
	return out, nil
}
