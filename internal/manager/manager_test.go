package manager

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"infera/internal/backend"
	"infera/internal/backend/fakebackend"
)

func TestNewWithConfigDefaults(t *testing.T) {
	m := NewWithConfig(ManagerConfig{})
	if m.backend == nil {
		t.Fatalf("expected default backend")
	}
	if m.BackendName() == "" {
		t.Fatalf("expected backend name")
	}
	if _, ok := m.publisher.(noopPublisher); !ok {
		t.Fatalf("expected noop publisher by default, got %T", m.publisher)
	}
	if !m.Ready() {
		t.Fatalf("new manager should be ready")
	}
}

func TestLoadThenInfoReportsShapes(t *testing.T) {
	m, _, dir := newTestManager(t)
	mustLoad(t, m, dir, "m1", 3, 1)
	info, err := m.Info("m1")
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.Name != "m1" || !info.Loaded {
		t.Fatalf("unexpected info: %+v", info)
	}
	if !shapeEq(info.InputShape, []int64{-1, 3}) || !shapeEq(info.OutputShape, []int64{-1, 1}) {
		t.Fatalf("shapes: in=%v out=%v", info.InputShape, info.OutputShape)
	}
	// Returned shapes are copies.
	info.InputShape[1] = 99
	again, _ := m.Info("m1")
	if again.InputShape[1] != 3 {
		t.Fatalf("registry shape mutated through Info result")
	}
}

func TestInfoAndMetadataUnknown(t *testing.T) {
	m, _, _ := newTestManager(t)
	if _, err := m.Info("nope"); !IsModelNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := m.Metadata("nope"); !IsModelNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMetadataCountsTensors(t *testing.T) {
	m, _, dir := newTestManager(t)
	spec := fakebackend.Linear(4, 2)
	spec.Outputs = append(spec.Outputs, backend.TensorInfo{Name: "z", Shape: []int64{-1, 1}})
	p := writeModel(t, dir, "two.onnx", spec)
	if err := m.Load(testCtx(t), "two", p); err != nil {
		t.Fatalf("load: %v", err)
	}
	md, err := m.Metadata("two")
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if md.InputCount != 1 || md.OutputCount != 2 {
		t.Fatalf("counts: %+v", md)
	}
	if len(md.Outputs) != 2 || md.Outputs[1].Name != "z" {
		t.Fatalf("outputs: %+v", md.Outputs)
	}
	if !shapeEq(md.OutputShape, []int64{-1, 2}) {
		t.Fatalf("output shape: %v", md.OutputShape)
	}
}

func TestListKeepsInsertionOrderAcrossReload(t *testing.T) {
	m, _, dir := newTestManager(t)
	mustLoad(t, m, dir, "b", 2, 1)
	mustLoad(t, m, dir, "a", 2, 1)
	mustLoad(t, m, dir, "c", 2, 1)
	mustLoad(t, m, dir, "a", 5, 1) // reload
	got := m.List()
	want := []string{"b", "a", "c"}
	if len(got) != len(want) {
		t.Fatalf("list=%v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("list=%v want %v", got, want)
		}
	}
	info, _ := m.Info("a")
	if info.InputShape[1] != 5 {
		t.Fatalf("reload did not swap model: %+v", info)
	}
	// Returned slice is a copy.
	got[0] = "z"
	if m.List()[0] != "b" {
		t.Fatalf("list mutated via returned slice")
	}
}

func TestLoadValidation(t *testing.T) {
	m, _, _ := newTestManager(t)
	cases := []struct{ name, source string }{
		{"", "/x.onnx"},
		{"   ", "/x.onnx"},
		{"m", ""},
	}
	for _, c := range cases {
		err := m.Load(testCtx(t), c.name, c.source)
		if !IsInvalidInput(err) {
			t.Fatalf("Load(%q,%q): expected invalid input, got %v", c.name, c.source, err)
		}
	}
}

func TestLoadMissingFileIsIOError(t *testing.T) {
	m, _, dir := newTestManager(t)
	err := m.Load(testCtx(t), "m", filepath.Join(dir, "absent.onnx"))
	if !IsIOError(err) {
		t.Fatalf("expected io error, got %v", err)
	}
	if len(m.List()) != 0 {
		t.Fatalf("failed load registered a model")
	}
}

func TestLoadGarbageIsParseError(t *testing.T) {
	m, _, dir := newTestManager(t)
	p := filepath.Join(dir, "bad.onnx")
	if err := os.WriteFile(p, []byte("not a model"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := m.Load(testCtx(t), "bad", p); !IsParseError(err) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestLoadGraphWithoutOutputsIsParseError(t *testing.T) {
	m, be, dir := newTestManager(t)
	spec := fakebackend.Linear(3, 1)
	spec.Outputs = nil
	p := writeModel(t, dir, "noout.onnx", spec)
	if err := m.Load(testCtx(t), "noout", p); !IsParseError(err) {
		t.Fatalf("expected parse error, got %v", err)
	}
	if be.Closes() != 1 {
		t.Fatalf("rejected graph not closed: closes=%d", be.Closes())
	}
}

func TestFailedReloadKeepsPreviousModel(t *testing.T) {
	m, _, dir := newTestManager(t)
	mustLoad(t, m, dir, "m", 3, 1)
	if err := m.Load(testCtx(t), "m", filepath.Join(dir, "absent.onnx")); err == nil {
		t.Fatalf("expected error")
	}
	info, err := m.Info("m")
	if err != nil || info.InputShape[1] != 3 {
		t.Fatalf("previous model lost: %+v err=%v", info, err)
	}
}

func TestLoadFileURIAndHome(t *testing.T) {
	m, _, dir := newTestManager(t)
	p := writeModel(t, dir, "u.onnx", fakebackend.Linear(2, 1))
	if err := m.Load(testCtx(t), "u", "file://"+p); err != nil {
		t.Fatalf("file uri: %v", err)
	}
	t.Setenv("HOME", dir)
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", dir)
	}
	if err := m.Load(testCtx(t), "h", "~/u.onnx"); err != nil {
		t.Fatalf("home path: %v", err)
	}
}
