package manager

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"infera/internal/backend/fakebackend"
	"infera/internal/cache"
)

func TestClassifySource(t *testing.T) {
	cases := []struct {
		in   string
		kind SourceKind
		loc  string
	}{
		{"http://h/m.onnx", SourceRemote, "http://h/m.onnx"},
		{"HTTPS://h/m.onnx", SourceRemote, "HTTPS://h/m.onnx"},
		{"file:///data/m.onnx", SourceLocal, "/data/m.onnx"},
		{"/data/m.onnx", SourceLocal, "/data/m.onnx"},
		{"relative/m.onnx", SourceLocal, "relative/m.onnx"},
	}
	for _, c := range cases {
		kind, loc, err := ClassifySource(c.in)
		if err != nil {
			t.Fatalf("ClassifySource(%q): %v", c.in, err)
		}
		if kind != c.kind || loc != c.loc {
			t.Fatalf("ClassifySource(%q)=(%v,%q) want (%v,%q)", c.in, kind, loc, c.kind, c.loc)
		}
	}
}

type fakeFetcher struct {
	path string
	err  error
	uris []string
}

func (f *fakeFetcher) Fetch(_ context.Context, uri string) (cache.FetchResult, error) {
	f.uris = append(f.uris, uri)
	if f.err != nil {
		return cache.FetchResult{}, f.err
	}
	return cache.FetchResult{Path: f.path}, nil
}

func TestLoadRemoteUsesFetcher(t *testing.T) {
	dir := t.TempDir()
	p := writeModel(t, dir, "remote.onnx", fakebackend.Linear(3, 1))
	ff := &fakeFetcher{path: p}
	m := NewWithConfig(ManagerConfig{Backend: fakebackend.New(), Cache: ff})
	defer m.Close()
	if err := m.Load(testCtx(t), "r", "https://models.example/remote.onnx"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(ff.uris) != 1 || ff.uris[0] != "https://models.example/remote.onnx" {
		t.Fatalf("fetcher calls: %v", ff.uris)
	}
	info, _ := m.Info("r")
	if info.InputShape[1] != 3 {
		t.Fatalf("info: %+v", info)
	}
}

func TestLoadRemoteFetchFailureIsIOError(t *testing.T) {
	ff := &fakeFetcher{err: errors.New("connection refused")}
	m := NewWithConfig(ManagerConfig{Backend: fakebackend.New(), Cache: ff})
	defer m.Close()
	if err := m.Load(testCtx(t), "r", "http://unreachable/m.onnx"); !IsIOError(err) {
		t.Fatalf("expected io error, got %v", err)
	}
}

func TestLoadRemoteWithoutCache(t *testing.T) {
	m, _, _ := newTestManager(t)
	if err := m.Load(testCtx(t), "r", "http://h/m.onnx"); !IsIOError(err) {
		t.Fatalf("expected io error, got %v", err)
	}
}

func TestLoadRemoteThroughDiskCache(t *testing.T) {
	body := fakebackend.Linear(2, 1).Bytes()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	c, err := cache.Open(cache.Options{Dir: filepath.Join(t.TempDir(), "cache"), SizeLimit: 1 << 20})
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer c.Close()
	m := NewWithConfig(ManagerConfig{Backend: fakebackend.New(), Cache: c})
	defer m.Close()

	uri := srv.URL + "/lin.onnx"
	for i := 0; i < 2; i++ {
		if err := m.Load(testCtx(t), "lin", uri); err != nil {
			t.Fatalf("load %d: %v", i, err)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("server hits=%d want 1", hits.Load())
	}
	out, err := m.Predict(testCtx(t), "lin", []float32{2, 3}, 1, 2)
	if err != nil || out.Data[0] != 5 {
		t.Fatalf("predict: %+v err=%v", out, err)
	}
}
