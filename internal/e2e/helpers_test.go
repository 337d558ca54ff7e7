package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"infera/internal/backend/fakebackend"
	"infera/internal/boundary"
	"infera/internal/cache"
	"infera/internal/httpapi"
	"infera/internal/manager"
)

type env struct {
	srv     *httptest.Server
	rt      *boundary.Runtime
	cache   *cache.Cache
	backend *fakebackend.Backend
	dir     string
}

// newEnv wires the HTTP API over a real manager and disk cache, with the fake
// graph backend standing in for gomlx.
func newEnv(t *testing.T, cacheLimit int64) *env {
	t.Helper()
	dir := t.TempDir()
	c, err := cache.Open(cache.Options{Dir: filepath.Join(dir, "cache"), SizeLimit: cacheLimit, RetryAttempts: 1})
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	be := fakebackend.New()
	mgr := manager.NewWithConfig(manager.ManagerConfig{Backend: be, Cache: c})
	rt := boundary.NewRuntime(boundary.RuntimeConfig{Manager: mgr, Cache: c})
	srv := httptest.NewServer(httpapi.NewMux(httpapi.FromRuntime(rt)))
	t.Cleanup(func() {
		srv.Close()
		_ = mgr.Close()
		_ = c.Close()
	})
	return &env{srv: srv, rt: rt, cache: c, backend: be, dir: dir}
}

// modelHost serves fake models by path and counts requests.
type modelHost struct {
	*httptest.Server
	hits   atomic.Int32
	models map[string][]byte
}

func newModelHost(t *testing.T, models map[string][]byte) *modelHost {
	t.Helper()
	h := &modelHost{models: models}
	h.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.hits.Add(1)
		b, ok := h.models[strings.TrimPrefix(r.URL.Path, "/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(b)
	}))
	t.Cleanup(h.Close)
	return h
}

func (e *env) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var rd io.Reader
	ct := ""
	switch b := body.(type) {
	case nil:
	case []byte:
		rd, ct = bytes.NewReader(b), "application/octet-stream"
	default:
		buf, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd, ct = bytes.NewReader(buf), "application/json"
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	if ct != "" {
		req.Header.Set("Content-Type", ct)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out
}

func mustDecode(t *testing.T, b []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(b, v); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
}
