package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"infera/internal/manager"
	"infera/pkg/types"
)

type mockService struct {
	models     []string
	infos      map[string]types.ModelInfo
	status     types.StatusResponse
	ready      bool
	loadErr    error
	unloadErr  error
	predictErr error
	cacheErr   error
	out        manager.Output

	loaded    []types.LoadRequest
	unloaded  []string
	gotRows   int
	gotCols   int
	gotData   []float32
	gotBlob   []byte
	cleared   int
	autoDir   string
	predictFn func(ctx context.Context) error
}

func (m *mockService) List() []string { return append([]string(nil), m.models...) }

func (m *mockService) Info(name string) (types.ModelInfo, error) {
	if mi, ok := m.infos[name]; ok {
		return mi, nil
	}
	return types.ModelInfo{}, manager.ErrModelNotFound(name)
}

func (m *mockService) Metadata(name string) (types.ModelMetadata, error) {
	mi, err := m.Info(name)
	if err != nil {
		return types.ModelMetadata{}, err
	}
	return types.ModelMetadata{InputShape: mi.InputShape, OutputShape: mi.OutputShape, InputCount: 1, OutputCount: 1}, nil
}

func (m *mockService) Load(_ context.Context, name, source string) error {
	if m.loadErr != nil {
		return m.loadErr
	}
	m.loaded = append(m.loaded, types.LoadRequest{Name: name, Source: source})
	if m.infos == nil {
		m.infos = map[string]types.ModelInfo{}
	}
	m.infos[name] = types.ModelInfo{Name: name, InputShape: []int64{-1, 3}, OutputShape: []int64{-1, 1}, Loaded: true}
	return nil
}

func (m *mockService) Unload(name string) error {
	m.unloaded = append(m.unloaded, name)
	return m.unloadErr
}

func (m *mockService) Predict(ctx context.Context, _ string, data []float32, rows, cols int) (manager.Output, error) {
	m.gotData, m.gotRows, m.gotCols = data, rows, cols
	if m.predictFn != nil {
		if err := m.predictFn(ctx); err != nil {
			return manager.Output{}, err
		}
	}
	return m.out, m.predictErr
}

func (m *mockService) PredictBlob(_ context.Context, _ string, blob []byte) (manager.Output, error) {
	m.gotBlob = blob
	return m.out, m.predictErr
}

func (m *mockService) Autoload(_ context.Context, dir string) types.AutoloadResult {
	m.autoDir = dir
	return types.AutoloadResult{
		Loaded: []string{"a"},
		Errors: []types.AutoloadError{{File: "b.onnx", Reason: "parse"}},
	}
}

func (m *mockService) Status() types.StatusResponse { return m.status }
func (m *mockService) Ready() bool                  { return m.ready }

func (m *mockService) CacheInfo(context.Context) (types.CacheInfo, error) {
	if m.cacheErr != nil {
		return types.CacheInfo{}, m.cacheErr
	}
	return types.CacheInfo{CacheDir: "/tmp/c", TotalSizeBytes: 10, FileCount: 1, SizeLimitBytes: 100}, nil
}

func (m *mockService) ClearCache(context.Context) error {
	m.cleared++
	return m.cacheErr
}

func (m *mockService) VersionInfo() types.VersionInfo {
	return types.VersionInfo{Version: "1.2.3", Backend: "fake", CacheDir: "/tmp/c"}
}

type mockHTTPError struct {
	msg  string
	code int
}

func (e mockHTTPError) Error() string   { return e.msg }
func (e mockHTTPError) StatusCode() int { return e.code }

func do(t *testing.T, h http.Handler, method, path, ct string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if ct != "" {
		req.Header.Set("Content-Type", ct)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) types.ErrorResponse {
	t.Helper()
	var e types.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("error json: %v (%s)", err, w.Body.String())
	}
	return e
}

func TestModelsHandler(t *testing.T) {
	h := NewMux(&mockService{models: []string{"m1", "m2"}})
	w := do(t, h, http.MethodGet, "/models", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%s", ct)
	}
	var body types.ModelsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(body.Models) != 2 || body.Models[0] != "m1" {
		t.Fatalf("models=%v", body.Models)
	}
}

func TestModelsHandlerEmptyIsArray(t *testing.T) {
	w := do(t, NewMux(&mockService{}), http.MethodGet, "/models", "", nil)
	if !strings.Contains(w.Body.String(), `"models":[]`) {
		t.Fatalf("body=%s", w.Body.String())
	}
}

func TestLoadModel(t *testing.T) {
	svc := &mockService{}
	h := NewMux(svc)
	w := do(t, h, http.MethodPost, "/models", "application/json", []byte(`{"name":"lin","source":"/m/lin.onnx"}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var info types.ModelInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("json: %v", err)
	}
	if info.Name != "lin" || !info.Loaded {
		t.Fatalf("info=%+v", info)
	}
	if len(svc.loaded) != 1 || svc.loaded[0].Source != "/m/lin.onnx" {
		t.Fatalf("loaded=%v", svc.loaded)
	}
}

func TestLoadModelValidation(t *testing.T) {
	h := NewMux(&mockService{})
	cases := []struct {
		name, ct, body string
		want           int
	}{
		{"missing source", "application/json", `{"name":"a"}`, http.StatusBadRequest},
		{"blank name", "application/json", `{"name":"  ","source":"x"}`, http.StatusBadRequest},
		{"bad json", "application/json", `not-json`, http.StatusBadRequest},
		{"wrong media type", "text/plain", `{"name":"a","source":"b"}`, http.StatusUnsupportedMediaType},
	}
	for _, c := range cases {
		w := do(t, h, http.MethodPost, "/models", c.ct, []byte(c.body))
		if w.Code != c.want {
			t.Fatalf("%s: status=%d want %d", c.name, w.Code, c.want)
		}
	}
}

func TestLoadErrorMapping(t *testing.T) {
	cases := []struct {
		kind manager.Kind
		want int
	}{
		{manager.KindIOError, http.StatusBadGateway},
		{manager.KindParseError, http.StatusUnprocessableEntity},
		{manager.KindInvalidInput, http.StatusBadRequest},
		{manager.KindBackend, http.StatusInternalServerError},
	}
	for _, c := range cases {
		svc := &mockService{loadErr: &manager.Error{Kind: c.kind, Op: "load", Model: "a", Err: errors.New("boom")}}
		w := do(t, NewMux(svc), http.MethodPost, "/models", "application/json", []byte(`{"name":"a","source":"b"}`))
		if w.Code != c.want {
			t.Fatalf("%s: status=%d want %d", c.kind, w.Code, c.want)
		}
		if e := decodeError(t, w); e.Kind != string(c.kind) || e.Code != c.want {
			t.Fatalf("%s: body=%+v", c.kind, e)
		}
	}
}

func TestModelInfoAndMetadata(t *testing.T) {
	svc := &mockService{infos: map[string]types.ModelInfo{
		"m1": {Name: "m1", InputShape: []int64{-1, 3}, OutputShape: []int64{-1, 1}, Loaded: true},
	}}
	h := NewMux(svc)
	w := do(t, h, http.MethodGet, "/models/m1", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"input_shape":[-1,3]`) {
		t.Fatalf("info status=%d body=%s", w.Code, w.Body.String())
	}
	w = do(t, h, http.MethodGet, "/models/m1/metadata", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metadata status=%d", w.Code)
	}
	var md types.ModelMetadata
	if err := json.Unmarshal(w.Body.Bytes(), &md); err != nil {
		t.Fatalf("json: %v", err)
	}
	if md.InputCount != 1 || md.OutputShape[1] != 1 {
		t.Fatalf("metadata=%+v", md)
	}
}

func TestUnknownModelIs404(t *testing.T) {
	h := NewMux(&mockService{})
	for _, path := range []string{"/models/nope", "/models/nope/metadata"} {
		w := do(t, h, http.MethodGet, path, "", nil)
		if w.Code != http.StatusNotFound {
			t.Fatalf("%s: status=%d", path, w.Code)
		}
		e := decodeError(t, w)
		if e.Kind != "not_found" || !strings.Contains(e.Error, "nope") {
			t.Fatalf("%s: body=%+v", path, e)
		}
	}
}

func TestUnloadIsIdempotent(t *testing.T) {
	svc := &mockService{unloadErr: manager.ErrModelNotFound("gone")}
	w := do(t, NewMux(svc), http.MethodDelete, "/models/gone", "", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status=%d", w.Code)
	}
	if len(svc.unloaded) != 1 || svc.unloaded[0] != "gone" {
		t.Fatalf("unloaded=%v", svc.unloaded)
	}
}

func TestPredict(t *testing.T) {
	svc := &mockService{out: manager.Output{Data: []float32{6, 15}, Rows: 2, Cols: 1}}
	w := do(t, NewMux(svc), http.MethodPost, "/models/m1/predict", "application/json",
		[]byte(`{"rows":2,"cols":3,"data":[1,2,3,4,5,6]}`))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp types.PredictResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.Rows != 2 || resp.Cols != 1 || len(resp.Data) != 2 || resp.Data[1] != 15 {
		t.Fatalf("resp=%+v", resp)
	}
	if svc.gotRows != 2 || svc.gotCols != 3 || len(svc.gotData) != 6 {
		t.Fatalf("forwarded rows=%d cols=%d data=%v", svc.gotRows, svc.gotCols, svc.gotData)
	}
}

func TestPredictShapeMismatchIs400(t *testing.T) {
	svc := &mockService{predictErr: &manager.Error{Kind: manager.KindShapeMismatch, Op: "predict", Model: "m1", Err: errors.New("expected 3 columns, got 2")}}
	w := do(t, NewMux(svc), http.MethodPost, "/models/m1/predict", "application/json", []byte(`{"rows":1,"cols":2,"data":[1,2]}`))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
	if e := decodeError(t, w); e.Kind != "shape_mismatch" {
		t.Fatalf("body=%+v", e)
	}
}

func TestPredictHTTPErrorMapping(t *testing.T) {
	svc := &mockService{predictErr: mockHTTPError{msg: "slow down", code: http.StatusTooManyRequests}}
	w := do(t, NewMux(svc), http.MethodPost, "/models/m1/predict", "application/json", []byte(`{"rows":1,"cols":1,"data":[1]}`))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestPredictGenericErrorMaps500(t *testing.T) {
	svc := &mockService{predictErr: io.EOF}
	w := do(t, NewMux(svc), http.MethodPost, "/models/m1/predict", "application/json", []byte(`{"rows":1,"cols":1,"data":[1]}`))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestPredictBodyTooLarge(t *testing.T) {
	SetMaxBodyBytes(64)
	defer SetMaxBodyBytes(0)
	big := `{"rows":1,"cols":1,"data":[` + strings.Repeat("1,", 64) + `1]}`
	w := do(t, NewMux(&mockService{}), http.MethodPost, "/models/m1/predict", "application/json", []byte(big))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestPredictTimeout(t *testing.T) {
	SetPredictTimeout(20 * time.Millisecond)
	defer SetPredictTimeout(0)
	svc := &mockService{predictFn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	w := do(t, NewMux(svc), http.MethodPost, "/models/m1/predict", "application/json", []byte(`{"rows":1,"cols":1,"data":[1]}`))
	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestPredictBlob(t *testing.T) {
	svc := &mockService{out: manager.Output{Data: []float32{6}, Rows: 1, Cols: 1}}
	h := NewMux(svc)
	blob := manager.EncodeFloat32LE([]float32{1, 2, 3})
	w := do(t, h, http.MethodPost, "/models/m1/predict/blob", "application/octet-stream", blob)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if !bytes.Equal(svc.gotBlob, blob) {
		t.Fatalf("blob not forwarded: %v", svc.gotBlob)
	}
	w = do(t, h, http.MethodPost, "/models/m1/predict/blob", "application/json", blob)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("json blob status=%d", w.Code)
	}
}

func TestCacheEndpoints(t *testing.T) {
	svc := &mockService{}
	h := NewMux(svc)
	w := do(t, h, http.MethodGet, "/cache", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var ci types.CacheInfo
	if err := json.Unmarshal(w.Body.Bytes(), &ci); err != nil {
		t.Fatalf("json: %v", err)
	}
	if ci.SizeLimitBytes != 100 || ci.FileCount != 1 {
		t.Fatalf("cache=%+v", ci)
	}
	w = do(t, h, http.MethodDelete, "/cache", "", nil)
	if w.Code != http.StatusNoContent || svc.cleared != 1 {
		t.Fatalf("clear status=%d cleared=%d", w.Code, svc.cleared)
	}

	svc.cacheErr = errors.New("no cache configured")
	if w := do(t, h, http.MethodGet, "/cache", "", nil); w.Code != http.StatusInternalServerError {
		t.Fatalf("cache error status=%d", w.Code)
	}
}

func TestAutoload(t *testing.T) {
	svc := &mockService{}
	h := NewMux(svc)
	w := do(t, h, http.MethodPost, "/autoload", "application/json", []byte(`{"dir":"/models"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var res types.AutoloadResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("json: %v", err)
	}
	if svc.autoDir != "/models" || len(res.Loaded) != 1 || res.Errors[0].File != "b.onnx" {
		t.Fatalf("dir=%q res=%+v", svc.autoDir, res)
	}
	if w := do(t, h, http.MethodPost, "/autoload", "application/json", []byte(`{}`)); w.Code != http.StatusBadRequest {
		t.Fatalf("empty dir status=%d", w.Code)
	}
}

func TestVersionAndStatus(t *testing.T) {
	svc := &mockService{status: types.StatusResponse{LoadsTotal: 3, Backend: "fake"}}
	h := NewMux(svc)
	w := do(t, h, http.MethodGet, "/version", "", nil)
	if !strings.Contains(w.Body.String(), `"version":"1.2.3"`) {
		t.Fatalf("version body=%s", w.Body.String())
	}
	w = do(t, h, http.MethodGet, "/status", "", nil)
	var st types.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("json: %v", err)
	}
	if st.LoadsTotal != 3 || st.Backend != "fake" {
		t.Fatalf("status=%+v", st)
	}
}

func TestHealthAndReady(t *testing.T) {
	h := NewMux(&mockService{ready: true})
	if w := do(t, h, http.MethodGet, "/healthz", "", nil); w.Code != http.StatusOK {
		t.Fatalf("healthz=%d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/readyz", "", nil); w.Code != http.StatusOK {
		t.Fatalf("readyz=%d", w.Code)
	}
	w := do(t, NewMux(&mockService{}), http.MethodGet, "/readyz", "", nil)
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), "closed") {
		t.Fatalf("not ready: status=%d body=%q", w.Code, w.Body.String())
	}
}

func TestCORSAndSecurityHeaders(t *testing.T) {
	SetCORSOptions(true, []string{"*"}, []string{"GET", "POST", "OPTIONS"}, []string{"Content-Type"})
	defer SetCORSOptions(false, nil, nil, nil)
	h := NewMux(&mockService{})

	req := httptest.NewRequest(http.MethodOptions, "/models", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Fatalf("missing CORS allow-origin header")
	}

	w = do(t, h, http.MethodGet, "/healthz", "", nil)
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing nosniff")
	}
}
