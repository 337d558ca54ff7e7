// Package httpapi serves the model registry, inference engine and remote-model
// cache over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"infera/internal/manager"
	"infera/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	List() []string
	Info(name string) (types.ModelInfo, error)
	Metadata(name string) (types.ModelMetadata, error)
	Load(ctx context.Context, name, source string) error
	Unload(name string) error
	Predict(ctx context.Context, name string, data []float32, rows, cols int) (manager.Output, error)
	PredictBlob(ctx context.Context, name string, blob []byte) (manager.Output, error)
	Autoload(ctx context.Context, dir string) types.AutoloadResult
	Status() types.StatusResponse
	Ready() bool
	CacheInfo(ctx context.Context) (types.CacheInfo, error)
	ClearCache(ctx context.Context) error
	VersionInfo() types.VersionInfo
}

// NewMux builds the router for svc.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(requestLogger)
	r.Use(middleware.Compress(5))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: orDefault(corsAllowedOrigins, []string{"*"}),
			AllowedMethods: orDefault(corsAllowedMethods, []string{"GET", "POST", "DELETE", "OPTIONS"}),
			AllowedHeaders: orDefault(corsAllowedHeaders, []string{"Content-Type", "X-Log-Level"}),
			MaxAge:         300,
		}))
	}

	h := &handlers{svc: svc}
	r.Route("/models", func(r chi.Router) {
		r.Get("/", h.listModels)
		r.Post("/", h.loadModel)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", h.modelInfo)
			r.Delete("/", h.unloadModel)
			r.Get("/metadata", h.modelMetadata)
			r.Post("/predict", h.predict)
			r.Post("/predict/blob", h.predictBlob)
		})
	})
	r.Get("/cache", h.cacheInfo)
	r.Delete("/cache", h.clearCache)
	r.Post("/autoload", h.autoload)
	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.VersionInfo())
	})
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("closed"))
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)
	return r
}

type handlers struct {
	svc Service
}

func modelParam(r *http.Request) string {
	return chi.URLParam(r, "name")
}

// listModels godoc
// @Summary  List loaded models
// @Tags     models
// @Produce  json
// @Success  200 {object} types.ModelsResponse
// @Router   /models [get]
func (h *handlers) listModels(w http.ResponseWriter, r *http.Request) {
	names := h.svc.List()
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, types.ModelsResponse{Models: names})
}

// loadModel godoc
// @Summary  Load a model from a local path or URL
// @Tags     models
// @Accept   json
// @Produce  json
// @Param    body body types.LoadRequest true "model binding"
// @Success  201 {object} types.ModelInfo
// @Failure  400 {object} types.ErrorResponse
// @Failure  422 {object} types.ErrorResponse
// @Failure  502 {object} types.ErrorResponse
// @Router   /models [post]
func (h *handlers) loadModel(w http.ResponseWriter, r *http.Request) {
	var req types.LoadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Source) == "" {
		writeJSONError(w, http.StatusBadRequest, string(manager.KindInvalidInput), "name and source are required")
		return
	}
	ctx, cancel := workContext(r.Context(), 0)
	defer cancel()
	if err := h.svc.Load(ctx, req.Name, req.Source); err != nil {
		if r.Context().Err() != nil {
			return
		}
		writeError(w, err)
		return
	}
	info, err := h.svc.Info(req.Name)
	if err != nil {
		// unloaded concurrently
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// modelInfo godoc
// @Summary  Describe a loaded model
// @Tags     models
// @Produce  json
// @Param    name path string true "model name"
// @Success  200 {object} types.ModelInfo
// @Failure  404 {object} types.ErrorResponse
// @Router   /models/{name} [get]
func (h *handlers) modelInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.Info(modelParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *handlers) modelMetadata(w http.ResponseWriter, r *http.Request) {
	md, err := h.svc.Metadata(modelParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, md)
}

// unloadModel godoc
// @Summary  Unload a model (idempotent)
// @Tags     models
// @Param    name path string true "model name"
// @Success  204
// @Router   /models/{name} [delete]
func (h *handlers) unloadModel(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Unload(modelParam(r)); err != nil && !manager.IsModelNotFound(err) {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// predict godoc
// @Summary  Run a forward pass on row-major float32 input
// @Tags     inference
// @Accept   json
// @Produce  json
// @Param    name path string true "model name"
// @Param    body body types.PredictRequest true "input batch"
// @Success  200 {object} types.PredictResponse
// @Failure  400 {object} types.ErrorResponse
// @Failure  404 {object} types.ErrorResponse
// @Router   /models/{name}/predict [post]
func (h *handlers) predict(w http.ResponseWriter, r *http.Request) {
	var req types.PredictRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := workContext(r.Context(), predictTimeout)
	defer cancel()
	out, err := h.svc.Predict(ctx, modelParam(r), req.Data, req.Rows, req.Cols)
	h.writePrediction(w, r, out, err)
}

// predictBlob godoc
// @Summary  Run a forward pass on a little-endian float32 blob
// @Tags     inference
// @Accept   octet-stream
// @Produce  json
// @Param    name path string true "model name"
// @Success  200 {object} types.PredictResponse
// @Failure  400 {object} types.ErrorResponse
// @Router   /models/{name}/predict/blob [post]
func (h *handlers) predictBlob(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/octet-stream") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "", "Content-Type must be application/octet-stream")
		return
	}
	blob, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "", "request body too large")
		return
	}
	ctx, cancel := workContext(r.Context(), predictTimeout)
	defer cancel()
	out, err := h.svc.PredictBlob(ctx, modelParam(r), blob)
	h.writePrediction(w, r, out, err)
}

func (h *handlers) writePrediction(w http.ResponseWriter, r *http.Request, out manager.Output, err error) {
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		writeError(w, err)
		return
	}
	data := out.Data
	if data == nil {
		data = []float32{}
	}
	writeJSON(w, http.StatusOK, types.PredictResponse{Rows: out.Rows, Cols: out.Cols, Data: data})
}

// cacheInfo godoc
// @Summary  Report the remote-model cache footprint
// @Tags     cache
// @Produce  json
// @Success  200 {object} types.CacheInfo
// @Router   /cache [get]
func (h *handlers) cacheInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.CacheInfo(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *handlers) clearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearCache(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// autoload godoc
// @Summary  Load every .onnx file of a directory
// @Tags     models
// @Accept   json
// @Produce  json
// @Param    body body types.AutoloadRequest true "directory"
// @Success  200 {object} types.AutoloadResult
// @Router   /autoload [post]
func (h *handlers) autoload(w http.ResponseWriter, r *http.Request) {
	var req types.AutoloadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Dir) == "" {
		writeJSONError(w, http.StatusBadRequest, string(manager.KindInvalidInput), "dir is required")
		return
	}
	ctx, cancel := workContext(r.Context(), 0)
	defer cancel()
	writeJSON(w, http.StatusOK, h.svc.Autoload(ctx, req.Dir))
}

// decodeJSON enforces the content type and body limit, writing the error
// response itself when it returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "", "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "", "request body too large")
			return false
		}
		writeJSONError(w, http.StatusBadRequest, string(manager.KindInvalidInput), "invalid JSON body")
		return false
	}
	return true
}

func orDefault(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}
