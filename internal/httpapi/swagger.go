//go:build swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

// apiDoc is the fallback document served until `swag init` output is linked in.
var apiDoc = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "infera API",
	Description:      "Load ONNX models, run inference and manage the remote-model cache.",
	InfoInstanceName: "swagger",
	LeftDelim:        "{{",
	RightDelim:       "}}",
	SwaggerTemplate: `{
  "swagger": "2.0",
  "info": {"title": "{{.Title}}", "description": "{{escape .Description}}", "version": "{{.Version}}"},
  "basePath": "{{.BasePath}}",
  "schemes": {{ marshal .Schemes }},
  "paths": {
    "/models": {"get": {"summary": "List loaded models"}, "post": {"summary": "Load a model"}},
    "/models/{name}": {"get": {"summary": "Describe a model"}, "delete": {"summary": "Unload a model"}},
    "/models/{name}/metadata": {"get": {"summary": "Tensor counts and shapes"}},
    "/models/{name}/predict": {"post": {"summary": "Predict on row-major float32 input"}},
    "/models/{name}/predict/blob": {"post": {"summary": "Predict on a little-endian float32 blob"}},
    "/cache": {"get": {"summary": "Cache footprint"}, "delete": {"summary": "Clear the cache"}},
    "/autoload": {"post": {"summary": "Load every .onnx file of a directory"}},
    "/version": {"get": {"summary": "Version, backend and cache dir"}},
    "/status": {"get": {"summary": "Registry counters"}}
  }
}`,
}

func init() {
	swag.Register(apiDoc.InstanceName(), apiDoc)
}

// MountSwagger serves the Swagger UI under /swagger/.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}
