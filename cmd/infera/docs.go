package main

// General API documentation for swaggo. Generate with
// `swag init -g cmd/infera/docs.go -o internal/httpapi/docs`.
//
// @title           infera API
// @version         1.0
// @description     HTTP API for loading ONNX models, running inference and managing the remote-model cache.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
