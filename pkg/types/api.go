package types

// LoadRequest is the body of POST /models.
type LoadRequest struct {
	// Registry name to bind the model to.
	// example: linear
	Name string `json:"name" example:"linear"`
	// Local path, file:// URI or http(s) URL of the .onnx file.
	// example: https://example.com/models/linear.onnx
	Source string `json:"source" example:"https://example.com/models/linear.onnx"`
}

// PredictRequest is the body of POST /models/{name}/predict.
type PredictRequest struct {
	// example: 1
	Rows int `json:"rows" example:"1"`
	// example: 3
	Cols int `json:"cols" example:"3"`
	// Row-major input values, rows*cols long.
	// example: [1,2,3]
	Data []float32 `json:"data" example:"1,2,3"`
}

// PredictResponse carries a flattened row-major output.
type PredictResponse struct {
	// example: 1
	Rows int `json:"rows" example:"1"`
	// example: 1
	Cols int `json:"cols" example:"1"`
	// example: [6]
	Data []float32 `json:"data" example:"6"`
}

// AutoloadRequest is the body of POST /autoload.
type AutoloadRequest struct {
	// example: /var/lib/infera/models
	Dir string `json:"dir" example:"/var/lib/infera/models"`
}

// ModelsResponse wraps the list of model names returned by GET /models.
type ModelsResponse struct {
	// Loaded model names in load order.
	Models []string `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: model not found: linear
	Error string `json:"error" example:"model not found: linear"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
	// Error kind reported by the registry or engine.
	// example: not_found
	Kind string `json:"kind,omitempty" example:"not_found"`
}

// ModelStatus summarizes one loaded model for /status.
type ModelStatus struct {
	// example: linear
	Name string `json:"name" example:"linear"`
	// Source the model was loaded from.
	// example: /models/linear.onnx
	Source string `json:"source" example:"/models/linear.onnx"`
	// References currently held (1 for the registry plus in-flight predictions).
	// example: 1
	Refs int64 `json:"refs" example:"1"`
	// Load time (unix seconds).
	// example: 1700000000
	LoadedAt int64 `json:"loaded_at_unix" example:"1700000000"`
	// Predictions served by this model.
	// example: 42
	Predictions uint64 `json:"predictions" example:"42"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Models []ModelStatus `json:"models"`
	// example: 3
	LoadsTotal uint64 `json:"loads_total" example:"3"`
	// example: 1
	UnloadsTotal uint64 `json:"unloads_total" example:"1"`
	// example: 120
	PredictionsTotal uint64 `json:"predictions_total" example:"120"`
	// Failed loads and predictions.
	// example: 2
	FailuresTotal uint64 `json:"failures_total" example:"2"`
	// Last error observed by the registry (if any).
	LastError string `json:"last_error,omitempty"`
	// example: gomlx
	Backend string `json:"backend" example:"gomlx"`
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
