package types

// ModelInfo describes a loaded model. Shapes use -1 for dynamic dimensions.
type ModelInfo struct {
	// Registry name of the model.
	// example: linear
	Name string `json:"name" example:"linear"`
	// Shape of the first input tensor; the first dimension is the batch.
	// example: [-1,3]
	InputShape []int64 `json:"input_shape" example:"-1,3"`
	// Shape of the first output tensor.
	// example: [-1,1]
	OutputShape []int64 `json:"output_shape" example:"-1,1"`
	// Always true for models returned by the registry.
	// example: true
	Loaded bool `json:"loaded" example:"true"`
}

// TensorDesc names one graph input or output and its declared shape.
type TensorDesc struct {
	Name  string  `json:"name"`
	Shape []int64 `json:"shape"`
}

// ModelMetadata carries the shape summary of a model plus every tensor descriptor.
type ModelMetadata struct {
	InputShape  []int64      `json:"input_shape"`
	OutputShape []int64      `json:"output_shape"`
	InputCount  int          `json:"input_count"`
	OutputCount int          `json:"output_count"`
	Inputs      []TensorDesc `json:"inputs,omitempty"`
	Outputs     []TensorDesc `json:"outputs,omitempty"`
}

// AutoloadError records one file that failed to load during a directory scan.
type AutoloadError struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

// AutoloadResult lists the names loaded from a directory and the per-file failures.
type AutoloadResult struct {
	Loaded []string        `json:"loaded"`
	Errors []AutoloadError `json:"errors"`
}

// CacheInfo summarizes the remote-model cache.
type CacheInfo struct {
	// example: /tmp/infera_cache
	CacheDir string `json:"cache_dir" example:"/tmp/infera_cache"`
	// example: 1048576
	TotalSizeBytes int64 `json:"total_size_bytes" example:"1048576"`
	// example: 2
	FileCount int `json:"file_count" example:"2"`
	// example: 1073741824
	SizeLimitBytes int64 `json:"size_limit_bytes" example:"1073741824"`
}

// VersionInfo is returned by the version operation.
type VersionInfo struct {
	// example: 0.1.0
	Version string `json:"version" example:"0.1.0"`
	// Tensor backend in use.
	// example: gomlx
	Backend string `json:"backend" example:"gomlx"`
	// example: /tmp/infera_cache
	CacheDir string `json:"cache_dir" example:"/tmp/infera_cache"`
}
