package boundary

import (
	"context"
	"encoding/json"

	"infera/internal/manager"
)

// Session is one caller's view of a Runtime. Errors recorded by a session are
// never visible to another.
type Session struct {
	rt   *Runtime
	errs ErrorChannel
}

// LastError returns the message of the most recent failed call on this session.
func (s *Session) LastError() string { return s.errs.Last() }

func (s *Session) fail(op string, err error) {
	s.errs.Set(err.Error())
	s.rt.log.Debug().Err(err).Str("event", "boundary_error").Str("op", op).Msg("call failed")
}

// Reject records err for a call the host binding refused before it reached
// the runtime (bad pointers, sizes that do not fit) and returns StatusError.
func (s *Session) Reject(op string, err error) int {
	s.fail(op, err)
	return StatusError
}

// LoadModel binds source to name. Returns StatusOK or StatusError.
func (s *Session) LoadModel(name, source string) int {
	if err := s.rt.mgr.Load(context.Background(), name, source); err != nil {
		s.fail("load_model", err)
		return StatusError
	}
	return StatusOK
}

// UnloadModel removes name. Unloading an unknown name succeeds and records nothing.
func (s *Session) UnloadModel(name string) int {
	if err := s.rt.mgr.Unload(name); err != nil {
		if manager.IsModelNotFound(err) {
			return StatusOK
		}
		s.fail("unload_model", err)
		return StatusError
	}
	return StatusOK
}

// Predict runs rows x cols row-major values through name. The returned
// Result is never nil; on failure its status is StatusError.
func (s *Session) Predict(name string, data []float32, rows, cols int) *Result {
	out, err := s.rt.mgr.Predict(context.Background(), name, data, rows, cols)
	if err != nil {
		s.fail("predict", err)
		return errResult()
	}
	return okResult(out.Data, out.Rows, out.Cols)
}

// PredictFromBlob decodes blob as little-endian float32 rows of the model's input width.
func (s *Session) PredictFromBlob(name string, blob []byte) *Result {
	out, err := s.rt.mgr.PredictBlob(context.Background(), name, blob)
	if err != nil {
		s.fail("predict_from_blob", err)
		return errResult()
	}
	return okResult(out.Data, out.Rows, out.Cols)
}

// GetModelInfo returns {name, input_shape, output_shape, loaded} as JSON, or
// {"error": msg} when name is unknown.
func (s *Session) GetModelInfo(name string) *OwnedString {
	info, err := s.rt.mgr.Info(name)
	if err != nil {
		s.fail("get_model_info", err)
		return ownString(errorJSON(err))
	}
	return s.ownJSON("get_model_info", info)
}

// GetModelMetadata returns an owned metadata record, or nil on failure.
func (s *Session) GetModelMetadata(name string) *Metadata {
	md, err := s.rt.mgr.Metadata(name)
	if err != nil {
		s.fail("get_model_metadata", err)
		return nil
	}
	return &Metadata{md: md}
}

// ListModels returns the loaded names as a JSON array.
func (s *Session) ListModels() *OwnedString {
	return s.ownJSON("list_models", s.rt.mgr.List())
}

// GetVersion returns {version, backend, cache_dir} as JSON.
func (s *Session) GetVersion() *OwnedString {
	return s.ownJSON("get_version", s.rt.VersionInfo())
}

// SetAutoloadDir loads every model in dir and returns {loaded, errors} as JSON.
func (s *Session) SetAutoloadDir(dir string) *OwnedString {
	res := s.rt.mgr.Autoload(context.Background(), dir)
	if len(res.Errors) > 0 && len(res.Loaded) == 0 {
		s.errs.Set(res.Errors[0].File + ": " + res.Errors[0].Reason)
	}
	return s.ownJSON("set_autoload_dir", res)
}

// ClearCache deletes every cached remote model file.
func (s *Session) ClearCache() int {
	if err := s.rt.ClearCache(context.Background()); err != nil {
		s.fail("clear_cache", err)
		return StatusError
	}
	return StatusOK
}

// GetCacheInfo returns {cache_dir, total_size_bytes, file_count, size_limit_bytes} as JSON.
func (s *Session) GetCacheInfo() *OwnedString {
	info, err := s.rt.CacheInfo(context.Background())
	if err != nil {
		s.fail("get_cache_info", err)
		return ownString(errorJSON(err))
	}
	return s.ownJSON("get_cache_info", info)
}

// Free releases a string returned by this package.
func (s *Session) Free(o *OwnedString) error { return o.Release() }

// FreeResult releases a prediction result.
func (s *Session) FreeResult(r *Result) error { return r.Release() }

// FreeMetadata releases a metadata record.
func (s *Session) FreeMetadata(m *Metadata) error { return m.Release() }

func (s *Session) ownJSON(op string, v any) *OwnedString {
	b, err := json.Marshal(v)
	if err != nil {
		s.fail(op, err)
		return ownString(errorJSON(err))
	}
	return ownString(string(b))
}

func errorJSON(err error) string {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(b)
}
