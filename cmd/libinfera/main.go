//go:build cgo && linux

// Command libinfera builds the C ABI of infera:
//
//	go build -buildmode=c-shared -o libinfera.so ./cmd/libinfera
//
// Every host thread gets its own boundary.Session, so infera_last_error only
// ever reports failures of calls made on the same thread. A session is dropped
// when its thread exits, and a later thread never inherits it. Buffers
// returned to the host are allocated with malloc and tracked; freeing a
// pointer twice, or one this library never returned, is ignored.
package main

/*
#include <stdlib.h>
#include <stdint.h>

typedef struct {
	float *data;
	size_t len;
	size_t rows;
	size_t cols;
	int32_t status;
} InferaResult;

typedef struct {
	int64_t *input_shape;
	size_t input_shape_len;
	int64_t *output_shape;
	size_t output_shape_len;
	size_t input_count;
	size_t output_count;
} InferaMetadata;
*/
import "C"

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"unsafe"

	"infera/internal/boundary"
	"infera/internal/config"
)

func main() {}

var (
	initOnce sync.Once
	rt       *boundary.Runtime
	initErr  error

	sessions = newSessionTable()

	// initErrC is the message infera_last_error reports once initialization failed.
	initErrOnce sync.Once
	initErrC    *C.char
)

func sharedRuntime() (*boundary.Runtime, error) {
	initOnce.Do(func() {
		cfg, err := config.Resolve(os.Getenv("INFERA_CONFIG"))
		if err != nil {
			initErr = err
			return
		}
		logger := cfg.Logger(os.Stderr).With().Str("lib", "infera").Logger()
		rt, initErr = boundary.Open(cfg, &logger)
	})
	return rt, initErr
}

// current returns the calling thread's session, or an error when
// initialization failed. Sessions of exited threads are reaped first.
func current() (*threadSession, error) {
	r, err := sharedRuntime()
	if err != nil {
		return nil, err
	}
	sessions.drop(exitedThreads())
	return sessions.get(threadToken(), r.NewSession), nil
}

var errInit = errors.New("infera failed to initialize")

func errorJSONC(err error) *C.char {
	return ownedCString(`{"error":` + quote(err.Error()) + `}`)
}

func failedResult() C.InferaResult {
	return C.InferaResult{status: C.int32_t(boundary.StatusError)}
}

func toCResult(r *boundary.Result) C.InferaResult {
	defer r.Release()
	if r.Status() != boundary.StatusOK {
		return failedResult()
	}
	data := r.Data()
	out := C.InferaResult{
		len:    C.size_t(len(data)),
		rows:   C.size_t(r.Rows()),
		cols:   C.size_t(r.Cols()),
		status: C.int32_t(boundary.StatusOK),
	}
	out.data = allocFloats(data)
	return out
}

// toCMetadata copies md into a tracked struct freed by infera_free_metadata.
func toCMetadata(md *boundary.Metadata) *C.InferaMetadata {
	defer md.Release()
	out := (*C.InferaMetadata)(C.calloc(1, C.size_t(unsafe.Sizeof(C.InferaMetadata{}))))
	out.input_shape, out.input_shape_len = allocInt64s(md.InputShape())
	out.output_shape, out.output_shape_len = allocInt64s(md.OutputShape())
	out.input_count = C.size_t(md.InputCount())
	out.output_count = C.size_t(md.OutputCount())
	return (*C.InferaMetadata)(track(unsafe.Pointer(out)))
}

//export infera_load_model
func infera_load_model(name, source *C.char) C.int32_t {
	ts, err := current()
	if err != nil {
		return C.int32_t(boundary.StatusError)
	}
	return C.int32_t(ts.sess.LoadModel(goString(name), goString(source)))
}

//export infera_unload_model
func infera_unload_model(name *C.char) C.int32_t {
	ts, err := current()
	if err != nil {
		return C.int32_t(boundary.StatusError)
	}
	return C.int32_t(ts.sess.UnloadModel(goString(name)))
}

//export infera_predict
func infera_predict(name *C.char, data *C.float, rows, cols C.size_t) C.InferaResult {
	ts, err := current()
	if err != nil {
		return failedResult()
	}
	n, err := matrixLen(uint64(rows), uint64(cols))
	if err != nil {
		ts.sess.Reject("predict", err)
		return failedResult()
	}
	var in []float32
	if data != nil && n > 0 {
		in = append([]float32(nil), unsafe.Slice((*float32)(unsafe.Pointer(data)), n)...)
	}
	return toCResult(ts.sess.Predict(goString(name), in, int(rows), int(cols)))
}

//export infera_predict_from_blob
func infera_predict_from_blob(name *C.char, blob *C.uint8_t, n C.size_t) C.InferaResult {
	ts, err := current()
	if err != nil {
		return failedResult()
	}
	size, err := blobLen(uint64(n))
	if err != nil {
		ts.sess.Reject("predict_from_blob", err)
		return failedResult()
	}
	var b []byte
	if blob != nil && size > 0 {
		b = C.GoBytes(unsafe.Pointer(blob), C.int(size))
	}
	return toCResult(ts.sess.PredictFromBlob(goString(name), b))
}

//export infera_get_model_info
func infera_get_model_info(name *C.char) *C.char {
	ts, err := current()
	if err != nil {
		return errorJSONC(err)
	}
	return fromOwned(ts.sess.GetModelInfo(goString(name)))
}

//export infera_get_model_metadata
func infera_get_model_metadata(name *C.char) *C.InferaMetadata {
	ts, err := current()
	if err != nil {
		return nil
	}
	md := ts.sess.GetModelMetadata(goString(name))
	if md == nil {
		return nil
	}
	return toCMetadata(md)
}

//export infera_get_loaded_models
func infera_get_loaded_models() *C.char {
	ts, err := current()
	if err != nil {
		return errorJSONC(err)
	}
	return fromOwned(ts.sess.ListModels())
}

//export infera_get_version
func infera_get_version() *C.char {
	ts, err := current()
	if err != nil {
		return errorJSONC(err)
	}
	return fromOwned(ts.sess.GetVersion())
}

//export infera_set_autoload_dir
func infera_set_autoload_dir(dir *C.char) *C.char {
	ts, err := current()
	if err != nil {
		return errorJSONC(err)
	}
	return fromOwned(ts.sess.SetAutoloadDir(goString(dir)))
}

//export infera_clear_cache
func infera_clear_cache() C.int32_t {
	ts, err := current()
	if err != nil {
		return C.int32_t(boundary.StatusError)
	}
	return C.int32_t(ts.sess.ClearCache())
}

//export infera_get_cache_info
func infera_get_cache_info() *C.char {
	ts, err := current()
	if err != nil {
		return errorJSONC(err)
	}
	return fromOwned(ts.sess.GetCacheInfo())
}

// infera_last_error returns the calling thread's last error, or NULL. The
// string is owned by the library and stays valid until the next failure on
// the same thread.
//
//export infera_last_error
func infera_last_error() *C.char {
	ts, err := current()
	if err != nil {
		initErrOnce.Do(func() {
			initErrC = C.CString(fmt.Errorf("%w: %v", errInit, err).Error())
		})
		return initErrC
	}
	return sessions.lastError(ts)
}

//export infera_free
func infera_free(p *C.char) {
	freeTracked(unsafe.Pointer(p))
}

//export infera_free_result
func infera_free_result(r C.InferaResult) {
	freeTracked(unsafe.Pointer(r.data))
}

//export infera_free_metadata
func infera_free_metadata(md *C.InferaMetadata) {
	if !untrack(unsafe.Pointer(md)) {
		return
	}
	C.free(unsafe.Pointer(md.input_shape))
	C.free(unsafe.Pointer(md.output_shape))
	C.free(unsafe.Pointer(md))
}

func fromOwned(o *boundary.OwnedString) *C.char {
	defer o.Release()
	return ownedCString(o.String())
}
