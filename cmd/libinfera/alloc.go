//go:build cgo && linux

package main

/*
#include <stdlib.h>
#include <stdint.h>
*/
import "C"

import (
	"sync"
	"unsafe"
)

// Every pointer handed to the host is recorded here until the host frees it.
var (
	allocMu sync.Mutex
	allocs  = map[unsafe.Pointer]struct{}{}
)

func track(p unsafe.Pointer) unsafe.Pointer {
	if p == nil {
		return nil
	}
	allocMu.Lock()
	allocs[p] = struct{}{}
	allocMu.Unlock()
	return p
}

// untrack reports whether p was handed out by this library and forgets it.
func untrack(p unsafe.Pointer) bool {
	if p == nil {
		return false
	}
	allocMu.Lock()
	defer allocMu.Unlock()
	if _, ok := allocs[p]; !ok {
		return false
	}
	delete(allocs, p)
	return true
}

// freeTracked frees p when this library allocated it and it is still live.
// Anything else (NULL, a second free, a foreign pointer) is ignored.
func freeTracked(p unsafe.Pointer) bool {
	if !untrack(p) {
		return false
	}
	C.free(p)
	return true
}

func liveAllocs() int {
	allocMu.Lock()
	defer allocMu.Unlock()
	return len(allocs)
}

func ownedCString(s string) *C.char {
	return (*C.char)(track(unsafe.Pointer(C.CString(s))))
}

// allocFloats copies v into a tracked malloc'd buffer. Empty input yields NULL.
func allocFloats(v []float32) *C.float {
	if len(v) == 0 {
		return nil
	}
	p := C.malloc(C.size_t(len(v)) * C.size_t(unsafe.Sizeof(C.float(0))))
	copy(unsafe.Slice((*float32)(p), len(v)), v)
	return (*C.float)(track(p))
}

// allocInt64s copies v into a malloc'd buffer owned by an enclosing struct,
// so it is not tracked on its own.
func allocInt64s(v []int64) (*C.int64_t, C.size_t) {
	if len(v) == 0 {
		return nil, 0
	}
	p := C.malloc(C.size_t(len(v)) * C.size_t(unsafe.Sizeof(C.int64_t(0))))
	copy(unsafe.Slice((*int64)(p), len(v)), v)
	return (*C.int64_t)(p), C.size_t(len(v))
}

// goString is C.GoString that also accepts NULL.
func goString(p *C.char) string {
	if p == nil {
		return ""
	}
	return C.GoString(p)
}
