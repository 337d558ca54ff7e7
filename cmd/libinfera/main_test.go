//go:build cgo && linux

package main

import (
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"
	"unsafe"

	"infera/internal/backend/fakebackend"
	"infera/internal/boundary"
	"infera/internal/manager"
)

var modelDir string

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "libinfera")
	if err != nil {
		panic(err)
	}
	modelDir = dir
	initOnce.Do(func() {
		mgr := manager.NewWithConfig(manager.ManagerConfig{Backend: fakebackend.New()})
		rt = boundary.NewRuntime(boundary.RuntimeConfig{Manager: mgr})
	})
	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

// loadLinear loads a sum model with cols inputs under name.
func loadLinear(t *testing.T, name string, cols int64) {
	t.Helper()
	p, err := fakebackend.WriteFile(modelDir, name+".onnx", fakebackend.Linear(cols, 1))
	if err != nil {
		t.Fatalf("write model: %v", err)
	}
	cname, csrc := ownedCString(name), ownedCString(p)
	defer infera_free(cname)
	defer infera_free(csrc)
	if st := infera_load_model(cname, csrc); st != 0 {
		t.Fatalf("load status=%d", st)
	}
}

func TestFreeIgnoresSecondAndForeignPointers(t *testing.T) {
	before := liveAllocs()
	p := ownedCString("hello")
	if liveAllocs() != before+1 {
		t.Fatalf("allocation not tracked")
	}
	infera_free(p)
	if liveAllocs() != before {
		t.Fatalf("free did not untrack")
	}
	infera_free(p)
	infera_free(nil)
	var local byte
	if freeTracked(unsafe.Pointer(&local)) {
		t.Fatalf("foreign pointer was freed")
	}
	if liveAllocs() != before {
		t.Fatalf("live=%d want %d", liveAllocs(), before)
	}
}

func TestPredictResultFreedOnce(t *testing.T) {
	loadLinear(t, "sum3", 3)
	before := liveAllocs()

	name := ownedCString("sum3")
	in := allocFloats([]float32{1, 2, 3, 4, 5, 6})
	res := infera_predict(name, in, 2, 3)
	infera_free(name)
	freeTracked(unsafe.Pointer(in))

	if res.status != 0 || int(res.rows) != 2 || int(res.cols) != 1 || int(res.len) != 2 {
		t.Fatalf("result status=%d rows=%d cols=%d len=%d", res.status, res.rows, res.cols, res.len)
	}
	got := unsafe.Slice((*float32)(unsafe.Pointer(res.data)), int(res.len))
	if got[0] != 6 || got[1] != 15 {
		t.Fatalf("data=%v", got)
	}
	if liveAllocs() != before+1 {
		t.Fatalf("result buffer not tracked")
	}
	infera_free_result(res)
	infera_free_result(res)
	if liveAllocs() != before {
		t.Fatalf("live=%d want %d", liveAllocs(), before)
	}
}

func TestMetadataFreedOnce(t *testing.T) {
	loadLinear(t, "meta4", 4)
	before := liveAllocs()
	name := ownedCString("meta4")
	md := infera_get_model_metadata(name)
	infera_free(name)
	if md == nil {
		t.Fatalf("metadata is nil")
	}
	if md.input_count != 1 || md.output_count != 1 || md.input_shape_len != 2 {
		t.Fatalf("metadata=%+v", *md)
	}
	shape := unsafe.Slice((*int64)(unsafe.Pointer(md.input_shape)), int(md.input_shape_len))
	if shape[0] != -1 || shape[1] != 4 {
		t.Fatalf("input shape=%v", shape)
	}
	infera_free_metadata(md)
	infera_free_metadata(md)
	infera_free_metadata(nil)
	if liveAllocs() != before {
		t.Fatalf("live=%d want %d", liveAllocs(), before)
	}
}

func TestPredictRejectsOversizedArguments(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	loadLinear(t, "big", 3)
	name := ownedCString("big")
	defer infera_free(name)

	res := infera_predict(name, nil, math.MaxUint64, 3)
	if res.status != -1 || res.data != nil {
		t.Fatalf("status=%d", res.status)
	}
	if msg := goString(infera_last_error()); !strings.Contains(msg, "too large") {
		t.Fatalf("last error=%q", msg)
	}
	res = infera_predict_from_blob(name, nil, math.MaxInt32+1)
	if res.status != -1 {
		t.Fatalf("blob status=%d", res.status)
	}
	if msg := goString(infera_last_error()); !strings.Contains(msg, "blob") {
		t.Fatalf("last error=%q", msg)
	}
}

func TestMatrixAndBlobLen(t *testing.T) {
	if n, err := matrixLen(4, 5); err != nil || n != 20 {
		t.Fatalf("matrixLen=%d err=%v", n, err)
	}
	if n, err := matrixLen(0, math.MaxUint64); err == nil {
		t.Fatalf("huge cols accepted: %d", n)
	}
	if _, err := matrixLen(1<<40, 1<<40); err == nil {
		t.Fatalf("overflowing product accepted")
	}
	if n, err := blobLen(math.MaxInt32); err != nil || n != math.MaxInt32 {
		t.Fatalf("blobLen=%d err=%v", n, err)
	}
	if _, err := blobLen(math.MaxInt32 + 1); err == nil {
		t.Fatalf("blob past C int accepted")
	}
}

// onThread runs fn on a goroutine locked to its own OS thread. When keep is
// false the thread exits with the goroutine.
func onThread(fn func(), keep bool) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		runtime.LockOSThread()
		if keep {
			defer runtime.UnlockOSThread()
		}
		fn()
	}()
	<-done
}

func failLoad(source string) int32 {
	name, src := ownedCString("missing"), ownedCString(source)
	defer infera_free(name)
	defer infera_free(src)
	return int32(infera_load_model(name, src))
}

func TestLastErrorIsPerThread(t *testing.T) {
	var (
		ready sync.WaitGroup
		check = make(chan struct{})
		wg    sync.WaitGroup
	)
	sources := []string{filepath.Join(modelDir, "a-absent.onnx"), filepath.Join(modelDir, "b-absent.onnx")}
	ready.Add(len(sources))
	for i, src := range sources {
		wg.Add(1)
		other := sources[1-i]
		go func() {
			defer wg.Done()
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			if st := failLoad(src); st != -1 {
				t.Errorf("status=%d", st)
			}
			ready.Done()
			<-check
			msg := goString(infera_last_error())
			if !strings.Contains(msg, filepath.Base(src)) || strings.Contains(msg, filepath.Base(other)) {
				t.Errorf("thread for %s saw %q", filepath.Base(src), msg)
			}
		}()
	}
	ready.Wait()
	close(check)
	wg.Wait()

	onThread(func() {
		if msg := goString(infera_last_error()); msg != "" {
			t.Errorf("fresh thread saw %q", msg)
		}
	}, true)
}

func TestExitedThreadSessionIsDropped(t *testing.T) {
	var token uint64
	onThread(func() {
		if st := failLoad(filepath.Join(modelDir, "gone.onnx")); st != -1 {
			t.Errorf("status=%d", st)
		}
		token = threadToken()
	}, false)

	deadline := time.Now().Add(5 * time.Second)
	for {
		sessions.drop(exitedThreads())
		sessions.mu.Lock()
		_, alive := sessions.byThread[token]
		sessions.mu.Unlock()
		if !alive {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session of exited thread %d never dropped", token)
		}
		time.Sleep(10 * time.Millisecond)
	}

	onThread(func() {
		if threadToken() == token {
			t.Errorf("token %d reused", token)
		}
		if msg := goString(infera_last_error()); msg != "" {
			t.Errorf("new thread inherited %q", msg)
		}
	}, true)
}
