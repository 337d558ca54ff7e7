//go:build cgo && linux

package main

/*
#include <stdlib.h>
*/
import "C"

import (
	"sync"
	"unsafe"

	"infera/internal/boundary"
)

// threadSession pairs a session with the C copy of its last error.
type threadSession struct {
	sess    *boundary.Session
	lastMsg string
	lastC   *C.char
}

// sessionTable maps live host threads to their sessions.
type sessionTable struct {
	mu       sync.Mutex
	byThread map[uint64]*threadSession
}

func newSessionTable() *sessionTable {
	return &sessionTable{byThread: map[uint64]*threadSession{}}
}

func (t *sessionTable) get(thread uint64, open func() *boundary.Session) *threadSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts := t.byThread[thread]
	if ts == nil {
		ts = &threadSession{sess: open()}
		t.byThread[thread] = ts
	}
	return ts
}

// drop forgets the sessions of exited threads and frees their error strings.
func (t *sessionTable) drop(threads []uint64) {
	if len(threads) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range threads {
		ts := t.byThread[id]
		if ts == nil {
			continue
		}
		if ts.lastC != nil {
			C.free(unsafe.Pointer(ts.lastC))
		}
		delete(t.byThread, id)
	}
}

func (t *sessionTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byThread)
}

// lastError returns a library-owned C copy of the session's last error, or
// NULL. The copy is replaced when the message changes.
func (t *sessionTable) lastError(ts *threadSession) *C.char {
	msg := ts.sess.LastError()
	if msg == "" {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if ts.lastC == nil || msg != ts.lastMsg {
		if ts.lastC != nil {
			C.free(unsafe.Pointer(ts.lastC))
		}
		ts.lastC = C.CString(msg)
		ts.lastMsg = msg
	}
	return ts.lastC
}
