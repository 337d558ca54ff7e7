//go:build !unix && !windows

package cache

import "context"

// dirLock is a no-op where no advisory file locking is available; the
// in-process mutex still serializes callers of one Cache.
type dirLock struct{}

func newDirLock(string) (*dirLock, error)   { return &dirLock{}, nil }
func (*dirLock) lock(context.Context) error { return nil }
func (*dirLock) unlock() error              { return nil }
func (*dirLock) close() error               { return nil }
