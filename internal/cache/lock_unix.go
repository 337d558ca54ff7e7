//go:build unix

package cache

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// dirLock is an flock(2) advisory lock on a file inside the cache directory.
// It serializes cache mutations across processes sharing the directory.
type dirLock struct {
	file *os.File
}

func newDirLock(path string) (*dirLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	return &dirLock{file: f}, nil
}

// lock polls a non-blocking flock with backoff until it succeeds or ctx ends.
func (l *dirLock) lock(ctx context.Context) error {
	sleep := 5 * time.Millisecond
	for {
		err := unix.Flock(int(l.file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return nil
		}
		if err != unix.EWOULDBLOCK && err != unix.EINTR {
			return fmt.Errorf("lock cache dir: %w", err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("lock cache dir: %w", ctx.Err())
		case <-time.After(sleep):
		}
		if sleep < 100*time.Millisecond {
			sleep *= 2
		}
	}
}

func (l *dirLock) unlock() error {
	return unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
}

func (l *dirLock) close() error {
	return l.file.Close()
}
