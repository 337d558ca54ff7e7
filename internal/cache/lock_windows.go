//go:build windows

package cache

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/windows"
)

// dirLock uses LockFileEx on a file inside the cache directory.
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

func (l *dirLock) lock(ctx context.Context) error {
	sleep := 5 * time.Millisecond
	for {
		err := windows.LockFileEx(
			windows.Handle(l.file.Fd()),
			windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
			0, 1, 0,
			&windows.Overlapped{},
		)
		if err == nil {
			return nil
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
	return windows.UnlockFileEx(windows.Handle(l.file.Fd()), 0, 1, 0, &windows.Overlapped{})
}

func (l *dirLock) close() error {
	return l.file.Close()
}
