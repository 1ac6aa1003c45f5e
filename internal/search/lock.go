package search

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned by Lock when another process holds the index directory
var ErrLocked = errors.New("index directory is in use by another process")

const lockFile = ".admin.lock"

// Lock takes an exclusive lock on dir so that only one process opens the
// on-disk indexes at a time. The returned function releases it. An empty dir
// needs no lock.
func Lock(dir string) (func() error, error) {
	if dir == "" {
		return func() error { return nil }, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	fl := flock.New(filepath.Join(dir, lockFile))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", dir, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, dir)
	}
	return fl.Unlock, nil
}
