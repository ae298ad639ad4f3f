package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/gofrs/flock"
)

// pidFile is a PID file that doubles as a single-instance lock.
type pidFile struct {
	path string
	lock *flock.Flock
}

// acquirePIDFile locks path and writes the current PID into it. It fails if
// another process already holds the lock.
func acquirePIDFile(path string) (*pidFile, error) {
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock pid file %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("pid file %s is locked: another mpd2cdspvolume instance is running", path)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("write pid file: %w", err)
	}
	return &pidFile{path: path, lock: lock}, nil
}

// Release removes the PID file and drops the lock.
func (p *pidFile) Release() error {
	rmErr := os.Remove(p.path)
	if errors.Is(rmErr, os.ErrNotExist) {
		rmErr = nil
	}
	return errors.Join(rmErr, p.lock.Unlock())
}
