// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

// Package filelock serializes access to the configurator state directory.
// The settings store takes a short blocking lock around each read-modify-write
// of its files and a configure run holds a non-blocking run lock for its
// whole duration.
package filelock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

const lockRetryInterval = 100 * time.Millisecond

var (
	ErrZeroTimeout = errors.New("must specify a non-zero timeout for a blocking file locker")
	// ErrNotLocked means the lock file is held by another process.
	ErrNotLocked = errors.New("file not locked")
)

// FileLocker guards one lock file in the state directory with an advisory
// flock. Without WithTimeout a held lock fails at once.
type FileLocker struct {
	fileLock *flock.Flock
	timeout  time.Duration
	heldErr  error
}

// FileLockerOption customizes a FileLocker.
type FileLockerOption func(locker *FileLocker) error

// NewFileLocker creates a locker for lockFilePath. The file is created on the
// first Lock.
func NewFileLocker(lockFilePath string, opts ...FileLockerOption) (*FileLocker, error) {
	fl := &FileLocker{fileLock: flock.New(lockFilePath), heldErr: ErrNotLocked}
	for _, opt := range opts {
		if err := opt(fl); err != nil {
			return nil, fmt.Errorf("applying options to new file locker: %w", err)
		}
	}
	return fl, nil
}

// Lock acquires the lock.
func (fl *FileLocker) Lock() error {
	return fl.LockContext(context.Background())
}

// LockContext acquires the lock. A blocking locker polls until its timeout
// or ctx expire, a held lock then reports the held error.
func (fl *FileLocker) LockContext(ctx context.Context) error {
	locked, err := fl.tryLock(ctx)
	if err != nil {
		return fmt.Errorf("locking %s: %w", fl.fileLock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("failed locking %s: %w", fl.fileLock.Path(), fl.heldErr)
	}
	return nil
}

func (fl *FileLocker) tryLock(ctx context.Context) (bool, error) {
	if fl.timeout == 0 {
		return fl.fileLock.TryLock()
	}
	waitCtx, cancel := context.WithTimeout(ctx, fl.timeout)
	defer cancel()
	locked, err := fl.fileLock.TryLockContext(waitCtx, lockRetryInterval)
	if errors.Is(err, context.DeadlineExceeded) {
		// the timeout ran out while another process held the lock
		return false, nil
	}
	return locked, err
}

// Unlock releases the lock.
func (fl *FileLocker) Unlock() error {
	return fl.fileLock.Unlock()
}

// WithCustomNotLockedError replaces ErrNotLocked as the error wrapped when the
// lock is held elsewhere.
func WithCustomNotLockedError(customError error) FileLockerOption {
	return func(locker *FileLocker) error {
		locker.heldErr = customError
		return nil
	}
}

// WithTimeout makes Lock wait up to timeout for the lock.
func WithTimeout(timeout time.Duration) FileLockerOption {
	return func(locker *FileLocker) error {
		if timeout <= 0 {
			return ErrZeroTimeout
		}
		locker.timeout = timeout
		return nil
	}
}
