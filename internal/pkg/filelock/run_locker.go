// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package filelock

import (
	"fmt"
	"os"
	"path/filepath"
)

// ErrRunInProgress is returned when another configurator run holds the state directory.
var ErrRunInProgress = fmt.Errorf("another configuration run is in progress")

// RunLocker locks the configurator lock file inside the state directory so two
// runs never touch the same server instance at once.
type RunLocker struct {
	*FileLocker
}

// NewRunLocker creates a RunLocker for lockFileName inside dir, creating dir when missing.
func NewRunLocker(dir, lockFileName string) (*RunLocker, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating lock directory %s: %w", dir, err)
	}

	lock, err := NewFileLocker(filepath.Join(dir, lockFileName), WithCustomNotLockedError(ErrRunInProgress))
	if err != nil {
		return nil, err
	}
	return &RunLocker{FileLocker: lock}, nil
}

// TryLock tries to grab the lock file and returns error if it cannot.
func (r *RunLocker) TryLock() error {
	return r.Lock()
}
