// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/elastic/elastic-agent-libs/file"

	"github.com/elastic/mysql-configurator/internal/pkg/errors"
)

const permMask = 0o600

// DiskStore keeps one file on disk and replaces it atomically on Save.
type DiskStore struct {
	target string
}

// NewDiskStore creates a store for target.
func NewDiskStore(target string) *DiskStore {
	return &DiskStore{target: target}
}

// Path returns the target file.
func (d *DiskStore) Path() string {
	return d.target
}

// Exists check if the store file exists on the disk
func (d *DiskStore) Exists() (bool, error) {
	_, err := os.Stat(d.target)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete deletes the store file on the disk, a missing file is not an error.
func (d *DiskStore) Delete() error {
	if err := os.Remove(d.target); err != nil && !os.IsNotExist(err) {
		return errors.New(err, "could not delete store file", errors.TypeFilesystem, errors.M(errors.MetaKeyPath, d.target))
	}
	return nil
}

// Save writes in to a temporary file and rotates it into place.
func (d *DiskStore) Save(in io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(d.target), 0o750); err != nil {
		return errors.New(err, "could not create store directory", errors.TypeFilesystem, errors.M(errors.MetaKeyPath, d.target))
	}

	tmpFile := d.target + ".tmp"
	fd, err := os.OpenFile(tmpFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, permMask)
	if err != nil {
		return errors.New(err,
			fmt.Sprintf("could not save to %s", tmpFile),
			errors.TypeFilesystem,
			errors.M(errors.MetaKeyPath, tmpFile))
	}

	// Always clean up the temporary file and ignore errors.
	defer os.Remove(tmpFile)

	if _, err := io.Copy(fd, in); err != nil {
		_ = fd.Close()
		return errors.New(err, "could not save content on disk",
			errors.TypeFilesystem,
			errors.M(errors.MetaKeyPath, tmpFile))
	}

	if err := fd.Sync(); err != nil {
		_ = fd.Close()
		return errors.New(err,
			fmt.Sprintf("could not sync temporary file %s", tmpFile),
			errors.TypeFilesystem,
			errors.M(errors.MetaKeyPath, tmpFile))
	}

	if err := fd.Close(); err != nil {
		return errors.New(err, "could not close temporary file",
			errors.TypeFilesystem,
			errors.M(errors.MetaKeyPath, tmpFile))
	}

	if err := file.SafeFileRotate(d.target, tmpFile); err != nil {
		return errors.New(err,
			fmt.Sprintf("could not replace target file %s", d.target),
			errors.TypeFilesystem,
			errors.M(errors.MetaKeyPath, d.target))
	}

	return nil
}

// Load return a io.ReadCloser for the target file.
func (d *DiskStore) Load() (io.ReadCloser, error) {
	fd, err := os.Open(d.target)
	if err != nil {
		return nil, errors.New(err,
			fmt.Sprintf("could not open %s", d.target),
			errors.TypeFilesystem,
			errors.M(errors.MetaKeyPath, d.target))
	}
	return fd, nil
}
