// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package settings

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/elastic/mysql-configurator/internal/pkg/config"
	"github.com/elastic/mysql-configurator/internal/pkg/errors"
	"github.com/elastic/mysql-configurator/internal/pkg/filelock"
	"github.com/elastic/mysql-configurator/internal/pkg/paths"
	"github.com/elastic/mysql-configurator/internal/pkg/storage"
)

const (
	storeLockName    = "state.lock"
	storeLockTimeout = 5 * time.Second
)

// State is persisted between configurator runs.
type State struct {
	PendingUpgrade bool `config:"pending_upgrade"`
}

// Store persists the settings of the last successful run and the
// configurator state inside the data directory.
type Store struct {
	dir     string
	applied *storage.DiskStore
	state   *storage.DiskStore
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{
		dir:     dir,
		applied: storage.NewDiskStore(filepath.Join(dir, paths.AppliedSettingsFileName)),
		state:   storage.NewDiskStore(filepath.Join(dir, paths.StateFileName)),
	}
}

// Applied returns the settings of the last successful run, nil when there is none.
func (s *Store) Applied(ctx context.Context) (*Settings, error) {
	var out *Settings
	err := s.withLock(ctx, func() error {
		exists, err := s.applied.Exists()
		if err != nil || !exists {
			return err
		}
		cfg, err := s.read(s.applied)
		if err != nil {
			return err
		}
		out, err = FromConfig(cfg)
		return err
	})
	return out, err
}

// SaveApplied persists st without clear text secrets.
func (s *Store) SaveApplied(ctx context.Context, st *Settings) error {
	return s.withLock(ctx, func() error {
		return s.write(s.applied, st.Redacted())
	})
}

// ForgetApplied removes the persisted settings, used after the instance is removed.
func (s *Store) ForgetApplied(ctx context.Context) error {
	return s.withLock(ctx, s.applied.Delete)
}

// State returns the persisted state, the zero State when nothing was saved.
func (s *Store) State(ctx context.Context) (State, error) {
	var st State
	err := s.withLock(ctx, func() error {
		exists, err := s.state.Exists()
		if err != nil || !exists {
			return err
		}
		cfg, err := s.read(s.state)
		if err != nil {
			return err
		}
		return cfg.UnpackTo(&st)
	})
	return st, err
}

// SetPendingUpgrade updates the pending upgrade flag.
func (s *Store) SetPendingUpgrade(ctx context.Context, pending bool) error {
	return s.withLock(ctx, func() error {
		return s.write(s.state, &State{PendingUpgrade: pending})
	})
}

func (s *Store) read(ds *storage.DiskStore) (*config.Config, error) {
	rc, err := ds.Load()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.New(err, "could not read store file", errors.TypeFilesystem, errors.M(errors.MetaKeyPath, ds.Path()))
	}
	cfg, err := config.NewConfigFrom(content)
	if err != nil {
		return nil, errors.New(err, "could not parse store file", errors.TypeConfig, errors.M(errors.MetaKeyPath, ds.Path()))
	}
	return cfg, nil
}

func (s *Store) write(ds *storage.DiskStore, v interface{}) error {
	cfg, err := config.NewConfigFrom(v)
	if err != nil {
		return errors.New(err, "could not serialize", errors.TypeConfig)
	}
	m, err := cfg.ToMapStr()
	if err != nil {
		return errors.New(err, "could not serialize", errors.TypeConfig)
	}
	content, err := yaml.Marshal(m)
	if err != nil {
		return errors.New(err, "could not serialize", errors.TypeConfig)
	}
	return ds.Save(bytes.NewReader(content))
}

func (s *Store) withLock(ctx context.Context, fn func() error) error {
	locker, err := filelock.NewFileLocker(filepath.Join(s.dir, storeLockName), filelock.WithTimeout(storeLockTimeout))
	if err != nil {
		return err
	}
	if err := ensureDir(s.dir); err != nil {
		return err
	}
	if err := locker.LockContext(ctx); err != nil {
		return errors.New(err, "could not lock configurator state", errors.TypeFilesystem, errors.M(errors.MetaKeyPath, s.dir))
	}
	defer func() { _ = locker.Unlock() }()
	return fn()
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return errors.New(err, "could not create state directory", errors.TypeFilesystem, errors.M(errors.MetaKeyPath, dir))
	}
	return nil
}
