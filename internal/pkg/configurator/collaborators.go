// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package configurator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/elastic/mysql-configurator/internal/pkg/errors"
	"github.com/elastic/mysql-configurator/internal/pkg/settings"
	"github.com/elastic/mysql-configurator/pkg/core/logger"
	"github.com/elastic/mysql-configurator/pkg/core/process"
)

// Firewall manages the inbound rule for the server port.
type Firewall interface {
	AddRule(ctx context.Context, name string, port int) error
	RemoveRule(ctx context.Context, name string, port int) error
}

// Permissions grants the server account access to its data directory.
type Permissions interface {
	GrantDataDirAccess(ctx context.Context, dir, account string) error
}

// Shortcuts creates the desktop entries of an installation.
type Shortcuts interface {
	Create(ctx context.Context, s *settings.Settings) error
}

// Delegated implements Firewall, Permissions and Shortcuts by recording that
// the installer owns the operation.
type Delegated struct {
	log *logger.Logger
}

// NewDelegated creates a Delegated collaborator.
func NewDelegated(log *logger.Logger) *Delegated {
	return &Delegated{log: log.Named("delegated")}
}

func (d *Delegated) AddRule(_ context.Context, name string, port int) error {
	d.log.Infow("firewall rule is managed by the installer", "rule", name, "port", port)
	return nil
}

func (d *Delegated) RemoveRule(_ context.Context, name string, port int) error {
	d.log.Infow("firewall rule removal is managed by the installer", "rule", name, "port", port)
	return nil
}

func (d *Delegated) GrantDataDirAccess(_ context.Context, dir, account string) error {
	d.log.Infow("data directory permissions are managed by the installer", "path", dir, "account", account)
	return nil
}

func (d *Delegated) Create(_ context.Context, s *settings.Settings) error {
	d.log.Infow("shortcuts are managed by the installer", "install_dir", s.InstallDir)
	return nil
}

// Tools runs the helper programs shipped with the server.
type Tools interface {
	Run(ctx context.Context, path string, args []string, env []string) error
}

// ProcessTools runs helper programs as child processes and logs their output.
type ProcessTools struct {
	log *logger.Logger
}

// NewProcessTools creates ProcessTools.
func NewProcessTools(log *logger.Logger) *ProcessTools {
	return &ProcessTools{log: log.Named("tools")}
}

func (t *ProcessTools) Run(ctx context.Context, path string, args []string, env []string) error {
	var stderr []string
	code, err := process.Run(ctx, path,
		process.WithArgs(args),
		process.WithEnv(env),
		process.WithOutput(
			func(line string) { t.log.Debugw(line, "tool", path) },
			func(line string) {
				stderr = append(stderr, line)
				t.log.Infow(line, "tool", path)
			},
		),
	)
	if code > 0 {
		if len(stderr) > 3 {
			stderr = stderr[len(stderr)-3:]
		}
		msg := fmt.Sprintf("%s exited with code %d", filepath.Base(path), code)
		if len(stderr) > 0 {
			msg += " (" + strings.Join(stderr, "; ") + ")"
		}
		return errors.New(err, msg, errors.TypeApplication, errors.M(errors.MetaKeyPath, path), errors.M(errors.MetaKeyExit, code))
	}
	if err != nil {
		return errors.New(err, fmt.Sprintf("failed to run %s", filepath.Base(path)), errors.TypeApplication, errors.M(errors.MetaKeyPath, path))
	}
	return nil
}
