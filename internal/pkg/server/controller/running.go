// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package controller

import (
	"context"
	"errors"

	"github.com/elastic/mysql-configurator/internal/pkg/server/service"
	"github.com/elastic/mysql-configurator/internal/pkg/settings"
	"github.com/elastic/mysql-configurator/pkg/core/process"
)

// IsRunning asks the OS whether the instance described by the selected
// settings is up. Nothing is cached between calls.
func (c *Controller) IsRunning(ctx context.Context, sel settings.Selection) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if child := c.launched(); child != nil && !child.Exited() {
		return true, nil
	}

	s := c.pair.Get(sel)
	if s.Service.Enabled && c.deps.Services != nil {
		running, err := c.serviceRunning(s.Service.Name)
		if err != nil || running {
			return running, err
		}
	}

	_, running, err := c.runningPID(s)
	return running, err
}

func (c *Controller) serviceRunning(name string) (bool, error) {
	exists, err := c.deps.Services.Exists(name)
	if err != nil || !exists {
		return false, err
	}
	state, err := c.deps.Services.Status(name)
	if err != nil {
		return false, err
	}
	return state != service.StateStopped && state != service.StateUnknown, nil
}

// runningPID resolves the pid recorded in the data directory.
func (c *Controller) runningPID(s *settings.Settings) (int, bool, error) {
	pid, err := process.ReadPIDFile(s.PidFilePath())
	if errors.Is(err, process.ErrNoPIDFile) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	alive, err := c.deps.Alive(pid)
	return pid, alive, err
}
