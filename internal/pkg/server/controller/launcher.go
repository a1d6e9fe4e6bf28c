// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package controller

import (
	"github.com/elastic/mysql-configurator/pkg/core/logger"
	"github.com/elastic/mysql-configurator/pkg/core/process"
	"github.com/elastic/mysql-configurator/pkg/utils"
)

// ProcessLauncher launches the server through pkg/core/process.
type ProcessLauncher struct {
	log *logger.Logger
}

// NewProcessLauncher creates a ProcessLauncher.
func NewProcessLauncher(log *logger.Logger) *ProcessLauncher {
	return &ProcessLauncher{log: log.Named("launcher")}
}

// Launch starts path detached, the server keeps running after the configurator exits.
func (l *ProcessLauncher) Launch(path string, args []string) (Process, error) {
	if err := utils.HasStrictExecPerms(path); err != nil {
		l.log.Warnw("server binary has unexpected permissions", "path", path, "error.message", err)
	}
	info, err := process.Start(path, process.WithArgs(args), process.WithDetached())
	if err != nil {
		return nil, err
	}
	return launchedProcess{info}, nil
}

type launchedProcess struct {
	*process.Info
}

func (p launchedProcess) Pid() int {
	return p.PID
}
