// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package process

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/elastic/go-sysinfo"
	"github.com/elastic/go-sysinfo/types"
)

// ErrNoPIDFile is returned when the pid file does not exist.
var ErrNoPIDFile = errors.New("pid file does not exist")

// Alive looks pid up in the OS process table. Nothing is cached, every call
// queries the OS again.
func Alive(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	proc, err := sysinfo.Process(pid)
	if err != nil {
		if errors.Is(err, types.ErrNotImplemented) {
			return false, err
		}
		return false, nil
	}
	// some providers hand out a process for any pid, reading its info
	// confirms it exists
	if _, err := proc.Info(); err != nil {
		return false, nil
	}
	return true, nil
}

// ReadPIDFile reads the pid written by a daemon.
func ReadPIDFile(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNoPIDFile
		}
		return 0, fmt.Errorf("reading pid file %q: %w", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(content)))
	if err != nil {
		return 0, fmt.Errorf("parsing pid file %q: %w", path, err)
	}
	return pid, nil
}
