// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package configurator

import (
	"context"
	"strings"
)

// StepID identifies a step. Dispatch always goes through the ID.
type StepID string

const (
	StepStopServer             StepID = "stop_server"
	StepWriteConfig            StepID = "write_config"
	StepFirewall               StepID = "firewall"
	StepService                StepID = "service"
	StepProcessSettings        StepID = "process_settings"
	StepBackup                 StepID = "backup"
	StepUpgradeInPlace         StepID = "upgrade_in_place"
	StepInitialize             StepID = "initialize"
	StepPermissions            StepID = "permissions"
	StepStartServer            StepID = "start_server"
	StepWritableCheck          StepID = "writable_check"
	StepSecurity               StepID = "security"
	StepUsers                  StepID = "users"
	StepPlugins                StepID = "plugins"
	StepShortcuts              StepID = "shortcuts"
	StepExamples               StepID = "examples"
	StepStartServerUpgrade     StepID = "start_server_upgrade"
	StepStopServerAfterUpgrade StepID = "stop_server_after_upgrade"
)

// Status of a step within one run.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusFinished
	StatusError
	StatusSkipped
	// StatusCancelled marks the step that was running when the run was cancelled.
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusRunning:
		return "Running"
	case StatusFinished:
		return "Finished"
	case StatusError:
		return "Error"
	case StatusSkipped:
		return "Skipped"
	case StatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Context is the kind of configuration run. Steps carry a bitmask of the
// contexts they are eligible for.
type Context uint8

const (
	ContextNew Context = 1 << iota
	ContextReconfiguration
	ContextUpgrade
	ContextRemove

	ContextConfigure = ContextNew | ContextReconfiguration | ContextUpgrade
	ContextAll       = ContextConfigure | ContextRemove
)

func (c Context) String() string {
	var names []string
	for _, n := range []struct {
		c    Context
		name string
	}{
		{ContextNew, "new"},
		{ContextReconfiguration, "reconfiguration"},
		{ContextUpgrade, "upgrade"},
		{ContextRemove, "remove"},
	} {
		if c&n.c != 0 {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Action performs a step and sets its terminal status with Finish or Fail.
type Action func(ctx context.Context, s *Step) error

// Step is one named, conditionally executed unit of configuration work.
type Step struct {
	ID   StepID
	Name string
	// Weight estimates the relative duration, it only feeds progress display.
	Weight        int
	Applicability Context
	Action        Action

	Execute bool
	Status  Status
	Err     error
}

// Finish marks the step successful.
func (s *Step) Finish() {
	s.Status = StatusFinished
	s.Err = nil
}

// Fail marks the step failed and returns err for convenience.
func (s *Step) Fail(err error) error {
	s.Status = StatusError
	s.Err = err
	return err
}

// ResetSteps puts every step back to Pending before a run.
func ResetSteps(steps []*Step) {
	for _, s := range steps {
		s.Status = StatusPending
		s.Execute = false
		s.Err = nil
	}
}
