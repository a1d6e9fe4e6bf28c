// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

//go:build !windows

package process

import (
	"os"
)

// Job groups the helper tools started by the configurator. Unix helpers
// exit with their parent session, so the job is a noop.
type Job int

// JobObject receives every non detached process started by Start.
var JobObject Job

// CreateJobObject initializes JobObject.
func CreateJobObject() (Job, error) {
	return JobObject, nil
}

func (job Job) Close() error {
	return nil
}

func (job Job) Assign(*os.Process) error {
	return nil
}
