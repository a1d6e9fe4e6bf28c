// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

//go:build windows

package process

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Job is a windows job object killing its processes when the last handle
// closes. Helper tools such as mysqldump are assigned to it so they do not
// outlive an interrupted configurator. The server itself is started detached
// and never joins the job.
type Job windows.Handle

// JobObject receives every non detached process started by Start.
var JobObject Job

// CreateJobObject creates JobObject. Call it once from main.
func CreateJobObject() (Job, error) {
	h, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return 0, fmt.Errorf("creating job object: %w", err)
	}
	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE,
		},
	}
	if _, err := windows.SetInformationJobObject(
		h,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		uint32(unsafe.Sizeof(info))); err != nil {
		_ = windows.CloseHandle(h)
		return 0, fmt.Errorf("setting job object limits: %w", err)
	}
	JobObject = Job(h)
	return JobObject, nil
}

func (job Job) Close() error {
	if job == 0 {
		return nil
	}
	return windows.CloseHandle(windows.Handle(job))
}

// Assign adds p to the job, a zero job ignores the call.
func (job Job) Assign(p *os.Process) error {
	if job == 0 || p == nil {
		return nil
	}
	access := uint32(windows.PROCESS_QUERY_LIMITED_INFORMATION | windows.PROCESS_SET_QUOTA | windows.PROCESS_TERMINATE)
	h, err := windows.OpenProcess(access, false, uint32(p.Pid))
	if err != nil {
		return fmt.Errorf("opening process handle: %w", err)
	}
	defer windows.CloseHandle(h) //nolint:errcheck // best effort

	if err := windows.AssignProcessToJobObject(windows.Handle(job), h); err != nil {
		return fmt.Errorf("assigning to job object: %w", err)
	}
	return nil
}
