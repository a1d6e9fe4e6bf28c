// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout matches every *TimeoutError. The service may still reach
	// the target state later.
	ErrTimeout = errors.New("timed out waiting for service")
	// ErrFailedToStart is returned when the service went back to Stopped.
	ErrFailedToStart = errors.New("service failed to start")
	// ErrNotFound is returned for operations on a service that is not registered.
	ErrNotFound = errors.New("service does not exist")
)

// TimeoutError is returned when a service did not reach Target in time.
type TimeoutError struct {
	Service string
	Target  State
	Last    State
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Last.Pending() {
		return fmt.Sprintf("timed out after %s waiting for service %s to reach %s (still %s)", e.Timeout, e.Service, e.Target, e.Last)
	}
	return fmt.Sprintf("timed out after %s waiting for service %s to reach %s (last state %s)", e.Timeout, e.Service, e.Target, e.Last)
}

// Is makes errors.Is(err, ErrTimeout) true.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}
