// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package service

// State mirrors the states reported by the OS service manager.
type State int

const (
	StateUnknown State = iota
	StateStopped
	StateStartPending
	StateStopPending
	StateRunning
	StateContinuePending
	StatePausePending
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStartPending:
		return "StartPending"
	case StateStopPending:
		return "StopPending"
	case StateRunning:
		return "Running"
	case StateContinuePending:
		return "ContinuePending"
	case StatePausePending:
		return "PausePending"
	case StatePaused:
		return "Paused"
	default:
		return "Unknown"
	}
}

// Pending reports whether the service is between two stable states.
func (s State) Pending() bool {
	switch s {
	case StateStartPending, StateStopPending, StateContinuePending, StatePausePending:
		return true
	}
	return false
}
