// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package service

// Config describes a service registration.
type Config struct {
	Name        string
	DisplayName string
	Description string
	Executable  string
	Arguments   []string
	// Account runs the service as this user, empty for the system default.
	Account   string
	AutoStart bool
}

// Manager is the OS service manager. Implementations do not wait, waiting
// on state transitions is done by Adapter.
type Manager interface {
	Exists(name string) (bool, error)
	Status(name string) (State, error)
	// Start starts a stopped service or resumes a paused one.
	Start(name string, args ...string) error
	Stop(name string) error
	Install(cfg Config) error
	Update(cfg Config) error
	Delete(name string) error
}
