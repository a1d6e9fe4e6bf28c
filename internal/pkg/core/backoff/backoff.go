// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

// Package backoff paces retry loops that stop when a done channel closes.
package backoff

// Backoff defines the interface for backoff strategies.
type Backoff interface {
	// Wait blocks for a duration of time governed by the backoff strategy.
	// It returns false once the loop should give up.
	Wait() bool
}
