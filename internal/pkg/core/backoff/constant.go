// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package backoff

import "time"

// ConstantBackoff waits the same duration on every call until done is closed.
type ConstantBackoff struct {
	duration time.Duration
	done     <-chan struct{}
}

// NewConstantBackoff returns a backoff that always waits d.
func NewConstantBackoff(done <-chan struct{}, d time.Duration) Backoff {
	return &ConstantBackoff{
		duration: d,
		done:     done,
	}
}

// Wait blocks for the configured duration or until done is closed.
// It returns false when done was closed first.
func (b *ConstantBackoff) Wait() bool {
	if b.duration <= 0 {
		select {
		case <-b.done:
			return false
		default:
			return true
		}
	}

	t := time.NewTimer(b.duration)
	defer t.Stop()

	select {
	case <-b.done:
		return false
	case <-t.C:
		return true
	}
}
