// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package settings

// Selection picks which of the two settings generations an operation should
// connect with. It is passed explicitly to every call that needs it.
type Selection int

const (
	// UseNew selects the settings being applied.
	UseNew Selection = iota
	// UseOld selects the settings of the last successful run.
	UseOld
)

// Toggle returns the other selection.
func (s Selection) Toggle() Selection {
	if s == UseOld {
		return UseNew
	}
	return UseOld
}

func (s Selection) String() string {
	if s == UseOld {
		return "old"
	}
	return "new"
}

// Pair holds the settings being applied and the settings applied last time.
// Previous is nil on a fresh installation.
type Pair struct {
	Current  *Settings
	Previous *Settings
}

// Get returns the settings for sel. UseOld falls back to Current when there
// are no previous settings.
func (p Pair) Get(sel Selection) *Settings {
	if sel == UseOld && p.Previous != nil {
		return p.Previous
	}
	return p.Current
}

// HasPrevious is true when a previous configuration run succeeded.
func (p Pair) HasPrevious() bool {
	return p.Previous != nil
}
