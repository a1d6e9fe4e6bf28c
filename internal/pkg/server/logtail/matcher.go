// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package logtail

import (
	"strings"

	"github.com/elastic/mysql-configurator/pkg/version"
)

const (
	readyMarkerVersioned = "ready for connections. Version: '"
	readyMarkerLegacy    = ": ready for connections."
	upgradeStartMarker   = "Server upgrade from"
	upgradeDoneMarker    = "completed"
	upgradeFailedMarker  = "Failed to upgrade server"
	abortMarker          = "Aborting"
)

// Result is what a watch observed until it stopped.
type Result struct {
	Ready           bool
	UpgradeFinished bool
	UpgradeFailed   bool
	// Aborted is set when the server logged that it gives up.
	Aborted bool
	// TimedOut is set when the watch stopped before a matcher finished.
	TimedOut bool
}

// Matcher inspects one line and updates r. Returning true ends the watch.
type Matcher func(line Line, r *Result) bool

// ReadyMarker returns the ready for connections phrase for a server version.
func ReadyMarker(v version.ServerVersion) string {
	if v.IsZero() || v.AtLeast(version.VersionedReadyMarker) {
		return readyMarkerVersioned
	}
	return readyMarkerLegacy
}

// ReadyMatcher ends on the ready marker or an abort.
func ReadyMatcher(v version.ServerVersion) Matcher {
	marker := ReadyMarker(v)
	return func(line Line, r *Result) bool {
		if isAbort(line) {
			r.Aborted = true
			return true
		}
		if strings.Contains(line.Text, marker) {
			r.Ready = true
			return true
		}
		return false
	}
}

// UpgradeMatcher follows a self-contained upgrade. It records the upgrade
// outcome and ends once the server is ready or gave up. A server that gets
// ready without logging an upgrade had nothing to upgrade.
func UpgradeMatcher(v version.ServerVersion) Matcher {
	ready := ReadyMatcher(v)
	return func(line Line, r *Result) bool {
		switch {
		case strings.Contains(line.Text, upgradeFailedMarker):
			r.UpgradeFailed = true
			return true
		case strings.Contains(line.Text, upgradeStartMarker) && strings.Contains(line.Text, upgradeDoneMarker):
			r.UpgradeFinished = true
			return false
		}
		if !ready(line, r) {
			return false
		}
		if r.Aborted {
			r.UpgradeFailed = !r.UpgradeFinished
		} else {
			r.UpgradeFinished = true
		}
		return true
	}
}

func isAbort(line Line) bool {
	return line.Severity == SeverityError && strings.Contains(line.Text, abortMarker)
}
