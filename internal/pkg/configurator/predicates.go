// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package configurator

import (
	"slices"

	"github.com/elastic/mysql-configurator/internal/pkg/settings"
)

// InstallState is what the configurator found on the machine, plus the facts
// the current run established so far.
type InstallState struct {
	DataDirExists      bool
	PriorServiceExists bool
	ServerRunning      bool
	DefaultsFileExists bool
	InitializedThisRun bool
}

// Inputs are everything a step predicate may look at. Previous is nil on a
// fresh installation.
type Inputs struct {
	Context  Context
	Current  *settings.Settings
	Previous *settings.Settings
	State    InstallState
}

// Predicate decides whether a step has work to do.
type Predicate func(in Inputs) bool

var predicates = map[StepID]Predicate{
	StepStopServer:             stopNeeded,
	StepWriteConfig:            writeConfigNeeded,
	StepFirewall:               firewallNeeded,
	StepService:                updateServiceNeeded,
	StepProcessSettings:        processSettingsNeeded,
	StepBackup:                 backupNeeded,
	StepUpgradeInPlace:         upgradeInPlaceNeeded,
	StepInitialize:             initializeNeeded,
	StepPermissions:            notRemoving,
	StepStartServer:            notRemoving,
	StepWritableCheck:          notRemoving,
	StepSecurity:               securityNeeded,
	StepUsers:                  usersNeeded,
	StepPlugins:                pluginsNeeded,
	StepShortcuts:              shortcutsNeeded,
	StepExamples:               examplesNeeded,
	StepStartServerUpgrade:     upgrading,
	StepStopServerAfterUpgrade: upgrading,
}

// ShouldExecute evaluates the predicate registered for id.
func ShouldExecute(id StepID, in Inputs) bool {
	p, ok := predicates[id]
	return ok && p(in)
}

// UseSelfContainedUpgrade picks the ordering where the server upgrades its
// own system tables on startup.
func UseSelfContainedUpgrade(in Inputs) bool {
	return in.Context == ContextUpgrade &&
		in.State.DataDirExists &&
		in.Current.Version().SupportsSelfContainedUpgrade()
}

func notRemoving(in Inputs) bool {
	return in.Context != ContextRemove
}

func upgrading(in Inputs) bool {
	return in.Context == ContextUpgrade
}

func stopNeeded(in Inputs) bool {
	return in.State.ServerRunning
}

func writeConfigNeeded(in Inputs) bool {
	if in.Context == ContextRemove || in.Current.DefaultsFile == "" {
		return false
	}
	return !in.State.DefaultsFileExists || in.Previous == nil || defaultsChanged(in.Current, in.Previous)
}

// defaultsChanged compares the keys rendered into the defaults file.
func defaultsChanged(cur, prev *settings.Settings) bool {
	return cur.DataDir != prev.DataDir ||
		cur.InstallDir != prev.InstallDir ||
		cur.Network != prev.Network ||
		cur.PidFilePath() != prev.PidFilePath() ||
		cur.ErrorLogPath() != prev.ErrorLogPath() ||
		cur.Security.AuthenticationPolicy != prev.Security.AuthenticationPolicy ||
		cur.ServerVersion != prev.ServerVersion
}

func firewallNeeded(in Inputs) bool {
	return addFirewallRule(in) || removeFirewallRule(in)
}

func addFirewallRule(in Inputs) bool {
	cur := in.Current.Network
	if in.Context == ContextRemove || !cur.TCP || !cur.OpenFirewall {
		return false
	}
	if in.Previous == nil || in.Context == ContextNew {
		return true
	}
	prev := in.Previous.Network
	return !prev.TCP || !prev.OpenFirewall || prev.Port != cur.Port
}

func removeFirewallRule(in Inputs) bool {
	if in.Previous == nil {
		return false
	}
	prev, cur := in.Previous.Network, in.Current.Network
	if !prev.TCP || !prev.OpenFirewall {
		return false
	}
	return in.Context == ContextRemove || !cur.TCP || !cur.OpenFirewall || prev.Port != cur.Port
}

// updateServiceNeeded is true when a registered service has to go away or
// be renamed, or when the instance runs as a service at all.
func updateServiceNeeded(in Inputs) bool {
	if in.Context == ContextRemove {
		return in.State.PriorServiceExists
	}
	return deleteServiceNeeded(in) || in.Current.Service.Enabled
}

func deleteServiceNeeded(in Inputs) bool {
	if !in.State.PriorServiceExists {
		return false
	}
	if in.Context == ContextRemove || !in.Current.Service.Enabled {
		return true
	}
	return in.Previous != nil && in.Previous.Service.Name != in.Current.Service.Name
}

func processSettingsNeeded(in Inputs) bool {
	return in.Context != ContextRemove && !in.Current.Service.Enabled
}

func backupNeeded(in Inputs) bool {
	return in.Context == ContextUpgrade && in.Current.Upgrade.Backup && in.State.DataDirExists
}

func upgradeInPlaceNeeded(in Inputs) bool {
	return in.Context == ContextUpgrade && in.State.DataDirExists && !UseSelfContainedUpgrade(in)
}

func initializeNeeded(in Inputs) bool {
	return !in.State.DataDirExists && (in.Context == ContextNew || in.Context == ContextReconfiguration)
}

func securityNeeded(in Inputs) bool {
	if in.Context == ContextRemove {
		return false
	}
	if in.State.InitializedThisRun {
		return true
	}
	if in.Previous == nil {
		return in.Current.Security.RootPassword != ""
	}
	return in.Current.RootPasswordHash() != in.Previous.RootPasswordHash()
}

func usersNeeded(in Inputs) bool {
	if in.Context == ContextRemove || len(in.Current.Users) == 0 {
		return false
	}
	if in.State.InitializedThisRun || in.Previous == nil {
		return true
	}
	return !slices.EqualFunc(in.Current.Users, in.Previous.Users, func(a, b settings.User) bool {
		return a.Name == b.Name && a.Host == b.Host && a.Role == b.Role && a.PasswordHash() == b.PasswordHash()
	})
}

func pluginsNeeded(in Inputs) bool {
	if in.Context == ContextRemove || len(in.Current.Plugins) == 0 {
		return false
	}
	if in.State.InitializedThisRun || in.Previous == nil {
		return true
	}
	return !slices.Equal(in.Current.Plugins, in.Previous.Plugins)
}

func shortcutsNeeded(in Inputs) bool {
	return in.Context != ContextRemove && in.Current.Shortcuts
}

func examplesNeeded(in Inputs) bool {
	return in.Context == ContextNew && in.State.InitializedThisRun && len(in.Current.Examples.Scripts) > 0
}
