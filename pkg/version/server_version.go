// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package version

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Server versions look like 8.0.36, 8.0.36-log, 5.7.44-0ubuntu0.18.04.1 or
// 8.4.0-commercial. Anything after the patch number is kept as the suffix.
const serverVersionFormat = `^(?P<coreversion>(?P<major>0|[1-9]\d*)\.(?P<minor>0|[1-9]\d*)(?:\.(?P<patch>0|[1-9]\d*))?)(?:[-_](?P<suffix>[0-9A-Za-z._~-]+))?$`

var serverVersionRegEx *regexp.Regexp
var namedGroups map[string]int

func init() {
	serverVersionRegEx = regexp.MustCompile(serverVersionFormat)
	groups := serverVersionRegEx.SubexpNames()
	namedGroups = make(map[string]int, len(groups))
	for i, groupName := range groups {
		namedGroups[groupName] = i
	}
}

var ErrNoMatch = errors.New("version string does not match expected format")

var (
	// SelfContainedUpgrade is the first release that upgrades the system
	// tables during server startup instead of through mysql_upgrade.
	SelfContainedUpgrade = NewServerVersion(8, 0, 16)
	// ShutdownStatement is the first release accepting the SHUTDOWN statement.
	ShutdownStatement = NewServerVersion(5, 7, 9)
	// VersionedReadyMarker is the first release logging the server version in
	// the ready for connections line.
	VersionedReadyMarker = NewServerVersion(8, 0, 0)
	// AlterUserPassword is the first release changing passwords with ALTER USER.
	AlterUserPassword = NewServerVersion(5, 7, 6)
	// CreateUserIfNotExists is the first release accepting CREATE USER IF NOT EXISTS.
	CreateUserIfNotExists = NewServerVersion(5, 7, 6)
)

type ServerVersion struct {
	original    string
	major       int
	minor       int
	patch       int
	coreVersion string
	suffix      string
}

func NewServerVersion(major, minor, patch int) ServerVersion {
	core := fmt.Sprintf("%d.%d.%d", major, minor, patch)
	return ServerVersion{
		original:    core,
		major:       major,
		minor:       minor,
		patch:       patch,
		coreVersion: core,
	}
}

func (sv ServerVersion) Original() string {
	return sv.original
}

func (sv ServerVersion) Major() int {
	return sv.major
}

func (sv ServerVersion) Minor() int {
	return sv.minor
}

func (sv ServerVersion) Patch() int {
	return sv.patch
}

func (sv ServerVersion) CoreVersion() string {
	return sv.coreVersion
}

func (sv ServerVersion) Suffix() string {
	return sv.suffix
}

// IsZero is true for a version that was never parsed.
func (sv ServerVersion) IsZero() bool {
	return sv.major == 0 && sv.minor == 0 && sv.patch == 0
}

func (sv ServerVersion) String() string {
	if sv.suffix == "" {
		return sv.coreVersion
	}
	return sv.coreVersion + "-" + sv.suffix
}

// Less compares the numeric part only, distribution suffixes do not order releases.
func (sv ServerVersion) Less(other ServerVersion) bool {
	if sv.major != other.major {
		return sv.major < other.major
	}
	if sv.minor != other.minor {
		return sv.minor < other.minor
	}
	return sv.patch < other.patch
}

// AtLeast returns true when sv is the same release as other or a later one.
func (sv ServerVersion) AtLeast(other ServerVersion) bool {
	return !sv.Less(other)
}

func (sv ServerVersion) SupportsSelfContainedUpgrade() bool {
	return sv.AtLeast(SelfContainedUpgrade)
}

func (sv ServerVersion) SupportsShutdownStatement() bool {
	return sv.AtLeast(ShutdownStatement)
}

func ParseServerVersion(version string) (*ServerVersion, error) {
	matches := serverVersionRegEx.FindStringSubmatch(strings.TrimSpace(version))
	if matches == nil {
		return nil, ErrNoMatch
	}

	major, err := strconv.Atoi(matches[namedGroups["major"]])
	if err != nil {
		return nil, fmt.Errorf("parsing major version: %w", err)
	}

	minor, err := strconv.Atoi(matches[namedGroups["minor"]])
	if err != nil {
		return nil, fmt.Errorf("parsing minor version: %w", err)
	}

	patch := 0
	coreVersion := matches[namedGroups["coreversion"]]
	if p := matches[namedGroups["patch"]]; p != "" {
		patch, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("parsing patch version: %w", err)
		}
	} else {
		coreVersion += ".0"
	}

	return &ServerVersion{
		original:    version,
		major:       major,
		minor:       minor,
		patch:       patch,
		coreVersion: coreVersion,
		suffix:      matches[namedGroups["suffix"]],
	}, nil
}
