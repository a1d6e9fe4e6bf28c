// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

//go:build !windows

package paths

const (
	// BinaryName is the name of the configurator binary.
	BinaryName = "mysql-configurator"

	// ServerBinaryName is the name of the server executable.
	ServerBinaryName = "mysqld"

	defaultDataPath = "/var/lib/mysql-configurator"
)

// ServerToolName returns the file name of a helper tool shipped with the server.
func ServerToolName(tool string) string {
	return tool
}
