// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

//go:build !windows

package utils

import "os"

// PermissionUser is the permission level the user needs to be.
const PermissionUser = "root"

// HasRoot returns true if the user has root permissions.
func HasRoot() (bool, error) {
	return os.Geteuid() == 0, nil
}
