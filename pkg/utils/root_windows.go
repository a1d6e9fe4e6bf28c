// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

//go:build windows

package utils

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// PermissionUser is the permission level the user needs to be.
const PermissionUser = "Administrator"

// HasRoot returns true if the process runs with an elevated token.
func HasRoot() (bool, error) {
	token := windows.GetCurrentProcessToken()
	if token == 0 {
		return false, fmt.Errorf("failed to open the current process token")
	}
	return token.IsElevated(), nil
}
