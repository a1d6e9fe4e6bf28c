// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

//go:build !windows

package utils

import (
	"errors"

	"github.com/elastic/elastic-agent-libs/file"
)

// HasStrictExecPerms ensures that the server executable at path is executable by
// its owner and cannot be written by group or other.
func HasStrictExecPerms(path string) error {
	info, err := file.Stat(path)
	if err != nil {
		return err
	}

	return hasStrictExecPerms(info)
}

func hasStrictExecPerms(info file.FileInfo) error {
	if info.IsDir() {
		return errors.New("is a directory")
	}
	if info.Mode()&0022 != 0 {
		return errors.New("cannot be writeable by group or other")
	}
	if info.Mode()&0100 == 0 {
		return errors.New("not executable by owner")
	}

	return nil
}
