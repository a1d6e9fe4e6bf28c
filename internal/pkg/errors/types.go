// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package errors

// ErrorType classifies an error.
type ErrorType int

const (
	// TypeUnexpected is the default type.
	TypeUnexpected ErrorType = iota
	// TypeConfig is for configuration and settings errors.
	TypeConfig
	// TypeFilesystem is for errors touching files and directories.
	TypeFilesystem
	// TypeNetwork is for connection errors.
	TypeNetwork
	// TypeApplication is for errors reported by the managed server.
	TypeApplication
	// TypeSecurity is for permission and credential errors.
	TypeSecurity
)

func (t ErrorType) String() string {
	switch t {
	case TypeConfig:
		return "CONFIG"
	case TypeFilesystem:
		return "FILESYSTEM"
	case TypeNetwork:
		return "NETWORK"
	case TypeApplication:
		return "APPLICATION"
	case TypeSecurity:
		return "SECURITY"
	default:
		return "UNEXPECTED"
	}
}
