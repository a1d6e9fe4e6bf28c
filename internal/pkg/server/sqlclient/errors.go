// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package sqlclient

import (
	"context"
	"errors"
	"net"
	"os"

	"github.com/go-sql-driver/mysql"
)

// Failure classifies a failed connection attempt.
type Failure int

const (
	FailureNone Failure = iota
	// FailureTimeout is a dial, read or write that ran out of time.
	FailureTimeout
	// FailureAccessDenied means the server answered but refused the credentials.
	FailureAccessDenied
	// FailureHostNotAllowed means the account has no grant for the client host.
	FailureHostNotAllowed
	// FailureOther covers refused connections and everything else.
	FailureOther
)

// Server error numbers.
const (
	erDBAccessDenied        = 1044
	erAccessDenied          = 1045
	erHostIsBlocked         = 1129
	erHostNotPrivileged     = 1130
	erAccessDeniedNoPasswd  = 1698
	erAccountHasBeenLocked  = 3118
	erMustChangePasswordLog = 1862
)

func (f Failure) String() string {
	switch f {
	case FailureNone:
		return "none"
	case FailureTimeout:
		return "timeout"
	case FailureAccessDenied:
		return "access denied"
	case FailureHostNotAllowed:
		return "host not allowed"
	default:
		return "other"
	}
}

// Classify maps a driver or network error to a Failure.
func Classify(err error) Failure {
	if err == nil {
		return FailureNone
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case erAccessDenied, erAccessDeniedNoPasswd, erAccountHasBeenLocked, erMustChangePasswordLog:
			return FailureAccessDenied
		case erHostNotPrivileged, erHostIsBlocked, erDBAccessDenied:
			return FailureHostNotAllowed
		}
		return FailureOther
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}
	return FailureOther
}
