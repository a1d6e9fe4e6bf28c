// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Common metadata keys.
const (
	MetaKeyPath    = "path"
	MetaKeyService = "service"
	MetaKeyPID     = "pid"
	MetaKeyExit    = "exit_code"
)

// MetaRecord is a single key/value attached to an error.
type MetaRecord struct {
	key string
	val interface{}
}

// M creates a meta entry for an error.
func M(key string, val interface{}) MetaRecord {
	return MetaRecord{key: key, val: val}
}

// typedError is an error carrying a type, a message and metadata next to the
// wrapped error.
type typedError struct {
	msg     string
	err     error
	errType ErrorType
	meta    map[string]interface{}
}

// New constructs a new error from the arguments. Arguments can be in any
// order: an error is wrapped, a string becomes the message, an ErrorType sets
// the type and MetaRecord values are added as metadata. Other values are
// appended to the message.
func New(args ...interface{}) error {
	te := &typedError{}
	var extra []string

	for _, arg := range args {
		switch v := arg.(type) {
		case nil:
		case string:
			if te.msg == "" {
				te.msg = v
			} else {
				extra = append(extra, v)
			}
		case error:
			if te.err == nil {
				te.err = v
			} else {
				extra = append(extra, v.Error())
			}
		case ErrorType:
			te.errType = v
		case MetaRecord:
			if te.meta == nil {
				te.meta = make(map[string]interface{})
			}
			te.meta[v.key] = v.val
		default:
			extra = append(extra, fmt.Sprintf("%v", v))
		}
	}

	if len(extra) > 0 {
		te.msg = strings.TrimSpace(te.msg + " " + strings.Join(extra, " "))
	}

	// inherit type from wrapped error when not set explicitly
	if te.errType == TypeUnexpected && te.err != nil {
		var inner *typedError
		if errors.As(te.err, &inner) {
			te.errType = inner.errType
		}
	}

	return te
}

func (e *typedError) Error() string {
	switch {
	case e.msg == "" && e.err == nil:
		return "error"
	case e.msg == "":
		return e.err.Error()
	case e.err == nil:
		return e.msg
	default:
		return fmt.Sprintf("%s: %s", e.msg, e.err.Error())
	}
}

// Unwrap returns the wrapped error.
func (e *typedError) Unwrap() error {
	return e.err
}

// Type returns the error type.
func (e *typedError) Type() ErrorType {
	return e.errType
}

// Meta returns a copy of the metadata attached to the error and all the errors
// it wraps. Outer values win.
func (e *typedError) Meta() map[string]interface{} {
	out := make(map[string]interface{})
	var inner *typedError
	if e.err != nil && errors.As(e.err, &inner) {
		for k, v := range inner.Meta() {
			out[k] = v
		}
	}
	for k, v := range e.meta {
		out[k] = v
	}
	return out
}

// Format prints the metadata with %+v.
func (e *typedError) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		meta := e.Meta()
		keys := make([]string, 0, len(meta))
		for k := range meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(s, "%s [type=%s", e.Error(), e.errType)
		for _, k := range keys {
			fmt.Fprintf(s, " %s=%v", k, meta[k])
		}
		fmt.Fprint(s, "]")
		return
	}
	fmt.Fprint(s, e.Error())
}

// TypeOf returns the type of the error or TypeUnexpected when the error is not
// a typed error.
func TypeOf(err error) ErrorType {
	var te *typedError
	if errors.As(err, &te) {
		return te.errType
	}
	return TypeUnexpected
}

// MetaOf returns the metadata of the error, nil when none.
func MetaOf(err error) map[string]interface{} {
	var te *typedError
	if errors.As(err, &te) {
		return te.Meta()
	}
	return nil
}

// Is proxies errors.Is so callers only import this package.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As proxies errors.As so callers only import this package.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
