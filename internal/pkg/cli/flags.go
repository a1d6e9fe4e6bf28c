// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package cli

import "strings"

const splitOn = ","

// StringToSlice splits a comma separated flag value and trims every element.
// Empty elements are dropped so "a,,b" yields two values.
func StringToSlice(s string) []string {
	out := make([]string, 0)
	for _, v := range strings.Split(s, splitOn) {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
