// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringToSlice(t *testing.T) {
	cases := map[string]struct {
		in  string
		out []string
	}{
		"empty":      {in: "", out: []string{}},
		"single":     {in: "--skip-grant-tables", out: []string{"--skip-grant-tables"}},
		"trimmed":    {in: " --a=1 , --b=2", out: []string{"--a=1", "--b=2"}},
		"empty item": {in: "--a,,--b,", out: []string{"--a", "--b"}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.out, StringToSlice(tc.in))
		})
	}
}
