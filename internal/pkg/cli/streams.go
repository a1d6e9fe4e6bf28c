// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package cli

import (
	"bytes"
	"io"
	"os"
)

// IOStreams are the pipes a command talks through. Commands never touch
// os.Stdout directly so tests can capture the output.
type IOStreams struct {
	// In represents the STDIN of the CLI.
	In io.Reader

	// Out receives command output and step progress.
	Out io.Writer

	// Err receives error messages.
	Err io.Writer
}

// NewIOStreams returns an IOStreams with the OS defaults pipes.
func NewIOStreams() *IOStreams {
	return &IOStreams{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}

// NewTestingIOStreams returns a IOStream and the raw bytes buffers so we can interact with them.
func NewTestingIOStreams() (*IOStreams, *bytes.Buffer, *bytes.Buffer, *bytes.Buffer) {
	in := &bytes.Buffer{}
	out := &bytes.Buffer{}
	err := &bytes.Buffer{}
	return &IOStreams{In: in, Out: out, Err: err}, in, out, err
}
