// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package main

import (
	"fmt"
	"os"

	"github.com/elastic/mysql-configurator/internal/pkg/cmd"
	"github.com/elastic/mysql-configurator/pkg/core/process"
)

func main() {
	pj, err := process.CreateJobObject()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize process job object: %v\n", err)
		os.Exit(1)
	}

	command := cmd.NewCommand()
	err = command.Execute()
	_ = pj.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
