// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/elastic/mysql-configurator/internal/pkg/cli"
	"github.com/elastic/mysql-configurator/version"
)

// VersionInfo describes the configurator build.
type VersionInfo struct {
	Version   string    `yaml:"version"`
	Commit    string    `yaml:"commit"`
	BuildTime time.Time `yaml:"build_time"`
}

// Output is the yaml form of the version command.
type Output struct {
	Binary VersionInfo `yaml:"binary"`
}

func currentVersion() VersionInfo {
	return VersionInfo{
		Version:   version.GetDefaultVersion(),
		Commit:    version.Commit(),
		BuildTime: version.BuildTime(),
	}
}

func newVersionCommandWithArgs(_ []string, streams *cli.IOStreams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Display the version of the configurator",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			outputYaml, _ := c.Flags().GetBool("yaml")
			info := currentVersion()
			if outputYaml {
				out, err := yaml.Marshal(Output{Binary: info})
				if err != nil {
					return err
				}
				_, err = streams.Out.Write(out)
				return err
			}
			fmt.Fprintf(streams.Out, "Binary: %s (build: %s at %s)\n", info.Version, info.Commit, info.BuildTime)
			return nil
		},
	}

	cmd.Flags().Bool("yaml", false, "Output information in YAML format")

	return cmd
}
