// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/elastic/mysql-configurator/internal/pkg/cli"
	"github.com/elastic/mysql-configurator/internal/pkg/errors"
)

const defaultDeleteRetries = 10

func newServiceCommandWithArgs(args []string, streams *cli.IOStreams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the service registration of the server",
	}
	cmd.AddCommand(newServiceDeleteCommandWithArgs(args, streams))
	return cmd
}

func newServiceDeleteCommandWithArgs(_ []string, streams *cli.IOStreams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete [name]",
		Short: "Delete a service registration, the configured service by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return serviceDeleteCmd(streams, c, args)
		},
	}

	cmd.Flags().Int("retries", defaultDeleteRetries, "Existence checks after the delete request")
	cmd.Flags().Bool("fail-on-error", false, "Fail when the service cannot be removed")

	return cmd
}

func serviceDeleteCmd(streams *cli.IOStreams, cmd *cobra.Command, args []string) error {
	retries, _ := cmd.Flags().GetInt("retries")
	failOnError, _ := cmd.Flags().GetBool("fail-on-error")

	log, err := newLogger(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := handleSignal(context.Background())
	defer cancel()
	a, err := newApp(ctx, log)
	if err != nil {
		return err
	}
	if a.services == nil {
		return errors.New("no service manager available on this platform", errors.TypeApplication)
	}

	name := a.pair.Current.Service.Name
	if len(args) == 1 {
		name = args[0]
	}
	res, err := a.services.Delete(ctx, name, retries, failOnError)
	if err != nil {
		return err
	}
	fmt.Fprintf(streams.Out, "Service %s: %s\n", name, res)
	return nil
}
