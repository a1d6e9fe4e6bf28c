// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

// Package cmd holds the command line of the configurator.
package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/elastic/mysql-configurator/internal/pkg/cli"
	"github.com/elastic/mysql-configurator/internal/pkg/paths"
	"github.com/elastic/mysql-configurator/pkg/core/logger"
)

const (
	flagLogLevel  = "log-level"
	flagLogStderr = "log-stderr"
)

// NewCommand returns the default command for the configurator.
func NewCommand() *cobra.Command {
	return NewCommandWithArgs(os.Args, cli.NewIOStreams())
}

// NewCommandWithArgs returns the root command with every subcommand attached.
func NewCommandWithArgs(args []string, streams *cli.IOStreams) *cobra.Command {
	cmd := &cobra.Command{
		Use:           paths.BinaryName + " [subcommand]",
		Short:         "Configures a local MySQL server instance.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(streams.Out)
	cmd.SetErr(streams.Err)

	// path flags
	cmd.PersistentFlags().AddGoFlag(flag.CommandLine.Lookup("path.home"))
	cmd.PersistentFlags().AddGoFlag(flag.CommandLine.Lookup("path.config"))
	cmd.PersistentFlags().AddGoFlag(flag.CommandLine.Lookup("c"))
	cmd.PersistentFlags().AddGoFlag(flag.CommandLine.Lookup("path.data"))
	cmd.PersistentFlags().AddGoFlag(flag.CommandLine.Lookup("path.logs"))

	// logging flags
	cmd.PersistentFlags().String(flagLogLevel, logger.DefaultLogLevel.String(), "Log level: debug, info, warning or error")
	cmd.PersistentFlags().Bool(flagLogStderr, false, "Log to stderr instead of the logs path")

	cmd.AddCommand(
		newConfigureCommandWithArgs(args, streams),
		newStartCommandWithArgs(args, streams),
		newStopCommandWithArgs(args, streams),
		newStatusCommandWithArgs(args, streams),
		newServiceCommandWithArgs(args, streams),
		newVersionCommandWithArgs(args, streams),
	)
	return cmd
}

// newLogger configures logging from the persistent flags.
func newLogger(cmd *cobra.Command) (*logger.Logger, error) {
	cfg := logger.DefaultLoggingConfig()
	level, _ := cmd.Flags().GetString(flagLogLevel)
	if err := cfg.Level.Unpack(level); err != nil {
		return nil, fmt.Errorf("invalid --%s: %w", flagLogLevel, err)
	}
	if toStderr, _ := cmd.Flags().GetBool(flagLogStderr); toStderr {
		cfg.ToStderr = true
		cfg.ToFiles = false
	}
	return logger.NewFromConfig("", cfg)
}

// handleSignal cancels the returned context on SIGINT, SIGTERM or SIGQUIT.
func handleSignal(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cfunc := context.WithCancel(ctx)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		select {
		case <-sigs:
			cfunc()
		case <-ctx.Done():
		}

		signal.Stop(sigs)
	}()

	return ctx, cfunc
}
