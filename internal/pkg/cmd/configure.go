// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/elastic/mysql-configurator/internal/pkg/cli"
	"github.com/elastic/mysql-configurator/internal/pkg/configurator"
	"github.com/elastic/mysql-configurator/internal/pkg/configurator/reporter"
	"github.com/elastic/mysql-configurator/internal/pkg/errors"
	"github.com/elastic/mysql-configurator/internal/pkg/filelock"
	"github.com/elastic/mysql-configurator/internal/pkg/paths"
	"github.com/elastic/mysql-configurator/pkg/core/logger"
)

const (
	runLockFile = "configurator.lock"

	progressDots    = "dots"
	progressSpinner = "spinner"
	progressNone    = "none"
)

// progressFlag rejects unknown progress outputs while parsing.
type progressFlag string

var _ pflag.Value = (*progressFlag)(nil)

func (p *progressFlag) String() string { return string(*p) }
func (p *progressFlag) Type() string   { return "string" }

func (p *progressFlag) Set(v string) error {
	switch v {
	case progressDots, progressSpinner, progressNone:
		*p = progressFlag(v)
		return nil
	}
	return fmt.Errorf("unsupported progress output %q, use dots, spinner or none", v)
}

func newConfigureCommandWithArgs(_ []string, streams *cli.IOStreams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Apply the settings file to the local server instance",
		Long: `Compares the settings file with the settings of the last successful run and
runs the steps needed to bring the instance in line: writing the defaults file,
registering the service, initializing or upgrading the data directory,
securing root and creating accounts.

With --remove the instance is stopped and its service registration deleted.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return configureCmd(streams, c)
		},
	}

	cmd.Flags().Bool("remove", false, "Stop the server and remove what the configurator registered")
	mode := progressFlag(progressDots)
	cmd.Flags().Var(&mode, "progress", "Progress output: dots, spinner or none")

	return cmd
}

func configureCmd(streams *cli.IOStreams, cmd *cobra.Command) error {
	remove, _ := cmd.Flags().GetBool("remove")
	mode := cmd.Flags().Lookup("progress").Value.String()

	log, err := newLogger(cmd)
	if err != nil {
		return err
	}

	locker, err := filelock.NewRunLocker(paths.Data(), runLockFile)
	if err != nil {
		return err
	}
	if err := locker.TryLock(); err != nil {
		return err
	}
	defer func() {
		_ = locker.Unlock()
	}()

	ctx, cancel := handleSignal(context.Background())
	defer cancel()

	a, err := newApp(ctx, log)
	if err != nil {
		return err
	}

	rep, finish, err := newReporter(streams.Out, log, mode)
	if err != nil {
		return err
	}
	cctx := configurator.DetectContext(a.pair, remove)
	fmt.Fprintf(streams.Out, "Configuration type: %s\n", cctx)

	err = a.configurator(cctx, rep).Configure(ctx)
	finish()
	var cancelled *configurator.CancelledError
	if errors.As(err, &cancelled) {
		// requested by the user, not a failure
		log.Infow("configuration cancelled", "step", cancelled.Step)
		fmt.Fprintln(streams.Out, "Configuration cancelled.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(streams.Out, "Configuration complete.")
	return nil
}

// newReporter combines the log reporter with the progress output picked by mode.
// The returned func ends the progress output.
func newReporter(w io.Writer, log *logger.Logger, mode string) (reporter.Reporter, func(), error) {
	logRep := reporter.NewLog(log)
	switch mode {
	case progressDots:
		pt := reporter.NewProgressTracker(w)
		pt.Start()
		return reporter.Multi(logRep, pt), pt.Stop, nil
	case progressSpinner:
		sp := reporter.NewSpinner(w)
		return reporter.Multi(logRep, sp), func() { _ = sp.Finish() }, nil
	case progressNone:
		return logRep, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unsupported progress output: %s", mode)
}
