// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/elastic/mysql-configurator/internal/pkg/cli"
	"github.com/elastic/mysql-configurator/internal/pkg/errors"
	"github.com/elastic/mysql-configurator/internal/pkg/server/controller"
	"github.com/elastic/mysql-configurator/internal/pkg/settings"
	"github.com/elastic/mysql-configurator/pkg/core/process"
)

func newStartCommandWithArgs(_ []string, streams *cli.IOStreams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the server with the current settings",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return startCmd(streams, c)
		},
	}

	cmd.Flags().Bool("wait", true, "Wait until the server accepts connections")
	cmd.Flags().String("args", "", "Comma separated options appended to the server command line")
	cmd.Flags().Int("retries", 0, "Connection attempts while waiting, 0 uses the settings")

	return cmd
}

func startCmd(streams *cli.IOStreams, cmd *cobra.Command) error {
	wait, _ := cmd.Flags().GetBool("wait")
	extra, _ := cmd.Flags().GetString("args")
	retries, _ := cmd.Flags().GetInt("retries")

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

	st := a.ctrl.Start(ctx, controller.StartOptions{
		AdditionalArgs:                cli.StringToSlice(extra),
		WaitUntilAcceptingConnections: wait,
		Selection:                     settings.UseNew,
		ConnectRetries:                retries,
	})
	for _, l := range st.ErrorLines {
		fmt.Fprintln(streams.Err, l.Text)
	}
	switch {
	case st.AlreadyRunning:
		fmt.Fprintln(streams.Out, "The server is already running.")
	case !st.Started:
		return errors.New("the server did not start", errors.TypeApplication)
	case wait && !st.AcceptingConnections:
		return errors.New("the server started but does not accept connections", errors.TypeNetwork)
	default:
		fmt.Fprintln(streams.Out, "The server is running.")
	}
	return nil
}

func newStopCommandWithArgs(_ []string, streams *cli.IOStreams) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the server",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			log, err := newLogger(c)
			if err != nil {
				return err
			}
			ctx, cancel := handleSignal(context.Background())
			defer cancel()
			a, err := newApp(ctx, log)
			if err != nil {
				return err
			}
			if err := a.ctrl.Stop(ctx, settings.UseNew); err != nil {
				return err
			}
			fmt.Fprintln(streams.Out, "The server is stopped.")
			return nil
		},
	}
}

type outputter func(io.Writer, interface{}) error

var statusOutputs = map[string]outputter{
	"human": humanStatusOutput,
	"json":  jsonOutput,
	"yaml":  yamlOutput,
}

// serverStatus is what the status command reports.
type serverStatus struct {
	Running      bool   `json:"running" yaml:"running"`
	PID          int    `json:"pid,omitempty" yaml:"pid,omitempty"`
	Version      string `json:"version,omitempty" yaml:"version,omitempty"`
	DataDir      string `json:"data_dir" yaml:"data_dir"`
	Service      string `json:"service,omitempty" yaml:"service,omitempty"`
	ServiceState string `json:"service_state,omitempty" yaml:"service_state,omitempty"`
	Configured   bool   `json:"configured" yaml:"configured"`
	Pending      bool   `json:"pending_upgrade,omitempty" yaml:"pending_upgrade,omitempty"`
}

func newStatusCommandWithArgs(_ []string, streams *cli.IOStreams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the server runs and how it was configured",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return statusCmd(streams, c)
		},
	}

	cmd.Flags().String("output", "human", "Output the status information in either human, json, or yaml")

	return cmd
}

func statusCmd(streams *cli.IOStreams, cmd *cobra.Command) error {
	output, _ := cmd.Flags().GetString("output")
	outputFunc, ok := statusOutputs[output]
	if !ok {
		return fmt.Errorf("unsupported output: %s", output)
	}

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
	st, err := a.status(ctx)
	if err != nil {
		return err
	}
	return outputFunc(streams.Out, st)
}

func (a *app) status(ctx context.Context) (*serverStatus, error) {
	cur := a.pair.Current
	st := &serverStatus{
		Version:    cur.ServerVersion,
		DataDir:    cur.DataDir,
		Configured: a.pair.HasPrevious(),
	}

	running, err := a.ctrl.IsRunning(ctx, settings.UseNew)
	if err != nil {
		return nil, err
	}
	st.Running = running
	if pid, err := process.ReadPIDFile(cur.PidFilePath()); err == nil && running {
		st.PID = pid
	}

	if cur.Service.Enabled && a.services != nil {
		st.Service = cur.Service.Name
		state, err := a.services.Status(cur.Service.Name)
		if err != nil {
			return nil, err
		}
		st.ServiceState = state.String()
	}

	if state, err := a.store.State(ctx); err == nil {
		st.Pending = state.PendingUpgrade
	}
	return st, nil
}

func humanStatusOutput(w io.Writer, obj interface{}) error {
	st, ok := obj.(*serverStatus)
	if !ok {
		return fmt.Errorf("unable to cast %T as *serverStatus", obj)
	}
	state := "stopped"
	if st.Running {
		state = "running"
		if st.PID > 0 {
			state = fmt.Sprintf("running (pid %d)", st.PID)
		}
	}
	fmt.Fprintf(w, "Server: %s\n", state)
	if st.Version != "" {
		fmt.Fprintf(w, "Version: %s\n", st.Version)
	}
	fmt.Fprintf(w, "Data directory: %s\n", st.DataDir)
	if st.Service != "" {
		fmt.Fprintf(w, "Service: %s (%s)\n", st.Service, strings.ToLower(st.ServiceState))
	}
	if !st.Configured {
		fmt.Fprint(w, "Configured: no\n")
	}
	if st.Pending {
		fmt.Fprint(w, "An upgrade did not finish, run configure again.\n")
	}
	return nil
}

func jsonOutput(w io.Writer, out interface{}) error {
	bytes, err := json.MarshalIndent(out, "", "    ")
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s\n", bytes)
	return nil
}

func yamlOutput(w io.Writer, out interface{}) error {
	bytes, err := yaml.Marshal(out)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s\n", bytes)
	return nil
}
