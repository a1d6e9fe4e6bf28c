// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package controller

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/elastic/mysql-configurator/internal/pkg/paths"
	"github.com/elastic/mysql-configurator/internal/pkg/server/defaultsfile"
	"github.com/elastic/mysql-configurator/internal/pkg/server/logtail"
	"github.com/elastic/mysql-configurator/internal/pkg/server/service"
	"github.com/elastic/mysql-configurator/internal/pkg/settings"
)

// Start brings the server up. Failures are reported through the returned
// status, never as an error. Calling Start on a running server launches
// nothing and reports Started and AlreadyRunning.
func (c *Controller) Start(ctx context.Context, opts StartOptions) StartStatus {
	s := c.pair.Current

	running, err := c.IsRunning(ctx, opts.Selection)
	if err != nil {
		c.log.Warnw("could not determine whether the server is running", "error.message", err)
	}
	if running {
		c.log.Infow("server is already running")
		return StartStatus{Started: true, AlreadyRunning: true}
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()

	var watch *logtail.Watch
	if c.deps.Log != nil && (opts.SelfContainedUpgrade || (s.Readiness.UseErrorLog && opts.WaitUntilAcceptingConnections)) {
		// started before the launch so the marker cannot be missed
		matcher := logtail.ReadyMatcher(s.Version())
		if opts.SelfContainedUpgrade {
			matcher = logtail.UpgradeMatcher(s.Version())
		}
		watch = c.deps.Log.Watch(watchCtx, matcher)
	}

	var status StartStatus
	var exited <-chan struct{}
	if s.Service.Enabled {
		status.Started = c.startService(ctx, s, opts)
	} else {
		status.Started, exited = c.startProcess(ctx, s, opts)
	}

	if !status.Started {
		status.ErrorLines = drainErrors(watch, stopWatch)
		return status
	}
	if !opts.WaitUntilAcceptingConnections && !opts.SelfContainedUpgrade {
		return status
	}

	if watch != nil {
		res, err := c.waitForLog(ctx, s, opts, watch, exited)
		switch {
		case err == nil:
			if opts.SelfContainedUpgrade {
				status.Upgrade = &UpgradeStatus{Finished: res.UpgradeFinished, Failed: res.UpgradeFailed}
			}
			if res.Ready {
				status.AcceptingConnections = true
				return status
			}
			if res.Aborted || res.UpgradeFailed {
				c.log.Errorw("server gave up during startup", "upgrade_failed", res.UpgradeFailed)
				status.Started = false
				status.ErrorLines = drainErrors(watch, stopWatch)
				return status
			}
		case ctx.Err() != nil:
			status.ErrorLines = drainErrors(watch, stopWatch)
			return status
		case isClosed(exited):
			c.log.Errorw("server process exited during startup")
			status.Started = false
			status.ErrorLines = drainErrors(watch, stopWatch)
			return status
		default:
			c.log.Infow("ready marker not found in the error log, polling for connections", "error.message", err)
		}
	}

	if !opts.WaitUntilAcceptingConnections {
		return status
	}
	status.AcceptingConnections = c.deps.Poller.WaitUntilConnectable(ctx, c.connectRetries(s, opts), opts.Selection)
	if !status.AcceptingConnections {
		status.ErrorLines = drainErrors(watch, stopWatch)
	}
	return status
}

// LaunchArgs returns the server command line for s.
func LaunchArgs(s *settings.Settings, opts StartOptions) []string {
	var args []string
	if defaultsfile.Exists(s.DefaultsFile) {
		args = append(args, "--defaults-file="+s.DefaultsFile)
	} else {
		args = append(args,
			fmt.Sprintf("--port=%d", s.Network.Port),
			"--datadir="+s.DataDir,
			"--pid-file="+s.PidFilePath(),
			"--log-error="+s.ErrorLogPath(),
		)
		if !s.Network.TCP {
			args = append(args, "--skip-networking")
		}
		if runtime.GOOS == "windows" {
			if s.Network.NamedPipe {
				args = append(args, "--enable-named-pipe", "--socket="+s.Network.PipeName)
			}
			if s.Network.SharedMemory {
				args = append(args, "--shared-memory", "--shared-memory-base-name="+s.Network.SharedMemoryName)
			}
		} else if s.Network.Socket != "" {
			args = append(args, "--socket="+s.Network.Socket)
		}
	}
	if opts.SelfContainedUpgrade {
		args = append(args, upgradeFlag)
	}
	return append(args, opts.AdditionalArgs...)
}

func (c *Controller) startService(ctx context.Context, s *settings.Settings, opts StartOptions) bool {
	var args []string
	if opts.SelfContainedUpgrade {
		args = append(args, upgradeFlag)
	}
	args = append(args, opts.AdditionalArgs...)

	c.log.Infow("starting server service", "service", s.Service.Name)
	err := c.deps.Services.Start(ctx, s.Service.Name, args, s.ServiceTimeout())
	switch {
	case err == nil:
		return true
	case errors.Is(err, service.ErrTimeout):
		c.log.Warnw("service did not report running in time, it may still be starting", "service", s.Service.Name, "error.message", err)
	default:
		c.log.Errorw("service failed to start", "service", s.Service.Name, "error.message", err)
	}
	return false
}

func (c *Controller) startProcess(ctx context.Context, s *settings.Settings, opts StartOptions) (bool, <-chan struct{}) {
	binary := s.ServerBinary(paths.ServerBinaryName)
	args := LaunchArgs(s, opts)
	c.log.Infow("starting server process", "path", binary, "args", args)

	proc, err := c.deps.Launcher.Launch(binary, args)
	if err != nil {
		c.log.Errorw("failed to launch server process", "path", binary, "error.message", err)
		return false, nil
	}
	c.setLaunched(proc)

	grace := time.NewTimer(c.aliveGrace)
	defer grace.Stop()
	select {
	case <-proc.Done():
		c.log.Errorw("server process exited right after the launch", "pid", proc.Pid())
		return false, proc.Done()
	case <-ctx.Done():
		return false, proc.Done()
	case <-grace.C:
	}
	return true, proc.Done()
}

func (c *Controller) waitForLog(ctx context.Context, s *settings.Settings, opts StartOptions, watch *logtail.Watch, exited <-chan struct{}) (logtail.Result, error) {
	timeout := opts.LogTimeout
	if timeout == 0 {
		timeout = s.LogTimeout()
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if exited != nil {
		go func() {
			select {
			case <-exited:
				cancel()
			case <-waitCtx.Done():
			}
		}()
	}
	return watch.Wait(waitCtx)
}

func (c *Controller) connectRetries(s *settings.Settings, opts StartOptions) int {
	if opts.ConnectRetries != 0 {
		return opts.ConnectRetries
	}
	return s.Readiness.ConnectRetries
}

func drainErrors(watch *logtail.Watch, stop context.CancelFunc) []logtail.Line {
	if watch == nil {
		return nil
	}
	stop()
	<-watch.Done()
	return watch.ErrorLines()
}

func isClosed(ch <-chan struct{}) bool {
	if ch == nil {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
