// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package controller

import (
	"context"
	"fmt"
	"os"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"

	"github.com/elastic/mysql-configurator/internal/pkg/errors"
	"github.com/elastic/mysql-configurator/internal/pkg/server/sqlclient"
	"github.com/elastic/mysql-configurator/internal/pkg/settings"
)

// ErrStillRunning is returned by Stop when the server outlived the stop.
var ErrStillRunning = errors.New("server is still running")

// Stop brings the instance down. A stopped instance is left alone.
func (c *Controller) Stop(ctx context.Context, sel settings.Selection) error {
	running, err := c.IsRunning(ctx, sel)
	if err != nil {
		c.log.Warnw("could not determine whether the server is running", "error.message", err)
	}
	if !running && err == nil {
		c.log.Debugw("server is not running, nothing to stop")
		return nil
	}

	s := c.pair.Get(sel)
	if s.Service.Enabled && c.deps.Services != nil {
		c.log.Infow("stopping server service", "service", s.Service.Name)
		if err := c.deps.Services.Stop(ctx, s.Service.Name, s.ServiceTimeout()); err != nil {
			return errors.New(err, "failed to stop server service", errors.TypeApplication, errors.M(errors.MetaKeyService, s.Service.Name))
		}
		return c.waitStopped(ctx, sel, nil)
	}

	var merr *multierror.Error
	graceful := false
	if s.Version().SupportsShutdownStatement() && c.deps.Admin != nil {
		if err := c.shutdown(ctx, sel); err != nil {
			c.log.Warnw("graceful shutdown failed, killing the server", "error.message", err)
			merr = multierror.Append(merr, err)
		} else {
			graceful = true
		}
	}
	if !graceful {
		if err := c.kill(ctx, s); err != nil {
			c.log.Errorw("failed to kill the server", "error.message", err)
			merr = multierror.Append(merr, err)
		}
	}
	return c.waitStopped(ctx, sel, merr)
}

func (c *Controller) shutdown(ctx context.Context, sel settings.Selection) error {
	s := c.pair.Get(sel)
	var merr *multierror.Error
	for _, password := range shutdownPasswords(c.pair.Current.Security) {
		d := sqlclient.FromSettings(s, password, adminTimeout)
		c.log.Infow("requesting graceful shutdown", "connection", d.String())
		err := c.deps.Admin.Shutdown(ctx, d)
		if err == nil {
			return nil
		}
		merr = multierror.Append(merr, err)
		if ctx.Err() != nil {
			break
		}
	}
	return merr.ErrorOrNil()
}

// shutdownPasswords lists the root passwords the running server may accept.
// Stored settings never carry passwords, so both come from the current
// settings: the one the server had before this run, then the configured one.
func shutdownPasswords(sec settings.Security) []string {
	if sec.CurrentRootPassword == "" || sec.CurrentRootPassword == sec.RootPassword {
		return []string{sec.RootPassword}
	}
	return []string{sec.CurrentRootPassword, sec.RootPassword}
}

func (c *Controller) kill(ctx context.Context, s *settings.Settings) error {
	if child := c.launched(); child != nil && !child.Exited() {
		c.log.Infow("killing server process", "pid", child.Pid())
		if err := child.Kill(); err != nil {
			return err
		}
		select {
		case <-child.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	pid, running, err := c.runningPID(s)
	if err != nil || !running {
		return err
	}
	c.log.Infow("killing server process", "pid", pid)
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	defer proc.Release()
	return proc.Kill()
}

func (c *Controller) waitStopped(ctx context.Context, sel settings.Selection, merr *multierror.Error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(c.stopInterval), uint64(c.stopRetries)), ctx)
	err := backoff.Retry(func() error {
		running, err := c.IsRunning(ctx, sel)
		if err != nil {
			return err
		}
		if running {
			return ErrStillRunning
		}
		return nil
	}, b)
	if err == nil {
		c.setLaunched(nil)
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	merr = multierror.Append(merr, fmt.Errorf("after %d checks: %w", c.stopRetries, err))
	return merr.ErrorOrNil()
}
