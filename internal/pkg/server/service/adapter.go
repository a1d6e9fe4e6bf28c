// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/elastic/mysql-configurator/pkg/core/logger"
)

const (
	defaultPollInterval   = 500 * time.Millisecond
	defaultDeleteInterval = time.Second
	// a service that is still Stopped this long after the start command
	// was accepted is considered failed
	defaultStartGrace = 5 * time.Second
)

// DeleteResult is the outcome of Adapter.Delete.
type DeleteResult int

const (
	// Deleted means the registration is gone.
	Deleted DeleteResult = iota
	// MarkedForDeletion means the manager accepted the delete but the
	// service is still registered, usually until the next reboot.
	MarkedForDeletion
	// DeleteFailed means the delete was refused, see the logs.
	DeleteFailed
)

func (r DeleteResult) String() string {
	switch r {
	case Deleted:
		return "deleted"
	case MarkedForDeletion:
		return "marked for deletion"
	default:
		return "failed"
	}
}

// Adapter drives a Manager through start and stop transitions.
type Adapter struct {
	mgr            Manager
	log            *logger.Logger
	pollInterval   time.Duration
	deleteInterval time.Duration
	startGrace     time.Duration
}

// AdapterOption customizes an Adapter.
type AdapterOption func(a *Adapter)

// WithPollInterval sets how often the state is queried while waiting.
func WithPollInterval(d time.Duration) AdapterOption {
	return func(a *Adapter) {
		a.pollInterval = d
	}
}

// WithDeleteInterval sets the sleep between existence checks after a delete.
func WithDeleteInterval(d time.Duration) AdapterOption {
	return func(a *Adapter) {
		a.deleteInterval = d
	}
}

// WithStartGrace sets how long a service may stay Stopped after the start command.
func WithStartGrace(d time.Duration) AdapterOption {
	return func(a *Adapter) {
		a.startGrace = d
	}
}

// NewAdapter creates an Adapter over mgr.
func NewAdapter(log *logger.Logger, mgr Manager, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		mgr:            mgr,
		log:            log.Named("service"),
		pollInterval:   defaultPollInterval,
		deleteInterval: defaultDeleteInterval,
		startGrace:     defaultStartGrace,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Exists reports whether name is registered.
func (a *Adapter) Exists(name string) (bool, error) {
	return a.mgr.Exists(name)
}

// Status returns the current state of name.
func (a *Adapter) Status(name string) (State, error) {
	return a.mgr.Status(name)
}

// Start brings name to Running. A zero timeout waits until ctx is done.
// A *TimeoutError means the service may still be starting, ErrFailedToStart
// means it was observed Stopped again.
func (a *Adapter) Start(ctx context.Context, name string, args []string, timeout time.Duration) error {
	deadline := newDeadline(timeout)

	state, err := a.mgr.Status(name)
	if err != nil {
		return fmt.Errorf("querying service %s: %w", name, err)
	}
	a.log.Debugw("starting service", "service", name, "state", state.String())

	switch state {
	case StateRunning:
		return nil
	case StateStartPending, StateContinuePending:
		_, err := a.waitFor(ctx, name, deadline, time.Now(), StateRunning)
		return err
	case StatePausePending:
		if _, err := a.waitFor(ctx, name, deadline, time.Time{}, StatePaused); err != nil {
			return err
		}
	case StateStopPending:
		if _, err := a.waitFor(ctx, name, deadline, time.Time{}, StateStopped); err != nil {
			return err
		}
	case StatePaused, StateStopped:
	default:
		return fmt.Errorf("service %s is in state %s", name, state)
	}

	if err := a.mgr.Start(name, args...); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrFailedToStart, name, err)
	}
	_, err = a.waitFor(ctx, name, deadline, time.Now(), StateRunning)
	return err
}

// Stop brings name to Stopped, it mirrors Start.
func (a *Adapter) Stop(ctx context.Context, name string, timeout time.Duration) error {
	deadline := newDeadline(timeout)

	state, err := a.mgr.Status(name)
	if err != nil {
		return fmt.Errorf("querying service %s: %w", name, err)
	}
	a.log.Debugw("stopping service", "service", name, "state", state.String())

	switch state {
	case StateStopped:
		return nil
	case StateStopPending:
		_, err := a.waitFor(ctx, name, deadline, time.Time{}, StateStopped)
		return err
	case StateStartPending, StateContinuePending:
		reached, err := a.waitFor(ctx, name, deadline, time.Time{}, StateRunning, StateStopped)
		if err != nil || reached == StateStopped {
			return err
		}
	case StatePausePending:
		if _, err := a.waitFor(ctx, name, deadline, time.Time{}, StatePaused); err != nil {
			return err
		}
	case StateRunning, StatePaused:
	default:
		return fmt.Errorf("service %s is in state %s", name, state)
	}

	if err := a.mgr.Stop(name); err != nil {
		return fmt.Errorf("stopping service %s: %w", name, err)
	}
	_, err = a.waitFor(ctx, name, deadline, time.Time{}, StateStopped)
	return err
}

// Delete removes the registration and polls up to retries times until it is
// gone. With failOnError false a refused delete is logged and reported as
// DeleteFailed instead of an error.
func (a *Adapter) Delete(ctx context.Context, name string, retries int, failOnError bool) (DeleteResult, error) {
	exists, err := a.mgr.Exists(name)
	if err != nil {
		return a.deleteFailed(name, fmt.Errorf("querying service %s: %w", name, err), failOnError)
	}
	if !exists {
		return Deleted, nil
	}

	if err := a.mgr.Delete(name); err != nil {
		return a.deleteFailed(name, fmt.Errorf("deleting service %s: %w", name, err), failOnError)
	}

	if retries < 0 {
		retries = 0
	}
	b := backoff.WithMaxRetries(backoff.WithContext(backoff.NewConstantBackOff(a.deleteInterval), ctx), uint64(retries))
	err = backoff.Retry(func() error {
		exists, err := a.mgr.Exists(name)
		if err != nil {
			return backoff.Permanent(err)
		}
		if exists {
			return fmt.Errorf("service %s is still registered", name)
		}
		return nil
	}, b)
	if err == nil {
		return Deleted, nil
	}
	if ctx.Err() != nil {
		return MarkedForDeletion, ctx.Err()
	}
	a.log.Warnw("service is marked for deletion but still registered", "service", name, "error.message", err)
	return MarkedForDeletion, nil
}

// Configure registers the service or updates an existing registration.
func (a *Adapter) Configure(ctx context.Context, cfg Config) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	exists, err := a.mgr.Exists(cfg.Name)
	if err != nil {
		return fmt.Errorf("querying service %s: %w", cfg.Name, err)
	}
	if exists {
		a.log.Infow("updating service", "service", cfg.Name)
		return a.mgr.Update(cfg)
	}
	a.log.Infow("installing service", "service", cfg.Name)
	return a.mgr.Install(cfg)
}

func (a *Adapter) deleteFailed(name string, err error, failOnError bool) (DeleteResult, error) {
	if failOnError {
		return DeleteFailed, err
	}
	a.log.Errorw("failed to delete service", "service", name, "error.message", err)
	return DeleteFailed, nil
}

// waitFor polls until name reaches one of targets and returns it. When
// startedAt is set the wait follows a start request and an observed Stopped
// ends it with ErrFailedToStart once the service left Stopped or the grace
// period passed.
func (a *Adapter) waitFor(ctx context.Context, name string, deadline deadline, startedAt time.Time, targets ...State) (State, error) {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	var left bool
	for {
		state, err := a.mgr.Status(name)
		if err != nil {
			return state, fmt.Errorf("querying service %s: %w", name, err)
		}
		for _, target := range targets {
			if state == target {
				return state, nil
			}
		}
		if !startedAt.IsZero() {
			if state != StateStopped {
				left = true
			} else if left || time.Since(startedAt) >= a.startGrace {
				return state, fmt.Errorf("%w: %s", ErrFailedToStart, name)
			}
		}

		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-deadline.C():
			return state, &TimeoutError{Service: name, Target: targets[0], Last: state, Timeout: deadline.timeout}
		case <-ticker.C:
		}
	}
}

// deadline is shared by the successive waits of one operation.
type deadline struct {
	timeout time.Duration
	ch      <-chan time.Time
}

func newDeadline(timeout time.Duration) deadline {
	if timeout <= 0 {
		return deadline{}
	}
	return deadline{timeout: timeout, ch: time.After(timeout)}
}

// C returns nil for an unbounded deadline so select never picks it.
func (d deadline) C() <-chan time.Time {
	return d.ch
}
