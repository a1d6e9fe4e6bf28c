// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package configurator

import (
	"context"
	"errors"
	"fmt"

	"github.com/elastic/mysql-configurator/internal/pkg/configurator/reporter"
)

// ErrNoStatus is the cause recorded for an action that returned without
// setting a terminal status.
var ErrNoStatus = errors.New("step returned without reporting a result")

// StepError is returned by Run when a step failed.
type StepError struct {
	Step StepID
	Name string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.Name, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// CancelledError is returned by Run when the context was done. Step names the
// step that was running and is empty when the cancellation came between steps.
type CancelledError struct {
	Step StepID
	Err  error
}

func (e *CancelledError) Error() string {
	if e.Step == "" {
		return fmt.Sprintf("configuration cancelled: %v", e.Err)
	}
	return fmt.Sprintf("configuration cancelled at step %q: %v", e.Step, e.Err)
}

func (e *CancelledError) Unwrap() error {
	return e.Err
}

// Run executes steps in order, once. A step runs when it is applicable to
// cctx and execute approves its ID, otherwise it is Skipped. The first
// failure ends the run, finished steps are not rolled back and the steps
// after the failure stay Pending.
func Run(ctx context.Context, cctx Context, steps []*Step, execute func(StepID) bool, rep reporter.Reporter) error {
	if rep == nil {
		rep = reporter.Nop()
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return &CancelledError{Err: err}
		}

		step.Execute = step.Applicability&cctx != 0 && execute(step.ID)
		if !step.Execute {
			step.Status = StatusSkipped
			rep.StepSkipped(step.Name)
			continue
		}

		step.Status = StatusRunning
		step.Err = nil
		rep.StepStarted(step.Name)
		err := step.Action(ctx, step)

		if err != nil && ctx.Err() != nil {
			step.Status = StatusCancelled
			step.Err = ctx.Err()
			rep.StepFailed(step.Name, step.Err)
			return &CancelledError{Step: step.ID, Err: ctx.Err()}
		}
		if err != nil {
			step.Status = StatusError
			step.Err = err
		} else if step.Status != StatusFinished && step.Status != StatusError {
			step.Status = StatusError
			step.Err = ErrNoStatus
		}

		if step.Status == StatusError {
			if step.Err == nil {
				step.Err = ErrNoStatus
			}
			rep.StepFailed(step.Name, step.Err)
			return &StepError{Step: step.ID, Name: step.Name, Err: step.Err}
		}
		rep.StepFinished(step.Name)
	}
	return nil
}
