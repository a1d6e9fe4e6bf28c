// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package reporter

import (
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Spinner shows the current step and its last status line on one
// refreshing terminal line.
type Spinner struct {
	pt      *progressbar.ProgressBar
	current string
}

// NewSpinner creates a Spinner writing to w.
func NewSpinner(w io.Writer) *Spinner {
	return &Spinner{
		pt: progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionClearOnFinish(),
		),
	}
}

func (s *Spinner) StepStarted(name string) {
	s.current = name
	s.pt.Describe(name)
	_ = s.pt.Add(1)
}

func (s *Spinner) StepFinished(name string) {
	s.pt.Describe(fmt.Sprintf("%s: done", name))
	_ = s.pt.Add(1)
}

func (s *Spinner) StepSkipped(string) {}

func (s *Spinner) StepFailed(name string, err error) {
	s.pt.Describe(fmt.Sprintf("%s: failed: %s", name, err))
	_ = s.pt.Add(1)
}

func (s *Spinner) Status(msg string, wait time.Duration) {
	desc := msg
	if s.current != "" {
		desc = s.current + ": " + msg
	}
	if wait > 0 {
		desc = fmt.Sprintf("%s (up to %s)", desc, wait)
	}
	s.pt.Describe(desc)
	_ = s.pt.Add(1)
}

// Finish clears the spinner line.
func (s *Spinner) Finish() error {
	return s.pt.Finish()
}
