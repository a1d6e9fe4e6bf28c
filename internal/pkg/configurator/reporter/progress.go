// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package reporter

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/exp/rand"
)

// ProgressTracker prints one line per step and ticks dots while a step runs.
type ProgressTracker struct {
	writer io.Writer

	tickInterval          time.Duration
	randomizeTickInterval bool

	stepInProgress bool
	mu             sync.RWMutex
	stop           chan struct{}
	stopOnce       sync.Once
}

func NewProgressTracker(writer io.Writer) *ProgressTracker {
	return &ProgressTracker{
		writer:                writer,
		tickInterval:          100 * time.Millisecond,
		randomizeTickInterval: true,
		stop:                  make(chan struct{}),
	}
}

func (pt *ProgressTracker) SetTickInterval(d time.Duration) {
	pt.tickInterval = d
}

func (pt *ProgressTracker) DisableRandomizedTickIntervals() {
	pt.randomizeTickInterval = false
}

// Start ticks until Stop is called.
func (pt *ProgressTracker) Start() {
	timer := time.NewTimer(pt.calculateTickInterval())
	go func() {
		defer timer.Stop()
		for {
			select {
			case <-pt.stop:
				return
			case <-timer.C:
				pt.mu.RLock()
				if pt.stepInProgress {
					_, _ = pt.writer.Write([]byte("."))
				}
				pt.mu.RUnlock()

				timer.Reset(pt.calculateTickInterval())
			}
		}
	}()
}

func (pt *ProgressTracker) StepStarted(name string) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	pt.stepInProgress = true
	fmt.Fprint(pt.writer, strings.TrimSpace(name)+"...")
}

func (pt *ProgressTracker) StepFinished(string) {
	pt.endStep(" DONE")
}

func (pt *ProgressTracker) StepFailed(string, error) {
	pt.endStep(" FAILED")
}

// StepSkipped prints nothing, skipped steps are not interesting on a terminal.
func (pt *ProgressTracker) StepSkipped(string) {}

// Status is not rendered, the ticking dots show the step is alive.
func (pt *ProgressTracker) Status(string, time.Duration) {}

func (pt *ProgressTracker) Stop() {
	pt.stopOnce.Do(func() { close(pt.stop) })
}

func (pt *ProgressTracker) endStep(result string) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	fmt.Fprintln(pt.writer, result)
	pt.stepInProgress = false
}

func (pt *ProgressTracker) calculateTickInterval() time.Duration {
	if !pt.randomizeTickInterval {
		return pt.tickInterval
	}

	return time.Duration(rand.Float64() * 2 * float64(pt.tickInterval))
}
