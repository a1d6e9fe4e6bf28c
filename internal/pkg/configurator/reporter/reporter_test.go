// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package reporter

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/elastic/mysql-configurator/pkg/core/logger"
)

type testWriter struct {
	buf []byte
}

func newTestWriter() *testWriter {
	return &testWriter{
		buf: []byte{},
	}
}

func (tw *testWriter) Write(p []byte) (int, error) {
	tw.buf = append(tw.buf, p...)
	return len(p), nil
}

func TestProgress(t *testing.T) {
	t.Run("single_step_immediate_failure", func(t *testing.T) {
		w := newTestWriter()
		pt := NewProgressTracker(w)

		pt.StepStarted("Stopping server")
		pt.StepFailed("Stopping server", errors.New("boom"))

		require.Equal(t, "Stopping server... FAILED\n", string(w.buf))
	})

	t.Run("multi_step_success", func(t *testing.T) {
		w := newTestWriter()
		pt := NewProgressTracker(w)

		pt.StepStarted("Writing configuration file")
		pt.StepFinished("Writing configuration file")
		pt.StepSkipped("Updating firewall rules")
		pt.StepStarted("Starting server")
		pt.Status("Waiting for the server", time.Second)
		pt.StepFinished("Starting server")

		require.Equal(t, "Writing configuration file... DONE\nStarting server... DONE\n", string(w.buf))
	})

	t.Run("stop_without_start", func(t *testing.T) {
		pt := NewProgressTracker(newTestWriter())
		pt.Stop()
		pt.Stop()
	})
}

func TestLogReporter(t *testing.T) {
	log, obs := logger.NewTesting("test")
	r := NewLog(log)

	r.StepStarted("Starting server")
	r.Status("Waiting for the server", 5*time.Second)
	r.StepFailed("Starting server", errors.New("exited"))

	entries := obs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "step started", entries[0].Message)
	assert.Equal(t, "Waiting for the server", entries[1].Message)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
}

func TestMulti(t *testing.T) {
	a, b := newTestWriter(), newTestWriter()
	r := Multi(NewProgressTracker(a), NewProgressTracker(b), Nop())

	r.StepStarted("Securing root account")
	r.StepFinished("Securing root account")

	assert.Equal(t, string(a.buf), string(b.buf))
	assert.Equal(t, "Securing root account... DONE\n", string(a.buf))
}

func TestSpinner(t *testing.T) {
	var buf bytes.Buffer
	s := NewSpinner(&buf)

	s.StepStarted("Starting server")
	s.Status("Waiting for the server", time.Second)
	s.StepFinished("Starting server")
	require.NoError(t, s.Finish())
}
