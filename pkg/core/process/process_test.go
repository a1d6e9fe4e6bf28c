// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package process

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helperEnv = "PROCESS_TEST_HELPER"

// TestMain turns the test binary into a fake child process when helperEnv is set.
func TestMain(m *testing.M) {
	switch os.Getenv(helperEnv) {
	case "":
		os.Exit(m.Run())
	case "echo":
		fmt.Fprintln(os.Stdout, "out line 1")
		fmt.Fprintln(os.Stdout, "out line 2")
		fmt.Fprintln(os.Stderr, "err line")
		os.Exit(0)
	case "fail":
		fmt.Fprintln(os.Stderr, "boom")
		os.Exit(3)
	case "sleep":
		time.Sleep(time.Minute)
		os.Exit(0)
	}
}

func helper(t *testing.T, mode string) (string, []StartOptionFunc) {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)
	return exe, []StartOptionFunc{
		WithEnv([]string{helperEnv + "=" + mode}),
		WithArgs([]string{"-test.run=^$"}),
	}
}

func TestRunCollectsOutput(t *testing.T) {
	exe, opts := helper(t, "echo")

	var mx sync.Mutex
	var stdout, stderr []string
	opts = append(opts, WithOutput(
		func(line string) { mx.Lock(); stdout = append(stdout, line); mx.Unlock() },
		func(line string) { mx.Lock(); stderr = append(stderr, line); mx.Unlock() },
	))

	code, err := Run(context.Background(), exe, opts...)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, []string{"out line 1", "out line 2"}, stdout)
	assert.Equal(t, []string{"err line"}, stderr)
}

func TestRunExitCode(t *testing.T) {
	exe, opts := helper(t, "fail")

	code, err := Run(context.Background(), exe, opts...)
	require.Error(t, err)
	assert.Equal(t, 3, code)
}

func TestRunCancelled(t *testing.T) {
	exe, opts := helper(t, "sleep")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Run(ctx, exe, opts...)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 30*time.Second)
}

func TestStartKillAlive(t *testing.T) {
	exe, opts := helper(t, "sleep")

	proc, err := Start(exe, opts...)
	require.NoError(t, err)

	alive, err := Alive(proc.PID)
	require.NoError(t, err)
	assert.True(t, alive)
	assert.False(t, proc.Exited())

	require.NoError(t, proc.Kill())
	select {
	case <-proc.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("process did not exit after kill")
	}
	assert.True(t, proc.Exited())

	alive, err = Alive(proc.PID)
	require.NoError(t, err)
	assert.False(t, alive)
}

func TestAliveInvalidPID(t *testing.T) {
	alive, err := Alive(0)
	require.NoError(t, err)
	assert.False(t, alive)

	alive, err = Alive(os.Getpid())
	require.NoError(t, err)
	assert.True(t, alive)
}

func TestReadPIDFile(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadPIDFile(filepath.Join(dir, "missing.pid"))
	assert.ErrorIs(t, err, ErrNoPIDFile)

	path := filepath.Join(dir, "host.pid")
	require.NoError(t, os.WriteFile(path, []byte("4242\n"), 0o600))
	pid, err := ReadPIDFile(path)
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))
	_, err = ReadPIDFile(path)
	assert.Error(t, err)
}
