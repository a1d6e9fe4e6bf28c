// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package process

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// Info groups information about fresh new process
type Info struct {
	PID     int
	Process *os.Process

	cmd     *exec.Cmd
	done    chan struct{}
	state   *os.ProcessState
	waitErr error
}

// OutputFunc receives one line of the child output, without the line terminator.
type OutputFunc func(line string)

type StartConfig struct {
	ctx       context.Context
	args, env []string
	stdout    OutputFunc
	stderr    OutputFunc
	detached  bool
}

type StartOptionFunc func(cfg *StartConfig)

// Start starts a new process. The returned Info reaps the child in the
// background, use Wait or Done to observe the exit.
func Start(path string, opts ...StartOptionFunc) (proc *Info, err error) {
	var c StartConfig
	for _, opt := range opts {
		opt(&c)
	}

	return startContext(c, path)
}

// Run starts path and waits for it to exit. A non zero exit code is returned
// together with an *exec.ExitError.
func Run(ctx context.Context, path string, opts ...StartOptionFunc) (int, error) {
	opts = append(opts, WithContext(ctx))
	proc, err := Start(path, opts...)
	if err != nil {
		return -1, err
	}

	select {
	case <-proc.Done():
	case <-ctx.Done():
		_ = proc.Kill()
		<-proc.Done()
		return -1, ctx.Err()
	}

	state, err := proc.Result()
	if state == nil {
		return -1, err
	}
	return state.ExitCode(), err
}

func WithContext(ctx context.Context) StartOptionFunc {
	return func(cfg *StartConfig) {
		cfg.ctx = ctx
	}
}

func WithArgs(args []string) StartOptionFunc {
	return func(cfg *StartConfig) {
		cfg.args = args
	}
}

func WithEnv(env []string) StartOptionFunc {
	return func(cfg *StartConfig) {
		cfg.env = env
	}
}

// WithDetached keeps the process running after the configurator exits.
func WithDetached() StartOptionFunc {
	return func(cfg *StartConfig) {
		cfg.detached = true
	}
}

// WithOutput forwards stdout and stderr line by line. Either callback may be nil.
func WithOutput(stdout, stderr OutputFunc) StartOptionFunc {
	return func(cfg *StartConfig) {
		cfg.stdout = stdout
		cfg.stderr = stderr
	}
}

func startContext(c StartConfig, path string) (*Info, error) {
	cmd := getCmd(c.ctx, path, c.env, c.args...)

	var readers sync.WaitGroup
	var pipes []io.Closer
	attach := func(cb OutputFunc, pipe func() (io.ReadCloser, error)) error {
		if cb == nil {
			return nil
		}
		r, err := pipe()
		if err != nil {
			return err
		}
		pipes = append(pipes, r)
		readers.Add(1)
		go func() {
			defer readers.Done()
			scanner := bufio.NewScanner(r)
			for scanner.Scan() {
				cb(scanner.Text())
			}
		}()
		return nil
	}
	if err := attach(c.stdout, cmd.StdoutPipe); err != nil {
		return nil, fmt.Errorf("failed to create stdout for %q: %w", path, err)
	}
	if err := attach(c.stderr, cmd.StderrPipe); err != nil {
		return nil, fmt.Errorf("failed to create stderr for %q: %w", path, err)
	}

	// start process
	if err := cmd.Start(); err != nil {
		for _, p := range pipes {
			_ = p.Close()
		}
		return nil, fmt.Errorf("failed to start %q: %w", path, err)
	}

	// Hook to JobObject on windows, noop on other platforms.
	// This ties the lifespan of helper tools to the configurator.
	if !c.detached {
		if err := JobObject.Assign(cmd.Process); err != nil {
			_ = killCmd(cmd.Process)
			return nil, fmt.Errorf("failed job assignment %q: %w", path, err)
		}
	}

	info := &Info{
		PID:     cmd.Process.Pid,
		Process: cmd.Process,
		cmd:     cmd,
		done:    make(chan struct{}),
	}
	go func() {
		// output must be drained before cmd.Wait closes the pipes
		readers.Wait()
		info.waitErr = cmd.Wait()
		info.state = cmd.ProcessState
		close(info.done)
	}()
	return info, nil
}

// Kill kills the process.
func (i *Info) Kill() error {
	return killCmd(i.Process)
}

// Done is closed once the process exited and was reaped.
func (i *Info) Done() <-chan struct{} {
	return i.done
}

// Exited reports whether the process already exited.
func (i *Info) Exited() bool {
	select {
	case <-i.done:
		return true
	default:
		return false
	}
}

// Result returns the exit state, only valid once Done is closed.
func (i *Info) Result() (*os.ProcessState, error) {
	return i.state, i.waitErr
}
