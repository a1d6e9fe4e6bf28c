// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elastic/mysql-configurator/pkg/core/logger"
)

// fakeManager replays scripted states. Each Status call consumes one state,
// the last one repeats. Start and Stop switch to the script set for them.
type fakeManager struct {
	mx sync.Mutex

	states     []State
	onStart    []State
	onStop     []State
	registered bool
	// lingering is the number of Exists calls still answering true after Delete
	lingering int
	deleteErr error
	startErr  error

	startCalls int
	startArgs  []string
	stopCalls  int
	installed  []Config
	updated    []Config
}

func (f *fakeManager) next() State {
	if len(f.states) == 0 {
		return StateUnknown
	}
	s := f.states[0]
	if len(f.states) > 1 {
		f.states = f.states[1:]
	}
	return s
}

func (f *fakeManager) Exists(string) (bool, error) {
	f.mx.Lock()
	defer f.mx.Unlock()
	if !f.registered && f.lingering > 0 {
		f.lingering--
		return true, nil
	}
	return f.registered, nil
}

func (f *fakeManager) Status(name string) (State, error) {
	f.mx.Lock()
	defer f.mx.Unlock()
	if !f.registered {
		return StateUnknown, ErrNotFound
	}
	return f.next(), nil
}

func (f *fakeManager) Start(_ string, args ...string) error {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.startCalls++
	f.startArgs = args
	if f.startErr != nil {
		return f.startErr
	}
	f.states = f.onStart
	return nil
}

func (f *fakeManager) Stop(string) error {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.stopCalls++
	f.states = f.onStop
	return nil
}

func (f *fakeManager) Install(cfg Config) error {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.installed = append(f.installed, cfg)
	f.registered = true
	f.states = []State{StateStopped}
	return nil
}

func (f *fakeManager) Update(cfg Config) error {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.updated = append(f.updated, cfg)
	return nil
}

func (f *fakeManager) Delete(string) error {
	f.mx.Lock()
	defer f.mx.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.registered = false
	return nil
}

func newTestAdapter(t *testing.T, m Manager) *Adapter {
	log, _ := logger.NewTesting("service")
	return NewAdapter(log, m,
		WithPollInterval(5*time.Millisecond),
		WithDeleteInterval(5*time.Millisecond),
		WithStartGrace(50*time.Millisecond),
	)
}

func TestStartAlreadyRunning(t *testing.T) {
	m := &fakeManager{registered: true, states: []State{StateRunning}}
	a := newTestAdapter(t, m)

	require.NoError(t, a.Start(context.Background(), "MySQL80", nil, time.Second))
	assert.Equal(t, 0, m.startCalls)
}

func TestStartFromStopped(t *testing.T) {
	m := &fakeManager{
		registered: true,
		states:     []State{StateStopped},
		onStart:    []State{StateStartPending, StateStartPending, StateRunning},
	}
	a := newTestAdapter(t, m)

	require.NoError(t, a.Start(context.Background(), "MySQL80", []string{"--upgrade=FORCE"}, time.Second))
	assert.Equal(t, 1, m.startCalls)
	assert.Equal(t, []string{"--upgrade=FORCE"}, m.startArgs)
}

func TestStartWaitsForPendingStop(t *testing.T) {
	m := &fakeManager{
		registered: true,
		states:     []State{StateStopPending, StateStopPending, StateStopped},
		onStart:    []State{StateRunning},
	}
	a := newTestAdapter(t, m)

	require.NoError(t, a.Start(context.Background(), "MySQL80", nil, time.Second))
	assert.Equal(t, 1, m.startCalls)
}

func TestStartPendingDoesNotIssueStart(t *testing.T) {
	m := &fakeManager{
		registered: true,
		states:     []State{StateContinuePending, StateRunning},
	}
	a := newTestAdapter(t, m)

	require.NoError(t, a.Start(context.Background(), "MySQL80", nil, time.Second))
	assert.Equal(t, 0, m.startCalls)
}

func TestStartPausePending(t *testing.T) {
	m := &fakeManager{
		registered: true,
		states:     []State{StatePausePending, StatePaused},
		onStart:    []State{StateContinuePending, StateRunning},
	}
	a := newTestAdapter(t, m)

	require.NoError(t, a.Start(context.Background(), "MySQL80", nil, time.Second))
	assert.Equal(t, 1, m.startCalls)
}

func TestStartFailed(t *testing.T) {
	m := &fakeManager{
		registered: true,
		states:     []State{StateStopped},
		onStart:    []State{StateStartPending, StateStopped},
	}
	a := newTestAdapter(t, m)

	err := a.Start(context.Background(), "MySQL80", nil, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFailedToStart)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestStartNeverLeavesStopped(t *testing.T) {
	m := &fakeManager{
		registered: true,
		states:     []State{StateStopped},
		onStart:    []State{StateStopped},
	}
	a := newTestAdapter(t, m)

	err := a.Start(context.Background(), "MySQL80", nil, 5*time.Second)
	assert.ErrorIs(t, err, ErrFailedToStart)
}

func TestStartTimeout(t *testing.T) {
	m := &fakeManager{
		registered: true,
		states:     []State{StateStopped},
		onStart:    []State{StateStartPending},
	}
	a := newTestAdapter(t, m)

	err := a.Start(context.Background(), "MySQL80", nil, 30*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrFailedToStart)

	var te *TimeoutError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, StateRunning, te.Target)
	assert.Equal(t, StateStartPending, te.Last)
	assert.Contains(t, te.Error(), "(still "+StateStartPending.String()+")")
}

func TestStartZeroTimeoutHonoursContext(t *testing.T) {
	m := &fakeManager{
		registered: true,
		states:     []State{StateStartPending},
	}
	a := newTestAdapter(t, m)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := a.Start(ctx, "MySQL80", nil, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStop(t *testing.T) {
	t.Run("already stopped", func(t *testing.T) {
		m := &fakeManager{registered: true, states: []State{StateStopped}}
		require.NoError(t, newTestAdapter(t, m).Stop(context.Background(), "MySQL80", time.Second))
		assert.Equal(t, 0, m.stopCalls)
	})

	t.Run("running", func(t *testing.T) {
		m := &fakeManager{
			registered: true,
			states:     []State{StateRunning},
			onStop:     []State{StateStopPending, StateStopped},
		}
		require.NoError(t, newTestAdapter(t, m).Stop(context.Background(), "MySQL80", time.Second))
		assert.Equal(t, 1, m.stopCalls)
	})

	t.Run("start pending that fails", func(t *testing.T) {
		m := &fakeManager{
			registered: true,
			states:     []State{StateStartPending, StateStopped},
		}
		require.NoError(t, newTestAdapter(t, m).Stop(context.Background(), "MySQL80", time.Second))
		assert.Equal(t, 0, m.stopCalls)
	})

	t.Run("timeout", func(t *testing.T) {
		m := &fakeManager{
			registered: true,
			states:     []State{StateRunning},
			onStop:     []State{StateStopPending},
		}
		err := newTestAdapter(t, m).Stop(context.Background(), "MySQL80", 30*time.Millisecond)
		assert.ErrorIs(t, err, ErrTimeout)
	})
}

func TestDelete(t *testing.T) {
	t.Run("not registered", func(t *testing.T) {
		m := &fakeManager{}
		res, err := newTestAdapter(t, m).Delete(context.Background(), "MySQL80", 3, true)
		require.NoError(t, err)
		assert.Equal(t, Deleted, res)
	})

	t.Run("deleted after polling", func(t *testing.T) {
		m := &fakeManager{registered: true, lingering: 2}
		res, err := newTestAdapter(t, m).Delete(context.Background(), "MySQL80", 5, true)
		require.NoError(t, err)
		assert.Equal(t, Deleted, res)
	})

	t.Run("marked for deletion", func(t *testing.T) {
		m := &fakeManager{registered: true, lingering: 100}
		res, err := newTestAdapter(t, m).Delete(context.Background(), "MySQL80", 3, true)
		require.NoError(t, err)
		assert.Equal(t, MarkedForDeletion, res)
	})

	t.Run("failure reported", func(t *testing.T) {
		m := &fakeManager{registered: true, deleteErr: errors.New("access denied")}
		res, err := newTestAdapter(t, m).Delete(context.Background(), "MySQL80", 3, false)
		require.NoError(t, err)
		assert.Equal(t, DeleteFailed, res)
	})

	t.Run("failure returned", func(t *testing.T) {
		m := &fakeManager{registered: true, deleteErr: errors.New("access denied")}
		_, err := newTestAdapter(t, m).Delete(context.Background(), "MySQL80", 3, true)
		assert.ErrorContains(t, err, "access denied")
	})
}

func TestConfigure(t *testing.T) {
	m := &fakeManager{}
	a := newTestAdapter(t, m)
	cfg := Config{Name: "MySQL80", Executable: "/opt/mysql/bin/mysqld", Arguments: []string{"--defaults-file=/etc/my.cnf"}}

	require.NoError(t, a.Configure(context.Background(), cfg))
	require.NoError(t, a.Configure(context.Background(), cfg))
	assert.Len(t, m.installed, 1)
	assert.Len(t, m.updated, 1)
}
