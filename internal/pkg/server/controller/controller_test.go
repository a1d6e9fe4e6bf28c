// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package controller

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elastic/mysql-configurator/internal/pkg/server/logtail"
	"github.com/elastic/mysql-configurator/internal/pkg/server/service"
	"github.com/elastic/mysql-configurator/internal/pkg/server/sqlclient"
	"github.com/elastic/mysql-configurator/internal/pkg/settings"
	"github.com/elastic/mysql-configurator/pkg/core/logger"
)

const readyLine = "2024-05-02T10:00:01.000000Z 0 [System] [MY-010931] [Server] /usr/sbin/mysqld: ready for connections. Version: '8.0.36'  socket: '/tmp/mysql.sock'  port: 3306  MySQL Community Server - GPL."

type fakeProcess struct {
	pid     int
	done    chan struct{}
	once    sync.Once
	killErr error
	kills   int
}

func newFakeProcess(pid int) *fakeProcess {
	return &fakeProcess{pid: pid, done: make(chan struct{})}
}

func (p *fakeProcess) Pid() int              { return p.pid }
func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *fakeProcess) Kill() error {
	p.kills++
	if p.killErr != nil {
		return p.killErr
	}
	p.exit()
	return nil
}

func (p *fakeProcess) exit() {
	p.once.Do(func() { close(p.done) })
}

type fakeLauncher struct {
	mx       sync.Mutex
	launches int
	args     []string
	proc     *fakeProcess
	err      error
	onLaunch func()
}

func (l *fakeLauncher) Launch(_ string, args []string) (Process, error) {
	l.mx.Lock()
	defer l.mx.Unlock()
	l.launches++
	l.args = args
	if l.err != nil {
		return nil, l.err
	}
	if l.onLaunch != nil {
		l.onLaunch()
	}
	return l.proc, nil
}

type fakePoller struct {
	calls   int
	retries int
	result  bool
}

func (p *fakePoller) WaitUntilConnectable(_ context.Context, maxRetries int, _ settings.Selection) bool {
	p.calls++
	p.retries = maxRetries
	return p.result
}

type fakeAdmin struct {
	calls      int
	err        error
	onShutdown func()
	// accepts rejects every other password when set
	accepts   string
	passwords []string
}

func (a *fakeAdmin) Shutdown(_ context.Context, d sqlclient.Descriptor) error {
	a.calls++
	a.passwords = append(a.passwords, d.Password)
	if a.err != nil {
		return a.err
	}
	if a.accepts != "" && d.Password != a.accepts {
		return errors.New("access denied for user 'root'@'localhost'")
	}
	if a.onShutdown != nil {
		a.onShutdown()
	}
	return nil
}

type fakeServices struct {
	state     service.State
	startErr  error
	stopCalls int
	startArgs []string
}

func (s *fakeServices) Exists(string) (bool, error)          { return true, nil }
func (s *fakeServices) Status(string) (service.State, error) { return s.state, nil }

func (s *fakeServices) Start(_ context.Context, _ string, args []string, _ time.Duration) error {
	s.startArgs = args
	if s.startErr != nil {
		return s.startErr
	}
	s.state = service.StateRunning
	return nil
}

func (s *fakeServices) Stop(context.Context, string, time.Duration) error {
	s.stopCalls++
	s.state = service.StateStopped
	return nil
}

func testSettings(t *testing.T) *settings.Settings {
	t.Helper()
	dir := t.TempDir()
	s := settings.DefaultSettings()
	s.ServerVersion = "8.0.36"
	s.InstallDir = dir
	s.DataDir = filepath.Join(dir, "data")
	s.ErrorLog = filepath.Join(dir, "server.err")
	s.PidFile = filepath.Join(dir, "server.pid")
	return s
}

func noneAlive(int) (bool, error) { return false, nil }

func newTestController(t *testing.T, s *settings.Settings, deps Deps) *Controller {
	t.Helper()
	log, _ := logger.NewTesting("controller")
	if deps.Alive == nil {
		deps.Alive = noneAlive
	}
	return New(log, settings.Pair{Current: s}, deps,
		WithAliveGrace(20*time.Millisecond),
		WithStopPolling(3, 5*time.Millisecond),
	)
}

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	require.NoError(t, err)
}

func TestStartIsIdempotent(t *testing.T) {
	s := testSettings(t)
	launcher := &fakeLauncher{proc: newFakeProcess(100)}
	c := newTestController(t, s, Deps{Launcher: launcher, Poller: &fakePoller{}})

	first := c.Start(context.Background(), StartOptions{})
	require.True(t, first.Started)
	assert.False(t, first.AlreadyRunning)

	second := c.Start(context.Background(), StartOptions{})
	assert.True(t, second.Started)
	assert.True(t, second.AlreadyRunning)
	assert.Equal(t, 1, launcher.launches)
}

func TestStartArguments(t *testing.T) {
	s := testSettings(t)
	s.Network.Socket = "/tmp/mysql.sock"

	t.Run("without defaults file", func(t *testing.T) {
		args := LaunchArgs(s, StartOptions{AdditionalArgs: []string{"--console"}})
		assert.Contains(t, args, "--port=3306")
		assert.Contains(t, args, "--datadir="+s.DataDir)
		assert.Contains(t, args, "--pid-file="+s.PidFile)
		assert.Contains(t, args, "--log-error="+s.ErrorLog)
		assert.Equal(t, "--console", args[len(args)-1])
		assert.NotContains(t, args, upgradeFlag)
	})

	t.Run("with defaults file", func(t *testing.T) {
		s.DefaultsFile = filepath.Join(s.InstallDir, "my.cnf")
		require.NoError(t, os.WriteFile(s.DefaultsFile, []byte("[mysqld]\n"), 0o644))
		args := LaunchArgs(s, StartOptions{SelfContainedUpgrade: true})
		assert.Equal(t, []string{"--defaults-file=" + s.DefaultsFile, upgradeFlag}, args)
	})
}

func TestStartReadyMarkerSkipsPolling(t *testing.T) {
	s := testSettings(t)
	s.Readiness.UseErrorLog = true
	log, _ := logger.NewTesting("logtail")
	tailer := logtail.New(log, s.ErrorLogPath(), logtail.WithPollInterval(10*time.Millisecond))
	poller := &fakePoller{}
	launcher := &fakeLauncher{
		proc:     newFakeProcess(100),
		onLaunch: func() { appendLine(t, s.ErrorLogPath(), readyLine) },
	}
	c := newTestController(t, s, Deps{Launcher: launcher, Poller: poller, Log: tailer})

	status := c.Start(context.Background(), StartOptions{WaitUntilAcceptingConnections: true})
	assert.True(t, status.Started)
	assert.True(t, status.AcceptingConnections)
	assert.Equal(t, 0, poller.calls)
}

func TestStartLogTimeoutFallsBackToPolling(t *testing.T) {
	s := testSettings(t)
	s.Readiness.UseErrorLog = true
	log, _ := logger.NewTesting("logtail")
	tailer := logtail.New(log, s.ErrorLogPath(), logtail.WithPollInterval(10*time.Millisecond))
	poller := &fakePoller{result: true}
	c := newTestController(t, s, Deps{Launcher: &fakeLauncher{proc: newFakeProcess(100)}, Poller: poller, Log: tailer})

	status := c.Start(context.Background(), StartOptions{
		WaitUntilAcceptingConnections: true,
		LogTimeout:                    50 * time.Millisecond,
	})
	assert.True(t, status.Started)
	assert.True(t, status.AcceptingConnections)
	assert.Equal(t, 1, poller.calls)
	assert.Equal(t, settings.DefaultConnectRetries, poller.retries)
}

func TestStartAbortReportsErrorLines(t *testing.T) {
	s := testSettings(t)
	s.Readiness.UseErrorLog = true
	log, _ := logger.NewTesting("logtail")
	tailer := logtail.New(log, s.ErrorLogPath(), logtail.WithPollInterval(10*time.Millisecond))
	poller := &fakePoller{}
	launcher := &fakeLauncher{
		proc: newFakeProcess(100),
		onLaunch: func() {
			appendLine(t, s.ErrorLogPath(), "2024-05-02T10:00:01.000000Z 0 [ERROR] [MY-010119] [Server] Aborting")
		},
	}
	c := newTestController(t, s, Deps{Launcher: launcher, Poller: poller, Log: tailer})

	status := c.Start(context.Background(), StartOptions{WaitUntilAcceptingConnections: true})
	assert.False(t, status.Started)
	assert.False(t, status.AcceptingConnections)
	require.Len(t, status.ErrorLines, 1)
	assert.Contains(t, status.ErrorLines[0].Text, "Aborting")
	assert.Equal(t, 0, poller.calls)
}

func TestStartProcessExits(t *testing.T) {
	s := testSettings(t)
	proc := newFakeProcess(100)
	proc.exit()
	poller := &fakePoller{}
	c := newTestController(t, s, Deps{Launcher: &fakeLauncher{proc: proc}, Poller: poller})

	status := c.Start(context.Background(), StartOptions{WaitUntilAcceptingConnections: true})
	assert.False(t, status.Started)
	assert.Equal(t, 0, poller.calls)
}

func TestStartLaunchFails(t *testing.T) {
	s := testSettings(t)
	c := newTestController(t, s, Deps{Launcher: &fakeLauncher{err: errors.New("exec format error")}, Poller: &fakePoller{}})

	status := c.Start(context.Background(), StartOptions{})
	assert.False(t, status.Started)
}

func TestStartService(t *testing.T) {
	s := testSettings(t)
	s.Service.Enabled = true

	t.Run("started", func(t *testing.T) {
		services := &fakeServices{state: service.StateStopped}
		launcher := &fakeLauncher{}
		poller := &fakePoller{result: true}
		c := newTestController(t, s, Deps{Launcher: launcher, Services: services, Poller: poller})

		status := c.Start(context.Background(), StartOptions{WaitUntilAcceptingConnections: true, ConnectRetries: 3})
		assert.True(t, status.Started)
		assert.True(t, status.AcceptingConnections)
		assert.Equal(t, 0, launcher.launches)
		assert.Equal(t, 3, poller.retries)
	})

	t.Run("timeout", func(t *testing.T) {
		services := &fakeServices{state: service.StateStopped, startErr: &service.TimeoutError{Service: s.Service.Name}}
		c := newTestController(t, s, Deps{Services: services, Poller: &fakePoller{}})

		status := c.Start(context.Background(), StartOptions{SelfContainedUpgrade: true})
		assert.False(t, status.Started)
		assert.Equal(t, []string{upgradeFlag}, services.startArgs)
	})
}

func TestStopGraceful(t *testing.T) {
	s := testSettings(t)
	proc := newFakeProcess(100)
	admin := &fakeAdmin{onShutdown: proc.exit}
	c := newTestController(t, s, Deps{Launcher: &fakeLauncher{proc: proc}, Poller: &fakePoller{}, Admin: admin})

	require.True(t, c.Start(context.Background(), StartOptions{}).Started)
	require.NoError(t, c.Stop(context.Background(), settings.UseNew))
	assert.Equal(t, 1, admin.calls)
	assert.Equal(t, 0, proc.kills)

	running, err := c.IsRunning(context.Background(), settings.UseNew)
	require.NoError(t, err)
	assert.False(t, running)
}

func TestStopKillsWhenShutdownFails(t *testing.T) {
	s := testSettings(t)
	proc := newFakeProcess(100)
	admin := &fakeAdmin{err: errors.New("access denied")}
	c := newTestController(t, s, Deps{Launcher: &fakeLauncher{proc: proc}, Poller: &fakePoller{}, Admin: admin})

	require.True(t, c.Start(context.Background(), StartOptions{}).Started)
	require.NoError(t, c.Stop(context.Background(), settings.UseNew))
	assert.Equal(t, 1, admin.calls)
	assert.Equal(t, 1, proc.kills)
}

func TestStopUsesPasswordTheServerAccepts(t *testing.T) {
	s := testSettings(t)
	s.Security.RootPassword = "new-secret"
	s.Security.CurrentRootPassword = "old-secret"
	proc := newFakeProcess(100)
	admin := &fakeAdmin{accepts: "old-secret", onShutdown: proc.exit}
	log, _ := logger.NewTesting("controller")
	c := New(log, settings.Pair{Current: s, Previous: s.Redacted()}, Deps{
		Launcher: &fakeLauncher{proc: proc},
		Poller:   &fakePoller{},
		Admin:    admin,
		Alive:    noneAlive,
	}, WithAliveGrace(20*time.Millisecond), WithStopPolling(3, 5*time.Millisecond))

	require.True(t, c.Start(context.Background(), StartOptions{}).Started)
	require.NoError(t, c.Stop(context.Background(), settings.UseOld))
	assert.Equal(t, []string{"old-secret"}, admin.passwords)
	assert.Equal(t, 0, proc.kills)
}

func TestStopFallsBackToConfiguredPassword(t *testing.T) {
	s := testSettings(t)
	s.Security.RootPassword = "new-secret"
	s.Security.CurrentRootPassword = "old-secret"
	proc := newFakeProcess(100)
	admin := &fakeAdmin{accepts: "new-secret", onShutdown: proc.exit}
	c := newTestController(t, s, Deps{Launcher: &fakeLauncher{proc: proc}, Poller: &fakePoller{}, Admin: admin})

	require.True(t, c.Start(context.Background(), StartOptions{}).Started)
	require.NoError(t, c.Stop(context.Background(), settings.UseNew))
	assert.Equal(t, []string{"old-secret", "new-secret"}, admin.passwords)
	assert.Equal(t, 0, proc.kills)
}

func TestStopOldServerIsKilled(t *testing.T) {
	s := testSettings(t)
	s.ServerVersion = "5.6.51"
	proc := newFakeProcess(100)
	admin := &fakeAdmin{}
	c := newTestController(t, s, Deps{Launcher: &fakeLauncher{proc: proc}, Poller: &fakePoller{}, Admin: admin})

	require.True(t, c.Start(context.Background(), StartOptions{}).Started)
	require.NoError(t, c.Stop(context.Background(), settings.UseNew))
	assert.Equal(t, 0, admin.calls)
	assert.Equal(t, 1, proc.kills)
}

func TestStopStillRunning(t *testing.T) {
	s := testSettings(t)
	proc := newFakeProcess(100)
	proc.killErr = errors.New("operation not permitted")
	c := newTestController(t, s, Deps{Launcher: &fakeLauncher{proc: proc}, Poller: &fakePoller{}, Admin: &fakeAdmin{err: errors.New("refused")}})

	require.True(t, c.Start(context.Background(), StartOptions{}).Started)
	err := c.Stop(context.Background(), settings.UseNew)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStillRunning))
}

func TestStopNotRunning(t *testing.T) {
	s := testSettings(t)
	admin := &fakeAdmin{}
	c := newTestController(t, s, Deps{Launcher: &fakeLauncher{}, Poller: &fakePoller{}, Admin: admin})

	require.NoError(t, c.Stop(context.Background(), settings.UseNew))
	assert.Equal(t, 0, admin.calls)
}

func TestStopService(t *testing.T) {
	s := testSettings(t)
	s.Service.Enabled = true
	services := &fakeServices{state: service.StateRunning}
	c := newTestController(t, s, Deps{Services: services, Poller: &fakePoller{}})

	require.NoError(t, c.Stop(context.Background(), settings.UseNew))
	assert.Equal(t, 1, services.stopCalls)
}

func TestIsRunningFromPIDFile(t *testing.T) {
	s := testSettings(t)
	require.NoError(t, os.WriteFile(s.PidFilePath(), []byte(strconv.Itoa(4242)+"\n"), 0o644))

	alive := map[int]bool{4242: true}
	c := newTestController(t, s, Deps{Alive: func(pid int) (bool, error) { return alive[pid], nil }})

	running, err := c.IsRunning(context.Background(), settings.UseNew)
	require.NoError(t, err)
	assert.True(t, running)

	// the answer follows the OS, nothing is remembered
	alive[4242] = false
	running, err = c.IsRunning(context.Background(), settings.UseNew)
	require.NoError(t, err)
	assert.False(t, running)
}

func TestIsRunningUsesSelectedSettings(t *testing.T) {
	current := testSettings(t)
	previous := testSettings(t)
	require.NoError(t, os.WriteFile(previous.PidFilePath(), []byte("77"), 0o644))

	log, _ := logger.NewTesting("controller")
	c := New(log, settings.Pair{Current: current, Previous: previous}, Deps{
		Alive: func(pid int) (bool, error) { return pid == 77, nil },
	})

	running, err := c.IsRunning(context.Background(), settings.UseOld)
	require.NoError(t, err)
	assert.True(t, running)

	running, err = c.IsRunning(context.Background(), settings.UseNew)
	require.NoError(t, err)
	assert.False(t, running)
}
