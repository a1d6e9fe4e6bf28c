// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package configurator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elastic/mysql-configurator/internal/pkg/server/controller"
	"github.com/elastic/mysql-configurator/internal/pkg/server/service"
	"github.com/elastic/mysql-configurator/internal/pkg/server/sqlclient"
	"github.com/elastic/mysql-configurator/internal/pkg/settings"
	"github.com/elastic/mysql-configurator/pkg/core/logger"
)

type fakeServer struct {
	running bool
	status  controller.StartStatus
	starts  []controller.StartOptions
	stops   []settings.Selection
	onStop  func(settings.Selection) error
}

func (f *fakeServer) Start(_ context.Context, opts controller.StartOptions) controller.StartStatus {
	f.starts = append(f.starts, opts)
	if f.status.Started {
		f.running = true
	}
	return f.status
}

func (f *fakeServer) Stop(_ context.Context, sel settings.Selection) error {
	f.stops = append(f.stops, sel)
	if f.onStop != nil {
		if err := f.onStop(sel); err != nil {
			return err
		}
	}
	f.running = false
	return nil
}

func (f *fakeServer) IsRunning(context.Context, settings.Selection) (bool, error) {
	return f.running, nil
}

type fakeServices struct {
	registered map[string]bool
	configured []service.Config
	deleted    []string
}

func (f *fakeServices) Exists(name string) (bool, error) {
	return f.registered[name], nil
}

func (f *fakeServices) Configure(_ context.Context, cfg service.Config) error {
	f.configured = append(f.configured, cfg)
	f.registered[cfg.Name] = true
	return nil
}

func (f *fakeServices) Delete(_ context.Context, name string, _ int, _ bool) (service.DeleteResult, error) {
	f.deleted = append(f.deleted, name)
	delete(f.registered, name)
	return service.Deleted, nil
}

type fakeSQL struct {
	statements []string
	passwords  []string
	plugins    map[string]bool
}

func (f *fakeSQL) Exec(_ context.Context, d sqlclient.Descriptor, statements ...string) error {
	f.statements = append(f.statements, statements...)
	f.passwords = append(f.passwords, d.Password)
	return nil
}

func (f *fakeSQL) ExecArgs(_ context.Context, d sqlclient.Descriptor, stmt string, _ ...interface{}) error {
	f.statements = append(f.statements, stmt)
	f.passwords = append(f.passwords, d.Password)
	return nil
}

func (f *fakeSQL) QueryString(_ context.Context, _ sqlclient.Descriptor, _ string, args ...interface{}) (string, error) {
	if f.plugins[args[0].(string)] {
		return "1", nil
	}
	return "0", nil
}

type fakeStore struct {
	state   settings.State
	applied *settings.Settings
	history []bool
	forgot  bool
}

func (f *fakeStore) State(context.Context) (settings.State, error) {
	return f.state, nil
}

func (f *fakeStore) SetPendingUpgrade(_ context.Context, pending bool) error {
	f.state.PendingUpgrade = pending
	f.history = append(f.history, pending)
	return nil
}

func (f *fakeStore) SaveApplied(_ context.Context, s *settings.Settings) error {
	f.applied = s
	return nil
}

func (f *fakeStore) ForgetApplied(context.Context) error {
	f.forgot = true
	return nil
}

type fakeTools struct {
	runs []string
	// onRun simulates the side effects of a tool
	onRun func(path string, args []string)
}

func (f *fakeTools) Run(_ context.Context, path string, args []string, _ []string) error {
	f.runs = append(f.runs, toolName(path))
	if f.onRun != nil {
		f.onRun(path, args)
	}
	return nil
}

func toolName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".exe")
}

type harness struct {
	server   *fakeServer
	services *fakeServices
	sql      *fakeSQL
	store    *fakeStore
	tools    *fakeTools
	rep      *recordingReporter
}

func newHarness() *harness {
	return &harness{
		server:   &fakeServer{status: controller.StartStatus{Started: true, AcceptingConnections: true}},
		services: &fakeServices{registered: map[string]bool{}},
		sql:      &fakeSQL{plugins: map[string]bool{}},
		store:    &fakeStore{},
		tools:    &fakeTools{},
		rep:      &recordingReporter{},
	}
}

func (h *harness) configurator(t *testing.T, pair settings.Pair, cctx Context) *Configurator {
	t.Helper()
	log, _ := logger.NewTesting("configurator")
	return New(log, pair, cctx, Deps{
		Server:   h.server,
		Services: h.services,
		SQL:      h.sql,
		Store:    h.store,
		Tools:    h.tools,
		Reporter: h.rep,
	})
}

func testSettings(t *testing.T) *settings.Settings {
	t.Helper()
	dir := t.TempDir()
	s := settings.DefaultSettings()
	s.ServerVersion = "8.0.36"
	s.InstallDir = filepath.Join(dir, "server")
	s.DataDir = filepath.Join(dir, "data")
	s.DefaultsFile = filepath.Join(dir, "etc", "my.cnf")
	s.PidFile = filepath.Join(dir, "run", "server.pid")
	s.ErrorLog = filepath.Join(dir, "log", "server.err")
	s.Security.RootPassword = "s3cret"
	return s
}

func executed(steps []*Step) []StepID {
	var out []StepID
	for _, s := range steps {
		if s.Status == StatusFinished {
			out = append(out, s.ID)
		}
	}
	return out
}

func TestConfigureNewInstallation(t *testing.T) {
	h := newHarness()
	cur := testSettings(t)
	cur.Users = []settings.User{{Name: "app", Password: "pw", Role: "ReadOnly"}}
	cur.Plugins = []string{"validate_password"}
	cur.Examples.Scripts = []string{"sakila.sql"}
	h.tools.onRun = func(path string, _ []string) {
		if toolName(path) == "mysqld" {
			require.NoError(t, os.MkdirAll(filepath.Join(cur.DataDir, "mysql"), 0o755))
		}
	}

	c := h.configurator(t, settings.Pair{Current: cur}, DetectContext(settings.Pair{Current: cur}, false))
	require.NoError(t, c.Configure(context.Background()))

	assert.Equal(t, []StepID{
		StepWriteConfig,
		StepProcessSettings,
		StepInitialize,
		StepPermissions,
		StepStartServer,
		StepWritableCheck,
		StepSecurity,
		StepUsers,
		StepPlugins,
		StepExamples,
	}, executed(c.Steps()))
	assert.Equal(t, StatusSkipped, c.Step(StepStopServer).Status)
	assert.Equal(t, StatusSkipped, c.Step(StepService).Status)

	assert.FileExists(t, cur.DefaultsFile)
	assert.Equal(t, []string{"mysqld", "mysql"}, h.tools.runs)

	// fresh instances accept root without a password until secured
	require.GreaterOrEqual(t, len(h.sql.passwords), 2)
	assert.Equal(t, "", h.sql.passwords[0])
	assert.Equal(t, "s3cret", h.sql.passwords[len(h.sql.passwords)-1])
	assert.Contains(t, h.sql.statements, "ALTER USER 'root'@'localhost' IDENTIFIED BY ?")
	assert.Contains(t, h.sql.statements, "INSTALL PLUGIN validate_password SONAME 'validate_password"+pluginExtension()+"'")

	assert.Same(t, cur, h.store.applied)
}

func TestConfigureStartFailureStopsRun(t *testing.T) {
	h := newHarness()
	h.server.status = controller.StartStatus{Started: false}
	cur := testSettings(t)
	require.NoError(t, os.MkdirAll(filepath.Join(cur.DataDir, "mysql"), 0o755))
	prev := cur.Redacted()

	c := h.configurator(t, settings.Pair{Current: cur, Previous: prev}, ContextReconfiguration)
	err := c.Configure(context.Background())

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepStartServer, stepErr.Step)
	assert.Equal(t, StatusError, c.Step(StepStartServer).Status)
	assert.Equal(t, StatusPending, c.Step(StepWritableCheck).Status)
	assert.Empty(t, h.sql.statements)
	assert.Nil(t, h.store.applied)
}

func TestConfigureSelfContainedUpgrade(t *testing.T) {
	h := newHarness()
	h.server.running = true
	h.server.status.Upgrade = &controller.UpgradeStatus{Finished: true}

	cur := testSettings(t)
	cur.ServerVersion = "8.4.2"
	require.NoError(t, os.MkdirAll(filepath.Join(cur.DataDir, "mysql"), 0o755))
	prev := cur.Redacted()
	prev.ServerVersion = "8.0.36"

	pair := settings.Pair{Current: cur, Previous: prev}
	require.Equal(t, ContextUpgrade, DetectContext(pair, false))

	c := h.configurator(t, pair, ContextUpgrade)
	require.NoError(t, c.Configure(context.Background()))

	ids := make([]StepID, 0, len(c.Steps()))
	for _, s := range c.Steps() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, selfContainedOrder, ids)

	require.Len(t, h.server.starts, 2)
	assert.True(t, h.server.starts[0].SelfContainedUpgrade)
	assert.Equal(t, settings.UseOld, h.server.starts[0].Selection)
	assert.False(t, h.server.starts[1].SelfContainedUpgrade)
	assert.Equal(t, []settings.Selection{settings.UseOld, settings.UseNew}, h.server.stops)

	assert.Equal(t, []bool{true, false}, h.store.history)
	assert.Equal(t, StatusFinished, c.Step(StepStopServerAfterUpgrade).Status)
}

func TestConfigureSelfContainedUpgradeWithServiceRename(t *testing.T) {
	h := newHarness()
	h.server.running = true
	h.server.status.Upgrade = &controller.UpgradeStatus{Finished: true}
	h.services.registered["MySQL80"] = true

	cur := testSettings(t)
	cur.ServerVersion = "8.4.2"
	cur.Service.Enabled = true
	cur.Service.Name = "MySQL84"
	require.NoError(t, os.MkdirAll(filepath.Join(cur.DataDir, "mysql"), 0o755))
	prev := cur.Redacted()
	prev.ServerVersion = "8.0.36"
	prev.Service.Name = "MySQL80"
	pair := settings.Pair{Current: cur, Previous: prev}

	// a stop can only reach a registered service
	h.server.onStop = func(sel settings.Selection) error {
		name := pair.Get(sel).Service.Name
		if !h.services.registered[name] {
			return fmt.Errorf("service %s does not exist", name)
		}
		return nil
	}

	c := h.configurator(t, pair, ContextUpgrade)
	require.NoError(t, c.Configure(context.Background()))

	assert.Equal(t, []string{"MySQL80"}, h.services.deleted)
	assert.Equal(t, []settings.Selection{settings.UseOld, settings.UseNew}, h.server.stops)
	assert.Equal(t, StatusFinished, c.Step(StepStopServerAfterUpgrade).Status)
	assert.Equal(t, []bool{true, false}, h.store.history)
}

func TestConfigureFailedUpgradeKeepsPendingFlag(t *testing.T) {
	h := newHarness()
	h.server.status.Upgrade = &controller.UpgradeStatus{Failed: true}

	cur := testSettings(t)
	cur.ServerVersion = "8.4.2"
	require.NoError(t, os.MkdirAll(filepath.Join(cur.DataDir, "mysql"), 0o755))
	prev := cur.Redacted()
	prev.ServerVersion = "8.0.36"

	c := h.configurator(t, settings.Pair{Current: cur, Previous: prev}, ContextUpgrade)
	err := c.Configure(context.Background())

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepStartServerUpgrade, stepErr.Step)
	assert.True(t, h.store.state.PendingUpgrade)
}

func TestConfigurePendingUpgradeResumes(t *testing.T) {
	h := newHarness()
	h.store.state.PendingUpgrade = true

	cur := testSettings(t)
	require.NoError(t, os.MkdirAll(filepath.Join(cur.DataDir, "mysql"), 0o755))
	prev := cur.Redacted()

	c := h.configurator(t, settings.Pair{Current: cur, Previous: prev}, ContextReconfiguration)
	require.NoError(t, c.Configure(context.Background()))

	assert.Equal(t, StatusFinished, c.Step(StepStartServerUpgrade).Status)
	assert.False(t, h.store.state.PendingUpgrade)
}

func TestConfigureLegacyUpgrade(t *testing.T) {
	h := newHarness()
	cur := testSettings(t)
	cur.ServerVersion = "5.7.44"
	cur.Upgrade.Backup = true
	require.NoError(t, os.MkdirAll(filepath.Join(cur.DataDir, "mysql"), 0o755))
	prev := cur.Redacted()
	prev.ServerVersion = "5.7.30"

	c := h.configurator(t, settings.Pair{Current: cur, Previous: prev}, ContextUpgrade)
	require.NoError(t, c.Configure(context.Background()))

	assert.Equal(t, StatusFinished, c.Step(StepBackup).Status)
	assert.Equal(t, StatusFinished, c.Step(StepUpgradeInPlace).Status)
	assert.Equal(t, []string{"mysqldump", "mysql_upgrade"}, h.tools.runs)
	assert.Equal(t, []bool{true, false}, h.store.history)
}

func TestConfigureServiceRename(t *testing.T) {
	h := newHarness()
	h.services.registered["MySQL80"] = true

	cur := testSettings(t)
	cur.Service.Enabled = true
	cur.Service.Name = "MySQL84"
	require.NoError(t, os.MkdirAll(filepath.Join(cur.DataDir, "mysql"), 0o755))
	prev := cur.Redacted()
	prev.Service.Name = "MySQL80"

	c := h.configurator(t, settings.Pair{Current: cur, Previous: prev}, ContextReconfiguration)
	require.NoError(t, c.Configure(context.Background()))

	assert.Equal(t, []string{"MySQL80"}, h.services.deleted)
	require.Len(t, h.services.configured, 1)
	assert.Equal(t, "MySQL84", h.services.configured[0].Name)
	assert.Equal(t, StatusSkipped, c.Step(StepProcessSettings).Status)
}

func TestConfigureRemove(t *testing.T) {
	h := newHarness()
	h.server.running = true
	h.services.registered["MySQL"] = true

	cur := testSettings(t)
	cur.Service.Enabled = true
	require.NoError(t, os.MkdirAll(filepath.Join(cur.DataDir, "mysql"), 0o755))

	c := h.configurator(t, settings.Pair{Current: cur, Previous: cur.Redacted()}, ContextRemove)
	require.NoError(t, c.Configure(context.Background()))

	assert.Equal(t, []StepID{StepStopServer, StepService}, executed(c.Steps()))
	assert.Equal(t, []string{"MySQL"}, h.services.deleted)
	assert.Empty(t, h.services.configured)
	assert.True(t, h.store.forgot)
}

func TestConfigureCancelled(t *testing.T) {
	h := newHarness()
	cur := testSettings(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := h.configurator(t, settings.Pair{Current: cur}, ContextNew)
	err := c.Configure(ctx)

	var cancelled *CancelledError
	require.ErrorAs(t, err, &cancelled)
	for _, s := range c.Steps() {
		assert.Equal(t, StatusPending, s.Status)
	}
	assert.Nil(t, h.store.applied)
}

func TestDetectContext(t *testing.T) {
	cur := settings.DefaultSettings()
	cur.ServerVersion = "8.0.36"
	prev := settings.DefaultSettings()
	prev.ServerVersion = "8.0.36"

	assert.Equal(t, ContextNew, DetectContext(settings.Pair{Current: cur}, false))
	assert.Equal(t, ContextReconfiguration, DetectContext(settings.Pair{Current: cur, Previous: prev}, false))
	assert.Equal(t, ContextRemove, DetectContext(settings.Pair{Current: cur, Previous: prev}, true))

	prev.ServerVersion = "8.0.30"
	assert.Equal(t, ContextUpgrade, DetectContext(settings.Pair{Current: cur, Previous: prev}, false))
}
