// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

// Package configurator brings a local server instance to the state described
// by its settings by running an ordered list of conditional steps.
package configurator

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/elastic/mysql-configurator/internal/pkg/configurator/reporter"
	"github.com/elastic/mysql-configurator/internal/pkg/server/controller"
	"github.com/elastic/mysql-configurator/internal/pkg/server/defaultsfile"
	"github.com/elastic/mysql-configurator/internal/pkg/server/service"
	"github.com/elastic/mysql-configurator/internal/pkg/server/sqlclient"
	"github.com/elastic/mysql-configurator/internal/pkg/settings"
	"github.com/elastic/mysql-configurator/pkg/core/logger"
)

// Server starts and stops the instance.
type Server interface {
	Start(ctx context.Context, opts controller.StartOptions) controller.StartStatus
	Stop(ctx context.Context, sel settings.Selection) error
	IsRunning(ctx context.Context, sel settings.Selection) (bool, error)
}

// Services registers the instance with the OS service manager.
type Services interface {
	Exists(name string) (bool, error)
	Configure(ctx context.Context, cfg service.Config) error
	Delete(ctx context.Context, name string, retries int, failOnError bool) (service.DeleteResult, error)
}

// SQL runs administrative statements.
type SQL interface {
	Exec(ctx context.Context, d sqlclient.Descriptor, statements ...string) error
	ExecArgs(ctx context.Context, d sqlclient.Descriptor, stmt string, args ...interface{}) error
	QueryString(ctx context.Context, d sqlclient.Descriptor, query string, args ...interface{}) (string, error)
}

// StateStore persists what survives a configuration run.
type StateStore interface {
	State(ctx context.Context) (settings.State, error)
	SetPendingUpgrade(ctx context.Context, pending bool) error
	SaveApplied(ctx context.Context, s *settings.Settings) error
	ForgetApplied(ctx context.Context) error
}

// Deps are the collaborators of a Configurator. Firewall, Permissions,
// Shortcuts, Tools and Reporter have defaults.
type Deps struct {
	Server      Server
	Services    Services
	SQL         SQL
	Store       StateStore
	Tools       Tools
	Firewall    Firewall
	Permissions Permissions
	Shortcuts   Shortcuts
	Reporter    reporter.Reporter
}

var classicOrder = []StepID{
	StepStopServer,
	StepWriteConfig,
	StepFirewall,
	StepService,
	StepProcessSettings,
	StepBackup,
	StepUpgradeInPlace,
	StepInitialize,
	StepPermissions,
	StepStartServer,
	StepWritableCheck,
	StepSecurity,
	StepUsers,
	StepPlugins,
	StepShortcuts,
	StepExamples,
}

var selfContainedOrder = []StepID{
	StepStopServer,
	StepPermissions,
	StepService,
	StepStartServerUpgrade,
	StepWritableCheck,
	StepStopServerAfterUpgrade,
	StepWriteConfig,
	StepStartServer,
	StepSecurity,
	StepShortcuts,
}

// runState is owned by the goroutine running Configure.
type runState struct {
	cctx    Context
	state   InstallState
	secured bool
}

// Configurator owns the step catalogue of one instance.
type Configurator struct {
	log  *logger.Logger
	pair settings.Pair
	cctx Context
	deps Deps

	steps map[StepID]*Step
	order []*Step
	run   runState
}

// DetectContext derives the kind of run from the settings pair.
func DetectContext(pair settings.Pair, remove bool) Context {
	switch {
	case remove:
		return ContextRemove
	case pair.Previous == nil:
		return ContextNew
	case pair.Previous.Version().Less(pair.Current.Version()):
		return ContextUpgrade
	default:
		return ContextReconfiguration
	}
}

// New builds the step catalogue for pair.
func New(log *logger.Logger, pair settings.Pair, cctx Context, deps Deps) *Configurator {
	log = log.Named("configurator")
	if deps.Reporter == nil {
		deps.Reporter = reporter.Nop()
	}
	delegated := NewDelegated(log)
	if deps.Firewall == nil {
		deps.Firewall = delegated
	}
	if deps.Permissions == nil {
		deps.Permissions = delegated
	}
	if deps.Shortcuts == nil {
		deps.Shortcuts = delegated
	}
	if deps.Tools == nil {
		deps.Tools = NewProcessTools(log)
	}

	c := &Configurator{
		log:  log,
		pair: pair,
		cctx: cctx,
		deps: deps,
	}
	c.steps = c.catalogue()
	c.order = c.ordering(false)
	return c
}

func (c *Configurator) catalogue() map[StepID]*Step {
	steps := []*Step{
		{ID: StepStopServer, Name: "Stopping the server", Weight: 10, Applicability: ContextAll, Action: c.stopServer},
		{ID: StepWriteConfig, Name: "Writing the configuration file", Weight: 5, Applicability: ContextConfigure, Action: c.writeConfig},
		{ID: StepFirewall, Name: "Updating firewall rules", Weight: 5, Applicability: ContextAll, Action: c.updateFirewall},
		{ID: StepService, Name: "Updating the server service", Weight: 10, Applicability: ContextAll, Action: c.updateService},
		{ID: StepProcessSettings, Name: "Preparing the server process", Weight: 2, Applicability: ContextConfigure, Action: c.prepareProcess},
		{ID: StepBackup, Name: "Backing up databases", Weight: 20, Applicability: ContextUpgrade, Action: c.backup},
		{ID: StepUpgradeInPlace, Name: "Upgrading system tables", Weight: 30, Applicability: ContextUpgrade, Action: c.upgradeInPlace},
		{ID: StepInitialize, Name: "Initializing the data directory", Weight: 40, Applicability: ContextNew | ContextReconfiguration, Action: c.initialize},
		{ID: StepPermissions, Name: "Updating data directory permissions", Weight: 5, Applicability: ContextConfigure, Action: c.grantPermissions},
		{ID: StepStartServer, Name: "Starting the server", Weight: 20, Applicability: ContextConfigure, Action: c.startServer},
		{ID: StepWritableCheck, Name: "Checking the server can write its data", Weight: 2, Applicability: ContextConfigure, Action: c.writableCheck},
		{ID: StepSecurity, Name: "Securing the root account", Weight: 5, Applicability: ContextConfigure, Action: c.secureRoot},
		{ID: StepUsers, Name: "Creating user accounts", Weight: 5, Applicability: ContextConfigure, Action: c.createUsers},
		{ID: StepPlugins, Name: "Installing plugins", Weight: 5, Applicability: ContextConfigure, Action: c.installPlugins},
		{ID: StepShortcuts, Name: "Creating shortcuts", Weight: 2, Applicability: ContextConfigure, Action: c.createShortcuts},
		{ID: StepExamples, Name: "Loading example databases", Weight: 10, Applicability: ContextNew, Action: c.loadExamples},
		{ID: StepStartServerUpgrade, Name: "Starting the server and upgrading system tables", Weight: 40, Applicability: ContextUpgrade, Action: c.startServerUpgrade},
		{ID: StepStopServerAfterUpgrade, Name: "Stopping the server after the upgrade", Weight: 10, Applicability: ContextUpgrade, Action: c.stopServerAfterUpgrade},
	}
	out := make(map[StepID]*Step, len(steps))
	for _, s := range steps {
		out[s.ID] = s
	}
	return out
}

func (c *Configurator) ordering(selfContained bool) []*Step {
	ids := classicOrder
	if selfContained {
		ids = selfContainedOrder
	}
	out := make([]*Step, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.steps[id])
	}
	return out
}

// Steps returns the ordering picked by the last Configure call, the classic
// ordering before that.
func (c *Configurator) Steps() []*Step {
	return c.order
}

// Step returns the catalogue entry for id.
func (c *Configurator) Step(id StepID) *Step {
	return c.steps[id]
}

// Configure runs the steps once. The returned error is a *StepError, a
// *CancelledError or an error persisting the outcome.
func (c *Configurator) Configure(ctx context.Context) error {
	cctx := c.cctx
	st, err := c.deps.Store.State(ctx)
	if err != nil {
		c.log.Warnw("could not read configurator state", "error.message", err)
	} else if st.PendingUpgrade && cctx&(ContextNew|ContextReconfiguration) != 0 {
		c.log.Warnw("the previous upgrade did not finish, running it again")
		cctx = ContextUpgrade
	}

	c.run = runState{cctx: cctx, state: c.snapshot(ctx)}
	selfContained := UseSelfContainedUpgrade(c.inputs())
	c.order = c.ordering(selfContained)
	c.log.Infow("configuring server", "context", cctx.String(), "self_contained_upgrade", selfContained)

	ResetSteps(c.order)
	if err := Run(ctx, cctx, c.order, func(id StepID) bool {
		return ShouldExecute(id, c.inputs())
	}, c.deps.Reporter); err != nil {
		return err
	}

	if cctx == ContextRemove {
		return c.deps.Store.ForgetApplied(ctx)
	}
	return c.deps.Store.SaveApplied(ctx, c.pair.Current)
}

func (c *Configurator) inputs() Inputs {
	return Inputs{
		Context:  c.run.cctx,
		Current:  c.pair.Current,
		Previous: c.pair.Previous,
		State:    c.run.state,
	}
}

// snapshot collects the installation state. Lookup failures are logged and
// count as absent.
func (c *Configurator) snapshot(ctx context.Context) InstallState {
	cur := c.pair.Current
	state := InstallState{
		DataDirExists:      dataFilesExist(cur.DataDir),
		DefaultsFileExists: defaultsfile.Exists(cur.DefaultsFile),
	}

	var merr *multierror.Error
	if c.deps.Services != nil {
		for _, name := range c.serviceNames() {
			exists, err := c.deps.Services.Exists(name)
			if err != nil {
				merr = multierror.Append(merr, err)
				continue
			}
			state.PriorServiceExists = state.PriorServiceExists || exists
		}
	}
	for _, sel := range []settings.Selection{settings.UseOld, settings.UseNew} {
		running, err := c.deps.Server.IsRunning(ctx, sel)
		if err != nil {
			merr = multierror.Append(merr, err)
			continue
		}
		state.ServerRunning = state.ServerRunning || running
	}
	if err := merr.ErrorOrNil(); err != nil {
		c.log.Warnw("installation state is incomplete", "error.message", err)
	}
	c.log.Debugw("installation state",
		"data_dir_exists", state.DataDirExists,
		"prior_service_exists", state.PriorServiceExists,
		"server_running", state.ServerRunning,
		"defaults_file_exists", state.DefaultsFileExists)
	return state
}

// serviceNames lists the registrations a previous run may have left.
func (c *Configurator) serviceNames() []string {
	names := []string{c.pair.Current.Service.Name}
	if prev := c.pair.Previous; prev != nil && prev.Service.Name != "" && prev.Service.Name != names[0] {
		names = append(names, prev.Service.Name)
	}
	return names
}

// priorServiceName is the registration a previous run created.
func (c *Configurator) priorServiceName() string {
	if prev := c.pair.Previous; prev != nil && prev.Service.Name != "" {
		return prev.Service.Name
	}
	return c.pair.Current.Service.Name
}

// dataFilesExist is true when dir holds an initialized instance.
func dataFilesExist(dir string) bool {
	if dir == "" {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, "mysql"))
	return err == nil && info.IsDir()
}

func (c *Configurator) status(msg string, wait time.Duration) {
	c.deps.Reporter.Status(msg, wait)
}
