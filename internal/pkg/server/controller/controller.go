// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package controller

import (
	"context"
	"sync"
	"time"

	"github.com/elastic/mysql-configurator/internal/pkg/server/logtail"
	"github.com/elastic/mysql-configurator/internal/pkg/server/service"
	"github.com/elastic/mysql-configurator/internal/pkg/server/sqlclient"
	"github.com/elastic/mysql-configurator/internal/pkg/settings"
	"github.com/elastic/mysql-configurator/pkg/core/logger"
	"github.com/elastic/mysql-configurator/pkg/core/process"
)

const (
	defaultStopRetries  = 30
	defaultStopInterval = time.Second
	defaultAliveGrace   = 2 * time.Second
	adminTimeout        = 10 * time.Second
	upgradeFlag         = "--upgrade=FORCE"
)

// Process is a launched server process.
type Process interface {
	Pid() int
	Exited() bool
	Done() <-chan struct{}
	Kill() error
}

// Launcher spawns the server binary detached from the configurator.
type Launcher interface {
	Launch(path string, args []string) (Process, error)
}

// Services is the service control adapter.
type Services interface {
	Exists(name string) (bool, error)
	Status(name string) (service.State, error)
	Start(ctx context.Context, name string, args []string, timeout time.Duration) error
	Stop(ctx context.Context, name string, timeout time.Duration) error
}

// Poller waits for the server to accept connections.
type Poller interface {
	WaitUntilConnectable(ctx context.Context, maxRetries int, sel settings.Selection) bool
}

// AdminClient runs the graceful shutdown statement.
type AdminClient interface {
	Shutdown(ctx context.Context, d sqlclient.Descriptor) error
}

// LogWatcher tails the server error log.
type LogWatcher interface {
	Watch(ctx context.Context, m logtail.Matcher) *logtail.Watch
}

// AliveFunc checks a pid against the OS process table.
type AliveFunc func(pid int) (bool, error)

// Deps are the collaborators of a Controller.
type Deps struct {
	Launcher Launcher
	Services Services
	Poller   Poller
	Admin    AdminClient
	Log      LogWatcher
	Alive    AliveFunc
}

// StartOptions tune one Start call.
type StartOptions struct {
	// AdditionalArgs are appended to the server command line.
	AdditionalArgs []string
	// WaitUntilAcceptingConnections waits for readiness after the launch.
	WaitUntilAcceptingConnections bool
	// SelfContainedUpgrade starts the server with the upgrade flag and
	// follows the upgrade in the error log.
	SelfContainedUpgrade bool
	// Selection picks the settings used to connect while waiting.
	Selection settings.Selection
	// ConnectRetries for the connection poller, zero uses the settings.
	ConnectRetries int
	// LogTimeout bounds the error log wait, zero uses the settings.
	LogTimeout time.Duration
}

// UpgradeStatus is the outcome of a self-contained upgrade.
type UpgradeStatus struct {
	Finished bool
	Failed   bool
}

// StartStatus is the outcome of one Start call.
type StartStatus struct {
	Started              bool
	AcceptingConnections bool
	AlreadyRunning       bool
	Upgrade              *UpgradeStatus
	// ErrorLines holds the error lines the server logged during the start.
	ErrorLines []logtail.Line
}

// Controller starts and stops one local server instance, either as a plain
// process or through the OS service manager.
type Controller struct {
	log  *logger.Logger
	pair settings.Pair
	deps Deps

	stopRetries  int
	stopInterval time.Duration
	aliveGrace   time.Duration

	mx    sync.Mutex
	child Process
}

// Option customizes a Controller.
type Option func(c *Controller)

// WithStopPolling sets how often and how long Stop checks for the exit.
func WithStopPolling(retries int, interval time.Duration) Option {
	return func(c *Controller) {
		c.stopRetries = retries
		c.stopInterval = interval
	}
}

// WithAliveGrace sets how long a launched process must survive to count as started.
func WithAliveGrace(d time.Duration) Option {
	return func(c *Controller) {
		c.aliveGrace = d
	}
}

// New creates a Controller for the instance described by pair.
func New(log *logger.Logger, pair settings.Pair, deps Deps, opts ...Option) *Controller {
	if deps.Alive == nil {
		deps.Alive = process.Alive
	}
	c := &Controller{
		log:          log.Named("controller"),
		pair:         pair,
		deps:         deps,
		stopRetries:  defaultStopRetries,
		stopInterval: defaultStopInterval,
		aliveGrace:   defaultAliveGrace,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Settings returns the settings generation picked by sel.
func (c *Controller) Settings(sel settings.Selection) *settings.Settings {
	return c.pair.Get(sel)
}

func (c *Controller) launched() Process {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.child
}

func (c *Controller) setLaunched(p Process) {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.child = p
}
