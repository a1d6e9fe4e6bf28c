// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package cmd

import (
	"context"

	"github.com/elastic/mysql-configurator/internal/pkg/configurator"
	"github.com/elastic/mysql-configurator/internal/pkg/configurator/reporter"
	"github.com/elastic/mysql-configurator/internal/pkg/errors"
	"github.com/elastic/mysql-configurator/internal/pkg/paths"
	"github.com/elastic/mysql-configurator/internal/pkg/server/controller"
	"github.com/elastic/mysql-configurator/internal/pkg/server/logtail"
	"github.com/elastic/mysql-configurator/internal/pkg/server/poller"
	"github.com/elastic/mysql-configurator/internal/pkg/server/service"
	"github.com/elastic/mysql-configurator/internal/pkg/server/sqlclient"
	"github.com/elastic/mysql-configurator/internal/pkg/settings"
	"github.com/elastic/mysql-configurator/pkg/core/logger"
)

// app wires the collaborators every command works with.
type app struct {
	log   *logger.Logger
	pair  settings.Pair
	store *settings.Store
	sql   *sqlclient.Client
	// services is nil when the platform has no usable service manager.
	services *service.Adapter
	ctrl     *controller.Controller
}

func newApp(ctx context.Context, log *logger.Logger) (*app, error) {
	cur, err := settings.Load(paths.ConfigFile())
	if err != nil {
		return nil, err
	}
	store := settings.NewStore(paths.Data())
	prev, err := store.Applied(ctx)
	if err != nil {
		return nil, err
	}

	a := &app{
		log:   log,
		pair:  settings.Pair{Current: cur, Previous: prev},
		store: store,
		sql:   sqlclient.New(log),
	}

	deps := controller.Deps{
		Launcher: controller.NewProcessLauncher(log),
		Poller:   poller.New(log, a.sql, a.pair),
		Admin:    a.sql,
		Log:      logtail.New(log, cur.ErrorLogPath()),
	}
	mgr, err := service.NewSystemManager(log)
	switch {
	case err == nil:
		a.services = service.NewAdapter(log, mgr)
		deps.Services = a.services
	case cur.Service.Enabled:
		return nil, errors.New(err, "no service manager available", errors.TypeApplication, errors.M(errors.MetaKeyService, cur.Service.Name))
	default:
		log.Debugw("running without a service manager", "error.message", err)
	}
	a.ctrl = controller.New(log, a.pair, deps)
	return a, nil
}

func (a *app) configurator(cctx configurator.Context, rep reporter.Reporter) *configurator.Configurator {
	deps := configurator.Deps{
		Server:   a.ctrl,
		SQL:      a.sql,
		Store:    a.store,
		Reporter: rep,
	}
	if a.services != nil {
		deps.Services = a.services
	}
	return configurator.New(a.log, a.pair, cctx, deps)
}
