// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

//go:build !windows

package service

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/kardianos/service"

	"github.com/elastic/mysql-configurator/pkg/core/logger"
)

// systemManager drives systemd, launchd or sysv through kardianos/service.
// Those managers only report running or stopped, pending states are never
// observed.
type systemManager struct {
	log *logger.Logger
}

// NewSystemManager returns the service manager of the running OS.
func NewSystemManager(log *logger.Logger) (Manager, error) {
	return &systemManager{log: log.Named("service-manager")}, nil
}

func newService(cfg Config) (service.Service, error) {
	svcCfg := &service.Config{
		Name:        cfg.Name,
		DisplayName: cfg.DisplayName,
		Description: cfg.Description,
		Executable:  cfg.Executable,
		Arguments:   cfg.Arguments,
		UserName:    cfg.Account,
		Option: map[string]interface{}{
			"Restart": "on-failure",
		},
	}
	if runtime.GOOS == "linux" {
		// the server writes its own pid file and error log
		svcCfg.Option["LogOutput"] = false
	}
	if runtime.GOOS == "darwin" {
		svcCfg.Option["KeepAlive"] = false
		svcCfg.Option["RunAtLoad"] = cfg.AutoStart
	}
	return service.New(nil, svcCfg)
}

func (m *systemManager) Exists(name string) (bool, error) {
	_, err := m.Status(name)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (m *systemManager) Status(name string) (State, error) {
	svc, err := newService(Config{Name: name})
	if err != nil {
		return StateUnknown, err
	}
	status, err := svc.Status()
	if err != nil {
		if errors.Is(err, service.ErrNotInstalled) {
			return StateUnknown, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return StateUnknown, err
	}
	switch status {
	case service.StatusRunning:
		return StateRunning, nil
	case service.StatusStopped:
		return StateStopped, nil
	default:
		return StateUnknown, nil
	}
}

// Start cannot forward arguments, they belong in the unit or the defaults file.
func (m *systemManager) Start(name string, args ...string) error {
	if len(args) > 0 {
		m.log.Warnw("service manager does not pass start arguments, starting without them", "service", name, "args", args)
	}
	svc, err := newService(Config{Name: name})
	if err != nil {
		return err
	}
	return svc.Start()
}

func (m *systemManager) Stop(name string) error {
	svc, err := newService(Config{Name: name})
	if err != nil {
		return err
	}
	return svc.Stop()
}

func (m *systemManager) Install(cfg Config) error {
	svc, err := newService(cfg)
	if err != nil {
		return err
	}
	if err := svc.Install(); err != nil {
		return fmt.Errorf("installing service %s: %w", cfg.Name, err)
	}
	return nil
}

// Update reinstalls the unit, kardianos/service cannot edit one in place.
func (m *systemManager) Update(cfg Config) error {
	svc, err := newService(cfg)
	if err != nil {
		return err
	}
	if err := svc.Uninstall(); err != nil && !errors.Is(err, service.ErrNotInstalled) {
		return fmt.Errorf("removing previous registration of %s: %w", cfg.Name, err)
	}
	if err := svc.Install(); err != nil {
		return fmt.Errorf("installing service %s: %w", cfg.Name, err)
	}
	return nil
}

func (m *systemManager) Delete(name string) error {
	svc, err := newService(Config{Name: name})
	if err != nil {
		return err
	}
	return svc.Uninstall()
}
