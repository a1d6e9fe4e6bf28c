// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

//go:build windows

package service

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"

	"github.com/elastic/mysql-configurator/pkg/core/logger"
)

// scmManager talks to the Windows Service Control Manager.
type scmManager struct {
	log *logger.Logger
}

// NewSystemManager returns the service manager of the running OS.
func NewSystemManager(log *logger.Logger) (Manager, error) {
	return &scmManager{log: log.Named("service-manager")}, nil
}

func (m *scmManager) withService(name string, fn func(s *mgr.Service) error) error {
	sm, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("failed to connect to service manager: %w", err)
	}
	defer func() {
		if err := sm.Disconnect(); err != nil {
			m.log.Debugw("failed to disconnect from service manager", "error.message", err)
		}
	}()

	s, err := sm.OpenService(name)
	if err != nil {
		if errors.Is(err, windows.ERROR_SERVICE_DOES_NOT_EXIST) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("failed to open service (%s): %w", name, err)
	}
	defer s.Close()

	return fn(s)
}

func (m *scmManager) Exists(name string) (bool, error) {
	err := m.withService(name, func(*mgr.Service) error { return nil })
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (m *scmManager) Status(name string) (State, error) {
	state := StateUnknown
	err := m.withService(name, func(s *mgr.Service) error {
		status, err := s.Query()
		if err != nil {
			return fmt.Errorf("error querying service (%s): %w", name, err)
		}
		state = fromSvcState(status.State)
		return nil
	})
	return state, err
}

func (m *scmManager) Start(name string, args ...string) error {
	return m.withService(name, func(s *mgr.Service) error {
		status, err := s.Query()
		if err != nil {
			return fmt.Errorf("error querying service (%s): %w", name, err)
		}
		if status.State == svc.Paused {
			_, err = s.Control(svc.Continue)
			return err
		}
		return s.Start(args...)
	})
}

func (m *scmManager) Stop(name string) error {
	return m.withService(name, func(s *mgr.Service) error {
		_, err := s.Control(svc.Stop)
		return err
	})
}

func (m *scmManager) Install(cfg Config) error {
	sm, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("failed to connect to service manager: %w", err)
	}
	defer func() { _ = sm.Disconnect() }()

	s, err := sm.CreateService(cfg.Name, cfg.Executable, toMgrConfig(cfg), cfg.Arguments...)
	if err != nil {
		return fmt.Errorf("failed to create service (%s): %w", cfg.Name, err)
	}
	return s.Close()
}

func (m *scmManager) Update(cfg Config) error {
	return m.withService(cfg.Name, func(s *mgr.Service) error {
		current, err := s.Config()
		if err != nil {
			return fmt.Errorf("failed to read service configuration (%s): %w", cfg.Name, err)
		}
		next := toMgrConfig(cfg)
		current.DisplayName = next.DisplayName
		current.Description = next.Description
		current.StartType = next.StartType
		current.ServiceStartName = next.ServiceStartName
		current.BinaryPathName = commandLine(cfg.Executable, cfg.Arguments)
		return s.UpdateConfig(current)
	})
}

func (m *scmManager) Delete(name string) error {
	return m.withService(name, func(s *mgr.Service) error {
		return s.Delete()
	})
}

func toMgrConfig(cfg Config) mgr.Config {
	startType := uint32(mgr.StartManual)
	if cfg.AutoStart {
		startType = mgr.StartAutomatic
	}
	return mgr.Config{
		DisplayName:      cfg.DisplayName,
		Description:      cfg.Description,
		StartType:        startType,
		ServiceStartName: cfg.Account,
	}
}

func commandLine(exe string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, windows.EscapeArg(exe))
	for _, a := range args {
		parts = append(parts, windows.EscapeArg(a))
	}
	return strings.Join(parts, " ")
}

func fromSvcState(s svc.State) State {
	switch s {
	case svc.Stopped:
		return StateStopped
	case svc.StartPending:
		return StateStartPending
	case svc.StopPending:
		return StateStopPending
	case svc.Running:
		return StateRunning
	case svc.ContinuePending:
		return StateContinuePending
	case svc.PausePending:
		return StatePausePending
	case svc.Paused:
		return StatePaused
	default:
		return StateUnknown
	}
}
