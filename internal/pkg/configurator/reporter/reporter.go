// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

// Package reporter renders configuration progress. Reporters only observe,
// nothing they do changes the outcome of a run.
package reporter

import (
	"time"

	"github.com/elastic/mysql-configurator/pkg/core/logger"
)

// Reporter receives step transitions and free-text status lines. wait is a
// hint of how long the current operation may block, zero when unknown.
type Reporter interface {
	StepStarted(name string)
	StepFinished(name string)
	StepSkipped(name string)
	StepFailed(name string, err error)
	Status(msg string, wait time.Duration)
}

// Log writes every event to log.
type Log struct {
	log *logger.Logger
}

// NewLog creates a Log reporter.
func NewLog(log *logger.Logger) *Log {
	return &Log{log: log.Named("progress")}
}

func (l *Log) StepStarted(name string) {
	l.log.Infow("step started", "step", name)
}

func (l *Log) StepFinished(name string) {
	l.log.Infow("step finished", "step", name)
}

func (l *Log) StepSkipped(name string) {
	l.log.Debugw("step skipped", "step", name)
}

func (l *Log) StepFailed(name string, err error) {
	l.log.Errorw("step failed", "step", name, "error.message", err)
}

func (l *Log) Status(msg string, wait time.Duration) {
	if wait > 0 {
		l.log.Infow(msg, "wait", wait)
		return
	}
	l.log.Info(msg)
}

type multi []Reporter

// Multi fans events out to every reporter in order.
func Multi(reporters ...Reporter) Reporter {
	return multi(reporters)
}

func (m multi) StepStarted(name string) {
	for _, r := range m {
		r.StepStarted(name)
	}
}

func (m multi) StepFinished(name string) {
	for _, r := range m {
		r.StepFinished(name)
	}
}

func (m multi) StepSkipped(name string) {
	for _, r := range m {
		r.StepSkipped(name)
	}
}

func (m multi) StepFailed(name string, err error) {
	for _, r := range m {
		r.StepFailed(name, err)
	}
}

func (m multi) Status(msg string, wait time.Duration) {
	for _, r := range m {
		r.Status(msg, wait)
	}
}

type nop struct{}

// Nop discards everything.
func Nop() Reporter {
	return nop{}
}

func (nop) StepStarted(string)           {}
func (nop) StepFinished(string)          {}
func (nop) StepSkipped(string)           {}
func (nop) StepFailed(string, error)     {}
func (nop) Status(string, time.Duration) {}
