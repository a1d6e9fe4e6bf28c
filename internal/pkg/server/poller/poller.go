// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package poller

import (
	"context"
	"time"

	"github.com/elastic/mysql-configurator/internal/pkg/core/backoff"
	"github.com/elastic/mysql-configurator/internal/pkg/server/sqlclient"
	"github.com/elastic/mysql-configurator/internal/pkg/settings"
	"github.com/elastic/mysql-configurator/pkg/core/logger"
)

const (
	// DefaultRetries is used by callers that have no retry budget of their own.
	DefaultRetries = 10
	// unboundedRetries replaces a negative retry count.
	unboundedRetries = 100

	defaultInterval       = 5 * time.Second
	defaultConnectTimeout = 10 * time.Second
	maxConnectTimeout     = 2 * time.Minute
)

// Pinger opens and closes one connection.
type Pinger interface {
	Ping(ctx context.Context, d sqlclient.Descriptor) error
}

// Poller waits until the server accepts client connections.
type Poller struct {
	log            *logger.Logger
	pinger         Pinger
	pair           settings.Pair
	interval       time.Duration
	connectTimeout time.Duration
}

// Option customizes a Poller.
type Option func(p *Poller)

// WithInterval sets the sleep between attempts.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		p.interval = d
	}
}

// WithConnectTimeout sets the timeout of the first attempt.
func WithConnectTimeout(d time.Duration) Option {
	return func(p *Poller) {
		p.connectTimeout = d
	}
}

// New creates a Poller connecting with the settings in pair.
func New(log *logger.Logger, pinger Pinger, pair settings.Pair, opts ...Option) *Poller {
	p := &Poller{
		log:            log.Named("poller"),
		pinger:         pinger,
		pair:           pair,
		interval:       defaultInterval,
		connectTimeout: defaultConnectTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// WaitUntilConnectable tries up to maxRetries connections, starting with the
// settings picked by sel. Zero retries returns false without trying, a
// negative count means 100. An access denied answer counts as reachable.
//
// While both settings generations are plausible the selection flips after
// every failed attempt. A host or grant failure with the old settings
// switches to the new ones for good.
func (p *Poller) WaitUntilConnectable(ctx context.Context, maxRetries int, sel settings.Selection) bool {
	if maxRetries == 0 {
		return false
	}
	if maxRetries < 0 {
		maxRetries = unboundedRetries
	}

	ambiguous := p.pair.HasPrevious()
	locked := false
	timeout := p.connectTimeout
	wait := backoff.NewConstantBackoff(ctx.Done(), p.interval)

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return false
		}

		d := sqlclient.FromSettings(p.pair.Get(sel), p.pair.Current.Security.RootPassword, timeout)
		err := p.pinger.Ping(ctx, d)
		if ctx.Err() != nil {
			return false
		}

		failure := sqlclient.Classify(err)
		switch failure {
		case sqlclient.FailureNone:
			p.log.Debugw("server accepts connections", "attempt", attempt, "target", d.String())
			return true
		case sqlclient.FailureAccessDenied:
			p.log.Infow("server is reachable but refused the credentials", "attempt", attempt, "target", d.String())
			return true
		case sqlclient.FailureTimeout:
			timeout *= 2
			if timeout > maxConnectTimeout {
				timeout = maxConnectTimeout
			}
		case sqlclient.FailureHostNotAllowed:
			if sel == settings.UseOld {
				sel = settings.UseNew
				locked = true
			}
		default:
			if ambiguous && !locked {
				sel = sel.Toggle()
			}
		}
		p.log.Debugw("connection attempt failed",
			"attempt", attempt,
			"max_retries", maxRetries,
			"failure", failure.String(),
			"next_selection", sel.String(),
			"error.message", err)

		if attempt >= maxRetries {
			return false
		}
		if !wait.Wait() {
			return false
		}
	}
}
