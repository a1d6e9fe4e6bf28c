// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package sqlclient

import (
	"context"
	"database/sql"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/elastic/mysql-configurator/internal/pkg/errors"
	"github.com/elastic/mysql-configurator/pkg/core/logger"
)

// Client runs administrative statements. Every call opens its own connection,
// nothing is pooled between calls.
type Client struct {
	log *logger.Logger
}

// New creates a Client.
func New(log *logger.Logger) *Client {
	return &Client{log: log}
}

// Ping opens a connection and closes it again.
func (c *Client) Ping(ctx context.Context, d Descriptor) error {
	return c.withConn(ctx, d, func(ctx context.Context, conn *sql.Conn) error {
		return conn.PingContext(ctx)
	})
}

// Shutdown asks the server to flush its state and exit.
func (c *Client) Shutdown(ctx context.Context, d Descriptor) error {
	return c.Exec(ctx, d, "SHUTDOWN")
}

// Exec runs statements in order on one connection and stops at the first failure.
func (c *Client) Exec(ctx context.Context, d Descriptor, statements ...string) error {
	return c.withConn(ctx, d, func(ctx context.Context, conn *sql.Conn) error {
		for _, stmt := range statements {
			if _, err := conn.ExecContext(ctx, stmt); err != nil {
				return errors.New(err, "statement failed", errors.TypeApplication, errors.M("statement", redactStatement(stmt)))
			}
		}
		return nil
	})
}

// ExecArgs runs a single statement with client side interpolated arguments.
func (c *Client) ExecArgs(ctx context.Context, d Descriptor, stmt string, args ...interface{}) error {
	return c.withConn(ctx, d, func(ctx context.Context, conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, stmt, args...); err != nil {
			return errors.New(err, "statement failed", errors.TypeApplication, errors.M("statement", stmt))
		}
		return nil
	})
}

// QueryString returns the first column of the first row of query.
func (c *Client) QueryString(ctx context.Context, d Descriptor, query string, args ...interface{}) (string, error) {
	var out sql.NullString
	err := c.withConn(ctx, d, func(ctx context.Context, conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, query, args...).Scan(&out)
	})
	return out.String, err
}

func (c *Client) withConn(ctx context.Context, d Descriptor, fn func(context.Context, *sql.Conn) error) error {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	cfg := d.driverConfig()
	cfg.Logger = driverLogger{log: c.log}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return errors.New(err, "invalid connection settings", errors.TypeConfig, errors.M("target", d.String()))
	}
	db := sql.OpenDB(connector)
	defer db.Close()
	db.SetMaxIdleConns(0)

	conn, err := db.Conn(ctx)
	if err != nil {
		c.log.Debugw("connection attempt failed", "target", d.String(), "error.message", err, "failure", Classify(err).String())
		return err
	}
	defer conn.Close()

	return fn(ctx, conn)
}

func redactStatement(stmt string) string {
	if idx := strings.Index(strings.ToUpper(stmt), "IDENTIFIED"); idx >= 0 {
		return stmt[:idx] + "IDENTIFIED BY <redacted>"
	}
	return stmt
}

// driverLogger routes driver diagnostics to the debug log instead of stderr.
type driverLogger struct {
	log *logger.Logger
}

func (l driverLogger) Print(v ...any) {
	l.log.Debug(v...)
}
