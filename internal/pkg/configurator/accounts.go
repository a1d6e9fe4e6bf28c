// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package configurator

import (
	"context"
	"fmt"
	"regexp"
	"runtime"
	"strings"

	"github.com/elastic/mysql-configurator/internal/pkg/errors"
	"github.com/elastic/mysql-configurator/internal/pkg/settings"
	"github.com/elastic/mysql-configurator/pkg/version"
)

// rolePrivileges maps the roles accepted in users[].role to global grants.
var rolePrivileges = map[string]string{
	"DBAdmin":     "ALL PRIVILEGES",
	"DBManager":   "ALTER, ALTER ROUTINE, CREATE, CREATE ROUTINE, CREATE TEMPORARY TABLES, CREATE VIEW, DELETE, DROP, EVENT, EXECUTE, INDEX, INSERT, LOCK TABLES, REFERENCES, SELECT, SHOW VIEW, TRIGGER, UPDATE",
	"DBDesigner":  "ALTER, ALTER ROUTINE, CREATE, CREATE ROUTINE, CREATE VIEW, INDEX, REFERENCES, SHOW VIEW, TRIGGER",
	"BackupAdmin": "EVENT, LOCK TABLES, SELECT, SHOW VIEW, RELOAD, REPLICATION CLIENT",
	"ReadOnly":    "SELECT, SHOW VIEW",
}

var (
	pluginNameRe    = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	pluginLibraryRe = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)
)

// modern is true when the server is v or later. An unknown version counts
// as current.
func modern(s *settings.Settings, v version.ServerVersion) bool {
	sv := s.Version()
	return sv.IsZero() || sv.AtLeast(v)
}

// accountStatements returns the statements and arguments creating u.
func accountStatements(s *settings.Settings, u settings.User) ([]string, [][]interface{}, error) {
	account := u.Account()
	var stmts []string
	var args [][]interface{}

	if u.Password != "" {
		if modern(s, version.CreateUserIfNotExists) {
			stmts = append(stmts, "CREATE USER IF NOT EXISTS "+account+" IDENTIFIED BY ?", "ALTER USER "+account+" IDENTIFIED BY ?")
			args = append(args, []interface{}{u.Password}, []interface{}{u.Password})
		} else {
			stmts = append(stmts, "GRANT USAGE ON *.* TO "+account+" IDENTIFIED BY ?")
			args = append(args, []interface{}{u.Password})
		}
	}

	if u.Role != "" {
		privileges, ok := rolePrivileges[u.Role]
		if !ok {
			return nil, nil, errors.New(fmt.Sprintf("unknown role %q for %s", u.Role, account), errors.TypeConfig)
		}
		grant := "GRANT " + privileges + " ON *.* TO " + account
		if u.Role == "DBAdmin" {
			grant += " WITH GRANT OPTION"
		}
		stmts = append(stmts, grant)
		args = append(args, nil)
	}
	return stmts, args, nil
}

func (c *Configurator) createUsers(ctx context.Context, s *Step) error {
	cur := c.pair.Current
	d := c.rootDescriptor(settings.UseNew)
	for _, u := range cur.Users {
		stmts, args, err := accountStatements(cur, u)
		if err != nil {
			return s.Fail(err)
		}
		if len(stmts) == 0 {
			c.log.Infow("account has neither a password nor a role, nothing to apply", "account", u.Account())
			continue
		}
		c.status(fmt.Sprintf("Creating account %s", u.Account()), 0)
		for i, stmt := range stmts {
			if err := c.deps.SQL.ExecArgs(ctx, d, stmt, args[i]...); err != nil {
				return s.Fail(errors.New(err, "failed to create account", errors.TypeSecurity, errors.M("account", u.Account())))
			}
		}
	}
	s.Finish()
	return nil
}

// parsePlugin splits a plugins entry of the form name or name=library.
func parsePlugin(entry string) (string, string, error) {
	name, library, found := strings.Cut(strings.TrimSpace(entry), "=")
	if !found {
		library = name + pluginExtension()
	}
	if !pluginNameRe.MatchString(name) || !pluginLibraryRe.MatchString(library) {
		return "", "", errors.New(fmt.Sprintf("invalid plugin entry %q", entry), errors.TypeConfig)
	}
	return name, library, nil
}

func pluginExtension() string {
	if runtime.GOOS == "windows" {
		return ".dll"
	}
	return ".so"
}

func (c *Configurator) installPlugins(ctx context.Context, s *Step) error {
	d := c.rootDescriptor(settings.UseNew)
	for _, entry := range c.pair.Current.Plugins {
		name, library, err := parsePlugin(entry)
		if err != nil {
			return s.Fail(err)
		}
		count, err := c.deps.SQL.QueryString(ctx, d, "SELECT COUNT(*) FROM information_schema.PLUGINS WHERE PLUGIN_NAME = ?", name)
		if err != nil {
			return s.Fail(errors.New(err, "failed to list plugins", errors.TypeApplication))
		}
		if count != "0" {
			c.log.Debugw("plugin already installed", "plugin", name)
			continue
		}
		c.status(fmt.Sprintf("Installing plugin %s", name), 0)
		if err := c.deps.SQL.Exec(ctx, d, fmt.Sprintf("INSTALL PLUGIN %s SONAME '%s'", name, library)); err != nil {
			return s.Fail(errors.New(err, "failed to install plugin", errors.TypeApplication, errors.M("plugin", name)))
		}
	}
	s.Finish()
	return nil
}
