// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package configurator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/elastic/mysql-configurator/internal/pkg/errors"
	"github.com/elastic/mysql-configurator/internal/pkg/paths"
	"github.com/elastic/mysql-configurator/internal/pkg/server/controller"
	"github.com/elastic/mysql-configurator/internal/pkg/server/defaultsfile"
	"github.com/elastic/mysql-configurator/internal/pkg/server/logtail"
	"github.com/elastic/mysql-configurator/internal/pkg/server/service"
	"github.com/elastic/mysql-configurator/internal/pkg/server/sqlclient"
	"github.com/elastic/mysql-configurator/internal/pkg/settings"
	"github.com/elastic/mysql-configurator/pkg/version"
)

const (
	sqlTimeout         = 30 * time.Second
	serviceDeleteTries = 10
	writableCheckDB    = "mysql_configurator_check"
	serviceDescription = "MySQL Server"
)

func (c *Configurator) stopServer(ctx context.Context, s *Step) error {
	c.status("Stopping the server", c.pair.Get(settings.UseOld).ServiceTimeout())
	if err := c.deps.Server.Stop(ctx, settings.UseOld); err != nil {
		return s.Fail(err)
	}
	s.Finish()
	return nil
}

func (c *Configurator) stopServerAfterUpgrade(ctx context.Context, s *Step) error {
	c.status("Stopping the upgraded server", c.pair.Current.ServiceTimeout())
	// the upgrade start launched the current binaries under the current service
	if err := c.deps.Server.Stop(ctx, settings.UseNew); err != nil {
		return s.Fail(err)
	}
	s.Finish()
	return nil
}

func (c *Configurator) writeConfig(_ context.Context, s *Step) error {
	cur := c.pair.Current
	c.status(fmt.Sprintf("Writing %s", cur.DefaultsFile), 0)
	if err := os.MkdirAll(filepath.Dir(cur.DefaultsFile), 0o755); err != nil {
		return s.Fail(errors.New(err, "failed to create the defaults file directory", errors.TypeFilesystem, errors.M(errors.MetaKeyPath, cur.DefaultsFile)))
	}
	if err := defaultsfile.Render(cur.DefaultsFile, cur); err != nil {
		return s.Fail(err)
	}
	c.run.state.DefaultsFileExists = true
	s.Finish()
	return nil
}

func firewallRuleName(port int) string {
	return fmt.Sprintf("MySQL Server port %d", port)
}

func (c *Configurator) updateFirewall(ctx context.Context, s *Step) error {
	in := c.inputs()
	if removeFirewallRule(in) {
		port := c.pair.Previous.Network.Port
		c.status(fmt.Sprintf("Removing the firewall rule for port %d", port), 0)
		if err := c.deps.Firewall.RemoveRule(ctx, firewallRuleName(port), port); err != nil {
			c.log.Warnw("failed to remove stale firewall rule", "port", port, "error.message", err)
		}
	}
	if addFirewallRule(in) {
		port := c.pair.Current.Network.Port
		c.status(fmt.Sprintf("Opening port %d in the firewall", port), 0)
		if err := c.deps.Firewall.AddRule(ctx, firewallRuleName(port), port); err != nil {
			return s.Fail(errors.New(err, "failed to add firewall rule", errors.TypeNetwork, errors.M("port", port)))
		}
	}
	s.Finish()
	return nil
}

func (c *Configurator) updateService(ctx context.Context, s *Step) error {
	if c.deps.Services == nil {
		return s.Fail(errors.New("no service manager available on this platform", errors.TypeApplication))
	}

	if deleteServiceNeeded(c.inputs()) {
		name := c.priorServiceName()
		c.status(fmt.Sprintf("Removing service %s", name), 0)
		res, err := c.deps.Services.Delete(ctx, name, serviceDeleteTries, false)
		if err != nil {
			return s.Fail(err)
		}
		switch res {
		case service.MarkedForDeletion:
			c.status(fmt.Sprintf("Service %s is marked for deletion, a reboot is needed to remove it", name), 0)
		case service.DeleteFailed:
			c.log.Warnw("service could not be removed", "service", name)
		}
		c.run.state.PriorServiceExists = false
	}

	cur := c.pair.Current
	if c.run.cctx != ContextRemove && cur.Service.Enabled {
		c.status(fmt.Sprintf("Registering service %s", cur.Service.Name), 0)
		if err := c.deps.Services.Configure(ctx, serviceConfig(cur)); err != nil {
			return s.Fail(errors.New(err, "failed to register the service", errors.TypeApplication, errors.M(errors.MetaKeyService, cur.Service.Name)))
		}
	}
	s.Finish()
	return nil
}

func serviceConfig(cur *settings.Settings) service.Config {
	args := controller.LaunchArgs(cur, controller.StartOptions{})
	if runtime.GOOS == "windows" {
		// mysqld reads its service name from the last argument
		args = append(args, cur.Service.Name)
	}
	return service.Config{
		Name:        cur.Service.Name,
		DisplayName: cur.Service.Name,
		Description: serviceDescription,
		Executable:  cur.ServerBinary(paths.ServerBinaryName),
		Arguments:   args,
		Account:     cur.Service.Account,
		AutoStart:   cur.Service.AutoStart,
	}
}

// prepareProcess creates the directories a process mode server writes to
// and drops a pid file left by a server that is gone.
func (c *Configurator) prepareProcess(ctx context.Context, s *Step) error {
	cur := c.pair.Current
	dirs := []string{filepath.Dir(cur.PidFilePath()), filepath.Dir(cur.ErrorLogPath())}
	if runtime.GOOS != "windows" && cur.Network.Socket != "" {
		dirs = append(dirs, filepath.Dir(cur.Network.Socket))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return s.Fail(errors.New(err, "failed to create directory", errors.TypeFilesystem, errors.M(errors.MetaKeyPath, dir)))
		}
	}

	running, err := c.deps.Server.IsRunning(ctx, settings.UseNew)
	if err == nil && !running {
		if err := os.Remove(cur.PidFilePath()); err == nil {
			c.log.Infow("removed stale pid file", "path", cur.PidFilePath())
		}
	}
	s.Finish()
	return nil
}

func (c *Configurator) backup(ctx context.Context, s *Step) error {
	cur := c.pair.Current
	if err := c.ensureStarted(ctx, settings.UseOld); err != nil {
		return s.Fail(err)
	}

	dir := cur.Upgrade.BackupDir
	if dir == "" {
		dir = filepath.Join(filepath.Dir(cur.DataDir), "backup")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return s.Fail(errors.New(err, "failed to create backup directory", errors.TypeFilesystem, errors.M(errors.MetaKeyPath, dir)))
	}
	file := filepath.Join(dir, fmt.Sprintf("mysql-backup-%s.sql", time.Now().UTC().Format("20060102-150405")))

	c.status(fmt.Sprintf("Dumping all databases to %s", file), 0)
	d := c.rootDescriptor(settings.UseOld)
	args := append(clientArgs(d), "--all-databases", "--routines", "--events", "--result-file="+file)
	if err := c.deps.Tools.Run(ctx, cur.ServerBinary(paths.ServerToolName("mysqldump")), args, passwordEnv(d)); err != nil {
		return s.Fail(errors.New(err, "backup failed", errors.TypeApplication, errors.M(errors.MetaKeyPath, file)))
	}
	s.Finish()
	return nil
}

func (c *Configurator) upgradeInPlace(ctx context.Context, s *Step) error {
	cur := c.pair.Current
	if err := c.deps.Store.SetPendingUpgrade(ctx, true); err != nil {
		return s.Fail(err)
	}
	if err := c.ensureStarted(ctx, settings.UseOld); err != nil {
		return s.Fail(err)
	}

	c.status("Running mysql_upgrade", 0)
	d := c.rootDescriptor(settings.UseOld)
	args := append(clientArgs(d), "--force")
	if err := c.deps.Tools.Run(ctx, cur.ServerBinary(paths.ServerToolName("mysql_upgrade")), args, passwordEnv(d)); err != nil {
		return s.Fail(errors.New(err, "system table upgrade failed", errors.TypeApplication))
	}
	if err := c.deps.Store.SetPendingUpgrade(ctx, false); err != nil {
		return s.Fail(err)
	}
	s.Finish()
	return nil
}

func (c *Configurator) initialize(ctx context.Context, s *Step) error {
	cur := c.pair.Current
	if err := os.MkdirAll(filepath.Dir(cur.DataDir), 0o755); err != nil {
		return s.Fail(errors.New(err, "failed to create data directory parent", errors.TypeFilesystem, errors.M(errors.MetaKeyPath, cur.DataDir)))
	}

	var args []string
	if defaultsfile.Exists(cur.DefaultsFile) {
		// must be the first option
		args = append(args, "--defaults-file="+cur.DefaultsFile)
	} else {
		args = append(args, "--basedir="+cur.InstallDir, "--datadir="+cur.DataDir)
	}
	if runtime.GOOS != "windows" && cur.Service.Account != "" {
		args = append(args, "--user="+cur.Service.Account)
	}
	args = append(args, "--initialize-insecure", "--console")

	c.status(fmt.Sprintf("Initializing %s", cur.DataDir), 0)
	if err := c.deps.Tools.Run(ctx, cur.ServerBinary(paths.ServerBinaryName), args, nil); err != nil {
		return s.Fail(errors.New(err, "failed to initialize the data directory", errors.TypeApplication, errors.M(errors.MetaKeyPath, cur.DataDir)))
	}
	c.run.state.InitializedThisRun = true
	c.run.state.DataDirExists = true
	s.Finish()
	return nil
}

func (c *Configurator) grantPermissions(ctx context.Context, s *Step) error {
	cur := c.pair.Current
	account := cur.Service.Account
	if account == "" && cur.Service.Enabled && runtime.GOOS == "windows" {
		account = `NT SERVICE\` + cur.Service.Name
	}
	if err := c.deps.Permissions.GrantDataDirAccess(ctx, cur.DataDir, account); err != nil {
		return s.Fail(errors.New(err, "failed to update data directory permissions", errors.TypeSecurity, errors.M(errors.MetaKeyPath, cur.DataDir)))
	}
	s.Finish()
	return nil
}

func (c *Configurator) startServer(ctx context.Context, s *Step) error {
	c.status("Starting the server", c.pair.Current.LogTimeout())
	st := c.deps.Server.Start(ctx, controller.StartOptions{
		WaitUntilAcceptingConnections: true,
		Selection:                     settings.UseNew,
	})
	if err := startError(ctx, st); err != nil {
		return s.Fail(err)
	}
	s.Finish()
	return nil
}

func (c *Configurator) startServerUpgrade(ctx context.Context, s *Step) error {
	if err := c.deps.Store.SetPendingUpgrade(ctx, true); err != nil {
		return s.Fail(err)
	}

	c.status("Starting the server, it upgrades the system tables on startup", c.pair.Current.LogTimeout())
	st := c.deps.Server.Start(ctx, controller.StartOptions{
		WaitUntilAcceptingConnections: true,
		SelfContainedUpgrade:          true,
		Selection:                     settings.UseOld,
	})
	if st.Upgrade != nil && st.Upgrade.Failed {
		return s.Fail(errors.New("the server failed to upgrade the system tables", errors.TypeApplication, errorLines(st.ErrorLines)))
	}
	if err := startError(ctx, st); err != nil {
		return s.Fail(err)
	}
	if err := c.deps.Store.SetPendingUpgrade(ctx, false); err != nil {
		return s.Fail(err)
	}
	s.Finish()
	return nil
}

// ensureStarted starts the server for a step that needs a connection.
func (c *Configurator) ensureStarted(ctx context.Context, sel settings.Selection) error {
	st := c.deps.Server.Start(ctx, controller.StartOptions{
		WaitUntilAcceptingConnections: true,
		Selection:                     sel,
	})
	return startError(ctx, st)
}

func startError(ctx context.Context, st controller.StartStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !st.Started {
		return errors.New("the server did not start", errors.TypeApplication, errorLines(st.ErrorLines))
	}
	if !st.AcceptingConnections {
		return errors.New("the server is not accepting connections", errors.TypeNetwork, errorLines(st.ErrorLines))
	}
	return nil
}

func errorLines(lines []logtail.Line) errors.MetaRecord {
	text := make([]string, 0, len(lines))
	for _, l := range lines {
		text = append(text, l.Text)
	}
	return errors.M("error_log", strings.Join(text, "\n"))
}

func (c *Configurator) writableCheck(ctx context.Context, s *Step) error {
	d := c.rootDescriptor(settings.UseNew)
	err := c.deps.SQL.Exec(ctx, d,
		"CREATE DATABASE IF NOT EXISTS `"+writableCheckDB+"`",
		"DROP DATABASE `"+writableCheckDB+"`",
	)
	if err != nil {
		return s.Fail(errors.New(err, "the server cannot write to its data directory", errors.TypeFilesystem))
	}
	s.Finish()
	return nil
}

func (c *Configurator) secureRoot(ctx context.Context, s *Step) error {
	cur := c.pair.Current
	if cur.Security.RootPassword == "" {
		c.log.Warnw("no root password configured, root can log in without one")
		s.Finish()
		return nil
	}

	d := c.rootDescriptor(settings.UseNew)
	stmt := "ALTER USER 'root'@'localhost' IDENTIFIED BY ?"
	if !modern(cur, version.AlterUserPassword) {
		stmt = "SET PASSWORD FOR 'root'@'localhost' = PASSWORD(?)"
	}
	if err := c.deps.SQL.ExecArgs(ctx, d, stmt, cur.Security.RootPassword); err != nil {
		return s.Fail(errors.New(err, "failed to set the root password", errors.TypeSecurity))
	}
	c.run.secured = true
	s.Finish()
	return nil
}

// rootDescriptor connects as root with the password the server accepts at
// this point of the run.
func (c *Configurator) rootDescriptor(sel settings.Selection) sqlclient.Descriptor {
	d := sqlclient.FromSettings(c.pair.Get(sel), "", sqlTimeout)
	return d.WithCredentials(d.User, c.loginPassword())
}

func (c *Configurator) loginPassword() string {
	sec := c.pair.Current.Security
	switch {
	case c.run.secured:
		return sec.RootPassword
	case c.run.state.InitializedThisRun:
		return ""
	case sec.CurrentRootPassword != "":
		return sec.CurrentRootPassword
	default:
		return sec.RootPassword
	}
}

// clientArgs are the connection options of the command line clients.
func clientArgs(d sqlclient.Descriptor) []string {
	args := []string{"--user=" + d.User}
	switch d.Protocol {
	case sqlclient.ProtocolSocket:
		args = append(args, "--protocol=SOCKET", "--socket="+d.Socket)
	case sqlclient.ProtocolPipe:
		args = append(args, "--protocol=PIPE", "--socket="+d.Pipe)
	default:
		args = append(args, "--protocol=TCP", "--host="+d.Host, fmt.Sprintf("--port=%d", d.Port))
	}
	return args
}

// passwordEnv keeps the password off the command line.
func passwordEnv(d sqlclient.Descriptor) []string {
	if d.Password == "" {
		return nil
	}
	return []string{"MYSQL_PWD=" + d.Password}
}

func (c *Configurator) createShortcuts(ctx context.Context, s *Step) error {
	if err := c.deps.Shortcuts.Create(ctx, c.pair.Current); err != nil {
		return s.Fail(err)
	}
	s.Finish()
	return nil
}

func (c *Configurator) loadExamples(ctx context.Context, s *Step) error {
	cur := c.pair.Current
	d := c.rootDescriptor(settings.UseNew)
	client := cur.ServerBinary(paths.ServerToolName("mysql"))
	for _, script := range cur.Examples.Scripts {
		if !filepath.IsAbs(script) {
			script = filepath.Join(cur.InstallDir, script)
		}
		c.status(fmt.Sprintf("Loading %s", filepath.Base(script)), 0)
		args := append(clientArgs(d), "--execute=source "+script)
		if err := c.deps.Tools.Run(ctx, client, args, passwordEnv(d)); err != nil {
			return s.Fail(errors.New(err, "failed to load example script", errors.TypeApplication, errors.M(errors.MetaKeyPath, script)))
		}
	}
	s.Finish()
	return nil
}
