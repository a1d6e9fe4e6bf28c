// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package settings

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/elastic/mysql-configurator/internal/pkg/config"
	"github.com/elastic/mysql-configurator/internal/pkg/errors"
	"github.com/elastic/mysql-configurator/pkg/version"
)

const (
	DefaultPort             = 3306
	DefaultHost             = "localhost"
	DefaultServiceName      = "MySQL"
	DefaultConnectRetries   = 10
	DefaultLogTimeoutSecs   = 90
	DefaultServiceTimeout   = 180
	DefaultAuthPolicy       = "*,,"
	digestPrefix            = "sha256:"
	defaultPipeName         = "MySQL"
	defaultSharedMemoryName = "MYSQL"
)

// Settings describes one server instance as the configurator should leave it.
type Settings struct {
	ServerVersion string `config:"server_version"`
	InstallDir    string `config:"install_dir"`
	DataDir       string `config:"data_dir"`
	DefaultsFile  string `config:"defaults_file"`
	PidFile       string `config:"pid_file"`
	ErrorLog      string `config:"error_log"`
	Host          string `config:"host"`

	Network   Network   `config:"network"`
	Service   Service   `config:"service"`
	Security  Security  `config:"security"`
	Users     []User    `config:"users"`
	Plugins   []string  `config:"plugins"`
	Upgrade   Upgrade   `config:"upgrade"`
	Readiness Readiness `config:"readiness"`
	Shortcuts bool      `config:"shortcuts"`
	Examples  Examples  `config:"examples"`
}

type Network struct {
	TCP              bool   `config:"tcp"`
	Port             int    `config:"port"`
	OpenFirewall     bool   `config:"open_firewall"`
	Socket           string `config:"socket"`
	NamedPipe        bool   `config:"named_pipe"`
	PipeName         string `config:"pipe_name"`
	SharedMemory     bool   `config:"shared_memory"`
	SharedMemoryName string `config:"shared_memory_name"`
}

type Service struct {
	Enabled   bool   `config:"enabled"`
	Name      string `config:"name"`
	Account   string `config:"account"`
	AutoStart bool   `config:"auto_start"`
	// Timeout is how long, in seconds, start and stop wait for the service.
	// Zero waits until the operation is cancelled.
	Timeout int `config:"timeout"`
}

type Security struct {
	RootPassword       string `config:"root_password"`
	RootPasswordDigest string `config:"root_password_digest"`
	// CurrentRootPassword is the password the server accepts today when
	// root_password changes it.
	CurrentRootPassword  string `config:"current_root_password"`
	AuthenticationPolicy string `config:"authentication_policy"`
}

type User struct {
	Name           string `config:"name"`
	Host           string `config:"host"`
	Password       string `config:"password"`
	PasswordDigest string `config:"password_digest"`
	Role           string `config:"role"`
}

type Upgrade struct {
	Backup    bool   `config:"backup"`
	BackupDir string `config:"backup_dir"`
}

type Readiness struct {
	UseErrorLog bool `config:"use_error_log"`
	// LogTimeout is in seconds.
	LogTimeout     int `config:"log_timeout"`
	ConnectRetries int `config:"connect_retries"`
}

type Examples struct {
	Scripts []string `config:"scripts"`
}

// DefaultSettings returns settings for a TCP enabled instance on the default port.
func DefaultSettings() *Settings {
	return &Settings{
		Host: DefaultHost,
		Network: Network{
			TCP:              true,
			Port:             DefaultPort,
			PipeName:         defaultPipeName,
			SharedMemoryName: defaultSharedMemoryName,
		},
		Service: Service{
			Name:      DefaultServiceName,
			AutoStart: true,
			Timeout:   DefaultServiceTimeout,
		},
		Security: Security{
			AuthenticationPolicy: DefaultAuthPolicy,
		},
		Readiness: Readiness{
			LogTimeout:     DefaultLogTimeoutSecs,
			ConnectRetries: DefaultConnectRetries,
		},
	}
}

// Validate is called by the config unpacker.
func (s *Settings) Validate() error {
	if s.DataDir == "" {
		return errors.New("data_dir is required", errors.TypeConfig)
	}
	if s.Network.TCP && (s.Network.Port <= 0 || s.Network.Port > 65535) {
		return errors.New(fmt.Sprintf("invalid port %d", s.Network.Port), errors.TypeConfig, errors.M("port", s.Network.Port))
	}
	if !s.Network.TCP && !s.Network.NamedPipe && !s.Network.SharedMemory && s.Network.Socket == "" {
		return errors.New("at least one connection protocol must be enabled", errors.TypeConfig)
	}
	if s.Service.Enabled && strings.TrimSpace(s.Service.Name) == "" {
		return errors.New("service.name is required when running as a service", errors.TypeConfig)
	}
	if s.ServerVersion != "" {
		if _, err := version.ParseServerVersion(s.ServerVersion); err != nil {
			return errors.New(err, "invalid server_version", errors.TypeConfig, errors.M("server_version", s.ServerVersion))
		}
	}
	for _, u := range s.Users {
		if u.Name == "" {
			return errors.New("users entries need a name", errors.TypeConfig)
		}
	}
	return nil
}

// Version returns the parsed server version, the zero version when unset or invalid.
func (s *Settings) Version() version.ServerVersion {
	v, err := version.ParseServerVersion(s.ServerVersion)
	if err != nil {
		return version.ServerVersion{}
	}
	return *v
}

// ServerBinary returns the path of the server executable.
func (s *Settings) ServerBinary(name string) string {
	if s.InstallDir == "" {
		return name
	}
	return filepath.Join(s.InstallDir, "bin", name)
}

// PidFilePath returns the configured pid file or the server default
// <datadir>/<hostname>.pid.
func (s *Settings) PidFilePath() string {
	if s.PidFile != "" {
		if filepath.IsAbs(s.PidFile) {
			return s.PidFile
		}
		return filepath.Join(s.DataDir, s.PidFile)
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return filepath.Join(s.DataDir, host+".pid")
}

// ErrorLogPath returns the configured error log or the server default
// <datadir>/<hostname>.err.
func (s *Settings) ErrorLogPath() string {
	if s.ErrorLog != "" {
		if filepath.IsAbs(s.ErrorLog) {
			return s.ErrorLog
		}
		return filepath.Join(s.DataDir, s.ErrorLog)
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return filepath.Join(s.DataDir, host+".err")
}

// LogTimeout returns the error log wait as a duration.
func (s *Settings) LogTimeout() time.Duration {
	return time.Duration(s.Readiness.LogTimeout) * time.Second
}

// ServiceTimeout returns the service start and stop wait as a duration.
func (s *Settings) ServiceTimeout() time.Duration {
	return time.Duration(s.Service.Timeout) * time.Second
}

// RootPasswordHash returns the digest of the root password, preferring the
// stored digest of persisted settings.
func (s *Settings) RootPasswordHash() string {
	if s.Security.RootPasswordDigest != "" {
		return s.Security.RootPasswordDigest
	}
	return Digest(s.Security.RootPassword)
}

// PasswordHash returns the digest of the account password.
func (u User) PasswordHash() string {
	if u.PasswordDigest != "" {
		return u.PasswordDigest
	}
	return Digest(u.Password)
}

// Account returns the 'name'@'host' form used in account statements.
func (u User) Account() string {
	host := u.Host
	if host == "" {
		host = "%"
	}
	quote := strings.NewReplacer(`\`, `\\`, `'`, `''`)
	return fmt.Sprintf("'%s'@'%s'", quote.Replace(u.Name), quote.Replace(host))
}

// Redacted returns a copy with clear text secrets replaced by their digests.
func (s *Settings) Redacted() *Settings {
	cp := *s
	cp.Security.RootPasswordDigest = s.RootPasswordHash()
	cp.Security.RootPassword = ""
	cp.Security.CurrentRootPassword = ""
	cp.Users = make([]User, len(s.Users))
	for i, u := range s.Users {
		u.PasswordDigest = u.PasswordHash()
		u.Password = ""
		cp.Users[i] = u
	}
	cp.Plugins = append([]string(nil), s.Plugins...)
	cp.Examples.Scripts = append([]string(nil), s.Examples.Scripts...)
	return &cp
}

// Digest hashes a secret for change detection.
func Digest(secret string) string {
	if secret == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(secret))
	return digestPrefix + hex.EncodeToString(sum[:])
}

// Load reads settings from a YAML file on top of DefaultSettings.
func Load(path string) (*Settings, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, errors.New(err, "failed to read settings", errors.TypeConfig, errors.M("path", path))
	}
	return FromConfig(cfg)
}

// FromConfig unpacks cfg on top of DefaultSettings.
func FromConfig(cfg *config.Config) (*Settings, error) {
	s := DefaultSettings()
	if err := cfg.UnpackTo(s); err != nil {
		return nil, errors.New(err, "invalid settings", errors.TypeConfig)
	}
	return s, nil
}
