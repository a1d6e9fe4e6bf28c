// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

// Package defaultsfile reads and writes the connection relevant keys of the
// server option file (my.ini / my.cnf). Keys it does not own are preserved.
package defaultsfile

import (
	"bytes"
	"os"
	"runtime"
	"strconv"

	"gopkg.in/ini.v1"

	"github.com/elastic/mysql-configurator/internal/pkg/errors"
	"github.com/elastic/mysql-configurator/internal/pkg/settings"
	"github.com/elastic/mysql-configurator/internal/pkg/storage"
	"github.com/elastic/mysql-configurator/pkg/version"
)

const (
	SectionServer = "mysqld"
	SectionClient = "client"
)

var authPolicyVersion = version.NewServerVersion(8, 0, 27)

var loadOptions = ini.LoadOptions{
	AllowBooleanKeys:        true,
	SkipUnrecognizableLines: true,
	IgnoreInlineComment:     true,
}

// File is a parsed option file.
type File struct {
	path string
	cfg  *ini.File
}

// Exists reports whether path is an existing regular file.
func Exists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Read parses the option file at path. A missing file yields an empty File.
func Read(path string) (*File, error) {
	if !Exists(path) {
		return &File{path: path, cfg: ini.Empty(loadOptions)}, nil
	}
	cfg, err := ini.LoadSources(loadOptions, path)
	if err != nil {
		return nil, errors.New(err, "failed to parse defaults file", errors.TypeConfig, errors.M(errors.MetaKeyPath, path))
	}
	return &File{path: path, cfg: cfg}, nil
}

// Get returns a key of section, empty when unset.
func (f *File) Get(section, key string) string {
	sec, err := f.cfg.GetSection(section)
	if err != nil {
		return ""
	}
	if !sec.HasKey(key) {
		return ""
	}
	return sec.Key(key).String()
}

// Port returns the server port, 0 when unset or invalid.
func (f *File) Port() int {
	p, err := strconv.Atoi(f.Get(SectionServer, "port"))
	if err != nil {
		return 0
	}
	return p
}

// Apply writes the keys derived from s into the file.
func (f *File) Apply(s *settings.Settings) {
	server := f.cfg.Section(SectionServer)
	client := f.cfg.Section(SectionClient)

	set(server, "datadir", s.DataDir)
	if s.InstallDir != "" {
		set(server, "basedir", s.InstallDir)
	}
	set(server, "port", strconv.Itoa(s.Network.Port))
	set(client, "port", strconv.Itoa(s.Network.Port))
	toggle(server, "skip-networking", !s.Network.TCP)

	set(server, "pid-file", s.PidFilePath())
	set(server, "log-error", s.ErrorLogPath())

	if runtime.GOOS == "windows" {
		toggle(server, "enable-named-pipe", s.Network.NamedPipe)
		toggle(server, "shared-memory", s.Network.SharedMemory)
		if s.Network.NamedPipe {
			set(server, "socket", s.Network.PipeName)
			toggle(client, "pipe", true)
			set(client, "socket", s.Network.PipeName)
		}
		if s.Network.SharedMemory {
			set(server, "shared-memory-base-name", s.Network.SharedMemoryName)
			set(client, "shared-memory-base-name", s.Network.SharedMemoryName)
		}
	} else if s.Network.Socket != "" {
		set(server, "socket", s.Network.Socket)
		set(client, "socket", s.Network.Socket)
	}

	if s.Security.AuthenticationPolicy != "" && s.Version().AtLeast(authPolicyVersion) {
		set(server, "authentication_policy", s.Security.AuthenticationPolicy)
	}
}

// Save writes the file back to its path.
func (f *File) Save() error {
	var buf bytes.Buffer
	if _, err := f.cfg.WriteTo(&buf); err != nil {
		return errors.New(err, "failed to render defaults file", errors.TypeConfig, errors.M(errors.MetaKeyPath, f.path))
	}
	return storage.NewDiskStore(f.path).Save(&buf)
}

// Render applies s to the option file at path and saves it.
func Render(path string, s *settings.Settings) error {
	f, err := Read(path)
	if err != nil {
		return err
	}
	f.Apply(s)
	return f.Save()
}

func set(sec *ini.Section, key, value string) {
	sec.Key(key).SetValue(value)
}

// toggle adds a boolean key when on and removes it otherwise.
func toggle(sec *ini.Section, key string, on bool) {
	if on {
		set(sec, key, "ON")
		return
	}
	sec.DeleteKey(key)
}
