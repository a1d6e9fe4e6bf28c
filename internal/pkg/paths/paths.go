// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package paths

import (
	"flag"
	"os"
	"path/filepath"
)

const (
	// DefaultConfigName is the default name of the settings file.
	DefaultConfigName = "mysql-configurator.yml"
	// LockFileName is the name of the file lock guarding the state directory.
	LockFileName = "configurator.lock"
	// AppliedSettingsFileName holds the settings of the last successful run.
	AppliedSettingsFileName = "applied.yml"
	// StateFileName holds flags that survive a restart of the configurator.
	StateFileName = "state.yml"
)

var (
	topPath        string
	configPath     string
	configFilePath string
	dataPath       string
	logsPath       string
)

func init() {
	topPath = initialTop()
	configPath = topPath
	logsPath = filepath.Join(topPath, "logs")
	dataPath = defaultDataPath

	fs := flag.CommandLine
	fs.StringVar(&topPath, "path.home", topPath, "Configurator root path")
	fs.StringVar(&configPath, "path.config", configPath, "Config path is the directory the configurator looks for its settings file")
	fs.StringVar(&configFilePath, "c", DefaultConfigName, "Settings file, relative to path.config")
	fs.StringVar(&dataPath, "path.data", dataPath, "Data path keeps the applied settings and the configurator state")
	fs.StringVar(&logsPath, "path.logs", logsPath, "Logs path contains the configurator log output")
}

// Top returns the top directory of the configurator.
func Top() string {
	return topPath
}

// SetTop overrides the Top path.
func SetTop(path string) {
	topPath = path
}

// Config returns the directory where the settings file lives.
func Config() string {
	return configPath
}

// SetConfig overrides the Config path.
func SetConfig(path string) {
	configPath = path
}

// ConfigFile returns the path to the settings file.
func ConfigFile() string {
	if configFilePath == "" || configFilePath == DefaultConfigName {
		return filepath.Join(Config(), DefaultConfigName)
	}
	if filepath.IsAbs(configFilePath) {
		return configFilePath
	}
	return filepath.Join(Config(), configFilePath)
}

// Data returns the directory holding the configurator state.
func Data() string {
	return dataPath
}

// SetData overrides the Data path.
func SetData(path string) {
	dataPath = path
}

// Logs returns the log directory.
func Logs() string {
	return logsPath
}

// SetLogs updates the path for the logs.
func SetLogs(path string) {
	logsPath = path
}

// AppliedSettingsFile returns the file holding the settings of the last
// successful configuration run.
func AppliedSettingsFile() string {
	return filepath.Join(Data(), AppliedSettingsFileName)
}

// StateFile returns the file holding persisted flags.
func StateFile() string {
	return filepath.Join(Data(), StateFileName)
}

// initialTop returns the directory of the running binary, following symlinks.
func initialTop() string {
	execPath, err := os.Executable()
	if err != nil {
		panic(err)
	}
	evalPath, err := filepath.EvalSymlinks(execPath)
	if err != nil {
		panic(err)
	}
	return filepath.Dir(evalPath)
}
