// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package logger

import (
	"bytes"
	"fmt"
	"time"

	"go.elastic.co/ecszap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/elastic/elastic-agent-libs/logp"
	"github.com/elastic/mysql-configurator/internal/pkg/paths"
	"github.com/elastic/mysql-configurator/pkg/utils"
)

const appName = "mysql-configurator"

const iso8601Format = "2006-01-02T15:04:05.000Z0700"

// Level is the level used by the configurator.
type Level = logp.Level

// DefaultLogLevel used by the configurator.
const DefaultLogLevel = logp.InfoLevel

// Logger alias ecslog.Logger with Logger.
type Logger = logp.Logger

// Config is a logging config.
type Config = logp.Config

// New returns a configured ECS Logger writing to the logs path.
func New(name string) (*Logger, error) {
	return newLogger(name, DefaultLoggingConfig())
}

// NewWithLogpLevel returns a configured logp Logger with specified level.
func NewWithLogpLevel(name string, level logp.Level) (*Logger, error) {
	cfg := DefaultLoggingConfig()
	cfg.Level = level
	return newLogger(name, cfg)
}

// NewFromConfig takes the user configuration and generate the right logger.
func NewFromConfig(name string, cfg *Config) (*Logger, error) {
	return newLogger(name, cfg)
}

// NewWithoutConfig returns a new logger without having a configuration.
//
// Use only when a clean logger is needed, and it is known that the logging configuration has already been performed.
func NewWithoutConfig(name string) *Logger {
	return logp.NewLogger(name)
}

// NewInMemory returns a new in-memory logger along with the buffer to which it
// logs.
// encCfg configures the log format, use logp.ConsoleEncoderConfig for console
// format, logp.JSONEncoderConfig for JSON or any other valid zapcore.EncoderConfig.
func NewInMemory(selector string, encCfg zapcore.EncoderConfig) (*Logger, *bytes.Buffer) {
	buff := bytes.Buffer{}

	encoderConfig := ecszap.ECSCompatibleEncoderConfig(encCfg)
	encoderConfig.EncodeTime = UtcTimestampEncode
	encoder := zapcore.NewConsoleEncoder(encoderConfig)

	core := zapcore.NewCore(
		encoder,
		zapcore.AddSync(&buff),
		zap.NewAtomicLevelAt(zap.DebugLevel))

	logger := logp.NewLogger(
		selector,
		zap.WrapCore(func(in zapcore.Core) zapcore.Core {
			return core
		}))
	return logger, &buff
}

// AddCallerSkip returns new logger with incremented stack frames to skip.
// This is needed in order to correctly report the log file lines when the logging statement
// is wrapped in some convenience wrapping function for example.
func AddCallerSkip(l *Logger, skip int) *Logger {
	return l.WithOptions(zap.AddCallerSkip(skip))
}

func newLogger(name string, cfg *Config) (*Logger, error) {
	if err := logp.Configure(*cfg); err != nil {
		return nil, fmt.Errorf("error initializing logging: %w", err)
	}
	return logp.NewLogger(name), nil
}

// SetLevel changes the overall log level of the global logger.
func SetLevel(lvl logp.Level) {
	logp.SetLevel(lvl.ZapLevel())
}

// DefaultLoggingConfig returns default configuration for configurator logging.
func DefaultLoggingConfig() *Config {
	cfg := logp.DefaultConfig(logp.DefaultEnvironment)
	cfg.Beat = appName
	cfg.Level = DefaultLogLevel
	cfg.ToFiles = true
	cfg.Files.Path = paths.Logs()
	cfg.Files.Name = appName
	cfg.Files.MaxSize = 20 * 1024 * 1024
	cfg.Files.Permissions = 0600 // default user only
	root, _ := utils.HasRoot()   // error ignored
	if !root {
		// when not running as root, the default changes to include the group
		cfg.Files.Permissions = 0660
	}

	return &cfg
}

// UtcTimestampEncode is a zapcore.TimeEncoder that formats time.Time in ISO-8601 in UTC.
func UtcTimestampEncode(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	type appendTimeEncoder interface {
		AppendTimeLayout(time.Time, string)
	}
	if enc, ok := enc.(appendTimeEncoder); ok {
		enc.AppendTimeLayout(t.UTC(), iso8601Format)
		return
	}
	enc.AppendString(t.UTC().Format(iso8601Format))
}
