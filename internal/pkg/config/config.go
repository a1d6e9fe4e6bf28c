// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package config

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/elastic/go-ucfg"
	"github.com/elastic/go-ucfg/cfgutil"
)

// DefaultOptions defaults options used to read the configuration
var DefaultOptions = []ucfg.Option{
	ucfg.PathSep("."),
	ucfg.ResolveEnv,
	ucfg.VarExp,
	ucfg.IgnoreCommas,
}

// Config wraps a ucfg configuration tree.
type Config struct {
	tree *ucfg.Config
}

// New creates a new empty config.
func New() *Config {
	return &Config{tree: ucfg.New()}
}

// NewConfigFrom takes an interface and reads the configuration like it was YAML.
// Supported inputs are []byte, string, io.Reader, map[string]interface{} and
// anything ucfg can normalize (structs with config tags).
func NewConfigFrom(from interface{}, opts ...ucfg.Option) (*Config, error) {
	if len(opts) == 0 {
		opts = DefaultOptions
	}

	var data map[string]interface{}
	switch in := from.(type) {
	case []byte:
		if err := yaml.Unmarshal(in, &data); err != nil {
			return nil, err
		}
	case string:
		if err := yaml.Unmarshal([]byte(in), &data); err != nil {
			return nil, err
		}
	case io.Reader:
		if closer, ok := from.(io.Closer); ok {
			defer closer.Close()
		}
		content, err := io.ReadAll(in)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(content, &data); err != nil {
			return nil, err
		}
	case map[string]interface{}:
		data = in
	default:
		c, err := ucfg.NewFrom(from, opts...)
		return &Config{tree: c}, err
	}

	cfg, err := ucfg.NewFrom(data, opts...)
	if err != nil {
		return nil, err
	}
	return &Config{tree: cfg}, nil
}

// MustNewConfigFrom try to create a configuration based on the type passed as arguments and panic
// on failures.
func MustNewConfigFrom(from interface{}) *Config {
	c, err := NewConfigFrom(from)
	if err != nil {
		panic(fmt.Sprintf("could not read configuration %+v", err))
	}
	return c
}

// UnpackTo unpacks this config into to, running Validate hooks on the way.
func (c *Config) UnpackTo(to interface{}, opts ...ucfg.Option) error {
	if len(opts) == 0 {
		opts = DefaultOptions
	}
	return c.tree.Unpack(to, opts...)
}

// Merge merges from into this configuration.
func (c *Config) Merge(from interface{}, opts ...ucfg.Option) error {
	if len(opts) == 0 {
		opts = DefaultOptions
	}
	if other, ok := from.(*Config); ok {
		return c.tree.Merge(other.tree, opts...)
	}
	return c.tree.Merge(from, opts...)
}

// Child returns the sub configuration stored under name.
func (c *Config) Child(name string) (*Config, error) {
	sub, err := c.tree.Child(name, -1, DefaultOptions...)
	if err != nil {
		return nil, err
	}
	return &Config{tree: sub}, nil
}

// HasField returns true when name is set at the top level.
func (c *Config) HasField(name string) bool {
	return c.tree.HasField(name)
}

// ToMapStr takes the config and transform it into a map[string]interface{}.
func (c *Config) ToMapStr() (map[string]interface{}, error) {
	var m map[string]interface{}
	if err := c.tree.Unpack(&m, DefaultOptions...); err != nil {
		return nil, fmt.Errorf("error unpacking config to MapStr object: %w", err)
	}
	return m, nil
}

// LoadFile take a path and load the file and return a new configuration.
func LoadFile(path string) (*Config, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return NewConfigFrom(fp)
}

// LoadFiles takes multiples files, load and merge all of them in a single one.
func LoadFiles(paths ...string) (*Config, error) {
	merger := cfgutil.NewCollector(nil, DefaultOptions...)
	for _, path := range paths {
		cfg, err := LoadFile(path)
		var tree *ucfg.Config
		if cfg != nil {
			tree = cfg.tree
		}
		if err := merger.Add(tree, err); err != nil {
			return nil, err
		}
	}
	return &Config{tree: merger.Config()}, nil
}
