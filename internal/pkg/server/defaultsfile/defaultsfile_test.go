// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

//go:build !windows

package defaultsfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elastic/mysql-configurator/internal/pkg/settings"
)

const existing = `# managed by hand
[mysqld]
port=3306
datadir=/var/lib/mysql
innodb_buffer_pool_size=1G
skip-networking
`

func TestRenderPreservesForeignKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "my.cnf")
	require.NoError(t, os.WriteFile(path, []byte(existing), 0o600))

	s := settings.DefaultSettings()
	s.ServerVersion = "8.0.36"
	s.DataDir = "/srv/mysql"
	s.Network.Port = 3310
	s.Network.Socket = "/run/mysqld/mysqld.sock"
	s.PidFile = "/run/mysqld/mysqld.pid"

	require.NoError(t, Render(path, s))

	f, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, 3310, f.Port())
	assert.Equal(t, "/srv/mysql", f.Get(SectionServer, "datadir"))
	assert.Equal(t, "1G", f.Get(SectionServer, "innodb_buffer_pool_size"))
	assert.Equal(t, "/run/mysqld/mysqld.sock", f.Get(SectionClient, "socket"))
	assert.Equal(t, "/run/mysqld/mysqld.pid", f.Get(SectionServer, "pid-file"))
	assert.Equal(t, "*,,", f.Get(SectionServer, "authentication_policy"))
	assert.Empty(t, f.Get(SectionServer, "skip-networking"), "tcp is enabled again")
}

func TestRenderOlderServer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "my.cnf")

	s := settings.DefaultSettings()
	s.ServerVersion = "5.7.44"
	s.DataDir = "/srv/mysql"
	s.Network.TCP = false
	s.Network.Socket = "/tmp/mysql.sock"

	require.NoError(t, Render(path, s))
	assert.True(t, Exists(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "skip-networking")
	assert.NotContains(t, string(content), "authentication_policy")
}

func TestReadMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.cnf")
	assert.False(t, Exists(path))
	assert.False(t, Exists(""))

	f, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, 0, f.Port())
	assert.Empty(t, f.Get(SectionServer, "datadir"))
}
