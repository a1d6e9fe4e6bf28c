// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

//go:build windows

package sqlclient

import (
	"context"
	"net"
	"strings"

	"github.com/Microsoft/go-winio"
	"github.com/go-sql-driver/mysql"
)

const pipePrefix = `\\.\pipe\`

func init() {
	mysql.RegisterDialContext(string(ProtocolPipe), func(ctx context.Context, addr string) (net.Conn, error) {
		if !strings.HasPrefix(addr, pipePrefix) {
			addr = pipePrefix + addr
		}
		return winio.DialPipeContext(ctx, addr)
	})
}
