// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package sqlclient

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/elastic/mysql-configurator/internal/pkg/settings"
)

// Protocol used to reach the server.
type Protocol string

const (
	ProtocolTCP    Protocol = "tcp"
	ProtocolSocket Protocol = "unix"
	ProtocolPipe   Protocol = "pipe"
)

const rootUser = "root"

// Descriptor is everything needed to open one administrative connection.
type Descriptor struct {
	Protocol Protocol
	Host     string
	Port     int
	Socket   string
	Pipe     string
	User     string
	Password string
	Timeout  time.Duration
}

// FromSettings returns a root descriptor for s. The protocol preference is
// TCP, then the unix socket, then the named pipe. password is used when s
// only carries a digest of the root password.
func FromSettings(s *settings.Settings, password string, timeout time.Duration) Descriptor {
	d := Descriptor{
		Protocol: ProtocolTCP,
		Host:     s.Host,
		Port:     s.Network.Port,
		User:     rootUser,
		Password: s.Security.RootPassword,
		Timeout:  timeout,
	}
	if d.Password == "" {
		d.Password = password
	}
	if d.Host == "" {
		d.Host = settings.DefaultHost
	}

	switch {
	case s.Network.TCP:
	case s.Network.Socket != "":
		d.Protocol = ProtocolSocket
		d.Socket = s.Network.Socket
	case s.Network.NamedPipe:
		d.Protocol = ProtocolPipe
		d.Pipe = s.Network.PipeName
	}
	return d
}

// WithTimeout returns a copy bounding each call to timeout.
func (d Descriptor) WithTimeout(timeout time.Duration) Descriptor {
	d.Timeout = timeout
	return d
}

// WithCredentials returns a copy connecting as user.
func (d Descriptor) WithCredentials(user, password string) Descriptor {
	d.User = user
	d.Password = password
	return d
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s@%s(%s)", d.User, d.Protocol, d.address())
}

func (d Descriptor) address() string {
	switch d.Protocol {
	case ProtocolSocket:
		return d.Socket
	case ProtocolPipe:
		return d.Pipe
	default:
		host := d.Host
		if host == "localhost" {
			// the driver would resolve localhost to ::1 first while a
			// server bound to 0.0.0.0 only listens on IPv4
			host = "127.0.0.1"
		}
		return net.JoinHostPort(host, strconv.Itoa(d.Port))
	}
}

func (d Descriptor) driverConfig() *mysql.Config {
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = string(d.Protocol)
	cfg.Addr = d.address()
	// read and write deadlines come from the context so an expired wait
	// surfaces as context.DeadlineExceeded
	cfg.Timeout = d.Timeout
	cfg.AllowNativePasswords = true
	cfg.InterpolateParams = true
	return cfg
}
