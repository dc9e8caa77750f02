// Copyright (C) 2025  The popfilter authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package textproto

import (
	"net"
	"time"
)

// Conn is a wrapper around a network connection to enable line based reading
// and buffered writing.
type Conn interface {
	Reader
	Writer

	// SetReadTimeout sets the deadline for read calls to a time now + x.
	SetReadTimeout(time.Duration) error

	// SetWriteTimeout sets the deadline for write calls to a time now + x.
	SetWriteTimeout(time.Duration) error

	// RemoteAddr returns the address of the connected peer.
	RemoteAddr() net.Addr

	// Close closes the underlying network connection. Any blocked read or
	// write is unblocked with an error.
	Close() error
}

type conn struct {
	raw net.Conn

	Reader
	Writer
}

// Wrap turns a network connection into a Conn. The same wrapper serves both
// accepted and dialed connections.
func Wrap(netConn net.Conn) Conn {
	return &conn{
		raw: netConn,

		Reader: newReader(netConn),
		Writer: newWriter(netConn),
	}
}

func (c *conn) SetReadTimeout(d time.Duration) error {
	return c.raw.SetReadDeadline(time.Now().Add(d))
}

func (c *conn) SetWriteTimeout(d time.Duration) error {
	return c.raw.SetWriteDeadline(time.Now().Add(d))
}

func (c *conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}

func (c *conn) Close() error {
	return c.raw.Close()
}
