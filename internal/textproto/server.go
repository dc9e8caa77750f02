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
	"context"
	"net"
	"sync/atomic"

	"github.com/popfilter/popfilter/internal/log"
)

// Server is a general purpose tcp server for text based protocols like POP3.
type Server interface {
	// Listen will open a new tcp listener and block until an error occurs or
	// the context is canceled. An error is either returned when trying to
	// bind the given address or whenever accepting a new connection fails.
	Listen(ctx context.Context, addr string) error
}

// Protocol is an interface for text based protocol implementations.
type Protocol interface {
	// Handle is supposed to consume a connection and manage all traffic
	// over it. Once Handle returns, the underlying network connection is
	// automatically closed by the server.
	Handle(ctx context.Context, conn Conn)
}

type server struct {
	proto       Protocol
	connections atomic.Int32
}

// NewServer returns a Server using a specified protocol implementation.
// The Server has to be started explicitly afterwards.
func NewServer(proto Protocol) Server {
	return &server{
		proto: proto,
	}
}

func (s *server) Listen(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	log.InfoContext(ctx).
		Str("addr", addr).
		Msg("listening")

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return err
		}

		go s.handle(ctx, conn)
	}
}

func (s *server) handle(ctx context.Context, netConn net.Conn) {
	defer netConn.Close()

	ctx = log.WithConnection(ctx, s.connections.Add(1))
	ctx = log.WithClient(ctx, netConn.RemoteAddr().String())

	s.proto.Handle(ctx, Wrap(netConn))
}
