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

package management

import (
	"context"

	"github.com/popfilter/popfilter/internal/log"
	"github.com/popfilter/popfilter/internal/textproto"
)

// lineConn adapts a textproto connection to the newline framed replies of
// the management channel.
type lineConn struct {
	conn textproto.Conn
}

func (c lineConn) readLine() (string, error) {
	if err := c.conn.SetReadTimeout(maxIdleTime); err != nil {
		return "", err
	}

	line, err := c.conn.ReadLine()
	if err != nil {
		return "", err
	}

	return string(line), nil
}

func (c lineConn) writeLine(text string) error {
	if err := c.conn.SetWriteTimeout(maxIdleTime); err != nil {
		return err
	}

	if err := c.conn.WriteString(text + "\n"); err != nil {
		return err
	}

	return c.conn.Flush()
}

// Handle serves a single management connection until the operator quits,
// the peer disconnects or the idle deadline passes.
func (a *Admin) Handle(ctx context.Context, conn textproto.Conn) {
	s := &session{
		conn:  lineConn{conn: conn},
		stage: stageUser,
	}

	log.InfoContext(ctx).Msg("management connection opened")

	if err := s.conn.writeLine(greeting); err != nil {
		log.DebugContext(ctx).
			Err(err).
			Msg("could not greet management client")

		return
	}

	for {
		line, err := s.conn.readLine()
		if err != nil {
			log.DebugContext(ctx).
				Err(err).
				Str("stage", s.stage.String()).
				Msg("management connection closed")

			return
		}

		verb, arg, argc := splitCommand(line)

		quit, err := a.dispatch(s, verb, arg, argc)
		if err != nil {
			log.DebugContext(ctx).
				Err(err).
				Str("stage", s.stage.String()).
				Msg("management reply failed")

			return
		}

		if quit {
			log.InfoContext(ctx).Msg("management connection closed")

			return
		}
	}
}
