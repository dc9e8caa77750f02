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

package pop3

import (
	"time"

	"github.com/popfilter/popfilter/internal/textproto"
)

type phase uint

const (
	phaseAuthorization phase = iota
	phaseTransaction
	phaseUpdate
)

func (p phase) String() string {
	return [...]string{
		"authorization",
		"transaction",
		"update",
	}[p]
}

// session is the per-client record. It is mutated only by the state
// handlers of the single goroutine driving the connection.
type session struct {
	client textproto.Conn
	origin textproto.Conn

	addrs []string
	idle  time.Duration

	queue           requestQueue
	pipelining      bool
	invalidCommands int
	user            string
	phase           phase
	closing         bool
}

// reset clears the record for reuse through the session pool.
func (s *session) reset() {
	*s = session{}
}

func (s *session) readClientLine() ([]byte, error) {
	if err := s.client.SetReadTimeout(s.idle); err != nil {
		return nil, err
	}

	return s.client.ReadLine()
}

func (s *session) readOriginLine() ([]byte, error) {
	if err := s.origin.SetReadTimeout(s.idle); err != nil {
		return nil, err
	}

	return s.origin.ReadLine()
}

func (s *session) writeClient(text string) error {
	if err := s.client.SetWriteTimeout(s.idle); err != nil {
		return err
	}

	return s.client.WriteString(text)
}

func (s *session) flushClient() error {
	return s.client.Flush()
}

func (s *session) writeOrigin(text string) error {
	if err := s.origin.SetWriteTimeout(s.idle); err != nil {
		return err
	}

	return s.origin.WriteString(text)
}

func (s *session) flushOrigin() error {
	return s.origin.Flush()
}

// relayBody forwards a byte-stuffed multi-line body from the origin to the
// client verbatim, including the terminating dot line. It returns the
// number of bytes written towards the client.
func (s *session) relayBody() (int64, error) {
	var written int64

	for {
		line, err := s.readOriginLine()
		if err != nil {
			return written, err
		}

		if err := s.writeClient(string(line) + "\r\n"); err != nil {
			return written, err
		}

		written += int64(len(line)) + 2

		if isTerminator(line) {
			return written, nil
		}
	}
}

// drainOriginBody consumes and discards a multi-line body from the origin.
func (s *session) drainOriginBody() error {
	for {
		line, err := s.readOriginLine()
		if err != nil {
			return err
		}

		if isTerminator(line) {
			return nil
		}
	}
}

func isTerminator(line []byte) bool {
	return len(line) == 1 && line[0] == '.'
}
