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

// Package management implements the administrative side channel of the
// proxy. It is a line based text protocol on a dedicated listener through
// which an operator can toggle the external transformation, edit the
// filtered media types and read the process metrics while sessions are
// being served.
package management

import (
	"fmt"
	"strings"
	"time"

	"github.com/popfilter/popfilter/internal/config"
	"github.com/popfilter/popfilter/internal/metrics"
)

const (
	greeting = "POP3 Proxy Management Server."

	// maxIdleTime bounds how long a management connection may wait for
	// its next read or write before it is dropped.
	maxIdleTime = 5 * time.Minute
)

type stage uint

const (
	stageUser stage = iota
	stagePass
	stageConfig
)

func (s stage) String() string {
	return [...]string{
		"user",
		"pass",
		"config",
	}[s]
}

// session is the per-connection record of the management channel. Unlike
// proxy sessions there is no pooling: administrative connections are rare.
type session struct {
	conn  lineConn
	stage stage
	user  string
}

// Admin implements textproto.Protocol for the management channel. All
// mutations go through the shared runtime record, which the proxy sessions
// read concurrently.
type Admin struct {
	user    string
	pass    string
	runtime *config.Runtime
}

// New returns an Admin guarding the runtime record with the given
// credentials.
func New(settings *config.Settings, runtime *config.Runtime) *Admin {
	return &Admin{
		user:    settings.ManagementUser,
		pass:    settings.ManagementPass,
		runtime: runtime,
	}
}

func (a *Admin) replyOK(s *session, text string) error {
	return s.conn.writeLine("+OK " + text)
}

func (a *Admin) replyErr(s *session, text string) error {
	return s.conn.writeLine("-ERR " + text)
}

func (a *Admin) dispatch(s *session, verb, arg string, argc int) (bool, error) {
	if argc == 1 && strings.EqualFold(verb, "QUIT") {
		if err := a.replyOK(s, "Goodbye."); err != nil {
			return false, err
		}

		return true, nil
	}

	switch s.stage {
	case stageUser:
		return false, a.handleUser(s, verb, arg, argc)

	case stagePass:
		return false, a.handlePass(s, verb, arg, argc)

	case stageConfig:
		return false, a.handleConfig(s, verb, arg, argc)
	}

	return false, nil
}

func (a *Admin) handleUser(s *session, verb, arg string, argc int) error {
	if !strings.EqualFold(verb, "USER") {
		return a.replyErr(s, "command not recognized.")
	}

	if argc != 2 {
		return a.replyErr(s, "wrong command or wrong number of arguments.")
	}

	s.user = arg
	s.stage = stagePass

	return a.replyOK(s, "Welcome")
}

func (a *Admin) handlePass(s *session, verb, arg string, argc int) error {
	if !strings.EqualFold(verb, "PASS") {
		return a.replyErr(s, "command not recognized.")
	}

	if argc != 2 {
		return a.replyErr(s, "wrong command or wrong number of arguments.")
	}

	if s.user != a.user || arg != a.pass {
		s.stage = stageUser
		s.user = ""

		return a.replyErr(s, "Authentication failed. Try again.")
	}

	s.stage = stageConfig

	return a.replyOK(s, "Logged in.")
}

func (a *Admin) handleConfig(s *session, verb, arg string, argc int) error {
	switch {
	case strings.EqualFold(verb, "CMD"):
		if argc == 1 {
			if a.runtime.ToggleFilter() {
				return a.replyOK(s, "External transformations activated.")
			}

			return a.replyOK(s, "External transformations deactivated.")
		}

		a.runtime.SetFilterCommand(arg)

		return a.replyOK(s, "Done.")

	case strings.EqualFold(verb, "MSG"):
		if argc < 2 {
			return a.replyErr(s, "wrong command or wrong number of arguments.")
		}

		a.runtime.SetReplacementMessage(arg)

		return a.replyOK(s, "Done.")

	case strings.EqualFold(verb, "LIST"):
		if argc != 1 {
			return a.replyErr(s, "wrong command or wrong number of arguments.")
		}

		return a.replyOK(s, strings.Join(a.runtime.ListMediaTypes(), "\n"))

	case strings.EqualFold(verb, "BAN"):
		if argc != 2 {
			return a.replyErr(s, "wrong command or wrong number of arguments.")
		}

		if err := a.runtime.BanMediaType(arg); err != nil {
			return a.replyErr(s, "wrong media type.")
		}

		return a.replyOK(s, "type banned")

	case strings.EqualFold(verb, "UNBAN"):
		if argc != 2 {
			return a.replyErr(s, "wrong command or wrong number of arguments.")
		}

		if err := a.runtime.UnbanMediaType(arg); err != nil {
			return a.replyErr(s, "wrong media type.")
		}

		return a.replyOK(s, "type unbanned")

	case strings.EqualFold(verb, "STATS"):
		if argc != 1 {
			return a.replyErr(s, "wrong command or wrong number of arguments.")
		}

		snapshot := metrics.Read()

		return a.replyOK(s, fmt.Sprintf("\nMetrics\n"+
			"Concurrent connections: %d\n"+
			"Historical Access: %d\n"+
			"Transfered Bytes: %d\n"+
			"Retrieved Messages: %d",
			snapshot.ConcurrentConnections,
			snapshot.HistoricalAccesses,
			snapshot.TransferredBytes,
			snapshot.RetrievedMessages))
	}

	return a.replyErr(s, "command not recognized.")
}

// splitCommand separates the verb from the remainder of the line. The
// remainder counts as a single argument so that shell commands and
// replacement texts survive with their spaces intact.
func splitCommand(line string) (verb, arg string, argc int) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", "", 0
	}

	verb, arg, found := strings.Cut(line, " ")
	if !found {
		return verb, "", 1
	}

	arg = strings.TrimSpace(arg)
	if arg == "" {
		return verb, "", 1
	}

	return verb, arg, 2
}
