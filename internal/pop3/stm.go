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
	"context"

	"github.com/popfilter/popfilter/internal/log"
)

// stateID indexes the session state table.
type stateID int

const (
	stOriginResolv stateID = iota
	stConnecting
	stHello
	stCapa
	stRequest
	stResponse
	stTransform
	stDone
	stError
)

func (id stateID) String() string {
	return [...]string{
		"origin-resolv",
		"connecting",
		"hello",
		"capa",
		"request",
		"response",
		"external-transformation",
		"done",
		"error",
	}[id]
}

// state bundles the hooks of a single session state. run advances the
// session and names the state to enter next. Terminal states have no run
// hook.
type state struct {
	onArrival   func(ctx context.Context, s *session)
	onDeparture func(ctx context.Context, s *session)
	run         func(ctx context.Context, s *session) (stateID, error)
}

// machine drives a session through a state table until a terminal state is
// reached. Departure and arrival hooks fire on every transition, in that
// order. The machine is oblivious to what the states do.
type machine struct {
	states  []state
	initial stateID
}

func (m *machine) run(ctx context.Context, s *session) {
	current := m.initial

	if hook := m.states[current].onArrival; hook != nil {
		hook(ctx, s)
	}

	for {
		run := m.states[current].run
		if run == nil {
			return
		}

		next, err := run(ctx, s)
		if err != nil {
			log.DebugContext(ctx).
				Err(err).
				Str("state", current.String()).
				Msg("session failed")

			next = stError
		}

		if next == current {
			continue
		}

		if hook := m.states[current].onDeparture; hook != nil {
			hook(ctx, s)
		}

		log.TraceContext(ctx).
			Str("from", current.String()).
			Str("to", next.String()).
			Msg("state transition")

		current = next

		if hook := m.states[current].onArrival; hook != nil {
			hook(ctx, s)
		}
	}
}
