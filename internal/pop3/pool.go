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

import "sync"

// poolCapacity caps how many finished session records are kept for reuse.
const poolCapacity = 50

// pool recycles session records to avoid allocation churn on busy
// listeners.
type pool struct {
	mu   sync.Mutex
	free []*session
}

func newPool() *pool {
	return &pool{}
}

func (p *pool) acquire() *session {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.free); n > 0 {
		s := p.free[n-1]
		p.free = p.free[:n-1]

		return s
	}

	return new(session)
}

func (p *pool) release(s *session) {
	s.reset()

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) < poolCapacity {
		p.free = append(p.free, s)
	}
}

func (p *pool) drain() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.free = nil
}
