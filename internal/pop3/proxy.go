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

// Package pop3 implements the transparent proxy core. Every client
// connection is driven through a fixed state machine: resolve the origin,
// connect, forward the greeting, probe capabilities, then alternate between
// relaying requests and responses until either peer ends the session.
package pop3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/popfilter/popfilter/internal/config"
	"github.com/popfilter/popfilter/internal/log"
	"github.com/popfilter/popfilter/internal/metrics"
	"github.com/popfilter/popfilter/internal/textproto"
)

const (
	banner           = "+OK Proxy server POP3 ready.\r\n"
	transformPreface = "+OK sending mail.\r\n"

	rUnknownCommand   = "-ERR Unknown command. (POPG)\r\n"
	rCommandTooLong   = "-ERR Command too long.\r\n"
	rParameterTooLong = "-ERR Parameter too long.\r\n"
	rTooManyInvalid   = "-ERR Too many invalid commands. (POPG)\n"
	rInvalidDomain    = "-ERR Invalid domain.\r\n"
	rConnRefused      = "-ERR Connection refused.\r\n"
	rTransformFailed  = "-ERR could not open external transformation.\r\n"

	pipeliningCapability = "PIPELINING"

	// maxInvalidCommands is the number of consecutive rejected commands
	// after which a session is considered abusive and terminated.
	maxInvalidCommands = 3
)

// Proxy is the textproto.Protocol implementation of the POP3 proxy core.
type Proxy struct {
	settings *config.Settings
	runtime  *config.Runtime
	fs       afero.Fs

	resolver net.Resolver
	dialer   net.Dialer
	pool     *pool
	machine  machine
}

// New creates a Proxy to be used with a textproto Server.
func New(settings *config.Settings, runtime *config.Runtime, fs afero.Fs) *Proxy {
	p := &Proxy{
		settings: settings,
		runtime:  runtime,
		fs:       fs,
		pool:     newPool(),
	}

	p.machine = machine{
		initial: stOriginResolv,
		states: []state{
			stOriginResolv: {run: p.resolveOrigin},
			stConnecting:   {run: p.connectOrigin},
			stHello:        {run: p.forwardGreeting},
			stCapa:         {run: p.probeCapabilities},
			stRequest:      {run: p.relayRequests},
			stResponse:     {run: p.relayResponse},
			stTransform:    {run: p.transformResponse},
			stDone:         {onArrival: p.finish},
			stError:        {onArrival: p.abort},
		},
	}

	return p
}

// Handle accepts a client connection and proxies it until either peer
// closes or the session fails.
func (p *Proxy) Handle(ctx context.Context, conn textproto.Conn) {
	metrics.ConnectionOpened()
	defer metrics.ConnectionClosed()

	s := p.pool.acquire()
	defer p.pool.release(s)

	s.client = conn
	s.idle = p.settings.IdleTimeout

	ctx = log.WithOrigin(ctx, p.settings.OriginHost)
	log.InfoContext(ctx).Msg("client connected")

	p.machine.run(ctx, s)
}

// Drain empties the session pool. Called on shutdown.
func (p *Proxy) Drain() {
	p.pool.drain()
}

func (p *Proxy) resolveOrigin(ctx context.Context, s *session) (stateID, error) {
	addrs, err := p.resolver.LookupHost(ctx, p.settings.OriginHost)
	if err != nil || len(addrs) == 0 {
		s.writeClient(rInvalidDomain)
		s.flushClient()

		return stError, err
	}

	s.addrs = addrs
	return stConnecting, nil
}

func (p *Proxy) connectOrigin(ctx context.Context, s *session) (stateID, error) {
	var (
		port = strconv.Itoa(int(p.settings.OriginPort))
		last error
	)

	for _, addr := range s.addrs {
		conn, err := p.dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr, port))
		if err != nil {
			last = err
			continue
		}

		s.origin = textproto.Wrap(conn)
		break
	}

	if s.origin == nil {
		s.writeClient(rConnRefused)
		s.flushClient()

		return stError, last
	}

	s.phase = phaseAuthorization

	log.InfoContext(ctx).
		Str("address", s.origin.RemoteAddr().String()).
		Msg("origin connection established")

	return stHello, nil
}

func (p *Proxy) forwardGreeting(ctx context.Context, s *session) (stateID, error) {
	greeting, err := s.readOriginLine()
	if err != nil {
		return stError, err
	}

	if err := s.writeClient(banner); err != nil {
		return stError, err
	}

	if err := s.writeClient(string(greeting) + "\r\n"); err != nil {
		return stError, err
	}

	if err := s.flushClient(); err != nil {
		return stError, err
	}

	return stCapa, nil
}

// probeCapabilities asks the origin for its capability list before the
// first client command. The reply is consumed entirely and never forwarded;
// the proxy only remembers whether pipelining is available.
func (p *Proxy) probeCapabilities(ctx context.Context, s *session) (stateID, error) {
	if err := s.writeOrigin("CAPA\r\n"); err != nil {
		return stError, err
	}

	if err := s.flushOrigin(); err != nil {
		return stError, err
	}

	status, err := s.readOriginLine()
	if err != nil {
		return stError, err
	}

	if statusOK(status) {
		for {
			line, err := s.readOriginLine()
			if err != nil {
				return stError, err
			}

			if isTerminator(line) {
				break
			}

			if hasPipelining(line) {
				s.pipelining = true
			}
		}
	}

	log.DebugContext(ctx).
		Bool("pipelining", s.pipelining).
		Msg("origin capabilities probed")

	return stRequest, nil
}

func (p *Proxy) relayRequests(ctx context.Context, s *session) (stateID, error) {
	for first := true; first || s.client.Buffered() > 0; first = false {
		line, err := s.readClientLine()
		if err != nil {
			if errors.Is(err, textproto.ErrLineTooLong) {
				next, err := p.rejectRequest(ctx, s, errParameterTooLong)
				if err != nil || next != stRequest {
					return next, err
				}

				continue
			}

			if errors.Is(err, io.EOF) {
				return stDone, nil
			}

			return stError, err
		}

		req, perr := parseRequest(line)
		if perr != nil {
			next, err := p.rejectRequest(ctx, s, perr)
			if err != nil || next != stRequest {
				return next, err
			}

			continue
		}

		s.invalidCommands = 0
		s.queue.push(req)

		log.DebugContext(log.WithCommand(ctx, req.verb.String())).
			Msg("client command enqueued")
	}

	if s.queue.empty() {
		return stRequest, nil
	}

	if s.pipelining {
		for _, req := range s.queue.takeUnsent() {
			if err := s.writeOrigin(req.marshal()); err != nil {
				return stError, err
			}
		}
	} else if !s.queue.hasOutstanding() {
		if req := s.queue.takeNextUnsent(); req != nil {
			if err := s.writeOrigin(req.marshal()); err != nil {
				return stError, err
			}
		}
	}

	if err := s.flushOrigin(); err != nil {
		return stError, err
	}

	return stResponse, nil
}

// rejectRequest answers an invalid client command. Each rejection counts
// towards the abuse limit; reaching it ends the session after a final
// notice.
func (p *Proxy) rejectRequest(ctx context.Context, s *session, perr error) (stateID, error) {
	var reply string

	switch {
	case errors.Is(perr, errCommandTooLong):
		reply = rCommandTooLong
	case errors.Is(perr, errParameterTooLong):
		reply = rParameterTooLong
	default:
		reply = rUnknownCommand
	}

	log.DebugContext(ctx).
		Err(perr).
		Int("consecutive", s.invalidCommands+1).
		Msg("client command rejected")

	s.invalidCommands++

	if err := s.writeClient(reply); err != nil {
		return stError, err
	}

	if s.invalidCommands >= maxInvalidCommands {
		if err := s.writeClient(rTooManyInvalid); err != nil {
			return stError, err
		}

		if err := s.flushClient(); err != nil {
			return stError, err
		}

		log.InfoContext(ctx).Msg("too many invalid commands")
		return stDone, nil
	}

	if err := s.flushClient(); err != nil {
		return stError, err
	}

	return stRequest, nil
}

func (p *Proxy) relayResponse(ctx context.Context, s *session) (stateID, error) {
	req := s.queue.head()
	if req == nil {
		return stRequest, nil
	}

	status, err := s.readOriginLine()
	if err != nil {
		return stError, err
	}

	ok := statusOK(status)

	if req.verb == verbRetr && ok {
		if enabled, command := p.runtime.Filter(); enabled && command != "" {
			return stTransform, nil
		}
	}

	var written int64

	if err := s.writeClient(string(status) + "\r\n"); err != nil {
		return stError, err
	}

	written += int64(len(status)) + 2

	if ok && req.isMulti() {
		var n int64

		if req.verb == verbCapa {
			n, err = p.relayCapaBody(s)
		} else {
			n, err = s.relayBody()
		}

		if err != nil {
			return stError, err
		}

		written += n
	}

	if err := s.flushClient(); err != nil {
		return stError, err
	}

	if req.verb == verbRetr {
		metrics.AddTransferredBytes(written)

		if ok {
			metrics.MessageRetrieved()
		}
	}

	p.observeResponse(ctx, s, req, ok)
	s.queue.pop()

	if s.closing {
		return stDone, nil
	}

	return p.afterResponse(s)
}

// observeResponse tracks the POP3 phase of the session as responses pass
// through. The proxy never replies on the origin's behalf, it only
// remembers what the origin granted.
func (p *Proxy) observeResponse(ctx context.Context, s *session, req *request, ok bool) {
	switch req.verb {
	case verbUser:
		if ok {
			s.user = req.arg(0)
		}

	case verbPass:
		if ok && s.phase == phaseAuthorization {
			s.phase = phaseTransaction

			log.DebugContext(ctx).
				Str("user", s.user).
				Msg("session authenticated")
		}

	case verbQuit:
		s.phase = phaseUpdate
		s.closing = true
	}
}

// afterResponse decides where to go once a response has been relayed. With
// pipelining every queued request is already on the wire, so the next
// response follows immediately. Without it the next queued request is
// forwarded first.
func (p *Proxy) afterResponse(s *session) (stateID, error) {
	if s.queue.empty() {
		return stRequest, nil
	}

	if !s.pipelining && !s.queue.hasOutstanding() {
		if req := s.queue.takeNextUnsent(); req != nil {
			if err := s.writeOrigin(req.marshal()); err != nil {
				return stError, err
			}

			if err := s.flushOrigin(); err != nil {
				return stError, err
			}
		}
	}

	return stResponse, nil
}

// relayCapaBody forwards a CAPA body and guarantees the client sees a
// PIPELINING capability. The proxy answers pipelined clients itself, so the
// capability holds regardless of the origin.
func (p *Proxy) relayCapaBody(s *session) (int64, error) {
	var (
		written    int64
		advertised bool
	)

	for {
		line, err := s.readOriginLine()
		if err != nil {
			return written, err
		}

		if isTerminator(line) {
			if !advertised {
				if err := s.writeClient(pipeliningCapability + "\r\n"); err != nil {
					return written, err
				}

				written += int64(len(pipeliningCapability)) + 2
			}

			if err := s.writeClient(".\r\n"); err != nil {
				return written, err
			}

			return written + 3, nil
		}

		if hasPipelining(line) {
			advertised = true
		}

		if err := s.writeClient(string(line) + "\r\n"); err != nil {
			return written, err
		}

		written += int64(len(line)) + 2
	}
}

func (p *Proxy) finish(ctx context.Context, s *session) {
	p.teardown(ctx, s, false)
}

func (p *Proxy) abort(ctx context.Context, s *session) {
	p.teardown(ctx, s, true)
}

func (p *Proxy) teardown(ctx context.Context, s *session, failed bool) {
	if s.origin != nil {
		s.origin.Close()
		s.origin = nil
	}

	log.InfoContext(ctx).
		Bool("failed", failed).
		Str("phase", s.phase.String()).
		Msg("session closed")
}

func statusOK(line []byte) bool {
	return bytes.HasPrefix(line, []byte("+OK"))
}

func hasPipelining(line []byte) bool {
	return strings.Contains(strings.ToUpper(string(line)), pipeliningCapability)
}
