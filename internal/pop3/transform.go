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
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"golang.org/x/sync/errgroup"

	"github.com/popfilter/popfilter/internal/config"
	"github.com/popfilter/popfilter/internal/log"
	"github.com/popfilter/popfilter/internal/metrics"
)

var errFilterSpawn = errors.New("pop3: could not start filter")

// execCommand is swapped in tests to force spawn failures.
var execCommand = exec.Command

// transformResponse replaces the body of a retrieved message with the
// output of the configured filter program. The +OK status line of the
// origin has already been consumed; the client receives a synthesized
// preface instead.
//
// A filter that cannot be started is not fatal to the session: the origin
// body is drained to keep the response queue in sync and the client
// receives an error with a well-formed empty body.
func (p *Proxy) transformResponse(ctx context.Context, s *session) (stateID, error) {
	_, command := p.runtime.Filter()

	if err := p.runFilter(ctx, s, command); err != nil {
		if !errors.Is(err, errFilterSpawn) {
			return stError, err
		}

		log.WarnContext(ctx).
			Err(err).
			Str("filter", command).
			Msg("external transformation unavailable")

		if err := s.drainOriginBody(); err != nil {
			return stError, err
		}

		if err := s.writeClient(rTransformFailed); err != nil {
			return stError, err
		}

		if err := s.writeClient("\r\n.\r\n"); err != nil {
			return stError, err
		}

		if err := s.flushClient(); err != nil {
			return stError, err
		}
	}

	s.queue.pop()

	if s.closing {
		return stDone, nil
	}

	return p.afterResponse(s)
}

// runFilter spawns the filter child and plumbs the two one-way streams:
// the unstuffed mail body from the origin into the child's stdin, and the
// child's stdout re-stuffed towards the client. The streams run
// independently and are joined before the state advances.
func (p *Proxy) runFilter(ctx context.Context, s *session, command string) error {
	cmd := execCommand("/bin/sh", "-c", command)
	cmd.Env = append(os.Environ(),
		"FILTER_MEDIAS="+p.runtime.MediaTypes().String(),
		"FILTER_MSG="+p.runtime.ReplacementMessage(),
		"POP3_FILTER_VERSION="+config.Version,
		"POP3_USERNAME="+s.user,
		"POP3_SERVER="+p.settings.OriginHost,
	)

	stderr, err := p.fs.OpenFile(p.settings.ErrorFile,
		os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		log.WarnContext(ctx).
			Err(err).
			Str("path", p.settings.ErrorFile).
			Msg("could not open filter error file")
	} else {
		cmd.Stderr = stderr
		defer stderr.Close()
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: %v", errFilterSpawn, err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: %v", errFilterSpawn, err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", errFilterSpawn, err)
	}

	defer cmd.Wait()

	if err := s.writeClient(transformPreface); err != nil {
		return err
	}

	if err := s.origin.SetReadTimeout(s.idle); err != nil {
		return err
	}

	if err := s.client.SetWriteTimeout(s.idle); err != nil {
		return err
	}

	var (
		group   errgroup.Group
		written int64
	)

	group.Go(func() error {
		// upstream: origin -> child, terminator stripped. A child that
		// exits without consuming its input must not desync the response
		// queue, so the remaining body is drained either way.
		body := s.origin.DotReader()

		if _, err := io.Copy(stdin, body); err != nil {
			log.WarnContext(ctx).
				Err(err).
				Msg("filter stopped reading early")

			if _, err := io.Copy(io.Discard, body); err != nil {
				stdin.Close()
				return fmt.Errorf("pop3: reading mail from origin: %w", err)
			}
		}

		stdin.Close()
		return nil
	})

	group.Go(func() error {
		// downstream: child -> client, re-framed. A failing or silent
		// child still yields a well-formed empty body, because closing
		// the encoder always emits the terminator.
		encoder := s.client.DotWriter()

		n, err := io.Copy(encoder, stdout)
		written = n

		if err != nil {
			log.WarnContext(ctx).
				Err(err).
				Msg("filter output ended early")
		}

		return encoder.Close()
	})

	if err := group.Wait(); err != nil {
		return err
	}

	if err := s.flushClient(); err != nil {
		return err
	}

	metrics.AddTransferredBytes(written + int64(len(transformPreface)) + 3)
	metrics.MessageRetrieved()

	return nil
}
