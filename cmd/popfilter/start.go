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

package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/popfilter/popfilter/internal/config"
	"github.com/popfilter/popfilter/internal/log"
	"github.com/popfilter/popfilter/internal/management"
	"github.com/popfilter/popfilter/internal/metrics"
	"github.com/popfilter/popfilter/internal/pop3"
	"github.com/popfilter/popfilter/internal/textproto"
)

type startCommand struct {
	settings *config.Settings
	proxy    *pop3.Proxy
	admin    *management.Admin
}

func newStartCommand() (*startCommand, error) {
	settings, err := config.FromViper()
	if err != nil {
		return nil, err
	}

	runtime, err := config.RuntimeFromViper()
	if err != nil {
		return nil, err
	}

	return &startCommand{
		settings: settings,
		proxy:    pop3.New(settings, runtime, afero.NewOsFs()),
		admin:    management.New(settings, runtime),
	}, nil
}

func (c *startCommand) run() error {
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info().
			Str("addr", c.settings.ListenAddr).
			Str("origin", c.settings.OriginHost).
			Msg("starting pop3 proxy")

		return textproto.NewServer(c.proxy).Listen(ctx, c.settings.ListenAddr)
	})

	group.Go(func() error {
		log.Info().
			Str("addr", c.settings.ManagementAddr).
			Msg("starting management channel")

		return textproto.NewServer(c.admin).Listen(ctx, c.settings.ManagementAddr)
	})

	if c.settings.MetricsAddr != "" {
		group.Go(func() error {
			return listenMetrics(ctx, c.settings.MetricsAddr)
		})
	}

	defer c.proxy.Drain()

	return group.Wait()
}

func listenMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		srv.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("addr", addr).
		Msg("starting metrics endpoint")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}
