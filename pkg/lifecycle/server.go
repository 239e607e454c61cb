/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hrxen/punchclock/pkg/logger"
)

const defaultShutdownTimeout = 10 * time.Second

// Service is a long-running component driven by RunServer.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type ServerOptions struct {
	ServiceName     string
	Service         Service
	HTTPServer      *http.Server
	ShutdownTimeout time.Duration
	Logger          logger.Logger
}

// RunServer starts the service and its HTTP surface, blocks until ctx is
// cancelled or either side fails, then shuts both down.
func RunServer(ctx context.Context, opts *ServerOptions) error {
	log := opts.Logger
	if log == nil {
		log = logger.NewTestLogger()
	}

	if err := opts.Service.Start(ctx); err != nil {
		return fmt.Errorf("failed to start %s: %w", opts.ServiceName, err)
	}

	log.Info().Str("service", opts.ServiceName).Msg("Service started")

	g, gctx := errgroup.WithContext(ctx)

	if opts.HTTPServer != nil {
		g.Go(func() error {
			log.Info().Str("addr", opts.HTTPServer.Addr).Msg("HTTP server listening")

			if err := opts.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}

			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()

		timeout := opts.ShutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var shutdownErr error

		if opts.HTTPServer != nil {
			if err := opts.HTTPServer.Shutdown(shutdownCtx); err != nil {
				shutdownErr = fmt.Errorf("http shutdown: %w", err)
			}
		}

		if err := opts.Service.Stop(shutdownCtx); err != nil && shutdownErr == nil {
			shutdownErr = fmt.Errorf("failed to stop %s: %w", opts.ServiceName, err)
		}

		log.Info().Str("service", opts.ServiceName).Msg("Service stopped")

		return shutdownErr
	})

	return g.Wait()
}
