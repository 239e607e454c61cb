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

// Package app wires configuration, logging, storage, the engine and the API
// into the punchclock service.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/hrxen/punchclock/pkg/api"
	"github.com/hrxen/punchclock/pkg/config"
	"github.com/hrxen/punchclock/pkg/db"
	"github.com/hrxen/punchclock/pkg/engine"
	"github.com/hrxen/punchclock/pkg/lifecycle"
	"github.com/hrxen/punchclock/pkg/logger"
	"github.com/hrxen/punchclock/pkg/pipeline"
	"github.com/hrxen/punchclock/pkg/store/memory"
	"github.com/hrxen/punchclock/pkg/version"
)

const serviceName = "punchclock"

// Options contains runtime configuration derived from CLI flags.
type Options struct {
	ConfigPath string
}

// Run loads the config and serves until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	var cfg Config

	if err := config.NewConfig(nil).LoadAndValidate(ctx, opts.ConfigPath, &cfg); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	mainLogger, err := lifecycle.CreateComponentLogger(ctx, "punchclock-main", cfg.Logging)
	if err != nil {
		return err
	}

	defer func() {
		if err := lifecycle.ShutdownLogger(context.Background()); err != nil {
			mainLogger.Error().Err(err).Msg("Error shutting down logger")
		}
	}()

	if _, err := logger.InitializeMetrics(ctx, &cfg.Logging.OTel); err != nil &&
		!errors.Is(err, logger.ErrOTelMetricsDisabled) {
		return err
	}

	if _, err := logger.InitializeTracing(ctx, &cfg.Logging.OTel); err != nil &&
		!errors.Is(err, logger.ErrOTelTracingDisabled) {
		return err
	}

	mainLogger.Info().
		Str("version", version.GetFullVersion()).
		Str("store", cfg.Store.Kind).
		Msg("Starting punchclock")

	store, closeStore, err := openStore(ctx, &cfg.Store, mainLogger)
	if err != nil {
		return err
	}
	defer closeStore()

	eng, err := engine.New(cfg.Engine, store, engine.WithLogger(mainLogger))
	if err != nil {
		return err
	}

	server := api.NewAPIServer(eng, cfg.API, api.WithLogger(mainLogger))

	return lifecycle.RunServer(ctx, &lifecycle.ServerOptions{
		ServiceName: serviceName,
		Service:     eng,
		HTTPServer:  server.HTTPServer(),
		Logger:      mainLogger,
	})
}

func openStore(ctx context.Context, cfg *StoreConfig, log logger.Logger) (pipeline.Store, func(), error) {
	switch cfg.Kind {
	case StoreCNPG:
		pool, err := db.NewCNPGPool(ctx, cfg.CNPG, log)
		if err != nil {
			return nil, nil, err
		}

		if cfg.RunMigrations {
			if err := db.RunCNPGMigrations(ctx, pool, log); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}

		return db.NewStore(pool, log), pool.Close, nil
	default:
		if cfg.SeedFile == "" {
			log.Warn().Msg("No seed file configured, starting with an empty store")
			return memory.New(nil), func() {}, nil
		}

		store, err := memory.Load(cfg.SeedFile, nil)
		if err != nil {
			return nil, nil, err
		}

		return store, func() {}, nil
	}
}
