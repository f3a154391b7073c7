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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/carverauto/gridwatch/pkg/config"
	"github.com/carverauto/gridwatch/pkg/events"
	"github.com/carverauto/gridwatch/pkg/gateway"
	"github.com/carverauto/gridwatch/pkg/health"
	"github.com/carverauto/gridwatch/pkg/logger"
	"github.com/carverauto/gridwatch/pkg/service"
	"github.com/carverauto/gridwatch/pkg/timeseries"
)

var errFailedToLoadConfig = errors.New("failed to load config")

func main() {
	if err := run(); err != nil {
		stdlog.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/gridwatch/gridwatch.json", "Path to config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootLog, err := logger.New(logger.DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	var cfg service.Config

	cfgLoader := config.NewConfig(bootLog)
	if err := cfgLoader.LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
	}

	logConfig := cfg.Logging
	if logConfig == nil {
		logConfig = logger.DefaultConfig()
	}

	log, err := logger.NewComponentLogger("gridwatch", logConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	source := gateway.NewClient(log)
	sessions := gateway.NewSessionManager(source, &cfg.Gateway, log)
	fetcher := gateway.NewSnapshotFetcher(sessions, log)
	tracker := health.NewTracker(log)

	deps := service.Deps{
		Fetcher:  fetcher,
		Sessions: sessions,
		Tracker:  tracker,
		Link:     service.NewLinkManager(cfg.Link, log),
	}

	if cfg.Timeseries != nil {
		writer, err := timeseries.Connect(ctx, cfg.Timeseries, log)
		if err != nil {
			return fmt.Errorf("failed to connect to timeseries database: %w", err)
		}

		if err := writer.EnsureSchema(ctx); err != nil {
			return err
		}

		deps.Metrics = writer
	}

	if cfg.Events != nil {
		publisher, err := events.Connect(ctx, cfg.Events, log)
		if err != nil {
			return fmt.Errorf("failed to connect to event bus: %w", err)
		}

		deps.Events = publisher

		interval, delay := cfg.HealthPublisherOptions()
		deps.Background = health.NewPublisher(cfg.Events, tracker.Report, log, health.PublisherOptions{
			Interval:     interval,
			InitialDelay: delay,
		})
	}

	orchestrator := service.New(&cfg, deps, log)
	api := service.NewAPIServer(&cfg, orchestrator, log)

	errCh := make(chan error, 2)

	go func() {
		if err := orchestrator.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	go func() {
		if err := api.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("Service error")
	}

	shutdownCtx := context.Background()

	if err := api.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP API shutdown error")
	}

	return orchestrator.Stop(shutdownCtx)
}
