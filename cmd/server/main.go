/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
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
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chaintrack-provenance-go/internal/common"
	"chaintrack-provenance-go/internal/config"
	"chaintrack-provenance-go/internal/metrics"
	"chaintrack-provenance-go/internal/server"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	seed := flag.Bool("seed", false, "Mint the devices from FIXTURES_FILE before serving (already registered devices are skipped)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zap.L().Info("Starting ChainTrack ledger server",
		zap.String("backend", cfg.Ledger.Backend),
		zap.Bool("enforce_owner", cfg.Ledger.EnforceOwner))

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	metrics.MustRegister("chaintrack")

	if *seed {
		devices, err := common.LoadDeviceFixtures(cfg.Ledger.FixturesFile)
		if err != nil {
			zap.L().Fatal("Failed to load device fixtures", zap.Error(err))
		}
		result := common.SeedDevices(ctx, services.Api, devices)
		zap.L().Info("Seeding complete",
			zap.Int("minted", result.Minted),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed))
	}

	srv := server.New(services.Api, cfg.Server)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("Shutdown signal received, stopping server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		zap.L().Error("Server stopped with error", zap.Error(err))
		return
	}
	zap.L().Info("Server stopped gracefully")
}
