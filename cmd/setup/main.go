package main

import (
	"context"
	"flag"

	"chaintrack-provenance-go/internal/common"
	"chaintrack-provenance-go/internal/config"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	fixturesFlag := flag.String("fixtures", "", "Path to the device fixtures YAML (default: FIXTURES_FILE)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	fixturesFile := cfg.Ledger.FixturesFile
	if *fixturesFlag != "" {
		fixturesFile = *fixturesFlag
	}

	zap.L().Info("Loading device fixtures", zap.String("file", fixturesFile))
	devices, err := common.LoadDeviceFixtures(fixturesFile)
	if err != nil {
		zap.L().Fatal("Failed to load device fixtures", zap.Error(err))
	}
	zap.L().Info("Device fixtures loaded", zap.Int("count", len(devices)))

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	result := common.SeedDevices(ctx, services.Api, devices)

	if result.Failed > 0 {
		zap.L().Warn("Seeding completed with some failures",
			zap.Int("minted", result.Minted),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed))
		return
	}
	zap.L().Info("Seeding completed successfully",
		zap.Int("minted", result.Minted),
		zap.Int("skipped", result.Skipped))
}
