package common

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"chaintrack-provenance-go/internal/api"
	"chaintrack-provenance-go/internal/models"
	"chaintrack-provenance-go/internal/store"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

type DeviceFixtures struct {
	Devices []models.MintRequest `yaml:"devices"`
}

// LoadDeviceFixtures reads the seed devices from a YAML file. Relative paths
// are resolved against the working directory.
func LoadDeviceFixtures(fixturesFile string) ([]models.MintRequest, error) {
	var fixturesPath string
	if filepath.IsAbs(fixturesFile) {
		fixturesPath = fixturesFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		fixturesPath = filepath.Join(wd, fixturesFile)
	}

	data, err := os.ReadFile(fixturesPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", fixturesFile, err)
	}

	var fixtures DeviceFixtures
	if err := yaml.Unmarshal(data, &fixtures); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", fixturesFile, err)
	}

	seen := make(map[string]int, len(fixtures.Devices))
	for i, device := range fixtures.Devices {
		err := store.ValidateMint(store.MintParams{
			Imei:         device.Imei,
			Model:        device.Model,
			Manufacturer: device.Manufacturer,
			Owner:        device.Owner,
		})
		if err != nil {
			return nil, fmt.Errorf("device at index %d: %w", i, err)
		}
		if prev, ok := seen[device.Imei]; ok {
			return nil, fmt.Errorf("device at index %d repeats imei %s from index %d", i, device.Imei, prev)
		}
		seen[device.Imei] = i
	}

	return fixtures.Devices, nil
}

// SeedResult counts what SeedDevices did.
type SeedResult struct {
	Minted  int
	Skipped int
	Failed  int
}

// SeedDevices mints every fixture, skipping devices already on the ledger so
// the seed can be rerun safely.
func SeedDevices(ctx context.Context, svc *api.LedgerService, devices []models.MintRequest) SeedResult {
	var result SeedResult
	for _, device := range devices {
		rec, err := svc.Mint(ctx, device)
		switch {
		case errors.Is(err, store.ErrDuplicateIdentifier):
			result.Skipped++
			zap.L().Info("Device already registered", zap.String("imei", device.Imei))
		case err != nil:
			result.Failed++
			zap.L().Error("Failed to seed device",
				zap.String("imei", device.Imei),
				zap.Error(err))
		default:
			result.Minted++
			zap.L().Info("Seeded device",
				zap.String("imei", rec.Imei),
				zap.String("owner", rec.CurrentOwner))
		}
	}
	return result
}
