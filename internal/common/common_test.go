package common

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chaintrack-provenance-go/internal/api"
	"chaintrack-provenance-go/internal/config"
	"chaintrack-provenance-go/internal/memory"
	"chaintrack-provenance-go/internal/models"
	"chaintrack-provenance-go/internal/store"
)

const fixtureOwner = "0x71c7656ec7ab88b098defb751b7401b5f6d8976f"

func writeFixtures(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devices.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("Failed to write fixtures: %v", err)
	}
	return path
}

func TestLoadDeviceFixtures(t *testing.T) {
	path := writeFixtures(t, `
devices:
  - imei: "358402100159201"
    model: IPHONE 16 ULTRA
    manufacturer: CHAIN_MFG_LTD
    owner: "`+fixtureOwner+`"
  - imei: "358402100159202"
    model: PIXEL 10
    manufacturer: CHAIN_MFG_LTD
    owner: "`+fixtureOwner+`"
`)

	devices, err := LoadDeviceFixtures(path)
	if err != nil {
		t.Fatalf("LoadDeviceFixtures failed: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("Expected 2 devices, got %d", len(devices))
	}
	if devices[0].Model != "IPHONE 16 ULTRA" || devices[1].Imei != "358402100159202" {
		t.Errorf("Unexpected devices: %+v", devices)
	}
}

func TestLoadDeviceFixtures_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed yaml", "devices: [", "unable to parse"},
		{"missing model", `devices:
  - imei: "358402100159201"
    manufacturer: CHAIN_MFG_LTD
    owner: "` + fixtureOwner + `"`, "index 0"},
		{"bad owner", `devices:
  - imei: "358402100159201"
    model: X
    manufacturer: CHAIN_MFG_LTD
    owner: bob`, "index 0"},
		{"repeated imei", `devices:
  - {imei: "358402100159201", model: X, manufacturer: M, owner: "` + fixtureOwner + `"}
  - {imei: "358402100159201", model: Y, manufacturer: M, owner: "` + fixtureOwner + `"}`, "repeats imei"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadDeviceFixtures(writeFixtures(t, tt.body))
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}

	if _, err := LoadDeviceFixtures(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestSeedDevicesIsRerunnable(t *testing.T) {
	svc := api.NewLedgerService(memory.NewService(), models.LedgerConfig{OperationTimeout: time.Second})
	devices := []models.MintRequest{
		{Imei: "358402100159201", Model: "IPHONE 16 ULTRA", Manufacturer: "CHAIN_MFG_LTD", Owner: fixtureOwner},
		{Imei: "358402100159202", Model: "PIXEL 10", Manufacturer: "CHAIN_MFG_LTD", Owner: fixtureOwner},
	}

	first := SeedDevices(context.Background(), svc, devices)
	if first.Minted != 2 || first.Skipped != 0 || first.Failed != 0 {
		t.Errorf("Expected 2 minted on first run, got %+v", first)
	}

	second := SeedDevices(context.Background(), svc, devices)
	if second.Minted != 0 || second.Skipped != 2 {
		t.Errorf("Expected 2 skipped on second run, got %+v", second)
	}
}

func TestOpenBackend(t *testing.T) {
	cfg := &models.Config{}
	ledger, err := OpenBackend(context.Background(), cfg, config.BackendMemory)
	if err != nil {
		t.Fatalf("OpenBackend failed: %v", err)
	}
	defer ledger.Close()

	if _, err := OpenBackend(context.Background(), cfg, "postgres"); err == nil {
		t.Error("Expected error for unknown backend")
	}
	if _, err := OpenBackend(context.Background(), cfg, config.BackendFormance); err == nil {
		t.Error("Expected error for formance backend without credentials")
	}
}

func TestOpenMirror(t *testing.T) {
	cfg := &models.Config{
		Ledger:   models.LedgerConfig{Backend: config.BackendMemory},
		Listener: models.ListenerConfig{MirrorBackend: config.BackendMemory},
	}
	source := memory.NewService()
	if _, _, err := OpenMirror(context.Background(), cfg, source); err == nil {
		t.Error("Expected error when mirror equals source")
	}

	cfg.Ledger.Backend = config.BackendSQLite
	feed, mirror, err := OpenMirror(context.Background(), cfg, source)
	if err != nil {
		t.Fatalf("OpenMirror failed: %v", err)
	}
	defer mirror.Close()
	if _, err := feed.EventsSince(context.Background(), time.Time{}); err != nil {
		t.Errorf("EventsSince failed: %v", err)
	}
	if _, err := mirror.GetDevice(context.Background(), "358402100159201"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected empty mirror, got %v", err)
	}
}

func TestShortAddress(t *testing.T) {
	if got := ShortAddress(fixtureOwner); got != "0x71c7...976f" {
		t.Errorf("Expected 0x71c7...976f, got %s", got)
	}
	if got := ShortAddress("0x00"); got != "0x00" {
		t.Errorf("Expected short input unchanged, got %s", got)
	}
}
