package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"chaintrack-provenance-go/internal/models"
	"chaintrack-provenance-go/internal/store"
	"chaintrack-provenance-go/internal/store/storetest"
)

// setupTestDb opens a file-backed database; every connection in the pool
// has to see the same data, which ":memory:" does not give.
func setupTestDb(t *testing.T) *Service {
	t.Helper()
	service, err := NewService(context.Background(), models.DatabaseConfig{
		Path:            filepath.Join(t.TempDir(), "ledger.db"),
		MaxOpenConns:    8,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
		ConnMaxIdleTime: time.Minute,
		PingTimeout:     time.Second,
		BusyTimeout:     10 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(service.Close)
	return service
}

func TestLedgerStoreBehaviour(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.LedgerStore {
		return setupTestDb(t)
	})
}

func TestNewService_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  models.DatabaseConfig
	}{
		{"empty path", models.DatabaseConfig{MaxOpenConns: 1, PingTimeout: time.Second}},
		{"no connections", models.DatabaseConfig{Path: "x.db", PingTimeout: time.Second}},
		{"negative idle", models.DatabaseConfig{Path: "x.db", MaxOpenConns: 1, MaxIdleConns: -1, PingTimeout: time.Second}},
		{"no ping timeout", models.DatabaseConfig{Path: "x.db", MaxOpenConns: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewService(context.Background(), tt.cfg); err == nil {
				t.Error("Expected configuration error, got nil")
			}
		})
	}
}

func TestReadsDoNotWaitForWriter(t *testing.T) {
	service, err := NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "locked.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		PingTimeout:  time.Second,
		BusyTimeout:  200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer service.Close()
	ctx := context.Background()

	if _, err := service.Mint(ctx, store.MintParams{Imei: "1", Model: "M", Manufacturer: "F", Owner: storetest.Addr(1)}); err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	// an open write transaction holds the database write lock
	writer, err := service.db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx failed: %v", err)
	}
	defer writer.Rollback()

	start := time.Now()
	rec, err := service.GetDevice(ctx, "1")
	if err != nil {
		t.Fatalf("Expected lookup to succeed while a writer holds the lock, got %v", err)
	}
	if len(rec.History) != 1 {
		t.Errorf("Expected 1 history entry, got %d", len(rec.History))
	}
	if _, err := service.GetDevice(ctx, "2"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown imei, got %v", err)
	}
	if _, err := service.ListRecent(ctx, "", store.PageSize); err != nil {
		t.Errorf("Expected ListRecent to succeed, got %v", err)
	}
	if _, err := service.Counts(ctx); err != nil {
		t.Errorf("Expected Counts to succeed, got %v", err)
	}
	if elapsed := time.Since(start); elapsed >= 200*time.Millisecond {
		t.Errorf("Expected reads not to wait for the busy timeout, took %s", elapsed)
	}
}

func TestConcurrentMintsKeepCreationOrder(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	const devices = 20
	var wg sync.WaitGroup
	for i := 0; i < devices; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			imei := fmt.Sprintf("%015d", i)
			if _, err := service.Mint(ctx, store.MintParams{Imei: imei, Model: "M", Manufacturer: "F", Owner: storetest.Addr(1)}); err != nil {
				t.Errorf("Mint %s failed: %v", imei, err)
			}
		}(i)
	}
	wg.Wait()

	var listed []models.DeviceSummary
	token := ""
	for {
		page, err := service.ListRecent(ctx, token, store.PageSize)
		if err != nil {
			t.Fatalf("ListRecent failed: %v", err)
		}
		listed = append(listed, page.Devices...)
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}
	if len(listed) != devices {
		t.Fatalf("Expected %d devices, got %d", devices, len(listed))
	}
	for i := 1; i < len(listed); i++ {
		if listed[i].CreatedAt.After(listed[i-1].CreatedAt) {
			t.Errorf("Position %d: created_at %v is newer than the previous entry %v",
				i, listed[i].CreatedAt, listed[i-1].CreatedAt)
		}
	}
}

func TestSchemaIsIdempotent(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	if _, err := service.Mint(ctx, store.MintParams{Imei: "1", Model: "M", Manufacturer: "F", Owner: storetest.Addr(1)}); err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	if err := service.initSchema(ctx); err != nil {
		t.Fatalf("Re-running schema failed: %v", err)
	}
	if _, err := service.GetDevice(ctx, "1"); err != nil {
		t.Errorf("Expected device to survive schema re-run, got %v", err)
	}
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	cfg := models.DatabaseConfig{Path: path, MaxOpenConns: 2, PingTimeout: time.Second, BusyTimeout: time.Second}
	ctx := context.Background()

	first, err := NewService(ctx, cfg)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	if _, err := first.Mint(ctx, store.MintParams{Imei: "358402100159201", Model: "IPHONE 16 ULTRA", Manufacturer: "CHAIN_MFG_LTD", Owner: storetest.Addr(1)}); err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	if _, err := first.Transfer(ctx, store.TransferParams{Imei: "358402100159201", NewOwner: storetest.Addr(2), InitiatedBy: storetest.Addr(1), RequireOwner: true}); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	first.Close()

	second, err := NewService(ctx, cfg)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer second.Close()

	rec, err := second.GetDevice(ctx, "358402100159201")
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if len(rec.History) != 2 {
		t.Fatalf("Expected 2 history entries, got %d", len(rec.History))
	}
	if rec.CurrentOwner != storetest.Addr(2) {
		t.Errorf("Expected owner %s, got %s", storetest.Addr(2), rec.CurrentOwner)
	}
}

func TestEventsSince(t *testing.T) {
	service := setupTestDb(t)
	ctx := context.Background()

	if _, err := service.Mint(ctx, store.MintParams{Imei: "1", Model: "M", Manufacturer: "F", Owner: storetest.Addr(1)}); err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	if _, err := service.UpdateStatus(ctx, store.StatusParams{Imei: "1", Status: models.StatusInRetail, InitiatedBy: storetest.Addr(1), RequireOwner: true}); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	events, err := service.EventsSince(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("EventsSince failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].Action != models.ActionMintGenesis {
		t.Errorf("Expected mint first, got %s", events[0].Action)
	}
	if events[1].Status != models.StatusInRetail {
		t.Errorf("Expected status event to carry %s, got %q", models.StatusInRetail, events[1].Status)
	}
	if events[1].Model != "M" || events[1].Imei != "1" {
		t.Errorf("Expected device fields on event, got %+v", events[1])
	}
}

func TestClassifyError(t *testing.T) {
	err := classifyError(context.DeadlineExceeded, "query")
	if !errors.Is(err, store.ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", err)
	}
	err = classifyError(context.Canceled, "query")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled to be preserved, got %v", err)
	}
}
