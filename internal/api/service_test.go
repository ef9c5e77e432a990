package api

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"chaintrack-provenance-go/internal/memory"
	"chaintrack-provenance-go/internal/models"
	"chaintrack-provenance-go/internal/store"
	"chaintrack-provenance-go/internal/store/storetest"
)

const (
	scenarioImei  = "358402100159201"
	scenarioOwner = "0x71c7656ec7ab88b098defb751b7401b5f6d8976f"
)

func newTestService(enforceOwner bool) *LedgerService {
	return NewLedgerService(memory.NewService(), models.LedgerConfig{
		OperationTimeout: time.Second,
		EnforceOwner:     enforceOwner,
	})
}

func mintScenario(t *testing.T, s *LedgerService) *models.DeviceRecord {
	t.Helper()
	rec, err := s.Mint(context.Background(), models.MintRequest{
		Imei:         scenarioImei,
		Model:        "IPHONE 16 ULTRA",
		Manufacturer: "CHAIN_MFG_LTD",
		Owner:        scenarioOwner,
	})
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	return rec
}

func TestMintAndLookup(t *testing.T) {
	s := newTestService(true)
	mintScenario(t, s)

	rec, err := s.Lookup(context.Background(), scenarioImei)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if rec.Model != "IPHONE 16 ULTRA" {
		t.Errorf("Expected model IPHONE 16 ULTRA, got %s", rec.Model)
	}
	if rec.Status != models.StatusManufactured {
		t.Errorf("Expected status %s, got %s", models.StatusManufactured, rec.Status)
	}
	if len(rec.History) != 1 || rec.History[0].From != store.GenesisAddress {
		t.Errorf("Expected single genesis entry, got %+v", rec.History)
	}

	if _, err := s.Lookup(context.Background(), "000000000000000"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestMintDuplicate(t *testing.T) {
	s := newTestService(true)
	mintScenario(t, s)

	_, err := s.Mint(context.Background(), models.MintRequest{
		Imei: scenarioImei, Model: "OTHER", Manufacturer: "OTHER", Owner: storetest.Addr(9),
	})
	if !errors.Is(err, store.ErrDuplicateIdentifier) {
		t.Fatalf("Expected ErrDuplicateIdentifier, got %v", err)
	}
	rec, _ := s.Lookup(context.Background(), scenarioImei)
	if rec.Model != "IPHONE 16 ULTRA" || rec.CurrentOwner != scenarioOwner {
		t.Errorf("Expected original record unchanged, got %+v", rec)
	}
}

func TestMintValidation(t *testing.T) {
	s := newTestService(true)
	tests := []struct {
		name string
		req  models.MintRequest
		want error
	}{
		{"missing imei", models.MintRequest{Model: "M", Manufacturer: "F", Owner: scenarioOwner}, store.ErrInvalidInput},
		{"missing model", models.MintRequest{Imei: "1", Manufacturer: "F", Owner: scenarioOwner}, store.ErrInvalidInput},
		{"bad owner", models.MintRequest{Imei: "1", Model: "M", Manufacturer: "F", Owner: "alice"}, store.ErrInvalidIdentifier},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Mint(context.Background(), tt.req); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestTransfer(t *testing.T) {
	s := newTestService(true)
	mintScenario(t, s)
	newOwner := storetest.Addr(2)

	rec, err := s.Transfer(context.Background(), scenarioImei, models.TransferRequest{NewOwner: newOwner, InitiatedBy: scenarioOwner})
	if err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if rec.CurrentOwner != newOwner {
		t.Errorf("Expected owner %s, got %s", newOwner, rec.CurrentOwner)
	}
	if rec.Status != models.StatusDistributed {
		t.Errorf("Expected status %s, got %s", models.StatusDistributed, rec.Status)
	}
	last := rec.History[len(rec.History)-1]
	if last.From != scenarioOwner || last.To != newOwner || last.Action != models.ActionTransferOwnership {
		t.Errorf("Unexpected last entry: %+v", last)
	}
}

func TestTransferOwnership(t *testing.T) {
	tests := []struct {
		name        string
		enforce     bool
		initiatedBy string
		want        error
	}{
		{"owner", true, scenarioOwner, nil},
		{"owner different case", true, "0x71C7656EC7AB88B098DEFB751B7401B5F6D8976F", nil},
		{"stranger", true, storetest.Addr(5), store.ErrNotAuthorized},
		{"missing initiator", true, "", store.ErrNotAuthorized},
		{"malformed initiator", true, "bob", store.ErrNotAuthorized},
		{"not enforced", false, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService(tt.enforce)
			mintScenario(t, s)
			_, err := s.Transfer(context.Background(), scenarioImei, models.TransferRequest{NewOwner: storetest.Addr(2), InitiatedBy: tt.initiatedBy})
			if tt.want == nil && err != nil {
				t.Fatalf("Expected success, got %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestTransferRejectsRecipientFirst(t *testing.T) {
	s := newTestService(true)
	_, err := s.Transfer(context.Background(), "unknown", models.TransferRequest{NewOwner: "not-an-address", InitiatedBy: scenarioOwner})
	if !errors.Is(err, store.ErrInvalidIdentifier) {
		t.Errorf("Expected ErrInvalidIdentifier, got %v", err)
	}

	_, err = s.Transfer(context.Background(), "unknown", models.TransferRequest{NewOwner: storetest.Addr(2), InitiatedBy: scenarioOwner})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestTransferUnknownDeviceBeforeOwnerCheck(t *testing.T) {
	s := newTestService(true)
	for _, initiatedBy := range []string{"bob", "", "0x12"} {
		_, err := s.Transfer(context.Background(), "358402100159299", models.TransferRequest{NewOwner: storetest.Addr(2), InitiatedBy: initiatedBy})
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("initiated_by %q: expected ErrNotFound, got %v", initiatedBy, err)
		}
	}
}

func TestHistoryOrder(t *testing.T) {
	s := newTestService(true)
	mintScenario(t, s)
	if _, err := s.Transfer(context.Background(), scenarioImei, models.TransferRequest{NewOwner: storetest.Addr(2), InitiatedBy: scenarioOwner}); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}

	asc, err := s.History(context.Background(), scenarioImei, OrderAsc)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if asc[0].Action != models.ActionMintGenesis {
		t.Errorf("Expected genesis first in asc order, got %s", asc[0].Action)
	}

	desc, err := s.History(context.Background(), scenarioImei, OrderDesc)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if desc[0].Action != models.ActionTransferOwnership || desc[1].Action != models.ActionMintGenesis {
		t.Errorf("Expected newest first in desc order, got %+v", desc)
	}

	def, err := s.History(context.Background(), scenarioImei, "")
	if err != nil || def[0].Action != models.ActionMintGenesis {
		t.Errorf("Expected default order to be asc, got %+v (%v)", def, err)
	}

	if _, err := s.History(context.Background(), scenarioImei, "sideways"); !errors.Is(err, store.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
	if _, err := s.History(context.Background(), "000000000000000", OrderAsc); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestAdvance(t *testing.T) {
	s := newTestService(true)
	mintScenario(t, s)
	ctx := context.Background()

	rec, err := s.Advance(ctx, scenarioImei, models.StatusRequest{Status: models.StatusInRetail, InitiatedBy: scenarioOwner})
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if rec.Status != models.StatusInRetail {
		t.Errorf("Expected status %s, got %s", models.StatusInRetail, rec.Status)
	}
	last := rec.History[len(rec.History)-1]
	if last.Action != models.ActionStatusUpdate || last.To != scenarioOwner {
		t.Errorf("Unexpected status entry: %+v", last)
	}

	if _, err := s.Advance(ctx, scenarioImei, models.StatusRequest{Status: models.StatusInRetail, InitiatedBy: scenarioOwner}); !errors.Is(err, store.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for same status, got %v", err)
	}
	if _, err := s.Advance(ctx, scenarioImei, models.StatusRequest{Status: models.StatusDistributed, InitiatedBy: scenarioOwner}); !errors.Is(err, store.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for Distributed, got %v", err)
	}
	if _, err := s.Advance(ctx, scenarioImei, models.StatusRequest{Status: models.StatusCustomerOwned, InitiatedBy: storetest.Addr(7)}); !errors.Is(err, store.ErrNotAuthorized) {
		t.Errorf("Expected ErrNotAuthorized, got %v", err)
	}
}

func TestListRecent(t *testing.T) {
	s := newTestService(true)
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		if _, err := s.Mint(ctx, models.MintRequest{Imei: fmt.Sprintf("%015d", i), Model: "M", Manufacturer: "F", Owner: storetest.Addr(1)}); err != nil {
			t.Fatalf("Mint %d failed: %v", i, err)
		}
	}

	first, err := s.ListRecent(ctx, "")
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(first.Devices) != store.PageSize || first.NextPageToken == "" {
		t.Fatalf("Expected full first page with token, got %d devices, token %q", len(first.Devices), first.NextPageToken)
	}
	if first.Devices[0].Imei != fmt.Sprintf("%015d", 11) {
		t.Errorf("Expected newest device first, got %s", first.Devices[0].Imei)
	}

	second, err := s.ListRecent(ctx, first.NextPageToken)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(second.Devices) != 2 || second.NextPageToken != "" {
		t.Errorf("Expected last page of 2, got %d devices, token %q", len(second.Devices), second.NextPageToken)
	}

	if _, err := s.ListRecent(ctx, "%%%"); !errors.Is(err, store.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for bad token, got %v", err)
	}
}

func TestDevicesByOwner(t *testing.T) {
	s := newTestService(true)
	mintScenario(t, s)

	devices, err := s.DevicesByOwner(context.Background(), "0x71C7656EC7AB88B098DEFB751B7401B5F6D8976F")
	if err != nil {
		t.Fatalf("DevicesByOwner failed: %v", err)
	}
	if len(devices) != 1 || devices[0].Imei != scenarioImei {
		t.Errorf("Expected the scenario device, got %+v", devices)
	}

	if _, err := s.DevicesByOwner(context.Background(), "nobody"); !errors.Is(err, store.ErrInvalidIdentifier) {
		t.Errorf("Expected ErrInvalidIdentifier, got %v", err)
	}
}

func TestStats(t *testing.T) {
	s := newTestService(true)
	ctx := context.Background()

	empty, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if empty.TotalDevices != 0 || !empty.DistributedShare.IsZero() {
		t.Errorf("Expected empty stats, got %+v", empty)
	}

	for i := 1; i <= 3; i++ {
		if _, err := s.Mint(ctx, models.MintRequest{Imei: fmt.Sprint(i), Model: "M", Manufacturer: "F", Owner: storetest.Addr(1)}); err != nil {
			t.Fatalf("Mint failed: %v", err)
		}
	}
	if _, err := s.Transfer(ctx, "1", models.TransferRequest{NewOwner: storetest.Addr(2), InitiatedBy: storetest.Addr(1)}); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalDevices != 3 {
		t.Errorf("Expected 3 devices, got %d", stats.TotalDevices)
	}
	if stats.DistinctOwners != 2 {
		t.Errorf("Expected 2 owners, got %d", stats.DistinctOwners)
	}
	if stats.ByStatus[models.StatusDistributed] != 1 || stats.ByStatus[models.StatusManufactured] != 2 {
		t.Errorf("Unexpected status counts: %v", stats.ByStatus)
	}
	if _, ok := stats.ByStatus[models.StatusCustomerOwned]; !ok {
		t.Error("Expected every status to be present in the breakdown")
	}
	if got := stats.DistributedShare.String(); got != "0.3333" {
		t.Errorf("Expected distributed share 0.3333, got %s", got)
	}
}

// blockingStore never answers lookups until the caller gives up.
type blockingStore struct {
	store.LedgerStore
}

func (b blockingStore) GetDevice(ctx context.Context, _ string) (*models.DeviceRecord, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestOperationTimeout(t *testing.T) {
	s := NewLedgerService(blockingStore{memory.NewService()}, models.LedgerConfig{OperationTimeout: 20 * time.Millisecond})

	_, err := s.Lookup(context.Background(), scenarioImei)
	if !errors.Is(err, store.ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	s := newTestService(true)
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("Expected healthy ledger, got %v", err)
	}
}
