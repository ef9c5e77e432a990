// Package storetest holds the behaviour every store.LedgerStore backend
// must show, run by each backend's own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"chaintrack-provenance-go/internal/models"
	"chaintrack-provenance-go/internal/store"
)

// Factory returns an empty backend; cleanup is registered on t.
type Factory func(t *testing.T) store.LedgerStore

// Addr returns a deterministic lowercase test address.
func Addr(n int) string {
	return fmt.Sprintf("0x%040x", n)
}

// Run executes the full behaviour suite against fresh backends.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.LedgerStore)
	}{
		{"MintThenLookup", testMintThenLookup},
		{"DuplicateMint", testDuplicateMint},
		{"MintValidation", testMintValidation},
		{"Transfer", testTransfer},
		{"TransferUnknownDevice", testTransferUnknownDevice},
		{"TransferInvalidRecipient", testTransferInvalidRecipient},
		{"TransferOwnerOnly", testTransferOwnerOnly},
		{"TransferRoundTrip", testTransferRoundTrip},
		{"UnknownLookup", testUnknownLookup},
		{"ConcurrentDuplicateMint", testConcurrentDuplicateMint},
		{"ConcurrentTransfers", testConcurrentTransfers},
		{"Pagination", testPagination},
		{"PaginationWithConcurrentMints", testPaginationWithConcurrentMints},
		{"ListByOwner", testListByOwner},
		{"Counts", testCounts},
		{"UpdateStatus", testUpdateStatus},
		{"CancelledBeforeCommit", testCancelledBeforeCommit},
		{"ReturnsCopies", testReturnsCopies},
		{"Replay", testReplay},
		{"DeviceEvents", testDeviceEvents},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func mint(t *testing.T, s store.LedgerStore, imei string, owner string) *models.DeviceRecord {
	t.Helper()
	rec, err := s.Mint(context.Background(), store.MintParams{
		Imei:         imei,
		Model:        "MODEL-" + imei,
		Manufacturer: "CHAIN_MFG_LTD",
		Owner:        owner,
	})
	if err != nil {
		t.Fatalf("Mint(%s) failed: %v", imei, err)
	}
	return rec
}

func checkInvariants(t *testing.T, rec *models.DeviceRecord) {
	t.Helper()
	if len(rec.History) == 0 {
		t.Fatalf("Expected non-empty history for %s", rec.Imei)
	}
	if rec.History[0].Action != models.ActionMintGenesis {
		t.Errorf("Expected first action %s, got %s", models.ActionMintGenesis, rec.History[0].Action)
	}
	if rec.History[0].From != store.GenesisAddress {
		t.Errorf("Expected genesis sender %s, got %s", store.GenesisAddress, rec.History[0].From)
	}
	if last := rec.History[len(rec.History)-1]; !store.SameAddress(last.To, rec.CurrentOwner) {
		t.Errorf("Expected current owner %s to equal last recipient %s", rec.CurrentOwner, last.To)
	}
	for i := 1; i < len(rec.History); i++ {
		if rec.History[i].Timestamp.Before(rec.History[i-1].Timestamp) {
			t.Errorf("History timestamps decrease at %d", i)
		}
		if !store.SameAddress(rec.History[i].From, rec.History[i-1].To) {
			t.Errorf("History chain broken at %d: from %s, previous to %s", i, rec.History[i].From, rec.History[i-1].To)
		}
	}
}

func testMintThenLookup(t *testing.T, s store.LedgerStore) {
	ctx := context.Background()
	owner := "0x71c7656ec7ab88b098defb751b7401b5f6d8976f"

	created, err := s.Mint(ctx, store.MintParams{
		Imei:         "358402100159201",
		Model:        "IPHONE 16 ULTRA",
		Manufacturer: "CHAIN_MFG_LTD",
		Owner:        owner,
	})
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	if created.Id == "" {
		t.Error("Expected an id to be assigned")
	}

	rec, err := s.GetDevice(ctx, "358402100159201")
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if rec.Model != "IPHONE 16 ULTRA" {
		t.Errorf("Expected model IPHONE 16 ULTRA, got %s", rec.Model)
	}
	if rec.Manufacturer != "CHAIN_MFG_LTD" {
		t.Errorf("Expected manufacturer CHAIN_MFG_LTD, got %s", rec.Manufacturer)
	}
	if rec.Status != models.StatusManufactured {
		t.Errorf("Expected status %s, got %s", models.StatusManufactured, rec.Status)
	}
	if !store.SameAddress(rec.CurrentOwner, owner) {
		t.Errorf("Expected owner %s, got %s", owner, rec.CurrentOwner)
	}
	if len(rec.History) != 1 {
		t.Fatalf("Expected 1 history entry, got %d", len(rec.History))
	}
	if rec.History[0].TxHash == "" || rec.History[0].TxHash != created.History[0].TxHash {
		t.Errorf("Expected stable tx hash, got %q and %q", created.History[0].TxHash, rec.History[0].TxHash)
	}
	if rec.Id != created.Id {
		t.Errorf("Expected id %s, got %s", created.Id, rec.Id)
	}
	checkInvariants(t, rec)
}

func testDuplicateMint(t *testing.T, s store.LedgerStore) {
	ctx := context.Background()
	original := mint(t, s, "111111111111111", Addr(1))

	_, err := s.Mint(ctx, store.MintParams{Imei: "111111111111111", Model: "OTHER", Manufacturer: "OTHER", Owner: Addr(2)})
	if !errors.Is(err, store.ErrDuplicateIdentifier) {
		t.Fatalf("Expected ErrDuplicateIdentifier, got %v", err)
	}

	rec, err := s.GetDevice(ctx, "111111111111111")
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if rec.Model != original.Model || !store.SameAddress(rec.CurrentOwner, Addr(1)) || len(rec.History) != 1 {
		t.Errorf("Existing record changed after duplicate mint: %+v", rec)
	}
}

func testMintValidation(t *testing.T, s store.LedgerStore) {
	ctx := context.Background()
	cases := []struct {
		params store.MintParams
		want   error
	}{
		{store.MintParams{Imei: "", Model: "M", Manufacturer: "F", Owner: Addr(1)}, store.ErrInvalidInput},
		{store.MintParams{Imei: "1", Model: "", Manufacturer: "F", Owner: Addr(1)}, store.ErrInvalidInput},
		{store.MintParams{Imei: "1", Model: "M", Manufacturer: "F", Owner: "nobody"}, store.ErrInvalidIdentifier},
	}
	for _, c := range cases {
		if _, err := s.Mint(ctx, c.params); !errors.Is(err, c.want) {
			t.Errorf("Mint(%+v): expected %v, got %v", c.params, c.want, err)
		}
	}
	if _, err := s.GetDevice(ctx, "1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected no record after rejected mints, got %v", err)
	}
}

func testTransfer(t *testing.T, s store.LedgerStore) {
	ctx := context.Background()
	mint(t, s, "358402100159201", Addr(1))

	rec, err := s.Transfer(ctx, store.TransferParams{Imei: "358402100159201", NewOwner: Addr(2), InitiatedBy: Addr(1), RequireOwner: true})
	if err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if !store.SameAddress(rec.CurrentOwner, Addr(2)) {
		t.Errorf("Expected owner %s, got %s", Addr(2), rec.CurrentOwner)
	}
	if rec.Status != models.StatusDistributed {
		t.Errorf("Expected status %s, got %s", models.StatusDistributed, rec.Status)
	}
	if len(rec.History) != 2 {
		t.Fatalf("Expected 2 history entries, got %d", len(rec.History))
	}
	last := rec.History[1]
	if last.Action != models.ActionTransferOwnership {
		t.Errorf("Expected action %s, got %s", models.ActionTransferOwnership, last.Action)
	}
	if !store.SameAddress(last.From, Addr(1)) || !store.SameAddress(last.To, Addr(2)) {
		t.Errorf("Expected %s -> %s, got %s -> %s", Addr(1), Addr(2), last.From, last.To)
	}
	if last.TxHash == rec.History[0].TxHash {
		t.Error("Expected a fresh tx hash for the transfer")
	}

	stored, err := s.GetDevice(ctx, "358402100159201")
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if len(stored.History) != 2 || !store.SameAddress(stored.CurrentOwner, Addr(2)) {
		t.Errorf("Transfer not persisted: %+v", stored)
	}
	checkInvariants(t, stored)
}

func testTransferUnknownDevice(t *testing.T, s store.LedgerStore) {
	ctx := context.Background()
	_, err := s.Transfer(ctx, store.TransferParams{Imei: "999999999999999", NewOwner: Addr(2), InitiatedBy: Addr(1)})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetDevice(ctx, "999999999999999"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected no record to be created, got %v", err)
	}
}

func testTransferInvalidRecipient(t *testing.T, s store.LedgerStore) {
	ctx := context.Background()
	mint(t, s, "222222222222222", Addr(1))

	_, err := s.Transfer(ctx, store.TransferParams{Imei: "222222222222222", NewOwner: "0x1234", InitiatedBy: Addr(1), RequireOwner: true})
	if !errors.Is(err, store.ErrInvalidIdentifier) {
		t.Fatalf("Expected ErrInvalidIdentifier, got %v", err)
	}
	_, err = s.Transfer(ctx, store.TransferParams{Imei: "000000000000000", NewOwner: "0x1234", InitiatedBy: Addr(1)})
	if !errors.Is(err, store.ErrInvalidIdentifier) {
		t.Fatalf("Expected recipient to be checked before lookup, got %v", err)
	}

	rec, err := s.GetDevice(ctx, "222222222222222")
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if len(rec.History) != 1 || !store.SameAddress(rec.CurrentOwner, Addr(1)) {
		t.Errorf("Record changed after rejected transfer: %+v", rec)
	}
}

func testTransferOwnerOnly(t *testing.T, s store.LedgerStore) {
	ctx := context.Background()
	mint(t, s, "333333333333333", Addr(1))

	_, err := s.Transfer(ctx, store.TransferParams{Imei: "333333333333333", NewOwner: Addr(3), InitiatedBy: Addr(2), RequireOwner: true})
	if !errors.Is(err, store.ErrNotAuthorized) {
		t.Fatalf("Expected ErrNotAuthorized, got %v", err)
	}

	rec, err := s.Transfer(ctx, store.TransferParams{Imei: "333333333333333", NewOwner: Addr(3), InitiatedBy: Addr(2), RequireOwner: false})
	if err != nil {
		t.Fatalf("Expected permissive transfer to succeed, got %v", err)
	}
	if !store.SameAddress(rec.CurrentOwner, Addr(3)) {
		t.Errorf("Expected owner %s, got %s", Addr(3), rec.CurrentOwner)
	}
	if !store.SameAddress(rec.History[1].From, Addr(1)) {
		t.Errorf("Expected transfer recorded from the previous owner, got %s", rec.History[1].From)
	}
}

func testTransferRoundTrip(t *testing.T, s store.LedgerStore) {
	ctx := context.Background()
	const n = 6
	mint(t, s, "444444444444444", Addr(1))

	for i := 0; i < n; i++ {
		_, err := s.Transfer(ctx, store.TransferParams{
			Imei:         "444444444444444",
			NewOwner:     Addr(i + 2),
			InitiatedBy:  Addr(i + 1),
			RequireOwner: true,
		})
		if err != nil {
			t.Fatalf("Transfer %d failed: %v", i, err)
		}
	}

	rec, err := s.GetDevice(ctx, "444444444444444")
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if len(rec.History) != n+1 {
		t.Fatalf("Expected %d history entries, got %d", n+1, len(rec.History))
	}
	if !store.SameAddress(rec.CurrentOwner, Addr(n+1)) {
		t.Errorf("Expected owner %s, got %s", Addr(n+1), rec.CurrentOwner)
	}
	for i, tx := range rec.History {
		if !store.SameAddress(tx.To, Addr(i+1)) {
			t.Errorf("History[%d].To = %s, want %s", i, tx.To, Addr(i+1))
		}
	}
	checkInvariants(t, rec)
}

func testUnknownLookup(t *testing.T, s store.LedgerStore) {
	_, err := s.GetDevice(context.Background(), "000000000000000")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func testConcurrentDuplicateMint(t *testing.T, s store.LedgerStore) {
	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := s.Mint(context.Background(), store.MintParams{
				Imei:         "555555555555555",
				Model:        fmt.Sprintf("MODEL-%d", i),
				Manufacturer: "CHAIN_MFG_LTD",
				Owner:        Addr(i + 1),
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else {
				failures = append(failures, err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if successes != 1 {
		t.Fatalf("Expected exactly 1 successful mint, got %d", successes)
	}
	for _, err := range failures {
		if !errors.Is(err, store.ErrDuplicateIdentifier) {
			t.Errorf("Expected ErrDuplicateIdentifier, got %v", err)
		}
	}

	rec, err := s.GetDevice(context.Background(), "555555555555555")
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	checkInvariants(t, rec)
}

func testConcurrentTransfers(t *testing.T, s store.LedgerStore) {
	const workers = 8
	mint(t, s, "666666666666666", Addr(1))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := s.Transfer(context.Background(), store.TransferParams{
				Imei:         "666666666666666",
				NewOwner:     Addr(100 + i),
				InitiatedBy:  Addr(1),
				RequireOwner: true,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, store.ErrNotAuthorized), errors.Is(err, store.ErrConflict):
			default:
				t.Errorf("Unexpected transfer error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if successes != 1 {
		t.Fatalf("Expected exactly 1 transfer by the original owner, got %d", successes)
	}
	rec, err := s.GetDevice(context.Background(), "666666666666666")
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if len(rec.History) != 2 {
		t.Errorf("Expected 2 history entries, got %d", len(rec.History))
	}
	checkInvariants(t, rec)
}

func collectPages(t *testing.T, s store.LedgerStore, between func(page int)) []models.DeviceSummary {
	t.Helper()
	var all []models.DeviceSummary
	token := ""
	for page := 0; ; page++ {
		p, err := s.ListRecent(context.Background(), token, store.PageSize)
		if err != nil {
			t.Fatalf("ListRecent failed: %v", err)
		}
		if len(p.Devices) > store.PageSize {
			t.Fatalf("Page %d has %d devices, limit is %d", page, len(p.Devices), store.PageSize)
		}
		all = append(all, p.Devices...)
		if p.NextPageToken == "" {
			return all
		}
		if between != nil {
			between(page)
		}
		token = p.NextPageToken
	}
}

func testPagination(t *testing.T, s store.LedgerStore) {
	const total = 25
	for i := 0; i < total; i++ {
		mint(t, s, fmt.Sprintf("7%014d", i), Addr(i+1))
	}

	all := collectPages(t, s, nil)
	if len(all) != total {
		t.Fatalf("Expected %d devices across pages, got %d", total, len(all))
	}
	seen := make(map[string]bool)
	for i, d := range all {
		if seen[d.Imei] {
			t.Errorf("Device %s returned twice", d.Imei)
		}
		seen[d.Imei] = true
		if want := fmt.Sprintf("7%014d", total-1-i); d.Imei != want {
			t.Errorf("Position %d: expected %s, got %s", i, want, d.Imei)
		}
	}

	if _, err := s.ListRecent(context.Background(), "not-a-token", store.PageSize); !errors.Is(err, store.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for malformed token, got %v", err)
	}
}

func testPaginationWithConcurrentMints(t *testing.T, s store.LedgerStore) {
	const total = 23
	for i := 0; i < total; i++ {
		mint(t, s, fmt.Sprintf("8%014d", i), Addr(i+1))
	}

	extra := 0
	all := collectPages(t, s, func(int) {
		mint(t, s, fmt.Sprintf("9%014d", extra), Addr(500+extra))
		extra++
	})

	seen := make(map[string]bool)
	for _, d := range all {
		if seen[d.Imei] {
			t.Errorf("Device %s returned twice", d.Imei)
		}
		seen[d.Imei] = true
	}
	for i := 0; i < total; i++ {
		if imei := fmt.Sprintf("8%014d", i); !seen[imei] {
			t.Errorf("Device %s skipped", imei)
		}
	}
	if len(all) != total {
		t.Errorf("Expected traversal to see only the %d devices present at start, got %d", total, len(all))
	}
}

func testListByOwner(t *testing.T, s store.LedgerStore) {
	ctx := context.Background()
	mint(t, s, "121212121212121", Addr(1))
	mint(t, s, "131313131313131", Addr(2))
	mint(t, s, "141414141414141", Addr(1))

	if _, err := s.Transfer(ctx, store.TransferParams{Imei: "121212121212121", NewOwner: Addr(2), InitiatedBy: Addr(1), RequireOwner: true}); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}

	mine, err := s.ListByOwner(ctx, Addr(2))
	if err != nil {
		t.Fatalf("ListByOwner failed: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("Expected 2 devices, got %d", len(mine))
	}
	if mine[0].Imei != "131313131313131" || mine[1].Imei != "121212121212121" {
		t.Errorf("Expected newest first, got %s, %s", mine[0].Imei, mine[1].Imei)
	}

	none, err := s.ListByOwner(ctx, Addr(99))
	if err != nil {
		t.Fatalf("ListByOwner failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("Expected no devices, got %d", len(none))
	}
}

func testCounts(t *testing.T, s store.LedgerStore) {
	ctx := context.Background()
	mint(t, s, "151515151515151", Addr(1))
	mint(t, s, "161616161616161", Addr(1))
	mint(t, s, "171717171717171", Addr(2))
	if _, err := s.Transfer(ctx, store.TransferParams{Imei: "151515151515151", NewOwner: Addr(3), InitiatedBy: Addr(1), RequireOwner: true}); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}

	counts, err := s.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts.TotalDevices != 3 {
		t.Errorf("Expected 3 devices, got %d", counts.TotalDevices)
	}
	if counts.DistinctOwners != 3 {
		t.Errorf("Expected 3 owners, got %d", counts.DistinctOwners)
	}
	if counts.ByStatus[models.StatusManufactured] != 2 || counts.ByStatus[models.StatusDistributed] != 1 {
		t.Errorf("Unexpected status counts: %v", counts.ByStatus)
	}
}

func testUpdateStatus(t *testing.T, s store.LedgerStore) {
	ctx := context.Background()
	mint(t, s, "181818181818181", Addr(1))

	_, err := s.UpdateStatus(ctx, store.StatusParams{Imei: "181818181818181", Status: models.StatusInRetail, InitiatedBy: Addr(2), RequireOwner: true})
	if !errors.Is(err, store.ErrNotAuthorized) {
		t.Fatalf("Expected ErrNotAuthorized, got %v", err)
	}

	rec, err := s.UpdateStatus(ctx, store.StatusParams{Imei: "181818181818181", Status: models.StatusInRetail, InitiatedBy: Addr(1), RequireOwner: true})
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if rec.Status != models.StatusInRetail {
		t.Errorf("Expected status %s, got %s", models.StatusInRetail, rec.Status)
	}
	last := rec.History[len(rec.History)-1]
	if last.Action != models.ActionStatusUpdate || last.Status != models.StatusInRetail {
		t.Errorf("Unexpected status entry: %+v", last)
	}
	checkInvariants(t, rec)

	_, err = s.UpdateStatus(ctx, store.StatusParams{Imei: "181818181818181", Status: models.StatusInRetail, InitiatedBy: Addr(1), RequireOwner: true})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for repeated status, got %v", err)
	}

	// a later transfer keeps the more advanced stage
	rec, err = s.Transfer(ctx, store.TransferParams{Imei: "181818181818181", NewOwner: Addr(2), InitiatedBy: Addr(1), RequireOwner: true})
	if err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if rec.Status != models.StatusInRetail {
		t.Errorf("Expected status to stay %s, got %s", models.StatusInRetail, rec.Status)
	}

	if _, err := s.UpdateStatus(ctx, store.StatusParams{Imei: "000000000000000", Status: models.StatusInRetail}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func testCancelledBeforeCommit(t *testing.T, s store.LedgerStore) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Mint(ctx, store.MintParams{Imei: "191919191919191", Model: "M", Manufacturer: "F", Owner: Addr(1)})
	if err == nil {
		t.Fatal("Expected cancelled mint to fail")
	}
	if _, err := s.GetDevice(context.Background(), "191919191919191"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected no record after cancelled mint, got %v", err)
	}
}

func testReturnsCopies(t *testing.T, s store.LedgerStore) {
	ctx := context.Background()
	rec := mint(t, s, "202020202020202", Addr(1))
	rec.History[0].To = Addr(9)
	rec.History = append(rec.History, models.Transaction{})
	rec.CurrentOwner = Addr(9)

	stored, err := s.GetDevice(ctx, "202020202020202")
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if len(stored.History) != 1 || !store.SameAddress(stored.CurrentOwner, Addr(1)) || !store.SameAddress(stored.History[0].To, Addr(1)) {
		t.Errorf("Stored record changed through a returned copy: %+v", stored)
	}
}

func testReplay(t *testing.T, s store.LedgerStore) {
	minted := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	ctx := models.WithReplayContext(context.Background(), &models.ReplayContext{
		TxHash:    "0x" + fmt.Sprintf("%064x", 1),
		Timestamp: minted,
		DeviceId:  "device-replayed",
	})
	rec, err := s.Mint(ctx, store.MintParams{Imei: "212121212121212", Model: "M", Manufacturer: "F", Owner: Addr(1)})
	if err != nil {
		t.Fatalf("Replayed mint failed: %v", err)
	}
	if rec.Id != "device-replayed" || rec.History[0].TxHash != fmt.Sprintf("0x%064x", 1) || !rec.CreatedAt.Equal(minted) {
		t.Errorf("Replayed mint lost its identity: %+v", rec)
	}

	transferCtx := models.WithReplayContext(context.Background(), &models.ReplayContext{
		TxHash:    fmt.Sprintf("0x%064x", 2),
		Timestamp: minted.Add(time.Minute),
	})
	params := store.TransferParams{Imei: "212121212121212", NewOwner: Addr(2), InitiatedBy: Addr(1), RequireOwner: true}
	if _, err := s.Transfer(transferCtx, params); err != nil {
		t.Fatalf("Replayed transfer failed: %v", err)
	}
	if _, err := s.Transfer(transferCtx, params); !errors.Is(err, store.ErrDuplicateIdentifier) {
		t.Fatalf("Expected second replay to be rejected as duplicate, got %v", err)
	}

	stored, err := s.GetDevice(context.Background(), "212121212121212")
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if len(stored.History) != 2 {
		t.Fatalf("Expected 2 history entries, got %d", len(stored.History))
	}
	if !stored.History[1].Timestamp.Equal(minted.Add(time.Minute)) {
		t.Errorf("Expected replayed timestamp, got %v", stored.History[1].Timestamp)
	}
}

func testDeviceEvents(t *testing.T, s store.LedgerStore) {
	feed, ok := s.(store.EventFeed)
	if !ok {
		t.Skip("backend does not publish a feed")
	}
	ctx := context.Background()
	rec := mint(t, s, "358402100159201", Addr(1))
	if _, err := s.Transfer(ctx, store.TransferParams{Imei: rec.Imei, NewOwner: Addr(2), InitiatedBy: Addr(1), RequireOwner: true}); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}

	events, err := feed.DeviceEvents(ctx, rec.Imei)
	if err != nil {
		t.Fatalf("DeviceEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].Action != models.ActionMintGenesis || events[1].Action != models.ActionTransferOwnership {
		t.Errorf("Expected genesis then transfer, got %s then %s", events[0].Action, events[1].Action)
	}
	for _, ev := range events {
		if ev.DeviceId != rec.Id || ev.Imei != rec.Imei || ev.Model != rec.Model {
			t.Errorf("Expected device fields of %s on every event, got %+v", rec.Imei, ev)
		}
	}

	if _, err := feed.DeviceEvents(ctx, "358402100159299"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown device, got %v", err)
	}
}
