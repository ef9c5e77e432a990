package formance

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"testing"
	"time"

	"chaintrack-provenance-go/internal/models"
	"chaintrack-provenance-go/internal/store"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/sdkerrors"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
)

func TestNewService_MissingCredentials(t *testing.T) {
	_, err := NewService(context.Background(), models.FormanceConfig{StackURL: "http://localhost"})
	if err == nil {
		t.Fatal("Expected error for missing credentials, got nil")
	}
}

func TestAccountKey(t *testing.T) {
	tests := []struct {
		imei string
		want string
	}{
		{"358402100159201", "358402100159201"},
		{"ABC_123", "ABC_123"},
		{"35-84", "x_33352d3834"},
		{"x_1", "x_785f31"},
		{"", "x_"},
	}
	for _, tt := range tests {
		if got := accountKey(tt.imei); got != tt.want {
			t.Errorf("accountKey(%q) = %q, want %q", tt.imei, got, tt.want)
		}
	}
}

func TestAccountKey_NoCollisions(t *testing.T) {
	a, b := accountKey("x_785f31"), accountKey("x_1")
	if a == b {
		t.Errorf("Expected distinct keys, both are %q", a)
	}
}

func TestCustodyAccount(t *testing.T) {
	got := custodyAccount("0x71C7656EC7ab88b098defB751B7401B5f6d8976F", "358402100159201")
	want := "owners:0x71c7656ec7ab88b098defb751b7401b5f6d8976f:devices:358402100159201"
	if got != want {
		t.Errorf("custodyAccount = %q, want %q", got, want)
	}
	if deviceAccount("358402100159201") != "devices:358402100159201" {
		t.Errorf("Unexpected device account %q", deviceAccount("358402100159201"))
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"not found", &sdkerrors.V2ErrorResponse{ErrorCode: shared.V2ErrorsEnumNotFound}, store.ErrNotFound},
		{"conflict", &sdkerrors.V2ErrorResponse{ErrorCode: shared.V2ErrorsEnumConflict}, store.ErrConflict},
		{"insufficient fund", &sdkerrors.V2ErrorResponse{ErrorCode: shared.V2ErrorsEnumInsufficientFund}, store.ErrConflict},
		{"validation", &sdkerrors.V2ErrorResponse{ErrorCode: shared.V2ErrorsEnumValidation}, store.ErrInvalidInput},
		{"internal", &sdkerrors.V2ErrorResponse{ErrorCode: shared.V2ErrorsEnumInternal}, store.ErrUpstreamUnavailable},
		{"network", errors.New("dial tcp: connection refused"), store.ErrUpstreamUnavailable},
		{"deadline", fmt.Errorf("request: %w", context.DeadlineExceeded), store.ErrTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyError(tt.err, "op"); !errors.Is(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}

	if classifyError(nil, "op") != nil {
		t.Error("Expected nil for nil error")
	}
}

func ledgerTx(id int64, ts time.Time, meta map[string]string) shared.V2Transaction {
	return shared.V2Transaction{
		ID:        big.NewInt(id),
		Timestamp: ts,
		Metadata:  meta,
	}
}

func TestHistoryFromTransactions(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	owner1 := "0x0000000000000000000000000000000000000001"
	owner2 := "0x0000000000000000000000000000000000000002"

	// newest first, as the ledger lists them
	txs := []shared.V2Transaction{
		ledgerTx(3, now.Add(2*time.Minute), map[string]string{"position": "2", "action": "STATUS_UPDATE", "from": owner2, "to": owner2, "status": "In-Retail", "tx_hash": "0xc"}),
		ledgerTx(2, now.Add(time.Minute), map[string]string{"position": "1", "action": "TRANSFER_OWNERSHIP", "from": owner1, "to": owner2, "tx_hash": "0xb"}),
		ledgerTx(1, now, map[string]string{"position": "0", "action": "MINT_GENESIS", "from": store.GenesisAddress, "to": owner1, "tx_hash": "0xa"}),
	}

	history, err := historyFromTransactions(txs)
	if err != nil {
		t.Fatalf("historyFromTransactions failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(history))
	}
	if history[0].Action != models.ActionMintGenesis || history[2].TxHash != "0xc" {
		t.Errorf("Unexpected ordering: %+v", history)
	}

	owner, status := replayState(history)
	if owner != owner2 {
		t.Errorf("Expected owner %s, got %s", owner2, owner)
	}
	if status != models.StatusInRetail {
		t.Errorf("Expected status %s, got %s", models.StatusInRetail, status)
	}
}

func TestHistoryFromTransactions_Gap(t *testing.T) {
	txs := []shared.V2Transaction{
		ledgerTx(1, time.Now(), map[string]string{"position": "0", "action": "MINT_GENESIS"}),
		ledgerTx(2, time.Now(), map[string]string{"position": "2", "action": "TRANSFER_OWNERSHIP"}),
	}
	if _, err := historyFromTransactions(txs); err == nil {
		t.Error("Expected error for a gap in positions, got nil")
	}
}

func TestHistoryFromTransactions_SkipsReverted(t *testing.T) {
	reverted := ledgerTx(2, time.Now(), map[string]string{"position": "1", "action": "TRANSFER_OWNERSHIP"})
	reverted.Reverted = true
	txs := []shared.V2Transaction{
		reverted,
		ledgerTx(1, time.Now(), map[string]string{"position": "0", "action": "MINT_GENESIS"}),
	}
	history, err := historyFromTransactions(txs)
	if err != nil {
		t.Fatalf("historyFromTransactions failed: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("Expected 1 entry, got %d", len(history))
	}
}

func TestReplayState_TransferNeverDowngrades(t *testing.T) {
	history := []models.Transaction{
		{Action: models.ActionMintGenesis, To: "a"},
		{Action: models.ActionStatusUpdate, To: "a", Status: models.StatusCustomerOwned},
		{Action: models.ActionTransferOwnership, To: "b"},
	}
	owner, status := replayState(history)
	if owner != "b" || status != models.StatusCustomerOwned {
		t.Errorf("Expected b/%s, got %s/%s", models.StatusCustomerOwned, owner, status)
	}
}

func TestSummaryFromMetadata(t *testing.T) {
	created := time.Date(2026, 5, 1, 12, 0, 0, 123000000, time.UTC)
	summary := summaryFromMetadata(map[string]string{
		"device_id":     "id-1",
		"imei":          "358402100159201",
		"model":         "IPHONE 16 ULTRA",
		"manufacturer":  "CHAIN_MFG_LTD",
		"current_owner": "0x71c7656ec7ab88b098defb751b7401b5f6d8976f",
		"status":        "Distributed",
		"created_at":    created.Format(time.RFC3339Nano),
	})
	if summary.Imei != "358402100159201" || summary.Status != models.StatusDistributed {
		t.Errorf("Unexpected summary: %+v", summary)
	}
	if !summary.CreatedAt.Equal(created) {
		t.Errorf("Expected created_at %v, got %v", created, summary.CreatedAt)
	}
}

func TestEventFromTransaction(t *testing.T) {
	ts := time.Now().UTC()
	ev, ok := eventFromTransaction(ledgerTx(7, ts, map[string]string{
		"position":     "1",
		"action":       "TRANSFER_OWNERSHIP",
		"device_id":    "id-1",
		"imei":         "1",
		"model":        "M",
		"manufacturer": "F",
		"from":         "0xa",
		"to":           "0xb",
		"tx_hash":      "0xhash",
	}))
	if !ok {
		t.Fatal("Expected event to be decoded")
	}
	if ev.Imei != "1" || ev.To != "0xb" || ev.Action != models.ActionTransferOwnership || ev.TxHash != "0xhash" {
		t.Errorf("Unexpected event: %+v", ev)
	}

	if _, ok := eventFromTransaction(ledgerTx(8, ts, map[string]string{"event_type": "deposit"})); ok {
		t.Error("Expected foreign transaction to be skipped")
	}
}

func TestEntryVars(t *testing.T) {
	rec := &models.DeviceRecord{Id: "id", Imei: "1", Model: "M", Manufacturer: "F", CreatedAt: time.Now()}
	vars := entryVars(rec, "1", models.Transaction{From: "a", To: "b", TxHash: "h"}, 3)
	if vars["position"] != "3" || vars["device_key"] != "1" || vars["to"] != "b" {
		t.Errorf("Unexpected vars: %v", vars)
	}
	for _, name := range []string{"device_id", "imei", "model", "manufacturer", "created_at", "from", "tx_hash"} {
		if !strings.Contains(numscriptStatusUpdate, "$"+name) {
			t.Errorf("Status script does not declare $%s", name)
		}
	}
}

func TestTxIdLess(t *testing.T) {
	now := time.Now()
	txs := []shared.V2Transaction{ledgerTx(7, now, nil), ledgerTx(2, now, nil), {Timestamp: now}, ledgerTx(5, now, nil)}
	sort.Slice(txs, func(i, j int) bool { return txIdLess(txs[i], txs[j]) })

	if txs[0].ID != nil {
		t.Errorf("Expected transaction without id first, got %v", txs[0].ID)
	}
	for i, want := range []int64{2, 5, 7} {
		if got := txs[i+1].ID.Int64(); got != want {
			t.Errorf("Position %d: expected id %d, got %d", i+1, want, got)
		}
	}
}
