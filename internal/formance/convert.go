package formance

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"chaintrack-provenance-go/internal/models"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
)

// summaryFromMetadata reads a device account's metadata.
func summaryFromMetadata(meta map[string]string) models.DeviceSummary {
	return models.DeviceSummary{
		Id:           meta["device_id"],
		Imei:         meta["imei"],
		Model:        meta["model"],
		Manufacturer: meta["manufacturer"],
		CurrentOwner: meta["current_owner"],
		Status:       models.DeviceStatus(meta["status"]),
		CreatedAt:    parseTime(meta["created_at"]),
	}
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// entryFromTransaction returns the log entry a ledger transaction records
// and its position in the device's history.
func entryFromTransaction(tx shared.V2Transaction) (models.Transaction, int, error) {
	position, err := strconv.Atoi(tx.Metadata["position"])
	if err != nil {
		return models.Transaction{}, 0, fmt.Errorf("transaction %v has no position: %w", tx.ID, err)
	}
	return models.Transaction{
		From:      tx.Metadata["from"],
		To:        tx.Metadata["to"],
		Action:    models.Action(tx.Metadata["action"]),
		Status:    models.DeviceStatus(tx.Metadata["status"]),
		Timestamp: tx.Timestamp.UTC(),
		TxHash:    tx.Metadata["tx_hash"],
	}, position, nil
}

// historyFromTransactions orders a device's transactions into its log and
// checks that no position is missing or repeated.
func historyFromTransactions(txs []shared.V2Transaction) ([]models.Transaction, error) {
	type positioned struct {
		pos int
		tx  models.Transaction
	}
	entries := make([]positioned, 0, len(txs))
	for _, raw := range txs {
		if raw.Reverted {
			continue
		}
		tx, pos, err := entryFromTransaction(raw)
		if err != nil {
			return nil, err
		}
		entries = append(entries, positioned{pos: pos, tx: tx})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].pos < entries[j].pos })

	history := make([]models.Transaction, 0, len(entries))
	for i, e := range entries {
		if e.pos != i {
			return nil, fmt.Errorf("device history has a gap at position %d", i)
		}
		history = append(history, e.tx)
	}
	return history, nil
}

// replayState folds a log into the owner and lifecycle stage it leads to.
func replayState(history []models.Transaction) (string, models.DeviceStatus) {
	owner := ""
	status := models.StatusManufactured
	for _, tx := range history {
		owner = tx.To
		switch tx.Action {
		case models.ActionTransferOwnership:
			if status.Rank() < models.StatusDistributed.Rank() {
				status = models.StatusDistributed
			}
		case models.ActionStatusUpdate:
			status = tx.Status
		}
	}
	return owner, status
}

// eventFromTransaction rebuilds a feed event from a self-describing
// transaction. Transactions not written by this service are skipped.
func eventFromTransaction(tx shared.V2Transaction) (models.DeviceEvent, bool) {
	entry, _, err := entryFromTransaction(tx)
	if err != nil || tx.Metadata["imei"] == "" {
		return models.DeviceEvent{}, false
	}
	return models.DeviceEvent{
		DeviceId:     tx.Metadata["device_id"],
		Imei:         tx.Metadata["imei"],
		Model:        tx.Metadata["model"],
		Manufacturer: tx.Metadata["manufacturer"],
		CreatedAt:    parseTime(tx.Metadata["created_at"]),
		Transaction:  entry,
	}, true
}

func txIdLess(a, b shared.V2Transaction) bool {
	if a.ID == nil || b.ID == nil {
		return a.ID == nil && b.ID != nil
	}
	return a.ID.Cmp(b.ID) < 0
}
