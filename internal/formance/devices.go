package formance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"chaintrack-provenance-go/internal/models"
	"chaintrack-provenance-go/internal/store"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

// Mint records the genesis transaction of a device. The transaction
// reference is derived from the IMEI, so a concurrent second mint of the
// same device is refused by the ledger itself.
func (s *Service) Mint(ctx context.Context, params store.MintParams) (*models.DeviceRecord, error) {
	if err := store.ValidateMint(params); err != nil {
		return nil, err
	}

	key := accountKey(params.Imei)
	if _, err := s.deviceMetadata(ctx, key); err == nil {
		return nil, fmt.Errorf("%w: imei %s", store.ErrDuplicateIdentifier, params.Imei)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	txHash, ts := store.Stamp(ctx, time.Time{})
	id := uuid.New().String()
	if rc := models.GetReplayContext(ctx); rc != nil && rc.DeviceId != "" {
		id = rc.DeviceId
	}

	rec := &models.DeviceRecord{
		Id:           id,
		Imei:         params.Imei,
		Model:        params.Model,
		Manufacturer: params.Manufacturer,
		CurrentOwner: params.Owner,
		Status:       models.StatusManufactured,
		History: []models.Transaction{{
			From:      store.GenesisAddress,
			To:        params.Owner,
			Action:    models.ActionMintGenesis,
			Timestamp: ts,
			TxHash:    txHash,
		}},
		CreatedAt: ts,
	}

	vars := entryVars(rec, key, rec.History[0], 0)
	vars["device"] = deviceAccount(key)
	vars["custody"] = custodyAccount(params.Owner, key)
	vars["owner_key"] = store.NormalizeAddress(params.Owner)

	err := s.post(ctx, "mint:"+key, ts, numscriptMintGenesis, vars)
	if err != nil {
		if hasErrorCode(err, shared.V2ErrorsEnumConflict) {
			return nil, fmt.Errorf("%w: imei %s", store.ErrDuplicateIdentifier, params.Imei)
		}
		return nil, classifyError(err, "mint device")
	}

	zap.L().Info("Device minted in Formance",
		zap.String("imei", params.Imei),
		zap.String("owner", params.Owner),
		zap.String("tx_hash", txHash))
	return rec, nil
}

func (s *Service) Transfer(ctx context.Context, params store.TransferParams) (*models.DeviceRecord, error) {
	if err := store.ValidateTransfer(params); err != nil {
		return nil, err
	}

	rec, err := s.prepareAppend(ctx, params.Imei, func(rec *models.DeviceRecord) error {
		return store.CheckOwner(rec, params.InitiatedBy, params.RequireOwner)
	})
	if err != nil {
		return nil, err
	}

	key := accountKey(rec.Imei)
	position := len(rec.History)
	tx := models.Transaction{From: rec.CurrentOwner, To: params.NewOwner, Action: models.ActionTransferOwnership}
	tx.TxHash, tx.Timestamp = store.Stamp(ctx, rec.History[position-1].Timestamp)

	status := rec.Status
	if status.Rank() < models.StatusDistributed.Rank() {
		status = models.StatusDistributed
	}

	vars := entryVars(rec, key, tx, position)
	vars["device"] = deviceAccount(key)
	vars["from_custody"] = custodyAccount(rec.CurrentOwner, key)
	vars["to_custody"] = custodyAccount(params.NewOwner, key)
	vars["owner_key"] = store.NormalizeAddress(params.NewOwner)
	vars["status"] = string(status)
	vars["history_length"] = strconv.Itoa(position + 1)

	if err := s.post(ctx, fmt.Sprintf("custody:%s:%d", key, position), tx.Timestamp, numscriptTransferOwnership, vars); err != nil {
		return nil, classifyError(err, "transfer device")
	}

	rec.History = append(rec.History, tx)
	rec.CurrentOwner = tx.To
	rec.Status = status

	zap.L().Info("Device transferred in Formance",
		zap.String("imei", rec.Imei),
		zap.String("from", tx.From),
		zap.String("to", tx.To),
		zap.String("tx_hash", tx.TxHash))
	return rec, nil
}

func (s *Service) UpdateStatus(ctx context.Context, params store.StatusParams) (*models.DeviceRecord, error) {
	if err := store.ValidateStatus(params); err != nil {
		return nil, err
	}

	rec, err := s.prepareAppend(ctx, params.Imei, func(rec *models.DeviceRecord) error {
		if err := store.CheckOwner(rec, params.InitiatedBy, params.RequireOwner); err != nil {
			return err
		}
		return store.CheckAdvance(rec.Status, params.Status)
	})
	if err != nil {
		return nil, err
	}

	key := accountKey(rec.Imei)
	position := len(rec.History)
	tx := models.Transaction{From: rec.CurrentOwner, To: rec.CurrentOwner, Action: models.ActionStatusUpdate, Status: params.Status}
	tx.TxHash, tx.Timestamp = store.Stamp(ctx, rec.History[position-1].Timestamp)

	vars := entryVars(rec, key, tx, position)
	vars["device"] = deviceAccount(key)
	vars["custody"] = custodyAccount(rec.CurrentOwner, key)
	vars["status"] = string(params.Status)
	vars["history_length"] = strconv.Itoa(position + 1)

	if err := s.post(ctx, fmt.Sprintf("custody:%s:%d", key, position), tx.Timestamp, numscriptStatusUpdate, vars); err != nil {
		return nil, classifyError(err, "update device status")
	}

	rec.History = append(rec.History, tx)
	rec.Status = params.Status

	zap.L().Info("Device status updated in Formance",
		zap.String("imei", rec.Imei),
		zap.String("status", string(params.Status)),
		zap.String("tx_hash", tx.TxHash))
	return rec, nil
}

// prepareAppend loads the device and runs the replay and caller checks. The
// ledger re-checks custody when the entry is posted, so a record that went
// stale in between fails with ErrConflict rather than forking history.
func (s *Service) prepareAppend(ctx context.Context, imei string, check func(*models.DeviceRecord) error) (*models.DeviceRecord, error) {
	rec, err := s.GetDevice(ctx, imei)
	if err != nil {
		return nil, err
	}
	if store.AlreadyRecorded(ctx, rec.History) {
		return nil, fmt.Errorf("%w: transaction %s already recorded", store.ErrDuplicateIdentifier, models.GetReplayContext(ctx).TxHash)
	}
	if err := check(rec); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rec, nil
}

// post submits one Numscript transaction. The error is returned raw so the
// caller can decide what a CONFLICT means for its reference.
func (s *Service) post(ctx context.Context, reference string, ts time.Time, script string, vars map[string]string) error {
	postTx := shared.V2PostTransaction{
		Reference: strPtr(reference),
		Script: &shared.V2PostTransactionScript{
			Plain: script,
			Vars:  vars,
		},
		Timestamp: &ts,
	}
	_, err := s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            s.ledger,
		V2PostTransaction: postTx,
	})
	return err
}

// entryVars holds the variables every template shares.
func entryVars(rec *models.DeviceRecord, key string, tx models.Transaction, position int) map[string]string {
	return map[string]string{
		"device_id":    rec.Id,
		"device_key":   key,
		"imei":         rec.Imei,
		"model":        rec.Model,
		"manufacturer": rec.Manufacturer,
		"created_at":   rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		"from":         tx.From,
		"to":           tx.To,
		"tx_hash":      tx.TxHash,
		"position":     strconv.Itoa(position),
	}
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// GetDevice rebuilds the record from the device's transactions. Owner and
// status are derived from the log rather than account metadata, so the
// record is always consistent with the history it returns.
func (s *Service) GetDevice(ctx context.Context, imei string) (*models.DeviceRecord, error) {
	key := accountKey(imei)
	meta, err := s.deviceMetadata(ctx, key)
	if err != nil {
		return nil, err
	}

	txs, err := s.listTransactions(ctx, map[string]any{
		"$match": map[string]any{"metadata[device_key]": key},
	}, "list device history")
	if err != nil {
		return nil, err
	}
	history, err := historyFromTransactions(txs)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: imei %s", store.ErrNotFound, imei)
	}

	summary := summaryFromMetadata(meta)
	rec := &models.DeviceRecord{
		Id:           summary.Id,
		Imei:         summary.Imei,
		Model:        summary.Model,
		Manufacturer: summary.Manufacturer,
		History:      history,
		CreatedAt:    summary.CreatedAt,
	}
	rec.CurrentOwner, rec.Status = replayState(history)
	return rec, nil
}

// ListRecent pages mint transactions newest first; the page token is the
// ledger's own cursor.
func (s *Service) ListRecent(ctx context.Context, pageToken string, limit int) (*models.DevicePage, error) {
	if limit <= 0 {
		limit = store.PageSize
	}

	req := operations.V2ListTransactionsRequest{Ledger: s.ledger}
	if pageToken != "" {
		req.Cursor = strPtr(pageToken)
	} else {
		req.PageSize = ptrInt64(int64(limit))
		req.RequestBody = map[string]any{
			"$match": map[string]any{"metadata[action]": string(models.ActionMintGenesis)},
		}
	}

	resp, err := s.client.Ledger.V2.ListTransactions(ctx, req)
	if err != nil {
		return nil, classifyError(err, "list recent devices")
	}
	cursor := resp.V2TransactionsCursorResponse.Cursor

	page := &models.DevicePage{Devices: []models.DeviceSummary{}}
	for _, tx := range cursor.Data {
		meta, err := s.deviceMetadata(ctx, tx.Metadata["device_key"])
		if err != nil {
			return nil, err
		}
		page.Devices = append(page.Devices, summaryFromMetadata(meta))
	}
	if cursor.HasMore && cursor.Next != nil {
		page.NextPageToken = *cursor.Next
	}
	return page, nil
}

func (s *Service) ListByOwner(ctx context.Context, owner string) ([]models.DeviceSummary, error) {
	accounts, err := s.listAccounts(ctx, map[string]any{
		"$match": map[string]any{"metadata[owner_key]": store.NormalizeAddress(owner)},
	}, "list devices by owner")
	if err != nil {
		return nil, err
	}

	out := make([]models.DeviceSummary, 0, len(accounts))
	for _, acct := range accounts {
		out = append(out, summaryFromMetadata(acct.Metadata))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Service) Counts(ctx context.Context) (*models.LedgerCounts, error) {
	accounts, err := s.listAccounts(ctx, map[string]any{
		"$match": map[string]any{"metadata[entity_type]": "device"},
	}, "count devices")
	if err != nil {
		return nil, err
	}

	counts := &models.LedgerCounts{ByStatus: make(map[models.DeviceStatus]int)}
	owners := make(map[string]struct{})
	for _, acct := range accounts {
		counts.TotalDevices++
		counts.ByStatus[models.DeviceStatus(acct.Metadata["status"])]++
		owners[acct.Metadata["owner_key"]] = struct{}{}
	}
	counts.DistinctOwners = len(owners)
	return counts, nil
}

// EventsSince returns every custody entry at or after since in commit order.
func (s *Service) EventsSince(ctx context.Context, since time.Time) ([]models.DeviceEvent, error) {
	var filter map[string]any
	if !since.IsZero() {
		filter = map[string]any{
			"$gte": map[string]any{"timestamp": since.UTC().Format(time.RFC3339Nano)},
		}
	}

	txs, err := s.listTransactions(ctx, filter, "list events")
	if err != nil {
		return nil, err
	}

	// ids follow commit order; timestamps can tie
	sort.Slice(txs, func(i, j int) bool {
		return txIdLess(txs[i], txs[j])
	})

	events := make([]models.DeviceEvent, 0, len(txs))
	for _, tx := range txs {
		if tx.Reverted || tx.Timestamp.Before(since) {
			continue
		}
		ev, ok := eventFromTransaction(tx)
		if !ok {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// ---------------------------------------------------------------------------
// Ledger access helpers
// ---------------------------------------------------------------------------

// deviceMetadata returns the device account's metadata, or ErrNotFound when
// no device was minted under key.
func (s *Service) deviceMetadata(ctx context.Context, key string) (map[string]string, error) {
	resp, err := s.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  s.ledger,
		Address: deviceAccount(key),
	})
	if err != nil {
		return nil, classifyError(err, "get device account")
	}
	meta := resp.V2AccountResponse.Data.Metadata
	if meta["imei"] == "" {
		return nil, fmt.Errorf("%w: device account %s", store.ErrNotFound, deviceAccount(key))
	}
	return meta, nil
}

func (s *Service) listTransactions(ctx context.Context, filter map[string]any, op string) ([]shared.V2Transaction, error) {
	req := operations.V2ListTransactionsRequest{
		Ledger:      s.ledger,
		PageSize:    ptrInt64(listPageSize),
		RequestBody: filter,
	}
	var out []shared.V2Transaction
	for {
		resp, err := s.client.Ledger.V2.ListTransactions(ctx, req)
		if err != nil {
			return nil, classifyError(err, op)
		}
		cursor := resp.V2TransactionsCursorResponse.Cursor
		out = append(out, cursor.Data...)
		if !cursor.HasMore || cursor.Next == nil {
			return out, nil
		}
		req = operations.V2ListTransactionsRequest{Ledger: s.ledger, Cursor: cursor.Next}
	}
}

func (s *Service) listAccounts(ctx context.Context, filter map[string]any, op string) ([]shared.V2Account, error) {
	req := operations.V2ListAccountsRequest{
		Ledger:      s.ledger,
		PageSize:    ptrInt64(listPageSize),
		RequestBody: filter,
	}
	var out []shared.V2Account
	for {
		resp, err := s.client.Ledger.V2.ListAccounts(ctx, req)
		if err != nil {
			return nil, classifyError(err, op)
		}
		cursor := resp.V2AccountsCursorResponse.Cursor
		out = append(out, cursor.Data...)
		if !cursor.HasMore || cursor.Next == nil {
			return out, nil
		}
		req = operations.V2ListAccountsRequest{Ledger: s.ledger, Cursor: cursor.Next}
	}
}

// DeviceEvents returns the full log of one device as feed events.
func (s *Service) DeviceEvents(ctx context.Context, imei string) ([]models.DeviceEvent, error) {
	rec, err := s.GetDevice(ctx, imei)
	if err != nil {
		return nil, err
	}
	return rec.Events(), nil
}
