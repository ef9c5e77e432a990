package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"chaintrack-provenance-go/internal/models"
	"chaintrack-provenance-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Mint inserts the device row and its genesis entry in one transaction.
// The unique imei index decides between concurrent mints of the same device.
func (s *Service) Mint(ctx context.Context, params store.MintParams) (*models.DeviceRecord, error) {
	if err := store.ValidateMint(params); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classifyError(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	// stamped under the write lock so creation time follows seq order
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

	_, err = tx.ExecContext(ctx, queryInsertDevice,
		rec.Id, rec.Imei, rec.Model, rec.Manufacturer,
		rec.CurrentOwner, store.NormalizeAddress(rec.CurrentOwner), string(rec.Status), ts, ts)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: imei %s", store.ErrDuplicateIdentifier, params.Imei)
		}
		return nil, classifyError(err, "failed to insert device")
	}

	if err := insertEntry(ctx, tx, rec.Id, 0, rec.History[0]); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, classifyError(err, "failed to commit transaction")
	}

	zap.L().Info("Device minted",
		zap.String("imei", rec.Imei),
		zap.String("device_id", rec.Id),
		zap.String("owner", rec.CurrentOwner),
		zap.String("tx_hash", txHash))

	return rec.Clone(), nil
}

func insertEntry(ctx context.Context, tx *sql.Tx, deviceId string, position int, entry models.Transaction) error {
	var status sql.NullString
	if entry.Status != "" {
		status = sql.NullString{String: string(entry.Status), Valid: true}
	}
	_, err := tx.ExecContext(ctx, queryInsertDeviceTransaction,
		uuid.New().String(), deviceId, position,
		entry.From, entry.To, string(entry.Action), status, entry.TxHash, entry.Timestamp)
	if err != nil {
		if isUniqueViolation(err) {
			// another writer took this position or the hash is already logged
			return fmt.Errorf("%w: history position %d of device %s", store.ErrConflict, position, deviceId)
		}
		return classifyError(err, "failed to insert history entry")
	}
	return nil
}

// appendEntry loads the device inside a write transaction, runs check,
// appends the entry built by build and stores the device state produced by
// apply. The version column guards the update.
func (s *Service) appendEntry(
	ctx context.Context,
	imei string,
	check func(*models.DeviceRecord) error,
	build func(*models.DeviceRecord) models.Transaction,
	apply func(*models.DeviceRecord, models.Transaction),
) (*models.DeviceRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classifyError(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	rec, version, err := loadDevice(ctx, tx, imei)
	if err != nil {
		return nil, err
	}

	if store.AlreadyRecorded(ctx, rec.History) {
		return nil, fmt.Errorf("%w: transaction %s already recorded", store.ErrDuplicateIdentifier, models.GetReplayContext(ctx).TxHash)
	}
	if err := check(rec); err != nil {
		return nil, err
	}

	entry := build(rec)
	entry.TxHash, entry.Timestamp = store.Stamp(ctx, rec.History[len(rec.History)-1].Timestamp)
	position := len(rec.History)

	if err := insertEntry(ctx, tx, rec.Id, position, entry); err != nil {
		return nil, err
	}

	rec.History = append(rec.History, entry)
	apply(rec, entry)

	result, err := tx.ExecContext(ctx, queryUpdateDevice,
		rec.CurrentOwner, store.NormalizeAddress(rec.CurrentOwner), string(rec.Status), entry.Timestamp,
		rec.Id, version)
	if err != nil {
		return nil, classifyError(err, "failed to update device")
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("device update failed - %w", store.ErrConflict)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, classifyError(err, "failed to commit transaction")
	}

	zap.L().Info("Device history appended",
		zap.String("imei", rec.Imei),
		zap.String("action", string(entry.Action)),
		zap.String("from", entry.From),
		zap.String("to", entry.To),
		zap.Int("position", position),
		zap.String("tx_hash", entry.TxHash))

	return rec, nil
}

func (s *Service) Transfer(ctx context.Context, params store.TransferParams) (*models.DeviceRecord, error) {
	if err := store.ValidateTransfer(params); err != nil {
		return nil, err
	}
	return s.appendEntry(ctx, params.Imei,
		func(rec *models.DeviceRecord) error {
			return store.CheckOwner(rec, params.InitiatedBy, params.RequireOwner)
		},
		func(rec *models.DeviceRecord) models.Transaction {
			return models.Transaction{From: rec.CurrentOwner, To: params.NewOwner, Action: models.ActionTransferOwnership}
		},
		func(rec *models.DeviceRecord, entry models.Transaction) {
			rec.CurrentOwner = entry.To
			if rec.Status.Rank() < models.StatusDistributed.Rank() {
				rec.Status = models.StatusDistributed
			}
		})
}

func (s *Service) UpdateStatus(ctx context.Context, params store.StatusParams) (*models.DeviceRecord, error) {
	if err := store.ValidateStatus(params); err != nil {
		return nil, err
	}
	return s.appendEntry(ctx, params.Imei,
		func(rec *models.DeviceRecord) error {
			if err := store.CheckOwner(rec, params.InitiatedBy, params.RequireOwner); err != nil {
				return err
			}
			return store.CheckAdvance(rec.Status, params.Status)
		},
		func(rec *models.DeviceRecord) models.Transaction {
			return models.Transaction{From: rec.CurrentOwner, To: rec.CurrentOwner, Action: models.ActionStatusUpdate, Status: params.Status}
		},
		func(rec *models.DeviceRecord, _ models.Transaction) {
			rec.Status = params.Status
		})
}

// GetDevice reads the device and its history inside one read transaction so
// both come from the same snapshot.
func (s *Service) GetDevice(ctx context.Context, imei string) (*models.DeviceRecord, error) {
	tx, err := s.readDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, classifyError(err, "failed to begin read transaction")
	}
	defer tx.Rollback()

	rec, _, err := loadDevice(ctx, tx, imei)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func loadDevice(ctx context.Context, q queryer, imei string) (*models.DeviceRecord, int64, error) {
	rec := &models.DeviceRecord{}
	var status string
	var version int64
	err := q.QueryRowContext(ctx, queryGetDeviceByImei, imei).Scan(
		&rec.Id, &rec.Imei, &rec.Model, &rec.Manufacturer, &rec.CurrentOwner, &status, &version, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, fmt.Errorf("%w: imei %s", store.ErrNotFound, imei)
	}
	if err != nil {
		return nil, 0, classifyError(err, "failed to load device")
	}
	rec.Status = models.DeviceStatus(status)

	rows, err := q.QueryContext(ctx, queryGetDeviceHistory, rec.Id)
	if err != nil {
		return nil, 0, classifyError(err, "failed to load history")
	}
	defer rows.Close()

	rec.History = []models.Transaction{}
	for rows.Next() {
		var entry models.Transaction
		var action string
		var entryStatus sql.NullString
		if err := rows.Scan(&entry.From, &entry.To, &action, &entryStatus, &entry.TxHash, &entry.Timestamp); err != nil {
			return nil, 0, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entry.Action = models.Action(action)
		entry.Status = models.DeviceStatus(entryStatus.String)
		rec.History = append(rec.History, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, classifyError(err, "failed to read history")
	}
	return rec, version, nil
}

func (s *Service) ListRecent(ctx context.Context, pageToken string, limit int) (*models.DevicePage, error) {
	below, err := store.DecodePageToken(pageToken)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = store.PageSize
	}

	// one extra row tells us whether another page exists
	summaries, seqs, err := s.querySummaries(ctx, queryListRecentDevices, below, below, limit+1)
	if err != nil {
		return nil, err
	}

	page := &models.DevicePage{Devices: summaries}
	if len(summaries) > limit {
		page.Devices = summaries[:limit]
		page.NextPageToken = store.EncodePageToken(seqs[limit-1])
	}
	return page, nil
}

func (s *Service) ListByOwner(ctx context.Context, owner string) ([]models.DeviceSummary, error) {
	summaries, _, err := s.querySummaries(ctx, queryListDevicesByOwner, store.NormalizeAddress(owner))
	return summaries, err
}

func (s *Service) querySummaries(ctx context.Context, query string, args ...any) ([]models.DeviceSummary, []int64, error) {
	rows, err := s.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, classifyError(err, "failed to list devices")
	}
	defer rows.Close()

	summaries := []models.DeviceSummary{}
	var seqs []int64
	for rows.Next() {
		var d models.DeviceSummary
		var seq int64
		var status string
		if err := rows.Scan(&seq, &d.Id, &d.Imei, &d.Model, &d.Manufacturer, &d.CurrentOwner, &status, &d.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("failed to scan device: %w", err)
		}
		d.Status = models.DeviceStatus(status)
		summaries = append(summaries, d)
		seqs = append(seqs, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, classifyError(err, "failed to read devices")
	}
	return summaries, seqs, nil
}

func (s *Service) Counts(ctx context.Context) (*models.LedgerCounts, error) {
	counts := &models.LedgerCounts{ByStatus: make(map[models.DeviceStatus]int)}

	rows, err := s.readDB.QueryContext(ctx, queryCountByStatus)
	if err != nil {
		return nil, classifyError(err, "failed to count devices")
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts.ByStatus[models.DeviceStatus(status)] = n
		counts.TotalDevices += n
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(err, "failed to read counts")
	}

	if err := s.readDB.QueryRowContext(ctx, queryCountDistinctOwners).Scan(&counts.DistinctOwners); err != nil {
		return nil, classifyError(err, "failed to count owners")
	}
	return counts, nil
}

// EventsSince returns every log entry stamped at or after since, oldest first.
func (s *Service) EventsSince(ctx context.Context, since time.Time) ([]models.DeviceEvent, error) {
	rows, err := s.readDB.QueryContext(ctx, queryEventsSince, since.UTC())
	if err != nil {
		return nil, classifyError(err, "failed to list events")
	}
	defer rows.Close()

	var events []models.DeviceEvent
	for rows.Next() {
		var ev models.DeviceEvent
		var action string
		var status sql.NullString
		if err := rows.Scan(&ev.DeviceId, &ev.Imei, &ev.Model, &ev.Manufacturer, &ev.CreatedAt,
			&ev.From, &ev.To, &action, &status, &ev.TxHash, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Action = models.Action(action)
		ev.Status = models.DeviceStatus(status.String)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(err, "failed to read events")
	}
	return events, nil
}

// DeviceEvents returns the full log of one device as feed events.
func (s *Service) DeviceEvents(ctx context.Context, imei string) ([]models.DeviceEvent, error) {
	rec, err := s.GetDevice(ctx, imei)
	if err != nil {
		return nil, err
	}
	return rec.Events(), nil
}
