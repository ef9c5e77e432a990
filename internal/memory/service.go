package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"chaintrack-provenance-go/internal/models"
	"chaintrack-provenance-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Compile-time checks: *Service must satisfy store.LedgerStore and store.EventFeed.
var (
	_ store.LedgerStore = (*Service)(nil)
	_ store.EventFeed   = (*Service)(nil)
)

type entry struct {
	mu  sync.Mutex
	seq int64
	rec *models.DeviceRecord
}

func (e *entry) snapshot() *models.DeviceRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Clone()
}

// Service is a process-local LedgerStore. The device set is guarded by one
// RWMutex; each record has its own mutex so writes to different devices do
// not contend.
type Service struct {
	mu      sync.RWMutex
	byImei  map[string]*entry
	ordered []*entry // creation order, seq ascending
	nextSeq int64
}

func NewService() *Service {
	zap.L().Info("In-memory ledger initialized")
	return &Service{byImei: make(map[string]*entry)}
}

func (s *Service) Close() {}

func (s *Service) Mint(ctx context.Context, params store.MintParams) (*models.DeviceRecord, error) {
	if err := store.ValidateMint(params); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byImei[params.Imei]; exists {
		return nil, fmt.Errorf("%w: imei %s", store.ErrDuplicateIdentifier, params.Imei)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	txHash, ts := store.Stamp(ctx, time.Time{})
	id := uuid.New().String()
	if rc := models.GetReplayContext(ctx); rc != nil && rc.DeviceId != "" {
		id = rc.DeviceId
	}

	s.nextSeq++
	e := &entry{
		seq: s.nextSeq,
		rec: &models.DeviceRecord{
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
		},
	}
	s.byImei[params.Imei] = e
	s.ordered = append(s.ordered, e)

	return e.rec.Clone(), nil
}

func (s *Service) lookup(imei string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.byImei[imei]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: imei %s", store.ErrNotFound, imei)
	}
	return e, nil
}

// appendEntry runs check and then appends one log entry under the record's
// lock. Context cancellation is honoured up to the moment of commit.
func (s *Service) appendEntry(ctx context.Context, imei string, check func(*models.DeviceRecord) error, apply func(*models.DeviceRecord, models.Transaction), build func(*models.DeviceRecord) models.Transaction) (*models.DeviceRecord, error) {
	e, err := s.lookup(imei)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if store.AlreadyRecorded(ctx, e.rec.History) {
		return nil, fmt.Errorf("%w: transaction %s already recorded", store.ErrDuplicateIdentifier, models.GetReplayContext(ctx).TxHash)
	}
	if err := check(e.rec); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tx := build(e.rec)
	last := e.rec.History[len(e.rec.History)-1].Timestamp
	tx.TxHash, tx.Timestamp = store.Stamp(ctx, last)
	e.rec.History = append(e.rec.History, tx)
	apply(e.rec, tx)

	return e.rec.Clone(), nil
}

func (s *Service) Transfer(ctx context.Context, params store.TransferParams) (*models.DeviceRecord, error) {
	if err := store.ValidateTransfer(params); err != nil {
		return nil, err
	}
	return s.appendEntry(ctx, params.Imei,
		func(rec *models.DeviceRecord) error {
			return store.CheckOwner(rec, params.InitiatedBy, params.RequireOwner)
		},
		func(rec *models.DeviceRecord, tx models.Transaction) {
			rec.CurrentOwner = tx.To
			if rec.Status.Rank() < models.StatusDistributed.Rank() {
				rec.Status = models.StatusDistributed
			}
		},
		func(rec *models.DeviceRecord) models.Transaction {
			return models.Transaction{From: rec.CurrentOwner, To: params.NewOwner, Action: models.ActionTransferOwnership}
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
		func(rec *models.DeviceRecord, _ models.Transaction) {
			rec.Status = params.Status
		},
		func(rec *models.DeviceRecord) models.Transaction {
			return models.Transaction{From: rec.CurrentOwner, To: rec.CurrentOwner, Action: models.ActionStatusUpdate, Status: params.Status}
		})
}

func (s *Service) GetDevice(_ context.Context, imei string) (*models.DeviceRecord, error) {
	e, err := s.lookup(imei)
	if err != nil {
		return nil, err
	}
	return e.snapshot(), nil
}

// ListRecent pages newest first by creation sequence. The token carries the
// last sequence returned, so devices minted between pages never shift
// earlier pages.
func (s *Service) ListRecent(_ context.Context, pageToken string, limit int) (*models.DevicePage, error) {
	below, err := store.DecodePageToken(pageToken)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = store.PageSize
	}

	s.mu.RLock()
	entries := s.ordered
	s.mu.RUnlock()

	start := len(entries) - 1
	if below > 0 {
		// sequences are 1-based and contiguous
		start = int(below) - 2
		if start > len(entries)-1 {
			start = len(entries) - 1
		}
	}

	page := &models.DevicePage{Devices: []models.DeviceSummary{}}
	i := start
	for ; i >= 0 && len(page.Devices) < limit; i-- {
		page.Devices = append(page.Devices, entries[i].snapshot().Summary())
	}
	if i >= 0 {
		page.NextPageToken = store.EncodePageToken(entries[i+1].seq)
	}
	return page, nil
}

func (s *Service) ListByOwner(_ context.Context, owner string) ([]models.DeviceSummary, error) {
	s.mu.RLock()
	entries := s.ordered
	s.mu.RUnlock()

	out := []models.DeviceSummary{}
	for i := len(entries) - 1; i >= 0; i-- {
		rec := entries[i].snapshot()
		if store.SameAddress(rec.CurrentOwner, owner) {
			out = append(out, rec.Summary())
		}
	}
	return out, nil
}

func (s *Service) Counts(_ context.Context) (*models.LedgerCounts, error) {
	s.mu.RLock()
	entries := s.ordered
	s.mu.RUnlock()

	counts := &models.LedgerCounts{ByStatus: make(map[models.DeviceStatus]int)}
	owners := make(map[string]struct{})
	for _, e := range entries {
		rec := e.snapshot()
		counts.TotalDevices++
		counts.ByStatus[rec.Status]++
		owners[store.NormalizeAddress(rec.CurrentOwner)] = struct{}{}
	}
	counts.DistinctOwners = len(owners)
	return counts, nil
}

// EventsSince flattens every device's log into one stream ordered by time.
func (s *Service) EventsSince(_ context.Context, since time.Time) ([]models.DeviceEvent, error) {
	s.mu.RLock()
	entries := s.ordered
	s.mu.RUnlock()

	var events []models.DeviceEvent
	for _, e := range entries {
		rec := e.snapshot()
		for _, tx := range rec.History {
			if tx.Timestamp.Before(since) {
				continue
			}
			events = append(events, models.DeviceEvent{
				DeviceId:     rec.Id,
				Imei:         rec.Imei,
				Model:        rec.Model,
				Manufacturer: rec.Manufacturer,
				CreatedAt:    rec.CreatedAt,
				Transaction:  tx,
			})
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
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
