package api

import (
	"context"
	"fmt"

	"chaintrack-provenance-go/internal/models"
	"chaintrack-provenance-go/internal/store"

	"go.uber.org/zap"
)

// History orderings accepted by History.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// Mint registers a new device owned by req.Owner.
func (s *LedgerService) Mint(ctx context.Context, req models.MintRequest) (*models.DeviceRecord, error) {
	params := store.MintParams{
		Imei:         req.Imei,
		Model:        req.Model,
		Manufacturer: req.Manufacturer,
		Owner:        req.Owner,
	}
	if err := store.ValidateMint(params); err != nil {
		return nil, err
	}

	var rec *models.DeviceRecord
	err := s.run(ctx, "mint", func(ctx context.Context) error {
		var err error
		rec, err = s.store.Mint(ctx, params)
		return err
	})
	if err != nil {
		zap.L().Warn("Mint rejected",
			zap.String("imei", req.Imei),
			zap.Error(err))
		return nil, err
	}

	zap.L().Info("Device minted",
		zap.String("imei", rec.Imei),
		zap.String("model", rec.Model),
		zap.String("owner", rec.CurrentOwner),
		zap.String("tx_hash", rec.History[0].TxHash))
	return rec, nil
}

// Transfer moves custody of a device. With ownership enforcement on, only
// the current owner may initiate it.
func (s *LedgerService) Transfer(ctx context.Context, imei string, req models.TransferRequest) (*models.DeviceRecord, error) {
	params := store.TransferParams{
		Imei:         imei,
		NewOwner:     req.NewOwner,
		InitiatedBy:  req.InitiatedBy,
		RequireOwner: s.enforceOwner,
	}
	if err := store.ValidateTransfer(params); err != nil {
		return nil, err
	}

	var rec *models.DeviceRecord
	err := s.run(ctx, "transfer", func(ctx context.Context) error {
		var err error
		rec, err = s.store.Transfer(ctx, params)
		return err
	})
	if err != nil {
		zap.L().Warn("Transfer rejected",
			zap.String("imei", imei),
			zap.String("new_owner", req.NewOwner),
			zap.String("initiated_by", req.InitiatedBy),
			zap.Error(err))
		return nil, err
	}

	last := rec.History[len(rec.History)-1]
	zap.L().Info("Device transferred",
		zap.String("imei", rec.Imei),
		zap.String("from", last.From),
		zap.String("to", last.To),
		zap.String("tx_hash", last.TxHash))
	return rec, nil
}

// Advance moves a device forward to In-Retail or Customer-Owned. It is
// always owner-only.
func (s *LedgerService) Advance(ctx context.Context, imei string, req models.StatusRequest) (*models.DeviceRecord, error) {
	params := store.StatusParams{
		Imei:         imei,
		Status:       req.Status,
		InitiatedBy:  req.InitiatedBy,
		RequireOwner: true,
	}
	if err := store.ValidateStatus(params); err != nil {
		return nil, err
	}

	var rec *models.DeviceRecord
	err := s.run(ctx, "advance", func(ctx context.Context) error {
		var err error
		rec, err = s.store.UpdateStatus(ctx, params)
		return err
	})
	if err != nil {
		zap.L().Warn("Status update rejected",
			zap.String("imei", imei),
			zap.String("status", string(req.Status)),
			zap.Error(err))
		return nil, err
	}

	zap.L().Info("Device status advanced",
		zap.String("imei", rec.Imei),
		zap.String("status", string(rec.Status)))
	return rec, nil
}

func (s *LedgerService) Lookup(ctx context.Context, imei string) (*models.DeviceRecord, error) {
	var rec *models.DeviceRecord
	err := s.run(ctx, "lookup", func(ctx context.Context) error {
		var err error
		rec, err = s.store.GetDevice(ctx, imei)
		return err
	})
	return rec, err
}

// History returns the custody log oldest first (asc, the default) or newest
// first (desc).
func (s *LedgerService) History(ctx context.Context, imei, order string) ([]models.Transaction, error) {
	if order == "" {
		order = OrderAsc
	}
	if order != OrderAsc && order != OrderDesc {
		return nil, fmt.Errorf("%w: order must be %s or %s, got %q", store.ErrInvalidInput, OrderAsc, OrderDesc, order)
	}

	rec, err := s.Lookup(ctx, imei)
	if err != nil {
		return nil, err
	}
	if order == OrderAsc {
		return rec.History, nil
	}

	out := make([]models.Transaction, len(rec.History))
	for i, tx := range rec.History {
		out[len(out)-1-i] = tx
	}
	return out, nil
}

// ListRecent returns one page of devices, newest first.
func (s *LedgerService) ListRecent(ctx context.Context, pageToken string) (*models.DevicePage, error) {
	var page *models.DevicePage
	err := s.run(ctx, "list_recent", func(ctx context.Context) error {
		var err error
		page, err = s.store.ListRecent(ctx, pageToken, store.PageSize)
		return err
	})
	return page, err
}

// DevicesByOwner lists the devices currently held by owner, newest first.
func (s *LedgerService) DevicesByOwner(ctx context.Context, owner string) ([]models.DeviceSummary, error) {
	if err := store.ValidateAddress(owner); err != nil {
		return nil, err
	}

	var devices []models.DeviceSummary
	err := s.run(ctx, "devices_by_owner", func(ctx context.Context) error {
		var err error
		devices, err = s.store.ListByOwner(ctx, owner)
		return err
	})
	return devices, err
}
