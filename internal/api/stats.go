package api

import (
	"context"

	"chaintrack-provenance-go/internal/models"

	"github.com/shopspring/decimal"
)

// Stats aggregates the ledger for the dashboard. DistributedShare is the
// fraction of devices that have left the manufacturer.
func (s *LedgerService) Stats(ctx context.Context) (*models.LedgerStats, error) {
	var counts *models.LedgerCounts
	err := s.run(ctx, "stats", func(ctx context.Context) error {
		var err error
		counts, err = s.store.Counts(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	stats := &models.LedgerStats{
		TotalDevices:     counts.TotalDevices,
		DistinctOwners:   counts.DistinctOwners,
		ByStatus:         make(map[models.DeviceStatus]int),
		DistributedShare: decimal.Zero,
	}
	for _, status := range models.AllStatuses() {
		stats.ByStatus[status] = counts.ByStatus[status]
	}
	if counts.TotalDevices > 0 {
		left := counts.TotalDevices - counts.ByStatus[models.StatusManufactured]
		stats.DistributedShare = decimal.NewFromInt(int64(left)).
			Div(decimal.NewFromInt(int64(counts.TotalDevices))).
			Round(4)
	}
	return stats, nil
}
