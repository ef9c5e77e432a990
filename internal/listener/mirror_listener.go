/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package listener

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"chaintrack-provenance-go/internal/metrics"
	"chaintrack-provenance-go/internal/models"
	"chaintrack-provenance-go/internal/store"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Start performs startup recovery and begins polling the source ledger
func (l *MirrorListener) Start(ctx context.Context) error {
	zap.L().Info("Starting mirror listener")

	if err := l.performStartupRecovery(ctx); err != nil {
		zap.L().Error("Startup recovery failed", zap.Error(err))
		return fmt.Errorf("startup recovery failed: %w", err)
	}

	go l.pollLoop(ctx)
	go l.cleanupLoop(ctx)

	zap.L().Info("Mirror listener started successfully",
		zap.Duration("polling_interval", l.pollingInterval),
		zap.Duration("lookback_window", l.lookbackWindow))

	return nil
}

// Stop gracefully stops the mirror listener
func (l *MirrorListener) Stop() {
	zap.L().Info("Stopping mirror listener")
	close(l.stopChan)
	<-l.doneChan
	zap.L().Info("Mirror listener stopped")
}

// pollLoop runs the main polling loop
func (l *MirrorListener) pollLoop(ctx context.Context) {
	defer close(l.doneChan)

	ticker := time.NewTicker(l.pollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := l.poll(ctx); err != nil {
				zap.L().Error("Failed to poll source ledger", zap.Error(err))
			}
		case <-l.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// ANSI color helpers for console output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

// poll mirrors every unprocessed event inside the lookback window and
// returns how many were newly applied.
func (l *MirrorListener) poll(ctx context.Context) (int, error) {
	since := time.Now().UTC().Add(-l.lookbackWindow)

	events, err := l.fetchEvents(ctx, since)
	if err != nil {
		return 0, err
	}

	chains := groupByDevice(events)
	fmt.Printf("\n%s[%s] Polling source ledger: %d events across %d devices (lookback: %s)%s\n",
		colorCyan, time.Now().Format("15:04:05"), len(events), len(chains), l.lookbackWindow, colorReset)

	return l.replayChains(ctx, chains), nil
}

// replayChains applies device chains concurrently; entries of one device
// are applied strictly in order.
func (l *MirrorListener) replayChains(ctx context.Context, chains [][]models.DeviceEvent) int {
	var applied atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for _, chain := range chains {
		g.Go(func() error {
			applied.Add(int64(l.replayChain(gctx, chain)))
			return nil
		})
	}
	_ = g.Wait()

	return int(applied.Load())
}

func (l *MirrorListener) replayChain(ctx context.Context, chain []models.DeviceEvent) int {
	chain = l.backfillChain(ctx, chain)
	applied := 0
	for _, ev := range chain {
		if l.isEventProcessed(ev.TxHash) {
			continue
		}

		hashShort := ev.TxHash
		if len(hashShort) > 12 {
			hashShort = hashShort[:12] + "..."
		}

		ok, err := l.processEvent(ctx, ev)
		switch {
		case err != nil:
			fmt.Printf("  %s✗ %s %s %s | %s%s\n", colorRed, ev.Imei, ev.Action, hashShort, err, colorReset)
			zap.L().Error("Failed to mirror event",
				zap.String("imei", ev.Imei),
				zap.String("action", string(ev.Action)),
				zap.String("tx_hash", ev.TxHash),
				zap.Error(err))
			// later entries depend on this one
			return applied
		case ok:
			applied++
			fmt.Printf("  %s✓ %s %s %s -> %s | %s%s\n", colorGreen, ev.Imei, ev.Action, ev.From, ev.To, hashShort, colorReset)
		default:
			fmt.Printf("  %s~ %s %s | %s already mirrored%s\n", colorYellow, ev.Imei, ev.Action, hashShort, colorReset)
		}
	}
	return applied
}

// backfillChain swaps a chain that starts after the device's genesis for the
// device's full log when the mirror has never seen the device. Otherwise the
// first entry would fail with NotFound on every poll.
func (l *MirrorListener) backfillChain(ctx context.Context, chain []models.DeviceEvent) []models.DeviceEvent {
	if len(chain) == 0 || chain[0].Action == models.ActionMintGenesis {
		return chain
	}

	imei := chain[0].Imei
	_, err := l.mirror.GetDevice(ctx, imei)
	if !errors.Is(err, store.ErrNotFound) {
		return chain
	}

	full, err := l.source.DeviceEvents(ctx, imei)
	if err != nil {
		zap.L().Error("Failed to backfill device log", zap.String("imei", imei), zap.Error(err))
		return chain
	}

	zap.L().Info("Backfilling device log from source",
		zap.String("imei", imei),
		zap.Int("window_events", len(chain)),
		zap.Int("log_events", len(full)))
	return full
}

// processEvent replays one event. It returns false without error when the
// mirror already holds the event.
func (l *MirrorListener) processEvent(ctx context.Context, ev models.DeviceEvent) (bool, error) {
	rctx := models.WithReplayContext(ctx, &models.ReplayContext{
		TxHash:    ev.TxHash,
		Timestamp: ev.Timestamp,
		DeviceId:  ev.DeviceId,
	})

	var err error
	switch ev.Action {
	case models.ActionMintGenesis:
		_, err = l.mirror.Mint(rctx, store.MintParams{
			Imei:         ev.Imei,
			Model:        ev.Model,
			Manufacturer: ev.Manufacturer,
			Owner:        ev.To,
		})
	case models.ActionTransferOwnership:
		_, err = l.mirror.Transfer(rctx, store.TransferParams{
			Imei:         ev.Imei,
			NewOwner:     ev.To,
			InitiatedBy:  ev.From,
			RequireOwner: true,
		})
	case models.ActionStatusUpdate:
		_, err = l.mirror.UpdateStatus(rctx, store.StatusParams{
			Imei:         ev.Imei,
			Status:       ev.Status,
			InitiatedBy:  ev.From,
			RequireOwner: true,
		})
	default:
		err = fmt.Errorf("%w: unknown action %q", store.ErrInvalidInput, ev.Action)
	}

	if errors.Is(err, store.ErrDuplicateIdentifier) {
		l.markEventProcessed(ev.TxHash)
		metrics.MirroredEventsTotal.WithLabelValues("duplicate").Inc()
		return false, nil
	}
	metrics.MirroredEventsTotal.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		return false, err
	}

	l.markEventProcessed(ev.TxHash)
	return true, nil
}

// performStartupRecovery replays everything inside the lookback window
// before the first poll, so events committed while the listener was down
// reach the mirror.
func (l *MirrorListener) performStartupRecovery(ctx context.Context) error {
	zap.L().Info("Starting startup recovery process")

	recoveryStart := time.Now().UTC().Add(-l.lookbackWindow)
	zap.L().Info("Recovery window calculated",
		zap.Time("recovery_start", recoveryStart),
		zap.Duration("lookback_window", l.lookbackWindow))

	events, err := l.fetchEvents(ctx, recoveryStart)
	if err != nil {
		return fmt.Errorf("failed to fetch events during recovery: %w", err)
	}

	chains := groupByDevice(events)
	recovered := l.replayChains(ctx, chains)

	zap.L().Info("Startup recovery completed",
		zap.Int("events_recovered", recovered),
		zap.Int("events_seen", len(events)),
		zap.Int("devices", len(chains)))
	return nil
}
