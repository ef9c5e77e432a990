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
	"fmt"
	"sync"
	"time"

	"chaintrack-provenance-go/internal/models"
	"chaintrack-provenance-go/internal/store"

	"go.uber.org/zap"
)

// MirrorListenerConfig contains configuration for MirrorListener
type MirrorListenerConfig struct {
	Source          store.EventFeed
	Mirror          store.LedgerStore
	LookbackWindow  time.Duration
	PollingInterval time.Duration
	CleanupInterval time.Duration
	Workers         int
}

// MirrorListener polls a source ledger's custody log and replays every new
// entry into a mirror ledger, keeping the original hashes and timestamps.
type MirrorListener struct {
	source store.EventFeed
	mirror store.LedgerStore

	// State management for processed events, keyed by tx hash
	processedTxHashes map[string]time.Time
	mutex             sync.RWMutex
	lookbackWindow    time.Duration
	pollingInterval   time.Duration
	cleanupInterval   time.Duration
	workers           int

	// Control channels
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewMirrorListener creates a new mirror listener
func NewMirrorListener(cfg MirrorListenerConfig) *MirrorListener {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	return &MirrorListener{
		source:            cfg.Source,
		mirror:            cfg.Mirror,
		processedTxHashes: make(map[string]time.Time),
		lookbackWindow:    cfg.LookbackWindow,
		pollingInterval:   cfg.PollingInterval,
		cleanupInterval:   cfg.CleanupInterval,
		workers:           workers,
		stopChan:          make(chan struct{}),
		doneChan:          make(chan struct{}),
	}
}

// fetchEvents reads the source log from since onwards, oldest first.
func (l *MirrorListener) fetchEvents(ctx context.Context, since time.Time) ([]models.DeviceEvent, error) {
	zap.L().Debug("Fetching custody events from source ledger", zap.Time("since", since))

	events, err := l.source.EventsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("source ledger call failed: %w", err)
	}
	return events, nil
}

// groupByDevice splits the stream into per-device chains, keeping order
// within each chain and the order in which devices first appear.
func groupByDevice(events []models.DeviceEvent) [][]models.DeviceEvent {
	index := make(map[string]int)
	var chains [][]models.DeviceEvent
	for _, ev := range events {
		i, ok := index[ev.Imei]
		if !ok {
			i = len(chains)
			index[ev.Imei] = i
			chains = append(chains, nil)
		}
		chains[i] = append(chains[i], ev)
	}
	return chains
}

// isEventProcessed checks if we've already mirrored this event
func (l *MirrorListener) isEventProcessed(txHash string) bool {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	_, exists := l.processedTxHashes[txHash]
	return exists
}

// markEventProcessed marks an event as mirrored
func (l *MirrorListener) markEventProcessed(txHash string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.processedTxHashes[txHash] = time.Now()
}

// cleanupLoop periodically cleans old processed event hashes
func (l *MirrorListener) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanupProcessedEvents()
		case <-l.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// cleanupProcessedEvents removes entries older than the lookback window.
// Anything dropped here is either outside the next poll's window or is
// refused by the mirror as already recorded.
func (l *MirrorListener) cleanupProcessedEvents() {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	cutoff := time.Now().UTC().Add(-l.lookbackWindow)
	cleaned := 0

	for txHash, processedTime := range l.processedTxHashes {
		if processedTime.Before(cutoff) {
			delete(l.processedTxHashes, txHash)
			cleaned++
		}
	}

	if cleaned > 0 {
		zap.L().Debug("Cleaned up old processed events",
			zap.Int("cleaned", cleaned),
			zap.Int("remaining", len(l.processedTxHashes)))
	}
}
