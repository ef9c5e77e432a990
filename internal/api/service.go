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

package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chaintrack-provenance-go/internal/metrics"
	"chaintrack-provenance-go/internal/models"
	"chaintrack-provenance-go/internal/store"

	"go.uber.org/zap"
)

const defaultOperationTimeout = 10 * time.Second

// LedgerService is the entry point every caller (HTTP, CLI) goes through.
// It owns the timeout and ownership policy; the backend owns the data.
type LedgerService struct {
	store        store.LedgerStore
	timeout      time.Duration
	enforceOwner bool
}

func NewLedgerService(ledger store.LedgerStore, cfg models.LedgerConfig) *LedgerService {
	timeout := cfg.OperationTimeout
	if timeout <= 0 {
		timeout = defaultOperationTimeout
	}
	return &LedgerService{
		store:        ledger,
		timeout:      timeout,
		enforceOwner: cfg.EnforceOwner,
	}
}

// pinger is implemented by backends with a cheaper liveness probe than a read.
type pinger interface {
	Ping(ctx context.Context) error
}

func (s *LedgerService) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var err error
	if p, ok := s.store.(pinger); ok {
		err = p.Ping(ctx)
	} else {
		_, err = s.store.Counts(ctx)
	}
	if err != nil {
		return fmt.Errorf("ledger health check failed: %w", err)
	}
	return nil
}

// run applies the operation timeout and records the outcome. A deadline hit
// anywhere below surfaces as store.ErrTimeout.
func (s *LedgerService) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	if err != nil && !errors.Is(err, store.ErrTimeout) &&
		(errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		err = fmt.Errorf("%w: %s exceeded %s: %v", store.ErrTimeout, op, s.timeout, err)
	}
	metrics.ObserveOperation(op, start, err)

	if err != nil {
		zap.L().Debug("Ledger operation failed",
			zap.String("operation", op),
			zap.String("result", metrics.Result(err)),
			zap.Error(err))
	}
	return err
}
