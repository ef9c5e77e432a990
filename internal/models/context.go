package models

import (
	"context"
	"time"
)

type replayContextKey struct{}

// ReplayContext carries the identity of an event that already happened on
// another ledger, so a backend records it with the original hash and time
// instead of minting fresh ones. It travels through context so the
// LedgerStore interface stays the same for live and mirrored writes.
type ReplayContext struct {
	TxHash    string
	Timestamp time.Time
	DeviceId  string // only used for MINT_GENESIS
}

// WithReplayContext attaches replay data to a context.
func WithReplayContext(ctx context.Context, rc *ReplayContext) context.Context {
	return context.WithValue(ctx, replayContextKey{}, rc)
}

// GetReplayContext returns replay data from context, or nil if absent.
func GetReplayContext(ctx context.Context) *ReplayContext {
	rc, _ := ctx.Value(replayContextKey{}).(*ReplayContext)
	return rc
}
