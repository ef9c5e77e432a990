package store

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"chaintrack-provenance-go/internal/models"

	"github.com/google/uuid"
)

// ValidateMint checks mint input before any state is touched.
func ValidateMint(p MintParams) error {
	if strings.TrimSpace(p.Imei) == "" {
		return fmt.Errorf("%w: imei is required", ErrInvalidInput)
	}
	if strings.TrimSpace(p.Model) == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidInput)
	}
	if strings.TrimSpace(p.Manufacturer) == "" {
		return fmt.Errorf("%w: manufacturer is required", ErrInvalidInput)
	}
	return ValidateAddress(p.Owner)
}

// ValidateTransfer checks transfer input. The recipient is validated before
// the device is looked up.
func ValidateTransfer(p TransferParams) error {
	if err := ValidateAddress(p.NewOwner); err != nil {
		return err
	}
	if strings.TrimSpace(p.Imei) == "" {
		return fmt.Errorf("%w: imei is required", ErrInvalidInput)
	}
	return nil
}

// ValidateStatus accepts only the stages reachable through a status update;
// Distributed is reached by transfer.
func ValidateStatus(p StatusParams) error {
	if strings.TrimSpace(p.Imei) == "" {
		return fmt.Errorf("%w: imei is required", ErrInvalidInput)
	}
	if p.Status != models.StatusInRetail && p.Status != models.StatusCustomerOwned {
		return fmt.Errorf("%w: status must be %s or %s, got %q",
			ErrInvalidInput, models.StatusInRetail, models.StatusCustomerOwned, p.Status)
	}
	return nil
}

// CheckOwner enforces the owner-only rule against the record being mutated.
func CheckOwner(rec *models.DeviceRecord, initiatedBy string, required bool) error {
	if !required {
		return nil
	}
	if initiatedBy == "" || !SameAddress(initiatedBy, rec.CurrentOwner) {
		return fmt.Errorf("%w: %s is not the owner of device %s", ErrNotAuthorized, initiatedBy, rec.Imei)
	}
	return nil
}

// CheckAdvance rejects lifecycle moves that do not go forward.
func CheckAdvance(current, next models.DeviceStatus) error {
	if next.Rank() <= current.Rank() {
		return fmt.Errorf("%w: cannot move device from %s to %s", ErrInvalidInput, current, next)
	}
	return nil
}

// NewTxHash returns a fresh 0x-prefixed 32-byte hex transaction hash.
func NewTxHash() string {
	a, b := uuid.New(), uuid.New()
	return "0x" + hex.EncodeToString(a[:]) + hex.EncodeToString(b[:])
}

// Stamp returns the hash and timestamp for a new log entry appended after
// an entry stamped at last. Replayed events keep their original identity.
// The timestamp never goes backwards.
func Stamp(ctx context.Context, last time.Time) (string, time.Time) {
	txHash := NewTxHash()
	ts := time.Now().UTC()
	if rc := models.GetReplayContext(ctx); rc != nil && rc.TxHash != "" {
		txHash = rc.TxHash
		if !rc.Timestamp.IsZero() {
			ts = rc.Timestamp.UTC()
		}
	}
	if ts.Before(last) {
		ts = last
	}
	return txHash, ts
}

// AlreadyRecorded reports whether a replayed event is already part of history.
func AlreadyRecorded(ctx context.Context, history []models.Transaction) bool {
	rc := models.GetReplayContext(ctx)
	if rc == nil || rc.TxHash == "" {
		return false
	}
	for _, tx := range history {
		if tx.TxHash == rc.TxHash {
			return true
		}
	}
	return false
}

const pageTokenPrefix = "seq:"

// EncodePageToken wraps a creation sequence number into an opaque token.
func EncodePageToken(seq int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(pageTokenPrefix + strconv.FormatInt(seq, 10)))
}

// DecodePageToken returns the sequence number a page continues below.
// An empty token starts from the newest device and decodes to 0.
func DecodePageToken(token string) (int64, error) {
	if token == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed page token", ErrInvalidInput)
	}
	s, ok := strings.CutPrefix(string(raw), pageTokenPrefix)
	if !ok {
		return 0, fmt.Errorf("%w: malformed page token", ErrInvalidInput)
	}
	seq, err := strconv.ParseInt(s, 10, 64)
	if err != nil || seq <= 0 {
		return 0, fmt.Errorf("%w: malformed page token", ErrInvalidInput)
	}
	return seq, nil
}
