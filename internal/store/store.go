package store

import (
	"context"
	"errors"
	"time"

	"chaintrack-provenance-go/internal/models"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrDuplicateIdentifier = errors.New("identifier already registered")
	ErrNotFound            = errors.New("device not found")
	ErrInvalidIdentifier   = errors.New("invalid identifier")
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotAuthorized       = errors.New("not authorized")
	ErrConflict            = errors.New("concurrent modification detected")
	ErrTimeout             = errors.New("operation timed out")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// PageSize is the fixed number of devices per listing page.
const PageSize = 10

// GenesisAddress is the sender recorded on every MINT_GENESIS entry.
const GenesisAddress = "0x0000000000000000000000000000000000000000"

// MintParams contains the parameters for registering a device.
type MintParams struct {
	Imei         string
	Model        string
	Manufacturer string
	Owner        string
}

// TransferParams moves custody of a device. When RequireOwner is set the
// backend rejects the call unless InitiatedBy is the current owner, checked
// under the same lock that applies the transfer.
type TransferParams struct {
	Imei         string
	NewOwner     string
	InitiatedBy  string
	RequireOwner bool
}

// StatusParams advances a device along the lifecycle.
type StatusParams struct {
	Imei         string
	Status       models.DeviceStatus
	InitiatedBy  string
	RequireOwner bool
}

// LedgerStore defines the contract that every backend (memory, SQLite, Formance) must satisfy.
type LedgerStore interface {
	// --- Writes ---
	Mint(ctx context.Context, params MintParams) (*models.DeviceRecord, error)
	Transfer(ctx context.Context, params TransferParams) (*models.DeviceRecord, error)
	UpdateStatus(ctx context.Context, params StatusParams) (*models.DeviceRecord, error)

	// --- Reads ---
	GetDevice(ctx context.Context, imei string) (*models.DeviceRecord, error)
	ListRecent(ctx context.Context, pageToken string, limit int) (*models.DevicePage, error)
	ListByOwner(ctx context.Context, owner string) ([]models.DeviceSummary, error)
	Counts(ctx context.Context) (*models.LedgerCounts, error)

	// --- Lifecycle ---
	Close()
}

// EventFeed is implemented by backends that can publish their custody log
// in commit order, so another backend can mirror them.
type EventFeed interface {
	EventsSince(ctx context.Context, since time.Time) ([]models.DeviceEvent, error)
	// DeviceEvents returns one device's whole log, oldest first, so a
	// mirror can rebuild a device minted before the window it polls.
	DeviceEvents(ctx context.Context, imei string) ([]models.DeviceEvent, error)
}
