package formance

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"chaintrack-provenance-go/internal/models"
	"chaintrack-provenance-go/internal/store"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/sdkerrors"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"go.uber.org/zap"
)

// Compile-time checks: *Service must satisfy store.LedgerStore and store.EventFeed.
var (
	_ store.LedgerStore = (*Service)(nil)
	_ store.EventFeed   = (*Service)(nil)
)

const defaultLedgerName = "chaintrack-devices"

// listPageSize bounds every paged read against the ledger API.
const listPageSize int64 = 100

// Service implements store.LedgerStore backed by a Formance Stack ledger.
// Each device is one unit of the DEVICE asset; custody is the account that
// holds it and the device's attributes live in account metadata.
type Service struct {
	client *v3.Formance
	ledger string
}

// NewService creates a Formance-backed LedgerStore.
// It connects to the stack, creates the ledger if it doesn't already exist, and returns ready to use.
func NewService(ctx context.Context, cfg models.FormanceConfig) (*Service, error) {
	if cfg.StackURL == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("formance config requires StackURL, ClientID, and ClientSecret")
	}
	if cfg.LedgerName == "" {
		cfg.LedgerName = defaultLedgerName
	}

	zap.L().Info("Connecting to Formance Stack",
		zap.String("stack_url", cfg.StackURL),
		zap.String("ledger", cfg.LedgerName))

	client := v3.New(
		v3.WithServerURL(cfg.StackURL),
		v3.WithSecurity(shared.Security{
			ClientID:     v3.Pointer(cfg.ClientID),
			ClientSecret: v3.Pointer(cfg.ClientSecret),
		}),
	)

	svc := &Service{client: client, ledger: cfg.LedgerName}

	if err := svc.ensureLedger(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure ledger exists: %w", classifyError(err, "create ledger"))
	}

	zap.L().Info("Formance service initialized", zap.String("ledger", cfg.LedgerName))
	return svc, nil
}

// ensureLedger creates the ledger if it does not already exist.
func (s *Service) ensureLedger(ctx context.Context) error {
	_, err := s.client.Ledger.V2.CreateLedger(ctx, operations.V2CreateLedgerRequest{
		Ledger: s.ledger,
		V2CreateLedgerRequest: shared.V2CreateLedgerRequest{
			Metadata: map[string]string{
				"application": "chaintrack-provenance",
			},
		},
	})
	if err != nil {
		if hasErrorCode(err, shared.V2ErrorsEnumLedgerAlreadyExists) {
			zap.L().Info("Ledger already exists", zap.String("ledger", s.ledger))
			return nil
		}
		return err
	}
	zap.L().Info("Ledger created", zap.String("ledger", s.ledger))
	return nil
}

// Ping checks that the ledger is reachable.
func (s *Service) Ping(ctx context.Context) error {
	_, err := s.client.Ledger.V2.GetLedger(ctx, operations.V2GetLedgerRequest{Ledger: s.ledger})
	if err != nil {
		return classifyError(err, "get ledger")
	}
	return nil
}

// Close is a no-op for the Formance backend (HTTP client needs no teardown).
func (s *Service) Close() {}

// ---------- account naming ----------

var safeSegment = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// accountKey turns an IMEI into a ledger address segment. IMEIs that are
// already valid segments are used as-is; anything else is hex-encoded under
// an "x_" prefix, which raw keys may not start with.
func accountKey(imei string) string {
	if safeSegment.MatchString(imei) && !strings.HasPrefix(imei, "x_") {
		return imei
	}
	return "x_" + hex.EncodeToString([]byte(imei))
}

func deviceAccount(key string) string {
	return "devices:" + key
}

// custodyAccount is where the device unit sits while owner holds it.
func custodyAccount(owner, key string) string {
	return "owners:" + store.NormalizeAddress(owner) + ":devices:" + key
}

// ---------- error helpers ----------

func hasErrorCode(err error, code shared.V2ErrorsEnum) bool {
	var apiErr *sdkerrors.V2ErrorResponse
	return errors.As(err, &apiErr) && apiErr.ErrorCode == code
}

// classifyError maps SDK and context errors onto the store sentinels.
// Anything the ledger did not answer with a known code is treated as the
// upstream being unavailable.
func classifyError(err error, op string) error {
	if err == nil {
		return nil
	}
	var apiErr *sdkerrors.V2ErrorResponse
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %v", store.ErrTimeout, op, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, err)
	case errors.As(err, &apiErr):
		switch apiErr.ErrorCode {
		case shared.V2ErrorsEnumNotFound:
			return fmt.Errorf("%w: %s: %s", store.ErrNotFound, op, apiErr.ErrorMessage)
		case shared.V2ErrorsEnumConflict, shared.V2ErrorsEnumInsufficientFund:
			return fmt.Errorf("%w: %s: %s", store.ErrConflict, op, apiErr.ErrorMessage)
		case shared.V2ErrorsEnumValidation:
			return fmt.Errorf("%w: %s: %s", store.ErrInvalidInput, op, apiErr.ErrorMessage)
		}
		return fmt.Errorf("%w: %s: %s %s", store.ErrUpstreamUnavailable, op, apiErr.ErrorCode, apiErr.ErrorMessage)
	default:
		return fmt.Errorf("%w: %s: %v", store.ErrUpstreamUnavailable, op, err)
	}
}

func strPtr(s string) *string  { return &s }
func ptrInt64(v int64) *int64 { return &v }
