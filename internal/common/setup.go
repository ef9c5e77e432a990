package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"chaintrack-provenance-go/internal/api"
	"chaintrack-provenance-go/internal/config"
	"chaintrack-provenance-go/internal/database"
	"chaintrack-provenance-go/internal/formance"
	"chaintrack-provenance-go/internal/memory"
	"chaintrack-provenance-go/internal/models"
	"chaintrack-provenance-go/internal/store"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	Ledger  store.LedgerStore
	Api     *api.LedgerService
	Backend string
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices opens the configured ledger backend and wraps it in the
// service facade every command talks to.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	ledger, err := OpenBackend(ctx, cfg, cfg.Ledger.Backend)
	if err != nil {
		return nil, err
	}

	return &Services{
		Ledger:  ledger,
		Api:     api.NewLedgerService(ledger, cfg.Ledger),
		Backend: cfg.Ledger.Backend,
	}, nil
}

// OpenBackend connects to the named backend using the settings in cfg.
func OpenBackend(ctx context.Context, cfg *models.Config, backend string) (store.LedgerStore, error) {
	zap.L().Info("Opening ledger backend", zap.String("backend", backend))

	switch backend {
	case config.BackendMemory:
		zap.L().Warn("Memory backend selected: records are lost when the process exits")
		return memory.NewService(), nil
	case config.BackendSQLite:
		svc, err := database.NewService(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		return svc, nil
	case config.BackendFormance:
		svc, err := formance.NewService(ctx, cfg.Formance)
		if err != nil {
			return nil, err
		}
		return svc, nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", backend)
	}
}

// OpenMirror opens the backend the listener replays into. It must differ from
// the ledger backend it reads from.
func OpenMirror(ctx context.Context, cfg *models.Config, source store.LedgerStore) (store.EventFeed, store.LedgerStore, error) {
	if cfg.Listener.MirrorBackend == cfg.Ledger.Backend {
		return nil, nil, fmt.Errorf("mirror backend %q is the same as the source backend", cfg.Listener.MirrorBackend)
	}

	feed, ok := source.(store.EventFeed)
	if !ok {
		return nil, nil, fmt.Errorf("backend %q cannot publish its custody log", cfg.Ledger.Backend)
	}

	mirror, err := OpenBackend(ctx, cfg, cfg.Listener.MirrorBackend)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open mirror backend: %w", err)
	}
	return feed, mirror, nil
}

func (cs *Services) Close() {
	if cs.Ledger != nil {
		cs.Ledger.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
