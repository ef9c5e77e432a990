package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"chaintrack-provenance-go/internal/api"
	"chaintrack-provenance-go/internal/common"
	"chaintrack-provenance-go/internal/config"
	"chaintrack-provenance-go/internal/store"

	"go.uber.org/zap"
)

// verify prints a device and its custody log, the same view a buyer checking
// provenance gets.
func main() {
	imei := flag.String("imei", "", "Device IMEI to verify (required)")
	newestFirst := flag.Bool("newest-first", false, "Print the custody log newest entry first")
	flag.Parse()

	if *imei == "" {
		fmt.Println("Usage: verify --imei=<imei> [--newest-first]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	rec, err := services.Api.Lookup(ctx, *imei)
	if errors.Is(err, store.ErrNotFound) {
		common.PrintFooter(fmt.Sprintf("IMEI %s is NOT registered on the ledger", *imei), common.DefaultWidth)
		os.Exit(2)
	}
	if err != nil {
		fmt.Printf("Lookup failed: %v\n", err)
		os.Exit(1)
	}

	common.PrintDevice(rec)

	if *newestFirst {
		history, err := services.Api.History(ctx, *imei, api.OrderDesc)
		if err != nil {
			fmt.Printf("History failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println()
		fmt.Println("Newest first:")
		common.PrintHistory(history)
	}

	common.PrintFooter(fmt.Sprintf("Verified: %d custody entries, current owner %s", len(rec.History), rec.CurrentOwner), common.DefaultWidth)
}
