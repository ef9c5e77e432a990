package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"chaintrack-provenance-go/internal/common"
	"chaintrack-provenance-go/internal/config"
	"chaintrack-provenance-go/internal/models"

	"go.uber.org/zap"
)

func main() {
	var (
		imei = flag.String("imei", "", "Device IMEI (required)")
		to   = flag.String("to", "", "Recipient address (required)")
		from = flag.String("from", "", "Address of the current owner initiating the transfer")
	)
	flag.Parse()

	if *imei == "" || *to == "" {
		fmt.Println("Usage: transfer --imei=<imei> --to=<0x address> [--from=<0x address>]")
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

	rec, err := services.Api.Transfer(ctx, *imei, models.TransferRequest{
		NewOwner:    *to,
		InitiatedBy: *from,
	})
	if err != nil {
		fmt.Printf("Transfer failed: %v\n", err)
		os.Exit(1)
	}

	common.PrintDevice(rec)
	common.PrintFooter(fmt.Sprintf("Custody transferred to %s", rec.CurrentOwner), common.DefaultWidth)
}
