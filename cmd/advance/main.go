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
		imei   = flag.String("imei", "", "Device IMEI (required)")
		status = flag.String("status", "", "Target stage: In-Retail or Customer-Owned (required)")
		from   = flag.String("from", "", "Address of the current owner (required)")
	)
	flag.Parse()

	if *imei == "" || *status == "" || *from == "" {
		fmt.Println("Usage: advance --imei=<imei> --status=<In-Retail|Customer-Owned> --from=<0x address>")
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

	rec, err := services.Api.Advance(ctx, *imei, models.StatusRequest{
		Status:      models.DeviceStatus(*status),
		InitiatedBy: *from,
	})
	if err != nil {
		fmt.Printf("Status update failed: %v\n", err)
		os.Exit(1)
	}

	common.PrintDevice(rec)
	common.PrintFooter(fmt.Sprintf("Device is now %s", rec.Status), common.DefaultWidth)
}
