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
		imei         = flag.String("imei", "", "Device IMEI (required)")
		model        = flag.String("model", "", "Device model (required)")
		manufacturer = flag.String("manufacturer", "", "Manufacturer name (required)")
		owner        = flag.String("owner", "", "Address of the first custodian (required)")
	)
	flag.Parse()

	if *imei == "" || *model == "" || *manufacturer == "" || *owner == "" {
		fmt.Println("Usage: mint --imei=<imei> --model=<model> --manufacturer=<name> --owner=<0x address>")
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

	rec, err := services.Api.Mint(ctx, models.MintRequest{
		Imei:         *imei,
		Model:        *model,
		Manufacturer: *manufacturer,
		Owner:        *owner,
	})
	if err != nil {
		fmt.Printf("Mint failed: %v\n", err)
		os.Exit(1)
	}

	common.PrintDevice(rec)
	common.PrintFooter("Device registered", common.DefaultWidth)
}
