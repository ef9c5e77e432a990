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

func printDevices(title string, devices []models.DeviceSummary) {
	common.PrintHeader(title, common.WideWidth)
	if len(devices) == 0 {
		fmt.Println("No devices")
		return
	}
	for i, d := range devices {
		common.PrintDeviceSummary(d, i == len(devices)-1)
	}
}

func printStats(stats *models.LedgerStats) {
	common.PrintHeader("LEDGER STATS", common.WideWidth)
	fmt.Printf("Total devices:      %d\n", stats.TotalDevices)
	fmt.Printf("Distinct owners:    %d\n", stats.DistinctOwners)
	fmt.Printf("Distributed share:  %s%%\n", stats.DistributedShare.Shift(2).StringFixed(2))
	statuses := models.AllStatuses()
	for i, status := range statuses {
		fmt.Printf("%s%-16s %d\n", common.BoxPrefix(i == len(statuses)-1), status, stats.ByStatus[status])
	}
}

func main() {
	ownerFlag := flag.String("owner", "", "Only list devices held by this address")
	pageToken := flag.String("page", "", "Page token from a previous listing")
	flag.Parse()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if *ownerFlag != "" {
		devices, err := services.Api.DevicesByOwner(ctx, *ownerFlag)
		if err != nil {
			fmt.Printf("Listing failed: %v\n", err)
			os.Exit(1)
		}
		printDevices(fmt.Sprintf("DEVICES HELD BY %s", *ownerFlag), devices)
		common.PrintFooter(fmt.Sprintf("%d devices", len(devices)), common.WideWidth)
		return
	}

	stats, err := services.Api.Stats(ctx)
	if err != nil {
		fmt.Printf("Stats failed: %v\n", err)
		os.Exit(1)
	}
	printStats(stats)

	page, err := services.Api.ListRecent(ctx, *pageToken)
	if err != nil {
		fmt.Printf("Listing failed: %v\n", err)
		os.Exit(1)
	}
	printDevices("RECENT DEVICES", page.Devices)

	footer := "End of listing"
	if page.NextPageToken != "" {
		footer = fmt.Sprintf("More devices: devices --page=%s", page.NextPageToken)
	}
	common.PrintFooter(footer, common.WideWidth)
}
