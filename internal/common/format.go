package common

import (
	"fmt"
	"strings"
	"time"

	"chaintrack-provenance-go/internal/models"
)

const (
	// Default separator widths
	DefaultWidth = 80
	WideWidth    = 100
)

// PrintSeparator prints a separator line with the specified character and width
func PrintSeparator(char string, width int) {
	fmt.Println(strings.Repeat(char, width))
}

// PrintHeader prints a formatted header with title and separators
func PrintHeader(title string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(title)
	PrintSeparator("=", width)
}

// PrintFooter prints a formatted footer with message and separators
func PrintFooter(message string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(message)
	fmt.Println(strings.Repeat("=", width) + "\n")
}

// BoxPrefix returns the box-drawing prefix for list items
func BoxPrefix(isLast bool) string {
	if isLast {
		return "└  "
	}
	return "├  "
}

// BoxDetailPrefix returns the prefix for detail lines under list items
func BoxDetailPrefix(isLast bool) string {
	if isLast {
		return "   "
	}
	return "│  "
}

// ShortAddress abbreviates an address as 0x1234...abcd.
func ShortAddress(addr string) string {
	if len(addr) <= 14 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}

// PrintDeviceSummary prints one listing line for a device.
func PrintDeviceSummary(d models.DeviceSummary, isLast bool) {
	fmt.Printf("%s%-16s %-20s %-16s %s\n",
		BoxPrefix(isLast), d.Imei, d.Model, d.Status, ShortAddress(d.CurrentOwner))
}

// PrintDevice prints a device and its custody log, oldest entry first.
func PrintDevice(rec *models.DeviceRecord) {
	PrintHeader(fmt.Sprintf("DEVICE %s", rec.Imei), DefaultWidth)
	fmt.Printf("Id:            %s\n", rec.Id)
	fmt.Printf("Model:         %s\n", rec.Model)
	fmt.Printf("Manufacturer:  %s\n", rec.Manufacturer)
	fmt.Printf("Owner:         %s\n", rec.CurrentOwner)
	fmt.Printf("Status:        %s\n", rec.Status)
	fmt.Printf("Registered:    %s\n", FormatTimestamp(rec.CreatedAt))
	fmt.Println()
	PrintHistory(rec.History)
}

// PrintHistory prints custody log entries in the order given.
func PrintHistory(history []models.Transaction) {
	fmt.Printf("Custody log (%d entries)\n", len(history))
	for i, tx := range history {
		isLast := i == len(history)-1
		action := string(tx.Action)
		if tx.Action == models.ActionStatusUpdate {
			action = fmt.Sprintf("%s -> %s", tx.Action, tx.Status)
		}
		fmt.Printf("%s%s  %s\n", BoxPrefix(isLast), FormatTimestamp(tx.Timestamp), action)
		fmt.Printf("%s   %s -> %s\n", BoxDetailPrefix(isLast), ShortAddress(tx.From), ShortAddress(tx.To))
		fmt.Printf("%s   tx %s\n", BoxDetailPrefix(isLast), tx.TxHash)
	}
}
