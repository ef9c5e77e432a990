package models

import "time"

// DeviceStatus is the supply-chain lifecycle stage of a device.
type DeviceStatus string

const (
	StatusManufactured  DeviceStatus = "Manufactured"
	StatusDistributed   DeviceStatus = "Distributed"
	StatusInRetail      DeviceStatus = "In-Retail"
	StatusCustomerOwned DeviceStatus = "Customer-Owned"
)

var statusRank = map[DeviceStatus]int{
	StatusManufactured:  0,
	StatusDistributed:   1,
	StatusInRetail:      2,
	StatusCustomerOwned: 3,
}

// Valid reports whether s is one of the known lifecycle stages.
func (s DeviceStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Rank returns the position of s in the lifecycle, or -1 when unknown.
func (s DeviceStatus) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// AllStatuses lists the lifecycle stages in order.
func AllStatuses() []DeviceStatus {
	return []DeviceStatus{StatusManufactured, StatusDistributed, StatusInRetail, StatusCustomerOwned}
}

// Action classifies a custody log entry.
type Action string

const (
	ActionMintGenesis       Action = "MINT_GENESIS"
	ActionTransferOwnership Action = "TRANSFER_OWNERSHIP"
	ActionStatusUpdate      Action = "STATUS_UPDATE"
)

// Transaction is one immutable entry of a device's custody log.
// Status is set only on STATUS_UPDATE entries and names the stage reached.
type Transaction struct {
	From      string       `db:"from_address" json:"from"`
	To        string       `db:"to_address" json:"to"`
	Action    Action       `db:"action" json:"action"`
	Status    DeviceStatus `db:"status" json:"status,omitempty"`
	Timestamp time.Time    `db:"timestamp" json:"timestamp"`
	TxHash    string       `db:"tx_hash" json:"tx_hash"`
}

// DeviceRecord is a registered device together with its full custody log.
// History is oldest first; the last entry's To always equals CurrentOwner.
type DeviceRecord struct {
	Id           string        `db:"id" json:"id"`
	Imei         string        `db:"imei" json:"imei"`
	Model        string        `db:"model" json:"model"`
	Manufacturer string        `db:"manufacturer" json:"manufacturer"`
	CurrentOwner string        `db:"current_owner" json:"current_owner"`
	Status       DeviceStatus  `db:"status" json:"status"`
	History      []Transaction `json:"history"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
}

// Clone returns a deep copy so callers never share the history slice.
func (d *DeviceRecord) Clone() *DeviceRecord {
	if d == nil {
		return nil
	}
	out := *d
	out.History = append([]Transaction(nil), d.History...)
	return &out
}

// Summary drops the history from the record.
func (d *DeviceRecord) Summary() DeviceSummary {
	return DeviceSummary{
		Id:           d.Id,
		Imei:         d.Imei,
		Model:        d.Model,
		Manufacturer: d.Manufacturer,
		CurrentOwner: d.CurrentOwner,
		Status:       d.Status,
		CreatedAt:    d.CreatedAt,
	}
}

// Events expands the record into its feed events, oldest first.
func (d *DeviceRecord) Events() []DeviceEvent {
	events := make([]DeviceEvent, 0, len(d.History))
	for _, tx := range d.History {
		events = append(events, DeviceEvent{
			DeviceId:     d.Id,
			Imei:         d.Imei,
			Model:        d.Model,
			Manufacturer: d.Manufacturer,
			CreatedAt:    d.CreatedAt,
			Transaction:  tx,
		})
	}
	return events
}

// DeviceSummary is the listing view of a device (no history)
type DeviceSummary struct {
	Id           string       `db:"id" json:"id"`
	Imei         string       `db:"imei" json:"imei"`
	Model        string       `db:"model" json:"model"`
	Manufacturer string       `db:"manufacturer" json:"manufacturer"`
	CurrentOwner string       `db:"current_owner" json:"current_owner"`
	Status       DeviceStatus `db:"status" json:"status"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
}

// DevicePage is one page of a newest-first device listing.
// An empty NextPageToken marks the last page.
type DevicePage struct {
	Devices       []DeviceSummary `json:"devices"`
	NextPageToken string          `json:"next_page_token,omitempty"`
}

// LedgerCounts holds the raw aggregates a backend derives from its records.
type LedgerCounts struct {
	TotalDevices   int
	DistinctOwners int
	ByStatus       map[DeviceStatus]int
}
