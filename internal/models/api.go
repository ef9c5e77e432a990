/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

import "github.com/shopspring/decimal"

// MintRequest is the body of a device registration call
type MintRequest struct {
	Imei         string `json:"imei" yaml:"imei"`
	Model        string `json:"model" yaml:"model"`
	Manufacturer string `json:"manufacturer" yaml:"manufacturer"`
	Owner        string `json:"owner" yaml:"owner"`
}

// TransferRequest moves custody of a device to NewOwner.
type TransferRequest struct {
	NewOwner    string `json:"new_owner"`
	InitiatedBy string `json:"initiated_by"`
}

// StatusRequest advances a device to a later lifecycle stage.
type StatusRequest struct {
	Status      DeviceStatus `json:"status"`
	InitiatedBy string       `json:"initiated_by"`
}

// LedgerStats is the dashboard aggregate view.
type LedgerStats struct {
	TotalDevices     int                  `json:"total_devices"`
	DistinctOwners   int                  `json:"distinct_owners"`
	ByStatus         map[DeviceStatus]int `json:"by_status"`
	DistributedShare decimal.Decimal      `json:"distributed_share"`
}

// ErrorResponse is the JSON error envelope
type ErrorResponse struct {
	Error string `json:"error"`
}
