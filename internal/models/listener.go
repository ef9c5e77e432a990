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

import "time"

// DeviceEvent is one custody log entry as published by an event feed,
// carrying enough device data to rebuild the record on a mirror.
type DeviceEvent struct {
	DeviceId     string       `json:"device_id"`
	Imei         string       `json:"imei"`
	Model        string       `json:"model"`
	Manufacturer string       `json:"manufacturer"`
	CreatedAt    time.Time    `json:"created_at"`
	Transaction
}
