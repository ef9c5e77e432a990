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

package database

const (
	schema = `
	-- Devices table (current state)
	CREATE TABLE IF NOT EXISTS devices (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		imei TEXT NOT NULL,
		model TEXT NOT NULL,
		manufacturer TEXT NOT NULL,
		current_owner TEXT NOT NULL,
		owner_key TEXT NOT NULL,
		status TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	-- IMEI is the natural key
	CREATE UNIQUE INDEX IF NOT EXISTS idx_devices_imei ON devices(imei);
	-- Index for "my devices" lookups
	CREATE INDEX IF NOT EXISTS idx_devices_owner_key ON devices(owner_key);
	CREATE INDEX IF NOT EXISTS idx_devices_status ON devices(status);

	-- Custody log (append-only)
	CREATE TABLE IF NOT EXISTS device_transactions (
		id TEXT PRIMARY KEY,
		device_id TEXT NOT NULL REFERENCES devices(id),
		position INTEGER NOT NULL,
		from_address TEXT NOT NULL,
		to_address TEXT NOT NULL,
		action TEXT NOT NULL,
		status TEXT,
		tx_hash TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		UNIQUE(device_id, position)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_device_transactions_tx_hash ON device_transactions(tx_hash);
	CREATE INDEX IF NOT EXISTS idx_device_transactions_timestamp ON device_transactions(timestamp);
	`

	// Device queries
	queryInsertDevice = `
		INSERT INTO devices (id, imei, model, manufacturer, current_owner, owner_key, status, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`

	queryGetDeviceByImei = `
		SELECT id, imei, model, manufacturer, current_owner, status, version, created_at
		FROM devices
		WHERE imei = ?`

	queryUpdateDevice = `
		UPDATE devices
		SET current_owner = ?, owner_key = ?, status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`

	queryListRecentDevices = `
		SELECT seq, id, imei, model, manufacturer, current_owner, status, created_at
		FROM devices
		WHERE (? = 0 OR seq < ?)
		ORDER BY seq DESC
		LIMIT ?`

	queryListDevicesByOwner = `
		SELECT seq, id, imei, model, manufacturer, current_owner, status, created_at
		FROM devices
		WHERE owner_key = ?
		ORDER BY seq DESC`

	queryCountByStatus = `
		SELECT status, COUNT(*)
		FROM devices
		GROUP BY status`

	queryCountDistinctOwners = `
		SELECT COUNT(DISTINCT owner_key)
		FROM devices`

	// Custody log queries
	queryInsertDeviceTransaction = `
		INSERT INTO device_transactions (id, device_id, position, from_address, to_address, action, status, tx_hash, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetDeviceHistory = `
		SELECT from_address, to_address, action, status, tx_hash, timestamp
		FROM device_transactions
		WHERE device_id = ?
		ORDER BY position ASC`

	queryEventsSince = `
		SELECT d.id, d.imei, d.model, d.manufacturer, d.created_at,
		       t.from_address, t.to_address, t.action, t.status, t.tx_hash, t.timestamp
		FROM device_transactions t
		JOIN devices d ON d.id = t.device_id
		WHERE t.timestamp >= ?
		ORDER BY t.timestamp ASC, d.seq ASC, t.position ASC`
)
