package formance

// ---------------------------------------------------------------------------
// Numscript templates. A device is one unit of [DEVICE 1]; whoever holds it
// in their custody account is the owner. Device attributes are kept on the
// device account and every log entry is described by its tx metadata so
// the ledger alone can rebuild a device's history.
// ---------------------------------------------------------------------------

const numscriptMintGenesis = `vars {
  account $device
  account $custody
  string $device_id
  string $device_key
  string $imei
  string $model
  string $manufacturer
  string $created_at
  string $from
  string $to
  string $owner_key
  string $tx_hash
  string $position
}

send [DEVICE 1] (
  source = @world
  destination = $custody
)

set_account_meta($device, "entity_type", "device")
set_account_meta($device, "device_id", $device_id)
set_account_meta($device, "imei", $imei)
set_account_meta($device, "model", $model)
set_account_meta($device, "manufacturer", $manufacturer)
set_account_meta($device, "created_at", $created_at)
set_account_meta($device, "current_owner", $to)
set_account_meta($device, "owner_key", $owner_key)
set_account_meta($device, "status", "Manufactured")
set_account_meta($device, "history_length", "1")

set_tx_meta("action", "MINT_GENESIS")
set_tx_meta("device_id", $device_id)
set_tx_meta("device_key", $device_key)
set_tx_meta("imei", $imei)
set_tx_meta("model", $model)
set_tx_meta("manufacturer", $manufacturer)
set_tx_meta("created_at", $created_at)
set_tx_meta("from", $from)
set_tx_meta("to", $to)
set_tx_meta("tx_hash", $tx_hash)
set_tx_meta("position", $position)
`

const numscriptTransferOwnership = `vars {
  account $device
  account $from_custody
  account $to_custody
  string $device_id
  string $device_key
  string $imei
  string $model
  string $manufacturer
  string $created_at
  string $from
  string $to
  string $owner_key
  string $status
  string $history_length
  string $tx_hash
  string $position
}

send [DEVICE 1] (
  source = $from_custody
  destination = $to_custody
)

set_account_meta($device, "current_owner", $to)
set_account_meta($device, "owner_key", $owner_key)
set_account_meta($device, "status", $status)
set_account_meta($device, "history_length", $history_length)

set_tx_meta("action", "TRANSFER_OWNERSHIP")
set_tx_meta("device_id", $device_id)
set_tx_meta("device_key", $device_key)
set_tx_meta("imei", $imei)
set_tx_meta("model", $model)
set_tx_meta("manufacturer", $manufacturer)
set_tx_meta("created_at", $created_at)
set_tx_meta("from", $from)
set_tx_meta("to", $to)
set_tx_meta("tx_hash", $tx_hash)
set_tx_meta("position", $position)
`

// numscriptStatusUpdate moves the unit onto the same custody account: the
// posting proves the owner still holds the device when the entry commits.
const numscriptStatusUpdate = `vars {
  account $device
  account $custody
  string $device_id
  string $device_key
  string $imei
  string $model
  string $manufacturer
  string $created_at
  string $from
  string $to
  string $status
  string $history_length
  string $tx_hash
  string $position
}

send [DEVICE 1] (
  source = $custody
  destination = $custody
)

set_account_meta($device, "status", $status)
set_account_meta($device, "history_length", $history_length)

set_tx_meta("action", "STATUS_UPDATE")
set_tx_meta("device_id", $device_id)
set_tx_meta("device_key", $device_key)
set_tx_meta("imei", $imei)
set_tx_meta("model", $model)
set_tx_meta("manufacturer", $manufacturer)
set_tx_meta("created_at", $created_at)
set_tx_meta("from", $from)
set_tx_meta("to", $to)
set_tx_meta("status", $status)
set_tx_meta("tx_hash", $tx_hash)
set_tx_meta("position", $position)
`
