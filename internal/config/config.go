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

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"chaintrack-provenance-go/internal/models"
)

// Backend names accepted by LEDGER_BACKEND and LISTENER_MIRROR_BACKEND.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendFormance = "formance"
)

func Load() (*models.Config, error) {
	var (
		operationTimeout time.Duration
		connMaxLifetime  time.Duration
		connMaxIdleTime  time.Duration
		pingTimeout      time.Duration
		busyTimeout      time.Duration
		lookbackWindow   time.Duration
		pollingInterval  time.Duration
		cleanupInterval  time.Duration
	)
	var err error
	if operationTimeout, err = getEnvDuration("LEDGER_OPERATION_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if connMaxLifetime, err = getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute); err != nil {
		return nil, err
	}
	if connMaxIdleTime, err = getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second); err != nil {
		return nil, err
	}
	if pingTimeout, err = getEnvDuration("DB_PING_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if busyTimeout, err = getEnvDuration("DB_BUSY_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if lookbackWindow, err = getEnvDuration("LISTENER_LOOKBACK_WINDOW", 6*time.Hour); err != nil {
		return nil, err
	}
	if pollingInterval, err = getEnvDuration("LISTENER_POLLING_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cleanupInterval, err = getEnvDuration("LISTENER_CLEANUP_INTERVAL", 15*time.Minute); err != nil {
		return nil, err
	}

	cfg := &models.Config{
		Ledger: models.LedgerConfig{
			Backend:          strings.ToLower(getEnvString("LEDGER_BACKEND", BackendSQLite)),
			OperationTimeout: operationTimeout,
			EnforceOwner:     getEnvBool("LEDGER_ENFORCE_OWNER", true),
			FixturesFile:     getEnvString("FIXTURES_FILE", "devices.yaml"),
		},
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "chaintrack.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
			BusyTimeout:     busyTimeout,
		},
		Formance: models.FormanceConfig{
			StackURL:     os.Getenv("FORMANCE_STACK_URL"),
			ClientID:     os.Getenv("FORMANCE_CLIENT_ID"),
			ClientSecret: os.Getenv("FORMANCE_CLIENT_SECRET"),
			LedgerName:   getEnvString("FORMANCE_LEDGER", "chaintrack-devices"),
		},
		Server: models.ServerConfig{
			Addr:           getEnvString("SERVER_ADDR", ":8080"),
			RateLimit:      getEnvInt("SERVER_RATE_LIMIT", 100),
			AllowedOrigins: getEnvList("SERVER_ALLOWED_ORIGINS", []string{"*"}),
		},
		Listener: models.ListenerConfig{
			LookbackWindow:  lookbackWindow,
			PollingInterval: pollingInterval,
			CleanupInterval: cleanupInterval,
			MirrorBackend:   strings.ToLower(getEnvString("LISTENER_MIRROR_BACKEND", BackendSQLite)),
		},
	}

	if err := validateBackend("LEDGER_BACKEND", cfg.Ledger.Backend); err != nil {
		return nil, err
	}
	if err := validateBackend("LISTENER_MIRROR_BACKEND", cfg.Listener.MirrorBackend); err != nil {
		return nil, err
	}
	if cfg.Ledger.OperationTimeout <= 0 {
		return nil, fmt.Errorf("LEDGER_OPERATION_TIMEOUT must be positive, got %s", cfg.Ledger.OperationTimeout)
	}

	return cfg, nil
}

func validateBackend(key, value string) error {
	switch value {
	case BackendMemory, BackendSQLite, BackendFormance:
		return nil
	}
	return fmt.Errorf("invalid %s: %q (want %s, %s or %s)", key, value, BackendMemory, BackendSQLite, BackendFormance)
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
