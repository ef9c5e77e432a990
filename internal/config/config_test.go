package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"LEDGER_BACKEND", "LISTENER_MIRROR_BACKEND", "LEDGER_OPERATION_TIMEOUT", "SERVER_ALLOWED_ORIGINS", "LEDGER_ENFORCE_OWNER"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Ledger.Backend != BackendSQLite {
		t.Errorf("Expected backend %s, got %s", BackendSQLite, cfg.Ledger.Backend)
	}
	if cfg.Ledger.OperationTimeout != 10*time.Second {
		t.Errorf("Expected 10s operation timeout, got %s", cfg.Ledger.OperationTimeout)
	}
	if !cfg.Ledger.EnforceOwner {
		t.Error("Expected owner enforcement on by default")
	}
	if !reflect.DeepEqual(cfg.Server.AllowedOrigins, []string{"*"}) {
		t.Errorf("Expected wildcard origin, got %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Listener.LookbackWindow != 6*time.Hour {
		t.Errorf("Expected 6h lookback, got %s", cfg.Listener.LookbackWindow)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LEDGER_BACKEND", "Memory")
	t.Setenv("LISTENER_MIRROR_BACKEND", "memory")
	t.Setenv("LEDGER_OPERATION_TIMEOUT", "250ms")
	t.Setenv("LEDGER_ENFORCE_OWNER", "false")
	t.Setenv("SERVER_RATE_LIMIT", "7")
	t.Setenv("DB_MAX_OPEN_CONNS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Ledger.Backend != BackendMemory {
		t.Errorf("Expected backend %s, got %s", BackendMemory, cfg.Ledger.Backend)
	}
	if cfg.Ledger.OperationTimeout != 250*time.Millisecond {
		t.Errorf("Expected 250ms, got %s", cfg.Ledger.OperationTimeout)
	}
	if cfg.Ledger.EnforceOwner {
		t.Error("Expected owner enforcement off")
	}
	if cfg.Server.RateLimit != 7 {
		t.Errorf("Expected rate limit 7, got %d", cfg.Server.RateLimit)
	}
	if cfg.Database.MaxOpenConns != 25 {
		t.Errorf("Expected fallback to 25 open conns, got %d", cfg.Database.MaxOpenConns)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{"bad duration", "LISTENER_POLLING_INTERVAL", "soon", "LISTENER_POLLING_INTERVAL"},
		{"unknown backend", "LEDGER_BACKEND", "postgres", "invalid LEDGER_BACKEND"},
		{"unknown mirror", "LISTENER_MIRROR_BACKEND", "s3", "invalid LISTENER_MIRROR_BACKEND"},
		{"zero timeout", "LEDGER_OPERATION_TIMEOUT", "0s", "must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LEDGER_BACKEND", "")
			t.Setenv("LISTENER_MIRROR_BACKEND", "")
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestGetEnvList(t *testing.T) {
	tests := []struct {
		value string
		want  []string
	}{
		{"", []string{"fallback"}},
		{"https://a.example, https://b.example", []string{"https://a.example", "https://b.example"}},
		{" , ,", []string{"fallback"}},
		{"single", []string{"single"}},
	}
	for _, tt := range tests {
		t.Setenv("TEST_LIST", tt.value)
		if got := getEnvList("TEST_LIST", []string{"fallback"}); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("getEnvList(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}
