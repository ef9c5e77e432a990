package models

import "time"

// Config represents the application configuration
type Config struct {
	Ledger   LedgerConfig
	Database DatabaseConfig
	Formance FormanceConfig
	Server   ServerConfig
	Listener ListenerConfig
}

// LedgerConfig selects the backend and the policies the facade applies
type LedgerConfig struct {
	Backend          string // memory, sqlite or formance
	OperationTimeout time.Duration
	EnforceOwner     bool
	FixturesFile     string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	BusyTimeout     time.Duration
}

// FormanceConfig holds the remote ledger connection settings
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Addr           string
	RateLimit      int
	AllowedOrigins []string
}

// ListenerConfig holds mirror listener settings
type ListenerConfig struct {
	LookbackWindow  time.Duration
	PollingInterval time.Duration
	CleanupInterval time.Duration
	MirrorBackend   string
}
