package config

import "time"

// Warp tunes the deferral policy.
type Warp struct {
	// DeferralTimeout is the pending age beyond which a sender's transfers
	// are escrowed.
	DeferralTimeout time.Duration `toml:"DeferralTimeout"`
	// QueueCapacity is the pending ledger size above which every transfer
	// is escrowed.
	QueueCapacity uint64 `toml:"QueueCapacity"`
}

// Auth configures bearer token verification for the API.
type Auth struct {
	HMACSecret string `toml:"HMACSecret"`
	Issuer     string `toml:"Issuer"`
	Audience   string `toml:"Audience"`
}

// RateLimit bounds requests per caller.
type RateLimit struct {
	RequestsPerMinute int `toml:"RequestsPerMinute"`
	Burst             int `toml:"Burst"`
}

// Storage selects the state backend.
type Storage struct {
	Backend string `toml:"Backend"`
	// AuditDB is the SQLite file receiving committed events. Empty disables
	// the audit journal.
	AuditDB string `toml:"AuditDB"`
}

// Telemetry controls OTLP export.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
	Metrics  bool   `toml:"Metrics"`
	Traces   bool   `toml:"Traces"`
}

const (
	BackendLevelDB = "leveldb"
	BackendMemory  = "memory"
)
