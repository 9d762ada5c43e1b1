package config

import (
	"fmt"
	"strings"
	"time"
)

var (
	MinDeferralTimeout = time.Second
	MinHMACSecretBytes = 32
)

func ValidateConfig(c *Config) error {
	if c == nil {
		return fmt.Errorf("config: nil")
	}
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("ListenAddress must be set")
	}
	if c.Warp.DeferralTimeout < MinDeferralTimeout {
		return fmt.Errorf("warp: DeferralTimeout must be at least %s", MinDeferralTimeout)
	}
	if c.Warp.QueueCapacity == 0 {
		return fmt.Errorf("warp: QueueCapacity must be positive")
	}
	switch c.Storage.Backend {
	case BackendLevelDB:
		if strings.TrimSpace(c.DataDir) == "" {
			return fmt.Errorf("storage: leveldb backend requires DataDir")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("storage: unknown backend %q", c.Storage.Backend)
	}
	if secret := c.Auth.HMACSecret; secret != "" && len(secret) < MinHMACSecretBytes {
		return fmt.Errorf("auth: HMACSecret must be at least %d bytes", MinHMACSecretBytes)
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: values must not be negative")
	}
	if c.RateLimit.RequestsPerMinute > 0 && c.RateLimit.Burst == 0 {
		return fmt.Errorf("rate_limit: Burst must be positive when RequestsPerMinute is set")
	}
	if (c.Telemetry.Metrics || c.Telemetry.Traces) && strings.TrimSpace(c.Telemetry.Endpoint) == "" {
		return fmt.Errorf("telemetry: Endpoint required when export is enabled")
	}
	return nil
}

func secondsToDuration(seconds int64) time.Duration {
	return time.Duration(seconds) * time.Second
}
