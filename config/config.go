package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"warpledger/native/warp"
)

type Config struct {
	ListenAddress string    `toml:"ListenAddress"`
	DataDir       string    `toml:"DataDir"`
	GenesisFile   string    `toml:"GenesisFile"`
	Environment   string    `toml:"Environment"`
	LogFile       string    `toml:"LogFile"`
	Warp          Warp      `toml:"warp"`
	Auth          Auth      `toml:"auth"`
	RateLimit     RateLimit `toml:"rate_limit"`
	Storage       Storage   `toml:"storage"`
	Telemetry     Telemetry `toml:"telemetry"`
}

// Default returns the configuration written on first start.
func Default() *Config {
	return &Config{
		ListenAddress: "127.0.0.1:8645",
		DataDir:       "./warp-data",
		GenesisFile:   "genesis.yaml",
		Environment:   "local",
		Warp: Warp{
			DeferralTimeout: secondsToDuration(warp.DefaultTimeout),
			QueueCapacity:   warp.DefaultCapacity,
		},
		Auth: Auth{
			Issuer:   "warpd",
			Audience: "warp-api",
		},
		RateLimit: RateLimit{RequestsPerMinute: 600, Burst: 60},
		Storage:   Storage{Backend: BackendLevelDB, AuditDB: "audit.db"},
		Telemetry: Telemetry{Endpoint: "localhost:4318", Insecure: true},
	}
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.resolvePaths(path)
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Policy converts the [warp] section into the engine's deferral policy.
func (c *Config) Policy() warp.Policy {
	return warp.Policy{
		Timeout:  int64(c.Warp.DeferralTimeout.Seconds()),
		Capacity: c.Warp.QueueCapacity,
	}
}

// resolvePaths anchors relative file paths at the config file's directory.
func (c *Config) resolvePaths(configPath string) {
	dir := filepath.Dir(configPath)
	anchor := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	c.DataDir = anchor(c.DataDir)
	c.GenesisFile = anchor(c.GenesisFile)
	c.LogFile = anchor(c.LogFile)
	if c.Storage.AuditDB != "" && !filepath.IsAbs(c.Storage.AuditDB) {
		c.Storage.AuditDB = filepath.Join(c.DataDir, c.Storage.AuditDB)
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	cfg.resolvePaths(path)
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
