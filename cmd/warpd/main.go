package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"warpledger/cmd/internal/secret"
	"warpledger/config"
	"warpledger/core/events"
	"warpledger/core/genesis"
	"warpledger/core/state"
	"warpledger/native/bank"
	"warpledger/native/warp"
	"warpledger/observability"
	"warpledger/observability/logging"
	warpotel "warpledger/observability/otel"
	"warpledger/rpc"
	"warpledger/storage"
	"warpledger/storage/audit"
)

const (
	envEnvironment = "WARP_ENV"
	envHMACSecret  = "WARP_HMAC_SECRET"
	stateDirName   = "state"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to the genesis YAML (overrides GenesisFile)")
	listenFlag := flag.String("listen", "", "API listen address (overrides ListenAddress)")
	allowMigrate := flag.Bool("allow-migrate", false, "Start even when the stored state schema version differs")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if strings.TrimSpace(*genesisFlag) != "" {
		cfg.GenesisFile = *genesisFlag
	}
	if strings.TrimSpace(*listenFlag) != "" {
		cfg.ListenAddress = *listenFlag
	}

	env := cfg.Environment
	if override := strings.TrimSpace(os.Getenv(envEnvironment)); override != "" {
		env = override
	}
	logger := logging.SetupWithFile("warpd", env, logging.FileOptions{Path: cfg.LogFile})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, env, *allowMigrate, logger); err != nil {
		logger.Error("warpd stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, env string, allowMigrate bool, logger *slog.Logger) error {
	shutdownTelemetry, err := warpotel.Init(ctx, warpotel.Config{
		ServiceName: "warpd",
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     warpotel.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	spec, err := genesis.LoadGenesisSpec(cfg.GenesisFile)
	if err != nil {
		return err
	}
	hmacSecret, authEnabled, err := secret.NewSource(cfg.Auth.HMACSecret, envHMACSecret).Lookup()
	if err != nil {
		return fmt.Errorf("resolve api secret: %w", err)
	}
	if !authEnabled {
		logger.Warn("no api signing secret configured; mutating routes are disabled",
			slog.String("env", envHMACSecret))
	}

	n, err := assemble(cfg, spec, allowMigrate, logger)
	if err != nil {
		return err
	}
	defer n.Close()

	opts := []rpc.Option{
		rpc.WithLogger(logger),
		rpc.WithRateLimit(rpc.RateLimit{
			RequestsPerMinute: float64(cfg.RateLimit.RequestsPerMinute),
			Burst:             cfg.RateLimit.Burst,
		}),
	}
	if authEnabled {
		opts = append(opts, rpc.WithAuth(rpc.AuthConfig{
			HMACSecret: hmacSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
		}))
	}
	if n.journal != nil {
		opts = append(opts, rpc.WithJournal(n.journal))
	}
	server := rpc.NewServer(n.engine, opts...)
	return server.ListenAndServe(ctx, cfg.ListenAddress)
}

// node bundles the stateful components behind the API.
type node struct {
	db       storage.Database
	manager  *state.Manager
	treasury *bank.Treasury
	engine   *warp.Engine
	journal  *audit.Journal
}

// assemble opens storage, applies genesis on first start and wires the
// engine to its treasury, metrics and event sinks.
func assemble(cfg *config.Config, spec *genesis.GenesisSpec, allowMigrate bool, logger *slog.Logger) (*node, error) {
	db, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}
	n := &node{db: db, manager: state.NewManager(db)}
	if err := n.manager.EnsureStateVersion(allowMigrate); err != nil {
		n.Close()
		return nil, err
	}

	applied, err := genesis.Apply(spec, n.manager)
	if err != nil {
		n.Close()
		return nil, fmt.Errorf("apply genesis: %w", err)
	}
	if applied {
		logger.Info("genesis applied", slog.String("file", cfg.GenesisFile))
	}

	emitters := events.Multi{}
	if path := strings.TrimSpace(cfg.Storage.AuditDB); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			n.Close()
			return nil, err
		}
		journal, err := audit.Open(path)
		if err != nil {
			n.Close()
			return nil, err
		}
		journal.SetLogger(logger)
		n.journal = journal
		emitters = append(emitters, journal)
	}

	n.treasury = bank.NewTreasury(n.manager, spec.TreasuryAccount())
	n.engine = warp.NewEngine()
	n.engine.SetState(n.manager)
	n.engine.SetAccountStore(n.treasury)
	n.engine.SetPolicy(cfg.Policy())
	n.engine.SetMetrics(observability.Warp())
	n.engine.SetLogger(logger)
	n.engine.SetEmitter(emitters)
	if err := n.engine.Init(spec.Params()); err != nil {
		n.Close()
		return nil, err
	}
	if status, err := n.engine.Status(); err == nil {
		observability.Warp().SetPending(status.PendingCount)
		logger.Info("warp engine ready",
			slog.Bool("active", status.Active),
			slog.String("fee_multiplier", status.FeeMultiplier.String()),
			slog.Uint64("pending", status.PendingCount))
	}
	return n, nil
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return storage.NewMemDB(), nil
	case config.BackendLevelDB:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("prepare data directory: %w", err)
		}
		db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, stateDirName))
		if err != nil {
			return nil, fmt.Errorf("open state database: %w", err)
		}
		return db, nil
	default:
		return nil, errors.New("unknown storage backend " + cfg.Storage.Backend)
	}
}

// Close releases the journal and database.
func (n *node) Close() {
	if n.journal != nil {
		_ = n.journal.Close()
	}
	if n.db != nil {
		n.db.Close()
	}
}
