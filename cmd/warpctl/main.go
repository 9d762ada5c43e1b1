package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"warpledger/cmd/internal/secret"
	"warpledger/config"
	"warpledger/core/state"
	"warpledger/crypto"
	"warpledger/native/warp"
	"warpledger/storage"
	"warpledger/storage/audit"
)

const (
	keygenCommand  = "keygen"
	tokenCommand   = "token"
	statusCommand  = "status"
	pendingCommand = "pending"
	ghostCommand   = "ghost"
	eventsCommand  = "events"

	defaultConfig = "./config.toml"
	secretEnv     = "WARP_HMAC_SECRET"
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(1)
	}
	var err error
	args := os.Args[2:]
	switch os.Args[1] {
	case keygenCommand:
		err = runKeygen(os.Stdout)
	case tokenCommand:
		err = runToken(args, os.Stdout)
	case statusCommand, pendingCommand, ghostCommand:
		err = runInspect(os.Args[1], args, os.Stdout)
	case eventsCommand:
		err = runEvents(args, os.Stdout)
	default:
		usage(os.Stderr)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runKeygen(out io.Writer) error {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	return printJSON(out, map[string]string{
		"account":    key.PubKey().Address().String(),
		"privateKey": hex.EncodeToString(key.Bytes()),
	})
}

func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(tokenCommand, flag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "Path to the warpd config file")
	account := fs.String("account", "", "warp1 account named by the token subject")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	caller, err := crypto.ParseAccount(strings.TrimSpace(*account))
	if err != nil {
		return fmt.Errorf("account: %w", err)
	}
	cfg, err := loadExistingConfig(*configPath)
	if err != nil {
		return err
	}
	signingSecret, err := secret.NewSource(cfg.Auth.HMACSecret, secretEnv).Get()
	if err != nil {
		return err
	}
	token, err := issueToken(cfg.Auth, signingSecret, caller, *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

func runInspect(command string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "Path to the warpd config file")
	account := fs.String("account", "", "warp1 account to inspect (pending, ghost)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadExistingConfig(*configPath)
	if err != nil {
		return err
	}
	if cfg.Storage.Backend != config.BackendLevelDB {
		return fmt.Errorf("%s backend keeps no state on disk", cfg.Storage.Backend)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return fmt.Errorf("open state (is warpd running?): %w", err)
	}
	defer db.Close()
	return inspect(command, *account, state.NewManager(db), out)
}

func inspect(command, account string, manager *state.Manager, out io.Writer) error {
	engine := warp.NewEngine()
	engine.SetState(manager)
	if command == statusCommand {
		status, err := engine.Status()
		if err != nil {
			return err
		}
		return printJSON(out, map[string]interface{}{
			"active":        status.Active,
			"feeMultiplier": status.FeeMultiplier.String(),
			"privileged":    crypto.AccountString(status.Privileged),
			"pendingCount":  status.PendingCount,
		})
	}
	target, err := crypto.ParseAccount(strings.TrimSpace(account))
	if err != nil {
		return fmt.Errorf("account: %w", err)
	}
	if command == ghostCommand {
		balance, err := engine.GhostBalance(target)
		if err != nil {
			return err
		}
		return printJSON(out, map[string]string{"account": account, "balance": balance.String()})
	}
	tx, ok, err := engine.Pending(target)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no pending transaction for %s", account)
	}
	return printJSON(out, map[string]interface{}{
		"sender":      crypto.AccountString(tx.Sender),
		"receiver":    crypto.AccountString(tx.Receiver),
		"amount":      tx.Amount.String(),
		"outstanding": tx.Outstanding.String(),
		"timestamp":   tx.Timestamp,
	})
}

func runEvents(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(eventsCommand, flag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "Path to the warpd config file")
	eventType := fs.String("type", "", "Only list events of this type")
	after := fs.Int64("after", 0, "List events after this sequence number")
	limit := fs.Int("limit", 100, "Maximum number of events")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadExistingConfig(*configPath)
	if err != nil {
		return err
	}
	if cfg.Storage.AuditDB == "" {
		return fmt.Errorf("audit journal disabled in %s", *configPath)
	}
	journal, err := audit.Open(cfg.Storage.AuditDB)
	if err != nil {
		return err
	}
	defer journal.Close()
	stored, err := journal.ListEvents(context.Background(), *eventType, *after, *limit)
	if err != nil {
		return err
	}
	return printJSON(out, stored)
}

// loadExistingConfig refuses to create a default config, unlike config.Load.
func loadExistingConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return config.Load(path)
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usage(out io.Writer) {
	fmt.Fprintln(out, "warpctl <command> [flags]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintf(out, "  %-8s Generate a key pair and print its warp1 account\n", keygenCommand)
	fmt.Fprintf(out, "  %-8s Mint an API bearer token for -account\n", tokenCommand)
	fmt.Fprintf(out, "  %-8s Print the contract scalars from a stopped node's data dir\n", statusCommand)
	fmt.Fprintf(out, "  %-8s Print the pending entry of -account\n", pendingCommand)
	fmt.Fprintf(out, "  %-8s Print the ghost balance of -account\n", ghostCommand)
	fmt.Fprintf(out, "  %-8s List journalled events\n", eventsCommand)
}
