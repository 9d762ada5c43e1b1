package genesis

import (
	"bytes"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"warpledger/crypto"
	"warpledger/native/warp"
)

// GenesisSpec is the YAML document that seeds a fresh data directory.
type GenesisSpec struct {
	Privileged    string            `yaml:"privileged"`
	Treasury      string            `yaml:"treasury"`
	FeeMultiplier string            `yaml:"fee_multiplier"`
	Active        *bool             `yaml:"active"`
	TreasuryFunds string            `yaml:"treasury_funds"`
	Alloc         map[string]string `yaml:"alloc"`

	privileged [20]byte
	treasury   [20]byte
	multiplier warp.Multiplier
	funds      *big.Int
	alloc      []allocation
}

type allocation struct {
	account [20]byte
	amount  *big.Int
}

func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := ParseGenesisSpec(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// ParseGenesisSpec decodes and validates a YAML genesis document. Unknown
// fields are rejected.
func ParseGenesisSpec(raw []byte) (*GenesisSpec, error) {
	var spec GenesisSpec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid: %w", err)
	}
	return &spec, nil
}

// Params returns the contract scalars described by the spec.
func (s *GenesisSpec) Params() warp.Params {
	return warp.Params{
		FeeMultiplier: s.multiplier,
		Privileged:    s.privileged,
		Active:        s.Active == nil || *s.Active,
	}
}

// TreasuryAccount returns the account that pays fees and redemptions.
func (s *GenesisSpec) TreasuryAccount() [20]byte { return s.treasury }

func (s *GenesisSpec) validate() error {
	privileged, err := crypto.ParseAccount(strings.TrimSpace(s.Privileged))
	if err != nil {
		return fmt.Errorf("privileged: %w", err)
	}
	if privileged == ([20]byte{}) {
		return fmt.Errorf("privileged: zero account")
	}
	treasury, err := crypto.ParseAccount(strings.TrimSpace(s.Treasury))
	if err != nil {
		return fmt.Errorf("treasury: %w", err)
	}
	if treasury == privileged {
		return fmt.Errorf("treasury must differ from the privileged account")
	}
	multiplier := warp.DefaultMultiplier
	if strings.TrimSpace(s.FeeMultiplier) != "" {
		if multiplier, err = warp.ParseMultiplier(s.FeeMultiplier); err != nil {
			return fmt.Errorf("fee_multiplier: %w", err)
		}
	}
	funds, err := parseAmountString(s.TreasuryFunds)
	if err != nil {
		return fmt.Errorf("treasury_funds: %w", err)
	}

	addrs := make([]string, 0, len(s.Alloc))
	for addr := range s.Alloc {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	alloc := make([]allocation, 0, len(addrs))
	for _, addr := range addrs {
		account, err := crypto.ParseAccount(strings.TrimSpace(addr))
		if err != nil {
			return fmt.Errorf("alloc %q: %w", addr, err)
		}
		if account == treasury {
			return fmt.Errorf("alloc %q: use treasury_funds for the treasury account", addr)
		}
		amount, err := parseAmountString(s.Alloc[addr])
		if err != nil {
			return fmt.Errorf("alloc %q: %w", addr, err)
		}
		alloc = append(alloc, allocation{account: account, amount: amount})
	}

	s.privileged = privileged
	s.treasury = treasury
	s.multiplier = multiplier
	s.funds = funds
	s.alloc = alloc
	return nil
}

func parseAmountString(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}
