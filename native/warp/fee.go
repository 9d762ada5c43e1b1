package warp

import (
	"fmt"
	"math/big"
	"strings"
)

// Multiplier is the contract-wide escrow surcharge expressed as the exact
// fraction Num/Den. Fees are computed in integer arithmetic only.
type Multiplier struct {
	Num uint64
	Den uint64
}

// DefaultMultiplier is the surcharge applied when genesis does not name one.
var DefaultMultiplier = Multiplier{Num: 3, Den: 2}

// ParseMultiplier parses a decimal ("1.5") or fractional ("3/2") string.
func ParseMultiplier(raw string) (Multiplier, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Multiplier{}, fmt.Errorf("warp: empty fee multiplier")
	}
	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok {
		return Multiplier{}, fmt.Errorf("warp: invalid fee multiplier %q", raw)
	}
	if !rat.Num().IsUint64() || !rat.Denom().IsUint64() {
		return Multiplier{}, fmt.Errorf("warp: fee multiplier %q out of range", raw)
	}
	m := Multiplier{Num: rat.Num().Uint64(), Den: rat.Denom().Uint64()}
	if err := m.Validate(); err != nil {
		return Multiplier{}, err
	}
	return m, nil
}

// MustMultiplier is like ParseMultiplier but panics on error.
func MustMultiplier(raw string) Multiplier {
	m, err := ParseMultiplier(raw)
	if err != nil {
		panic(err)
	}
	return m
}

// Validate reports whether the multiplier is a well-formed value >= 1.
func (m Multiplier) Validate() error {
	if m.Den == 0 {
		return fmt.Errorf("%w: zero denominator", ErrInvalidMultiplier)
	}
	if m.Num < m.Den {
		return fmt.Errorf("%w: got %s", ErrInvalidMultiplier, m.String())
	}
	return nil
}

// Rat returns the multiplier as a big.Rat.
func (m Multiplier) Rat() *big.Rat {
	if m.Den == 0 {
		return new(big.Rat)
	}
	return new(big.Rat).SetFrac(new(big.Int).SetUint64(m.Num), new(big.Int).SetUint64(m.Den))
}

// String renders the multiplier in its shortest decimal form when exact,
// falling back to "num/den".
func (m Multiplier) String() string {
	if m.Den == 0 {
		return "0"
	}
	rat := m.Rat()
	if rat.IsInt() {
		return rat.Num().String()
	}
	if digits, exact := rat.FloatPrec(); exact {
		return rat.FloatString(digits)
	}
	return rat.String()
}

// Equal compares multipliers by value, so 3/2 equals 6/4.
func (m Multiplier) Equal(other Multiplier) bool {
	return m.Rat().Cmp(other.Rat()) == 0
}

// FeeFor returns floor(amount * Num / Den). Nil or negative amounts yield zero.
func (m Multiplier) FeeFor(amount *big.Int) *big.Int {
	if amount == nil || amount.Sign() <= 0 || m.Den == 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(m.Num))
	return fee.Quo(fee, new(big.Int).SetUint64(m.Den))
}
