package state

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

var balancePrefix = []byte("bank/balance/")

func balanceKey(addr [20]byte) []byte {
	return prefixedKey(balancePrefix, addr[:])
}

// Balance returns the spendable balance for addr, zero when the account has
// never been funded.
func (m *Manager) Balance(addr [20]byte) (*big.Int, error) {
	balance := new(big.Int)
	ok, err := m.KVGet(balanceKey(addr), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// SetBalance overwrites the balance for addr. Balances must be non-negative
// and fit in 256 bits.
func (m *Manager) SetBalance(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return m.KVDelete(balanceKey(addr))
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("balance: negative amount %s", amount)
	}
	if _, overflow := uint256.FromBig(amount); overflow {
		return fmt.Errorf("balance: amount %s overflows 256 bits", amount)
	}
	return m.KVPut(balanceKey(addr), amount)
}

// AddBalance credits delta to addr.
func (m *Manager) AddBalance(addr [20]byte, delta *big.Int) error {
	if delta == nil || delta.Sign() == 0 {
		return nil
	}
	if delta.Sign() < 0 {
		return fmt.Errorf("balance: negative credit %s", delta)
	}
	current, err := m.Balance(addr)
	if err != nil {
		return err
	}
	cur, _ := uint256.FromBig(current)
	add, overflow := uint256.FromBig(delta)
	if overflow {
		return fmt.Errorf("balance: credit %s overflows 256 bits", delta)
	}
	sum, overflow := new(uint256.Int).AddOverflow(cur, add)
	if overflow {
		return fmt.Errorf("balance: credit overflows account balance")
	}
	return m.SetBalance(addr, sum.ToBig())
}
