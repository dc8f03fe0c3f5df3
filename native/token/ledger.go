package token

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// Ledger is an in-process fungible token backed by plain balance and allowance
// maps. It serves the local daemon mode and deterministic tests; the interface
// it implements is the same one a remote asset adapter would satisfy.
type Ledger struct {
	mu         sync.RWMutex
	symbol     string
	decimals   uint8
	balances   map[ethcommon.Address]*big.Int
	allowances map[ethcommon.Address]map[ethcommon.Address]*big.Int
}

// NewLedger constructs an empty ledger for the supplied symbol.
func NewLedger(symbol string, decimals uint8) *Ledger {
	return &Ledger{
		symbol:     strings.ToUpper(strings.TrimSpace(symbol)),
		decimals:   decimals,
		balances:   make(map[ethcommon.Address]*big.Int),
		allowances: make(map[ethcommon.Address]map[ethcommon.Address]*big.Int),
	}
}

// Symbol returns the canonical ticker recorded at construction.
func (l *Ledger) Symbol() string {
	if l == nil {
		return ""
	}
	return l.symbol
}

// Decimals returns the token's native decimal precision.
func (l *Ledger) Decimals() uint8 {
	if l == nil {
		return 0
	}
	return l.decimals
}

// Credit adds the supplied amount to the holder balance. It exists for genesis
// funding and tests; transfers between holders go through Transfer/TransferFrom.
func (l *Ledger) Credit(holder ethcommon.Address, amount *big.Int) error {
	if l == nil {
		return fmt.Errorf("token ledger not initialised")
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[holder] = new(big.Int).Add(l.balanceLocked(holder), amount)
	return nil
}

// BalanceOf reports the holder balance, zero when the holder is unknown.
func (l *Ledger) BalanceOf(holder ethcommon.Address) (*big.Int, error) {
	if l == nil {
		return nil, fmt.Errorf("token ledger not initialised")
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.balanceLocked(holder)), nil
}

// Approve authorizes the spender to pull up to amount from the owner balance.
// The allowance is replaced, not accumulated.
func (l *Ledger) Approve(owner, spender ethcommon.Address, amount *big.Int) error {
	if l == nil {
		return fmt.Errorf("token ledger not initialised")
	}
	if amount == nil || amount.Sign() < 0 {
		return errInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	grants := l.allowances[owner]
	if grants == nil {
		grants = make(map[ethcommon.Address]*big.Int)
		l.allowances[owner] = grants
	}
	grants[spender] = new(big.Int).Set(amount)
	return nil
}

// Allowance reports the remaining authorization from owner to spender.
func (l *Ledger) Allowance(owner, spender ethcommon.Address) (*big.Int, error) {
	if l == nil {
		return nil, fmt.Errorf("token ledger not initialised")
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.allowanceLocked(owner, spender)), nil
}

// Transfer moves amount from one holder to another.
func (l *Ledger) Transfer(from, to ethcommon.Address, amount *big.Int) error {
	if l == nil {
		return fmt.Errorf("token ledger not initialised")
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.moveLocked(from, to, amount)
}

// TransferFrom moves amount from the owner to the recipient, consuming the
// spender's allowance. The allowance check precedes any balance movement.
func (l *Ledger) TransferFrom(spender, from, to ethcommon.Address, amount *big.Int) error {
	if l == nil {
		return fmt.Errorf("token ledger not initialised")
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	remaining := l.allowanceLocked(from, spender)
	if remaining.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s from %s", ErrInsufficientAllowance, l.symbol, strings.ToLower(from.Hex()))
	}
	if err := l.moveLocked(from, to, amount); err != nil {
		return err
	}
	l.allowances[from][spender] = new(big.Int).Sub(remaining, amount)
	return nil
}

func (l *Ledger) moveLocked(from, to ethcommon.Address, amount *big.Int) error {
	balance := l.balanceLocked(from)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s at %s", ErrInsufficientBalance, l.symbol, strings.ToLower(from.Hex()))
	}
	l.balances[from] = new(big.Int).Sub(balance, amount)
	l.balances[to] = new(big.Int).Add(l.balanceLocked(to), amount)
	return nil
}

func (l *Ledger) balanceLocked(holder ethcommon.Address) *big.Int {
	if balance, ok := l.balances[holder]; ok && balance != nil {
		return balance
	}
	return big.NewInt(0)
}

func (l *Ledger) allowanceLocked(owner, spender ethcommon.Address) *big.Int {
	if grants, ok := l.allowances[owner]; ok {
		if remaining, ok := grants[spender]; ok && remaining != nil {
			return remaining
		}
	}
	return big.NewInt(0)
}
