package storage

import (
	"fmt"
	"math/big"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/auroca-io/Asset-Referenced-Token/native/basket"
)

// MemoryState is a non-persistent State for ephemeral daemons and tests.
// Update works on a deep copy that replaces the live snapshot only when the
// closure succeeds, matching the commit-or-rollback contract of BoltState.
type MemoryState struct {
	mu       sync.RWMutex
	snapshot memSnapshot
}

type memSnapshot struct {
	basket   *basket.Basket
	balances map[ethcommon.Address]*big.Int
	supply   *big.Int
	paused   bool
	dust     map[ethcommon.Address]*big.Int
}

// NewMemoryState constructs an empty in-memory state.
func NewMemoryState() *MemoryState {
	return &MemoryState{snapshot: newMemSnapshot()}
}

func newMemSnapshot() memSnapshot {
	return memSnapshot{
		balances: make(map[ethcommon.Address]*big.Int),
		supply:   big.NewInt(0),
		dust:     make(map[ethcommon.Address]*big.Int),
	}
}

func (s memSnapshot) clone() memSnapshot {
	next := memSnapshot{
		basket:   s.basket.Clone(),
		balances: make(map[ethcommon.Address]*big.Int, len(s.balances)),
		supply:   new(big.Int).Set(s.supply),
		paused:   s.paused,
		dust:     make(map[ethcommon.Address]*big.Int, len(s.dust)),
	}
	for holder, amount := range s.balances {
		next.balances[holder] = new(big.Int).Set(amount)
	}
	for token, units := range s.dust {
		next.dust[token] = new(big.Int).Set(units)
	}
	return next
}

// View runs fn against the current snapshot.
func (s *MemoryState) View(fn func(basket.StateReader) error) error {
	if s == nil {
		return fmt.Errorf("storage: memory state not initialised")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memTxn{snapshot: &s.snapshot})
}

// Update runs fn against a working copy; the copy replaces the live snapshot
// only when fn returns nil.
func (s *MemoryState) Update(fn func(basket.StateTxn) error) error {
	if s == nil {
		return fmt.Errorf("storage: memory state not initialised")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	working := s.snapshot.clone()
	if err := fn(&memTxn{snapshot: &working}); err != nil {
		return err
	}
	s.snapshot = working
	return nil
}

type memTxn struct {
	snapshot *memSnapshot
}

func (t *memTxn) Basket() (*basket.Basket, bool, error) {
	if t.snapshot.basket == nil {
		return nil, false, nil
	}
	return t.snapshot.basket.Clone(), true, nil
}

func (t *memTxn) Balance(holder ethcommon.Address) (*big.Int, error) {
	if amount, ok := t.snapshot.balances[holder]; ok {
		return new(big.Int).Set(amount), nil
	}
	return big.NewInt(0), nil
}

func (t *memTxn) TotalSupply() (*big.Int, error) {
	return new(big.Int).Set(t.snapshot.supply), nil
}

func (t *memTxn) Holders() ([]ethcommon.Address, error) {
	holders := make([]ethcommon.Address, 0, len(t.snapshot.balances))
	for holder := range t.snapshot.balances {
		holders = append(holders, holder)
	}
	return holders, nil
}

func (t *memTxn) Paused() (bool, error) {
	return t.snapshot.paused, nil
}

func (t *memTxn) Dust(token ethcommon.Address) (*big.Int, error) {
	if units, ok := t.snapshot.dust[token]; ok {
		return new(big.Int).Set(units), nil
	}
	return big.NewInt(0), nil
}

func (t *memTxn) DustBalances() (map[ethcommon.Address]*big.Int, error) {
	dust := make(map[ethcommon.Address]*big.Int, len(t.snapshot.dust))
	for token, units := range t.snapshot.dust {
		dust[token] = new(big.Int).Set(units)
	}
	return dust, nil
}

func (t *memTxn) PutBasket(b *basket.Basket) error {
	if b == nil {
		return fmt.Errorf("storage: basket required")
	}
	t.snapshot.basket = b.Clone()
	return nil
}

func (t *memTxn) SetBalance(holder ethcommon.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		delete(t.snapshot.balances, holder)
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("storage: negative balance for %s", holder.Hex())
	}
	t.snapshot.balances[holder] = new(big.Int).Set(amount)
	return nil
}

func (t *memTxn) SetTotalSupply(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("storage: total supply must be non-negative")
	}
	t.snapshot.supply = new(big.Int).Set(amount)
	return nil
}

func (t *memTxn) SetPaused(paused bool) error {
	t.snapshot.paused = paused
	return nil
}

func (t *memTxn) AddDust(token ethcommon.Address, units *big.Int) error {
	if units == nil || units.Sign() == 0 {
		return nil
	}
	current := big.NewInt(0)
	if existing, ok := t.snapshot.dust[token]; ok {
		current = new(big.Int).Set(existing)
	}
	next := current.Add(current, units)
	if next.Sign() == 0 {
		delete(t.snapshot.dust, token)
		return nil
	}
	t.snapshot.dust[token] = next
	return nil
}
