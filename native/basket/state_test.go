package basket

import (
	"math/big"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// memState is a minimal in-memory State used by the package tests. Update runs
// against a deep copy that replaces the live data only when the closure
// succeeds, mirroring the transactional contract of the real store.
type memState struct {
	mu   sync.Mutex
	data memSnapshot
}

type memSnapshot struct {
	basket   *Basket
	balances map[ethcommon.Address]*big.Int
	total    *big.Int
	paused   bool
	dust     map[ethcommon.Address]*big.Int
}

func newMemState() *memState {
	return &memState{data: memSnapshot{
		balances: make(map[ethcommon.Address]*big.Int),
		total:    big.NewInt(0),
		dust:     make(map[ethcommon.Address]*big.Int),
	}}
}

func (s *memSnapshot) clone() memSnapshot {
	copied := memSnapshot{
		basket:   s.basket.Clone(),
		balances: make(map[ethcommon.Address]*big.Int, len(s.balances)),
		total:    new(big.Int).Set(s.total),
		paused:   s.paused,
		dust:     make(map[ethcommon.Address]*big.Int, len(s.dust)),
	}
	for holder, balance := range s.balances {
		copied.balances[holder] = new(big.Int).Set(balance)
	}
	for token, units := range s.dust {
		copied.dust[token] = new(big.Int).Set(units)
	}
	return copied
}

func (s *memState) View(fn func(StateReader) error) error {
	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()
	return fn(&memTxn{data: &snapshot})
}

func (s *memState) Update(fn func(StateTxn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	staged := s.data.clone()
	if err := fn(&memTxn{data: &staged}); err != nil {
		return err
	}
	s.data = staged
	return nil
}

type memTxn struct {
	data *memSnapshot
}

func (t *memTxn) Basket() (*Basket, bool, error) {
	if t.data.basket == nil {
		return nil, false, nil
	}
	return t.data.basket.Clone(), true, nil
}

func (t *memTxn) Balance(holder ethcommon.Address) (*big.Int, error) {
	if balance, ok := t.data.balances[holder]; ok {
		return new(big.Int).Set(balance), nil
	}
	return big.NewInt(0), nil
}

func (t *memTxn) TotalSupply() (*big.Int, error) {
	return new(big.Int).Set(t.data.total), nil
}

func (t *memTxn) Holders() ([]ethcommon.Address, error) {
	holders := make([]ethcommon.Address, 0, len(t.data.balances))
	for holder, balance := range t.data.balances {
		if balance.Sign() > 0 {
			holders = append(holders, holder)
		}
	}
	return holders, nil
}

func (t *memTxn) Paused() (bool, error) {
	return t.data.paused, nil
}

func (t *memTxn) Dust(token ethcommon.Address) (*big.Int, error) {
	if units, ok := t.data.dust[token]; ok {
		return new(big.Int).Set(units), nil
	}
	return big.NewInt(0), nil
}

func (t *memTxn) DustBalances() (map[ethcommon.Address]*big.Int, error) {
	out := make(map[ethcommon.Address]*big.Int, len(t.data.dust))
	for token, units := range t.data.dust {
		out[token] = new(big.Int).Set(units)
	}
	return out, nil
}

func (t *memTxn) PutBasket(b *Basket) error {
	t.data.basket = b.Clone()
	return nil
}

func (t *memTxn) SetBalance(holder ethcommon.Address, amount *big.Int) error {
	t.data.balances[holder] = new(big.Int).Set(amount)
	return nil
}

func (t *memTxn) SetTotalSupply(amount *big.Int) error {
	t.data.total = new(big.Int).Set(amount)
	return nil
}

func (t *memTxn) SetPaused(paused bool) error {
	t.data.paused = paused
	return nil
}

func (t *memTxn) AddDust(token ethcommon.Address, units *big.Int) error {
	current := big.NewInt(0)
	if stored, ok := t.data.dust[token]; ok {
		current = stored
	}
	next := new(big.Int).Add(current, units)
	if next.Sign() == 0 {
		delete(t.data.dust, token)
		return nil
	}
	t.data.dust[token] = next
	return nil
}
