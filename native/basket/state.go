package basket

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// StateReader exposes a read-only snapshot of the wrapper state, consistent as
// of the start of the enclosing View or Update call.
type StateReader interface {
	Basket() (*Basket, bool, error)
	Balance(holder ethcommon.Address) (*big.Int, error)
	TotalSupply() (*big.Int, error)
	Holders() ([]ethcommon.Address, error)
	Paused() (bool, error)
	Dust(token ethcommon.Address) (*big.Int, error)
	DustBalances() (map[ethcommon.Address]*big.Int, error)
}

// StateTxn extends the reader with writes that commit together.
type StateTxn interface {
	StateReader
	PutBasket(b *Basket) error
	SetBalance(holder ethcommon.Address, amount *big.Int) error
	SetTotalSupply(amount *big.Int) error
	SetPaused(paused bool) error
	AddDust(token ethcommon.Address, units *big.Int) error
}

// State is the transactional store the engine runs against. Update executes
// the closure against a writable transaction; either every write commits or,
// when the closure errors, none do.
type State interface {
	View(fn func(StateReader) error) error
	Update(fn func(StateTxn) error) error
}
