package basket

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// WeightScaleBps is the basis-point scale basket weights must sum to.
const WeightScaleBps = 10_000

// AssetEntry describes one basket member: the external token handle, its
// weight in basis points and whether the entry participates in mint/burn.
type AssetEntry struct {
	Token     ethcommon.Address
	WeightBps uint64
	Active    bool
}

// Basket is the versioned composition backing the wrapper unit. A committed
// basket is never mutated in place; reconfiguration replaces it wholesale.
type Basket struct {
	Version uint64
	Entries []AssetEntry
}

// Clone returns a deep copy so callers cannot mutate committed state.
func (b *Basket) Clone() *Basket {
	if b == nil {
		return nil
	}
	clone := &Basket{Version: b.Version}
	clone.Entries = append([]AssetEntry{}, b.Entries...)
	return clone
}

// ActiveEntries returns the ordered active entries.
func (b *Basket) ActiveEntries() []AssetEntry {
	if b == nil {
		return nil
	}
	entries := make([]AssetEntry, 0, len(b.Entries))
	for _, entry := range b.Entries {
		if entry.Active {
			entries = append(entries, entry)
		}
	}
	return entries
}

// Contains reports whether the token is an active basket member.
func (b *Basket) Contains(token ethcommon.Address) bool {
	if b == nil {
		return false
	}
	for _, entry := range b.Entries {
		if entry.Active && entry.Token == token {
			return true
		}
	}
	return false
}

// Leg is the per-asset amount a mint pulls or a burn pays out.
type Leg struct {
	Token  ethcommon.Address
	Amount *big.Int
}

type computedLeg struct {
	Leg
	// remainder is the floor-division shortfall in units of 1/10000 token.
	remainder *big.Int
}

// splitAmount computes floor(amount * weight / 10000) per active entry along
// with the retained remainder. Floor division may under-allocate by up to one
// unit per asset; the shortfall stays in custody as dust.
func splitAmount(entries []AssetEntry, amount *big.Int) []computedLeg {
	scale := big.NewInt(WeightScaleBps)
	legs := make([]computedLeg, 0, len(entries))
	for _, entry := range entries {
		gross := new(big.Int).Mul(amount, new(big.Int).SetUint64(entry.WeightBps))
		share, remainder := new(big.Int).QuoRem(gross, scale, new(big.Int))
		legs = append(legs, computedLeg{
			Leg:       Leg{Token: entry.Token, Amount: share},
			remainder: remainder,
		})
	}
	return legs
}
