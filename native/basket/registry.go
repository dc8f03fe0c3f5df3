package basket

import (
	"errors"
	"fmt"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/auroca-io/Asset-Referenced-Token/core/events"
	"github.com/auroca-io/Asset-Referenced-Token/native/pricing"
)

var (
	// ErrInvalidBasket tags every composition validation failure so callers
	// can classify a rejected proposal without matching individual causes.
	ErrInvalidBasket = errors.New("basket registry: invalid composition")

	errLengthMismatch = fmt.Errorf("%w: tokens and weights must have equal length", ErrInvalidBasket)
	errNoEntries      = fmt.Errorf("%w: at least one entry required", ErrInvalidBasket)
	errZeroWeight     = fmt.Errorf("%w: weights must be positive", ErrInvalidBasket)
	errDuplicateToken = fmt.Errorf("%w: duplicate token", ErrInvalidBasket)
	// ErrWeightSum indicates the proposed weights do not sum to exactly 10000 bps.
	ErrWeightSum = fmt.Errorf("%w: weights must sum to 10000 bps", ErrInvalidBasket)
)

// Registry owns the current basket composition. Configure validates the full
// proposed basket before touching stored state, so a rejected reconfiguration
// leaves the prior basket completely unchanged.
type Registry struct {
	state   State
	emitter events.Emitter
}

// NewRegistry constructs a registry over the supplied state.
func NewRegistry(state State) *Registry {
	return &Registry{state: state, emitter: events.NoopEmitter{}}
}

// SetEmitter wires the registry to an event sink.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if r == nil || emitter == nil {
		return
	}
	r.emitter = emitter
}

// Configure replaces the entire basket atomically. Every new entry is marked
// active and the basket version is incremented.
func (r *Registry) Configure(tokens []ethcommon.Address, weights []uint64) (*Basket, error) {
	if r == nil || r.state == nil {
		return nil, fmt.Errorf("basket registry not initialised")
	}
	entries, err := validateComposition(tokens, weights)
	if err != nil {
		return nil, err
	}
	var committed *Basket
	err = r.state.Update(func(txn StateTxn) error {
		current, ok, err := txn.Basket()
		if err != nil {
			return err
		}
		version := uint64(1)
		if ok {
			version = current.Version + 1
		}
		committed = &Basket{Version: version, Entries: entries}
		return txn.PutBasket(committed)
	})
	if err != nil {
		return nil, err
	}
	r.emitter.Emit(events.BasketConfigured{
		Version: committed.Version,
		Tokens:  append([]ethcommon.Address{}, tokens...),
		Weights: append([]uint64{}, weights...),
	})
	return committed.Clone(), nil
}

// Basket returns a copy of the committed basket.
func (r *Registry) Basket() (*Basket, bool, error) {
	if r == nil || r.state == nil {
		return nil, false, fmt.Errorf("basket registry not initialised")
	}
	var (
		current *Basket
		ok      bool
	)
	err := r.state.View(func(reader StateReader) error {
		stored, found, err := reader.Basket()
		if err != nil {
			return err
		}
		ok = found
		current = stored.Clone()
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return current, ok, nil
}

// ActiveAssets returns the ordered (token, weight) pairs for active entries.
func (r *Registry) ActiveAssets() ([]AssetEntry, error) {
	current, ok, err := r.Basket()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return current.ActiveEntries(), nil
}

// ActiveLegs implements the pricing.BasketSource interface for valuation.
func (r *Registry) ActiveLegs() ([]pricing.BasketLeg, error) {
	entries, err := r.ActiveAssets()
	if err != nil {
		return nil, err
	}
	legs := make([]pricing.BasketLeg, 0, len(entries))
	for _, entry := range entries {
		legs = append(legs, pricing.BasketLeg{Token: entry.Token, WeightBps: entry.WeightBps})
	}
	return legs, nil
}

func validateComposition(tokens []ethcommon.Address, weights []uint64) ([]AssetEntry, error) {
	if len(tokens) != len(weights) {
		return nil, errLengthMismatch
	}
	if len(tokens) == 0 {
		return nil, errNoEntries
	}
	seen := make(map[ethcommon.Address]struct{}, len(tokens))
	entries := make([]AssetEntry, 0, len(tokens))
	total := uint64(0)
	for i, token := range tokens {
		if weights[i] == 0 {
			return nil, errZeroWeight
		}
		// A single weight above the scale could wrap the uint64 running
		// sum back under it, so it is rejected before the sum moves.
		if weights[i] > WeightScaleBps {
			return nil, fmt.Errorf("%w: weight %d exceeds the scale", ErrWeightSum, weights[i])
		}
		if _, ok := seen[token]; ok {
			return nil, fmt.Errorf("%w: %s", errDuplicateToken, strings.ToLower(token.Hex()))
		}
		seen[token] = struct{}{}
		total += weights[i]
		if total > WeightScaleBps {
			return nil, fmt.Errorf("%w: got at least %d", ErrWeightSum, total)
		}
		entries = append(entries, AssetEntry{Token: token, WeightBps: weights[i], Active: true})
	}
	if total != WeightScaleBps {
		return nil, fmt.Errorf("%w: got %d", ErrWeightSum, total)
	}
	return entries, nil
}
