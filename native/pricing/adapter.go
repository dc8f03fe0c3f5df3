package pricing

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

var (
	// ErrFeedNotBound indicates the asset has no active oracle binding.
	ErrFeedNotBound = errors.New("pricing: no active feed bound for asset")
	// ErrStalePrice indicates the latest reading aged beyond the freshness window.
	ErrStalePrice = errors.New("pricing: price reading stale")
	// ErrInvalidPrice indicates the source returned a non-positive or ambiguous value.
	ErrInvalidPrice = errors.New("pricing: invalid price reading")
)

// DefaultFreshnessWindow bounds the tolerated age of a price reading.
const DefaultFreshnessWindow = time.Hour

// PriceDecimals is the fixed-point precision every price is normalized to.
const PriceDecimals = 18

var priceUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(PriceDecimals), nil)

// PriceUnit returns the 18-decimal fixed-point unit as a fresh big.Int.
func PriceUnit() *big.Int {
	return new(big.Int).Set(priceUnit)
}

type binding struct {
	feed     PriceFeed
	decimals uint8
	active   bool
}

// Adapter normalizes external price readings per asset and enforces freshness.
// Absence of an active binding makes an asset unpriceable; valuation fails
// closed.
type Adapter struct {
	mu       sync.RWMutex
	bindings map[ethcommon.Address]binding
	maxAge   time.Duration
	now      func() time.Time
}

// NewAdapter constructs an adapter with the supplied freshness window. A
// non-positive window falls back to DefaultFreshnessWindow.
func NewAdapter(maxAge time.Duration) *Adapter {
	if maxAge <= 0 {
		maxAge = DefaultFreshnessWindow
	}
	return &Adapter{
		bindings: make(map[ethcommon.Address]binding),
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// SetClock overrides the time source (primarily for deterministic testing).
func (a *Adapter) SetClock(now func() time.Time) {
	if a == nil || now == nil {
		return
	}
	a.mu.Lock()
	a.now = now
	a.mu.Unlock()
}

// Bind records the feed and its native decimal precision for the asset,
// replacing any prior binding. The new binding is marked active.
func (a *Adapter) Bind(asset ethcommon.Address, feed PriceFeed) error {
	if a == nil {
		return fmt.Errorf("pricing adapter not configured")
	}
	if feed == nil {
		return fmt.Errorf("pricing: feed handle unresolvable for %s", strings.ToLower(asset.Hex()))
	}
	a.mu.Lock()
	a.bindings[asset] = binding{feed: feed, decimals: feed.Decimals(), active: true}
	a.mu.Unlock()
	return nil
}

// Deactivate marks the asset's binding inactive without discarding it, making
// the asset unpriceable until rebound.
func (a *Adapter) Deactivate(asset ethcommon.Address) {
	if a == nil {
		return
	}
	a.mu.Lock()
	if bound, ok := a.bindings[asset]; ok {
		bound.active = false
		a.bindings[asset] = bound
	}
	a.mu.Unlock()
}

// Bound reports whether the asset currently has an active binding.
func (a *Adapter) Bound(asset ethcommon.Address) bool {
	if a == nil {
		return false
	}
	a.mu.RLock()
	bound, ok := a.bindings[asset]
	a.mu.RUnlock()
	return ok && bound.active
}

// Decimals reports the native precision recorded for the asset's binding.
func (a *Adapter) Decimals(asset ethcommon.Address) (uint8, bool) {
	if a == nil {
		return 0, false
	}
	a.mu.RLock()
	bound, ok := a.bindings[asset]
	a.mu.RUnlock()
	if !ok || !bound.active {
		return 0, false
	}
	return bound.decimals, true
}

// Price reads the latest value from the bound source, enforces the freshness
// window, rejects non-positive values and normalizes the result to 18 decimals
// using the source's own decimal count.
func (a *Adapter) Price(asset ethcommon.Address) (*big.Int, error) {
	price, _, err := a.Reading(asset)
	return price, err
}

// Reading is Price plus the source timestamp of the accepted value, for
// freshness reporting.
func (a *Adapter) Reading(asset ethcommon.Address) (*big.Int, time.Time, error) {
	if a == nil {
		return nil, time.Time{}, fmt.Errorf("pricing adapter not configured")
	}
	a.mu.RLock()
	bound, ok := a.bindings[asset]
	maxAge := a.maxAge
	now := a.now
	a.mu.RUnlock()
	if !ok || !bound.active {
		return nil, time.Time{}, fmt.Errorf("%w: %s", ErrFeedNotBound, strings.ToLower(asset.Hex()))
	}
	value, updatedAt, err := bound.feed.Latest()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("pricing: read feed for %s: %w", strings.ToLower(asset.Hex()), err)
	}
	if value == nil || value.Sign() <= 0 {
		return nil, time.Time{}, fmt.Errorf("%w: %s", ErrInvalidPrice, strings.ToLower(asset.Hex()))
	}
	if updatedAt.IsZero() || now().Sub(updatedAt) > maxAge {
		return nil, time.Time{}, fmt.Errorf("%w: %s last updated %s", ErrStalePrice, strings.ToLower(asset.Hex()), updatedAt.UTC().Format(time.RFC3339))
	}
	return normalize(value, bound.decimals), updatedAt, nil
}

// normalize rescales a raw reading from the source precision to 18 decimals.
func normalize(value *big.Int, decimals uint8) *big.Int {
	scaled := new(big.Int).Set(value)
	switch {
	case decimals < PriceDecimals:
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(PriceDecimals-decimals)), nil)
		scaled.Mul(scaled, factor)
	case decimals > PriceDecimals:
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals-PriceDecimals)), nil)
		scaled.Quo(scaled, factor)
	}
	return scaled
}
