package pricing

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

var (
	// ErrSlippageExceeded indicates the basket value fell outside the caller's bound.
	ErrSlippageExceeded = errors.New("pricing: slippage bound exceeded")
	// ErrToleranceRange indicates a tolerance outside the 0..10000 bps range.
	ErrToleranceRange = errors.New("pricing: tolerance must be at most 10000 bps")

	errInvalidAmount = errors.New("pricing: amount must be positive")
	errInvalidBound  = errors.New("pricing: caller bound must be positive")
)

const basisPoints = 10_000

// DefaultToleranceBps is the slippage tolerance applied until the owner
// overrides it.
const DefaultToleranceBps = 100

// BasketLeg describes one active basket member for valuation purposes.
type BasketLeg struct {
	Token     ethcommon.Address
	WeightBps uint64
}

// BasketSource exposes the active composition the guard values against.
type BasketSource interface {
	ActiveLegs() ([]BasketLeg, error)
}

// Guard computes basket-wide monetary value and enforces caller-specified
// bounds. The tolerance is a single scalar shared across all assets, applied
// symmetrically as an upper bound on mint value and a lower bound on burn
// value.
type Guard struct {
	mu           sync.RWMutex
	basket       BasketSource
	prices       *Adapter
	toleranceBps uint64
}

// NewGuard constructs a guard over the supplied basket source and adapter with
// the default tolerance.
func NewGuard(basket BasketSource, prices *Adapter) *Guard {
	return &Guard{basket: basket, prices: prices, toleranceBps: DefaultToleranceBps}
}

// SetTolerance replaces the shared slippage tolerance.
func (g *Guard) SetTolerance(bps uint64) error {
	if g == nil {
		return fmt.Errorf("slippage guard not configured")
	}
	if bps > basisPoints {
		return ErrToleranceRange
	}
	g.mu.Lock()
	g.toleranceBps = bps
	g.mu.Unlock()
	return nil
}

// Tolerance returns the current tolerance in basis points.
func (g *Guard) Tolerance() uint64 {
	if g == nil {
		return 0
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.toleranceBps
}

// TotalValue sums, over active basket assets, the per-asset mint/burn amount
// multiplied by its normalized price, divided by the fixed-point unit. The
// result is recomputed on every call and never persisted. Any unpriceable
// asset fails the whole valuation.
func (g *Guard) TotalValue(amount *big.Int) (*big.Int, error) {
	if g == nil || g.basket == nil || g.prices == nil {
		return nil, fmt.Errorf("slippage guard not configured")
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	legs, err := g.basket.ActiveLegs()
	if err != nil {
		return nil, err
	}
	if len(legs) == 0 {
		return nil, fmt.Errorf("pricing: basket empty")
	}
	total := big.NewInt(0)
	bps := big.NewInt(basisPoints)
	for _, leg := range legs {
		price, err := g.prices.Price(leg.Token)
		if err != nil {
			return nil, err
		}
		share := new(big.Int).Mul(amount, new(big.Int).SetUint64(leg.WeightBps))
		share.Quo(share, bps)
		share.Mul(share, price)
		share.Quo(share, priceUnit)
		total.Add(total, share)
	}
	return total, nil
}

// CheckMint fails when the basket value of amount exceeds the caller's maximum
// inflated by the tolerance.
func (g *Guard) CheckMint(amount, callerMaxValue *big.Int) error {
	if g == nil {
		return fmt.Errorf("slippage guard not configured")
	}
	if callerMaxValue == nil || callerMaxValue.Sign() <= 0 {
		return errInvalidBound
	}
	total, err := g.TotalValue(amount)
	if err != nil {
		return err
	}
	// total > max * (10000 + tol) / 10000, compared cross-multiplied.
	lhs := new(big.Int).Mul(total, big.NewInt(basisPoints))
	rhs := new(big.Int).Mul(callerMaxValue, big.NewInt(basisPoints+int64(g.Tolerance())))
	if lhs.Cmp(rhs) > 0 {
		return fmt.Errorf("%w: value %s above mint bound %s", ErrSlippageExceeded, total, callerMaxValue)
	}
	return nil
}

// CheckBurn fails when the basket value of amount falls below the caller's
// minimum deflated by the tolerance.
func (g *Guard) CheckBurn(amount, callerMinValue *big.Int) error {
	if g == nil {
		return fmt.Errorf("slippage guard not configured")
	}
	if callerMinValue == nil || callerMinValue.Sign() <= 0 {
		return errInvalidBound
	}
	total, err := g.TotalValue(amount)
	if err != nil {
		return err
	}
	lhs := new(big.Int).Mul(total, big.NewInt(basisPoints))
	rhs := new(big.Int).Mul(callerMinValue, big.NewInt(basisPoints-int64(g.Tolerance())))
	if lhs.Cmp(rhs) < 0 {
		return fmt.Errorf("%w: value %s below burn bound %s", ErrSlippageExceeded, total, callerMinValue)
	}
	return nil
}
