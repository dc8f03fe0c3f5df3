package pricing

import (
	"errors"
	"math/big"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

var (
	tokenA = ethcommon.HexToAddress("0x0000000000000000000000000000000000000201")
	tokenB = ethcommon.HexToAddress("0x0000000000000000000000000000000000000202")
)

type legsFunc func() ([]BasketLeg, error)

func (f legsFunc) ActiveLegs() ([]BasketLeg, error) { return f() }

func twoLegBasket() BasketSource {
	return legsFunc(func() ([]BasketLeg, error) {
		return []BasketLeg{
			{Token: tokenA, WeightBps: 6000},
			{Token: tokenB, WeightBps: 4000},
		}, nil
	})
}

func dollarAdapter(t *testing.T) *Adapter {
	t.Helper()
	adapter := NewAdapter(time.Hour)
	for _, asset := range []ethcommon.Address{tokenA, tokenB} {
		feed := NewManualFeed(8)
		if err := feed.SetDecimal("1.00", time.Now()); err != nil {
			t.Fatalf("set feed: %v", err)
		}
		if err := adapter.Bind(asset, feed); err != nil {
			t.Fatalf("bind: %v", err)
		}
	}
	return adapter
}

func TestTotalValueSumsWeightedLegs(t *testing.T) {
	guard := NewGuard(twoLegBasket(), dollarAdapter(t))
	total, err := guard.TotalValue(big.NewInt(1000))
	if err != nil {
		t.Fatalf("total value: %v", err)
	}
	// 600 of tokenA at $1 plus 400 of tokenB at $1.
	if total.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected 1000, got %s", total)
	}
}

func TestTotalValueDeterministicForUnchangedState(t *testing.T) {
	guard := NewGuard(twoLegBasket(), dollarAdapter(t))
	first, err := guard.TotalValue(big.NewInt(12345))
	if err != nil {
		t.Fatalf("total value: %v", err)
	}
	second, err := guard.TotalValue(big.NewInt(12345))
	if err != nil {
		t.Fatalf("total value: %v", err)
	}
	if first.Cmp(second) != 0 {
		t.Fatalf("valuation drifted: %s vs %s", first, second)
	}
}

func TestTotalValueFailsClosedOnUnpriceableAsset(t *testing.T) {
	adapter := NewAdapter(time.Hour)
	feed := NewManualFeed(8)
	if err := feed.SetDecimal("1.00", time.Now()); err != nil {
		t.Fatalf("set feed: %v", err)
	}
	if err := adapter.Bind(tokenA, feed); err != nil {
		t.Fatalf("bind: %v", err)
	}
	guard := NewGuard(twoLegBasket(), adapter)
	if _, err := guard.TotalValue(big.NewInt(1000)); !errors.Is(err, ErrFeedNotBound) {
		t.Fatalf("expected ErrFeedNotBound, got %v", err)
	}
}

func TestCheckMintSlippageBounds(t *testing.T) {
	guard := NewGuard(twoLegBasket(), dollarAdapter(t))
	if err := guard.SetTolerance(100); err != nil {
		t.Fatalf("set tolerance: %v", err)
	}
	// Actual value of 1000 units is 1000. A max 2% below fails; 2% above passes.
	if err := guard.CheckMint(big.NewInt(1000), big.NewInt(980)); !errors.Is(err, ErrSlippageExceeded) {
		t.Fatalf("expected ErrSlippageExceeded, got %v", err)
	}
	if err := guard.CheckMint(big.NewInt(1000), big.NewInt(1020)); err != nil {
		t.Fatalf("expected mint within bound, got %v", err)
	}
}

func TestCheckBurnSlippageBounds(t *testing.T) {
	guard := NewGuard(twoLegBasket(), dollarAdapter(t))
	if err := guard.SetTolerance(100); err != nil {
		t.Fatalf("set tolerance: %v", err)
	}
	if err := guard.CheckBurn(big.NewInt(1000), big.NewInt(1020)); !errors.Is(err, ErrSlippageExceeded) {
		t.Fatalf("expected ErrSlippageExceeded, got %v", err)
	}
	if err := guard.CheckBurn(big.NewInt(1000), big.NewInt(980)); err != nil {
		t.Fatalf("expected burn within bound, got %v", err)
	}
}

func TestSetToleranceRange(t *testing.T) {
	guard := NewGuard(twoLegBasket(), dollarAdapter(t))
	if err := guard.SetTolerance(10001); !errors.Is(err, ErrToleranceRange) {
		t.Fatalf("expected ErrToleranceRange, got %v", err)
	}
	if guard.Tolerance() != DefaultToleranceBps {
		t.Fatalf("tolerance mutated on rejected update: %d", guard.Tolerance())
	}
}
