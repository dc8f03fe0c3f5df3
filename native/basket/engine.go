package basket

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/auroca-io/Asset-Referenced-Token/core/events"
	nativecommon "github.com/auroca-io/Asset-Referenced-Token/native/common"
	"github.com/auroca-io/Asset-Referenced-Token/native/pricing"
	"github.com/auroca-io/Asset-Referenced-Token/native/token"
)

const moduleName = "basket"

var (
	errNilState      = errors.New("basket engine: state not configured")
	errInvalidAmount = errors.New("basket engine: amount must be positive")
	errGuardRequired = errors.New("basket engine: price guard not configured")
	// ErrReentrantCall indicates a transfer callback re-entered the engine mid-flight.
	ErrReentrantCall = errors.New("basket engine: operation already in flight")
	// ErrEmptyBasket indicates mint/burn ran before any basket was configured.
	ErrEmptyBasket = errors.New("basket engine: basket not configured")
	// ErrInsufficientSupply indicates the caller's wrapper balance cannot cover the burn.
	ErrInsufficientSupply = errors.New("basket engine: insufficient wrapper balance")
	// ErrBasketAsset indicates a recovery sweep targeted active basket collateral.
	ErrBasketAsset = errors.New("basket engine: token is active basket collateral")
	// ErrNothingToRecover indicates the custody balance for the swept token is zero.
	ErrNothingToRecover = errors.New("basket engine: nothing to recover")
)

// Receipt summarizes a settled mint or burn.
type Receipt struct {
	Caller        ethcommon.Address
	Amount        *big.Int
	Legs          []Leg
	Supply        *big.Int
	BasketVersion uint64
}

// RecoveryReceipt records an owner-only custody sweep.
type RecoveryReceipt struct {
	ReceiptID string
	Token     ethcommon.Address
	Recipient ethcommon.Address
	Amount    *big.Int
}

// Engine computes per-asset transfer amounts from the basket, executes the
// atomic transfer sequence and updates wrapper supply. Every operation either
// commits completely or leaves no observable effect.
type Engine struct {
	state     State
	registry  *Registry
	tokens    token.Resolver
	prices    *pricing.Adapter
	guard     *pricing.Guard
	authority Authority
	custody   ethcommon.Address
	pauses    *PauseSwitch
	emitter   events.Emitter

	// busy spans the whole operation, external transfers included, because a
	// transfer callback may call back into the engine.
	busy atomic.Bool
}

// NewEngine constructs an engine over the supplied collaborators. The custody
// address holds pulled collateral and must be pre-authorized as spender by
// minting callers.
func NewEngine(state State, registry *Registry, tokens token.Resolver, authority Authority, custody ethcommon.Address) *Engine {
	return &Engine{
		state:     state,
		registry:  registry,
		tokens:    tokens,
		authority: authority,
		custody:   custody,
		pauses:    &PauseSwitch{},
		emitter:   events.NoopEmitter{},
	}
}

// SetEmitter wires the engine to an event sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil || emitter == nil {
		return
	}
	e.emitter = emitter
}

// SetPricing wires the oracle adapter and slippage guard used by value-gated
// mint and burn calls.
func (e *Engine) SetPricing(adapter *pricing.Adapter, guard *pricing.Guard) {
	if e == nil {
		return
	}
	e.prices = adapter
	e.guard = guard
}

// RestorePauseState reloads the persisted pause flag, typically at startup.
func (e *Engine) RestorePauseState() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.View(func(reader StateReader) error {
		paused, err := reader.Paused()
		if err != nil {
			return err
		}
		e.pauses.SetPaused(paused)
		return nil
	})
}

// Custody returns the collateral custody address.
func (e *Engine) Custody() ethcommon.Address {
	if e == nil {
		return ethcommon.Address{}
	}
	return e.custody
}

// Owner returns the administrative principal.
func (e *Engine) Owner() ethcommon.Address {
	if e == nil {
		return ethcommon.Address{}
	}
	return e.authority.Owner()
}

// Paused reports whether mint/burn is currently halted.
func (e *Engine) Paused() bool {
	if e == nil {
		return false
	}
	return e.pauses.Paused()
}

// ActiveAssets returns the ordered (token, weight) pairs of the current basket.
func (e *Engine) ActiveAssets() ([]AssetEntry, error) {
	if e == nil || e.registry == nil {
		return nil, errNilState
	}
	return e.registry.ActiveAssets()
}

// CalculateMintAmounts previews the per-asset amounts a mint or burn of the
// supplied size would move. The call has no side effects.
func (e *Engine) CalculateMintAmounts(amount *big.Int) ([]Leg, error) {
	if e == nil || e.registry == nil {
		return nil, errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	entries, err := e.registry.ActiveAssets()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrEmptyBasket
	}
	computed := splitAmount(entries, amount)
	legs := make([]Leg, 0, len(computed))
	for _, leg := range computed {
		legs = append(legs, Leg{Token: leg.Token, Amount: new(big.Int).Set(leg.Amount)})
	}
	return legs, nil
}

// TotalSupply returns the wrapper total supply.
func (e *Engine) TotalSupply() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var total *big.Int
	err := e.state.View(func(reader StateReader) error {
		supply, err := reader.TotalSupply()
		if err != nil {
			return err
		}
		total = new(big.Int).Set(supply)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return total, nil
}

// BalanceOf returns the holder's wrapper balance.
func (e *Engine) BalanceOf(holder ethcommon.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var balance *big.Int
	err := e.state.View(func(reader StateReader) error {
		stored, err := reader.Balance(holder)
		if err != nil {
			return err
		}
		balance = new(big.Int).Set(stored)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// Dust reports the net rounding drift in custody per asset, in units of
// 1/10000 token. Burn payouts round down and leave their remainder in
// custody; mint pulls round down in the caller's favour and are counted
// negatively. The figure is exactly what custody holds beyond proportional
// backing of the outstanding supply, and it is never reconciled
// automatically.
func (e *Engine) Dust() (map[ethcommon.Address]*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var dust map[ethcommon.Address]*big.Int
	err := e.state.View(func(reader StateReader) error {
		stored, err := reader.DustBalances()
		if err != nil {
			return err
		}
		dust = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dust, nil
}

// Mint issues amount wrapper units against proportional collateral pulls.
func (e *Engine) Mint(caller ethcommon.Address, amount *big.Int) (*Receipt, error) {
	return e.mint(caller, amount, nil)
}

// MintWithLimit additionally enforces the caller's maximum basket value via
// the slippage guard before any transfer executes.
func (e *Engine) MintWithLimit(caller ethcommon.Address, amount, maxValue *big.Int) (*Receipt, error) {
	if maxValue == nil {
		return nil, fmt.Errorf("basket engine: max value required")
	}
	return e.mint(caller, amount, maxValue)
}

func (e *Engine) mint(caller ethcommon.Address, amount, maxValue *big.Int) (*Receipt, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if !e.busy.CompareAndSwap(false, true) {
		return nil, ErrReentrantCall
	}
	defer e.busy.Store(false)

	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	current, entries, err := e.activeBasket()
	if err != nil {
		return nil, err
	}
	legs := splitAmount(entries, amount)
	if maxValue != nil {
		if e.guard == nil {
			return nil, errGuardRequired
		}
		if err := e.guard.CheckMint(amount, maxValue); err != nil {
			return nil, err
		}
	}

	// Every pull must settle before supply moves; a single failure unwinds
	// the pulls already executed and aborts with zero net effect.
	pulled := make([]computedLeg, 0, len(legs))
	for _, leg := range legs {
		if leg.Amount.Sign() == 0 {
			continue
		}
		capability, err := e.tokens.Token(leg.Token)
		if err == nil {
			err = capability.TransferFrom(e.custody, caller, e.custody, leg.Amount)
		}
		if err != nil {
			if unwindErr := e.unwindPulls(caller, pulled); unwindErr != nil {
				return nil, fmt.Errorf("basket engine: pull %s: %w (unwind failed: %v)", strings.ToLower(leg.Token.Hex()), err, unwindErr)
			}
			return nil, fmt.Errorf("basket engine: pull %s: %w", strings.ToLower(leg.Token.Hex()), err)
		}
		pulled = append(pulled, leg)
	}

	supply := new(big.Int)
	err = e.state.Update(func(txn StateTxn) error {
		balance, err := txn.Balance(caller)
		if err != nil {
			return err
		}
		if err := txn.SetBalance(caller, new(big.Int).Add(balance, amount)); err != nil {
			return err
		}
		total, err := txn.TotalSupply()
		if err != nil {
			return err
		}
		supply.Add(total, amount)
		if err := txn.SetTotalSupply(supply); err != nil {
			return err
		}
		// Mint pulls round down in the caller's favour; the remainder was
		// never collected, so it counts against custody's rounding drift.
		return recordDust(txn, legs, true)
	})
	if err != nil {
		if unwindErr := e.unwindPulls(caller, pulled); unwindErr != nil {
			return nil, fmt.Errorf("basket engine: commit: %w (unwind failed: %v)", err, unwindErr)
		}
		return nil, err
	}

	e.emitter.Emit(events.MintExecuted{Caller: caller, Amount: new(big.Int).Set(amount), Supply: new(big.Int).Set(supply)})
	return &Receipt{
		Caller:        caller,
		Amount:        new(big.Int).Set(amount),
		Legs:          publicLegs(legs),
		Supply:        supply,
		BasketVersion: current.Version,
	}, nil
}

// Burn redeems amount wrapper units for proportional collateral payouts.
func (e *Engine) Burn(caller ethcommon.Address, amount *big.Int) (*Receipt, error) {
	return e.burn(caller, amount, nil)
}

// BurnWithLimit additionally enforces the caller's minimum basket value via
// the slippage guard before any transfer executes.
func (e *Engine) BurnWithLimit(caller ethcommon.Address, amount, minValue *big.Int) (*Receipt, error) {
	if minValue == nil {
		return nil, fmt.Errorf("basket engine: min value required")
	}
	return e.burn(caller, amount, minValue)
}

func (e *Engine) burn(caller ethcommon.Address, amount, minValue *big.Int) (*Receipt, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if !e.busy.CompareAndSwap(false, true) {
		return nil, ErrReentrantCall
	}
	defer e.busy.Store(false)

	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	current, entries, err := e.activeBasket()
	if err != nil {
		return nil, err
	}
	legs := splitAmount(entries, amount)
	if minValue != nil {
		if e.guard == nil {
			return nil, errGuardRequired
		}
		if err := e.guard.CheckBurn(amount, minValue); err != nil {
			return nil, err
		}
	}

	// Supply decreases strictly before any payout.
	supply := new(big.Int)
	err = e.state.Update(func(txn StateTxn) error {
		balance, err := txn.Balance(caller)
		if err != nil {
			return err
		}
		if balance.Cmp(amount) < 0 {
			return ErrInsufficientSupply
		}
		if err := txn.SetBalance(caller, new(big.Int).Sub(balance, amount)); err != nil {
			return err
		}
		total, err := txn.TotalSupply()
		if err != nil {
			return err
		}
		supply.Sub(total, amount)
		if err := txn.SetTotalSupply(supply); err != nil {
			return err
		}
		return recordDust(txn, legs, false)
	})
	if err != nil {
		return nil, err
	}

	paid := make([]computedLeg, 0, len(legs))
	for _, leg := range legs {
		if leg.Amount.Sign() == 0 {
			continue
		}
		capability, resolveErr := e.tokens.Token(leg.Token)
		if resolveErr == nil {
			resolveErr = capability.Transfer(e.custody, caller, leg.Amount)
		}
		if resolveErr != nil {
			if unwindErr := e.rollbackBurn(caller, amount, legs, paid); unwindErr != nil {
				return nil, fmt.Errorf("basket engine: payout %s: %w (rollback failed: %v)", strings.ToLower(leg.Token.Hex()), resolveErr, unwindErr)
			}
			return nil, fmt.Errorf("basket engine: payout %s: %w", strings.ToLower(leg.Token.Hex()), resolveErr)
		}
		paid = append(paid, leg)
	}

	e.emitter.Emit(events.BurnExecuted{Caller: caller, Amount: new(big.Int).Set(amount), Supply: new(big.Int).Set(supply)})
	return &Receipt{
		Caller:        caller,
		Amount:        new(big.Int).Set(amount),
		Legs:          publicLegs(legs),
		Supply:        supply,
		BasketVersion: current.Version,
	}, nil
}

// ConfigureBasket replaces the basket composition. Administrator only.
func (e *Engine) ConfigureBasket(caller ethcommon.Address, tokens []ethcommon.Address, weights []uint64) (*Basket, error) {
	if e == nil || e.registry == nil {
		return nil, errNilState
	}
	if !e.busy.CompareAndSwap(false, true) {
		return nil, ErrReentrantCall
	}
	defer e.busy.Store(false)
	if err := e.authority.RequireOwner(caller); err != nil {
		return nil, err
	}
	return e.registry.Configure(tokens, weights)
}

// BindPriceFeed binds an oracle feed to a basket asset. Administrator only.
func (e *Engine) BindPriceFeed(caller, asset ethcommon.Address, feed pricing.PriceFeed) error {
	if e == nil {
		return errNilState
	}
	if err := e.authority.RequireOwner(caller); err != nil {
		return err
	}
	if e.prices == nil {
		return errGuardRequired
	}
	if err := e.prices.Bind(asset, feed); err != nil {
		return err
	}
	e.emitter.Emit(events.PriceFeedBound{Token: asset, Decimals: feed.Decimals()})
	return nil
}

// SetSlippageTolerance replaces the shared tolerance. Administrator only.
func (e *Engine) SetSlippageTolerance(caller ethcommon.Address, bps uint64) error {
	if e == nil {
		return errNilState
	}
	if err := e.authority.RequireOwner(caller); err != nil {
		return err
	}
	if e.guard == nil {
		return errGuardRequired
	}
	if err := e.guard.SetTolerance(bps); err != nil {
		return err
	}
	e.emitter.Emit(events.ToleranceUpdated{Bps: bps})
	return nil
}

// Pause halts mint/burn. Administrator only; persists across restarts.
func (e *Engine) Pause(caller ethcommon.Address) error {
	if err := e.setPaused(caller, true); err != nil {
		return err
	}
	e.emitter.Emit(events.EnginePaused{Caller: caller})
	return nil
}

// Unpause resumes mint/burn. Administrator only.
func (e *Engine) Unpause(caller ethcommon.Address) error {
	if err := e.setPaused(caller, false); err != nil {
		return err
	}
	e.emitter.Emit(events.EngineResumed{Caller: caller})
	return nil
}

func (e *Engine) setPaused(caller ethcommon.Address, paused bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.authority.RequireOwner(caller); err != nil {
		return err
	}
	if err := e.state.Update(func(txn StateTxn) error {
		return txn.SetPaused(paused)
	}); err != nil {
		return err
	}
	e.pauses.SetPaused(paused)
	return nil
}

// Recover sweeps the custody's entire balance of the supplied token to the
// administrator. Active basket collateral is refused so the sweep cannot
// drain backing assets; the path stays available while paused.
func (e *Engine) Recover(caller, tokenAddr ethcommon.Address) (*RecoveryReceipt, error) {
	if e == nil || e.registry == nil {
		return nil, errNilState
	}
	if !e.busy.CompareAndSwap(false, true) {
		return nil, ErrReentrantCall
	}
	defer e.busy.Store(false)
	if err := e.authority.RequireOwner(caller); err != nil {
		return nil, err
	}
	current, ok, err := e.registry.Basket()
	if err != nil {
		return nil, err
	}
	if ok && current.Contains(tokenAddr) {
		return nil, fmt.Errorf("%w: %s", ErrBasketAsset, strings.ToLower(tokenAddr.Hex()))
	}
	capability, err := e.tokens.Token(tokenAddr)
	if err != nil {
		return nil, err
	}
	balance, err := capability.BalanceOf(e.custody)
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNothingToRecover, strings.ToLower(tokenAddr.Hex()))
	}
	owner := e.authority.Owner()
	if err := capability.Transfer(e.custody, owner, balance); err != nil {
		return nil, fmt.Errorf("basket engine: recovery sweep %s: %w", strings.ToLower(tokenAddr.Hex()), err)
	}
	receipt := &RecoveryReceipt{
		ReceiptID: uuid.NewString(),
		Token:     tokenAddr,
		Recipient: owner,
		Amount:    balance,
	}
	e.emitter.Emit(events.TokenRecovered{
		ReceiptID: receipt.ReceiptID,
		Token:     tokenAddr,
		Recipient: owner,
		Amount:    new(big.Int).Set(balance),
	})
	return receipt, nil
}

func (e *Engine) activeBasket() (*Basket, []AssetEntry, error) {
	current, ok, err := e.registry.Basket()
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrEmptyBasket
	}
	entries := current.ActiveEntries()
	if len(entries) == 0 {
		return nil, nil, ErrEmptyBasket
	}
	return current, entries, nil
}

// unwindPulls issues compensating transfers for pulls that already settled.
// It runs inside the busy guard, so no other operation can observe the
// intermediate custody balances. A failed compensating leg strands that pull
// in custody, so the failure is surfaced rather than discarded.
func (e *Engine) unwindPulls(caller ethcommon.Address, pulled []computedLeg) error {
	for i := len(pulled) - 1; i >= 0; i-- {
		leg := pulled[i]
		capability, err := e.tokens.Token(leg.Token)
		if err == nil {
			err = capability.Transfer(e.custody, caller, leg.Amount)
		}
		if err != nil {
			return fmt.Errorf("return %s: %w", strings.ToLower(leg.Token.Hex()), err)
		}
	}
	return nil
}

// rollbackBurn restores the supply decrease and claws back payouts that
// settled before the failure.
func (e *Engine) rollbackBurn(caller ethcommon.Address, amount *big.Int, legs, paid []computedLeg) error {
	for i := len(paid) - 1; i >= 0; i-- {
		leg := paid[i]
		capability, err := e.tokens.Token(leg.Token)
		if err != nil {
			return err
		}
		if err := capability.Transfer(caller, e.custody, leg.Amount); err != nil {
			return err
		}
	}
	return e.state.Update(func(txn StateTxn) error {
		balance, err := txn.Balance(caller)
		if err != nil {
			return err
		}
		if err := txn.SetBalance(caller, new(big.Int).Add(balance, amount)); err != nil {
			return err
		}
		total, err := txn.TotalSupply()
		if err != nil {
			return err
		}
		if err := txn.SetTotalSupply(new(big.Int).Add(total, amount)); err != nil {
			return err
		}
		return recordDust(txn, legs, true)
	})
}

func recordDust(txn StateTxn, legs []computedLeg, negate bool) error {
	for _, leg := range legs {
		if leg.remainder.Sign() == 0 {
			continue
		}
		units := new(big.Int).Set(leg.remainder)
		if negate {
			units.Neg(units)
		}
		if err := txn.AddDust(leg.Token, units); err != nil {
			return err
		}
	}
	return nil
}

func publicLegs(legs []computedLeg) []Leg {
	out := make([]Leg, 0, len(legs))
	for _, leg := range legs {
		out = append(out, Leg{Token: leg.Token, Amount: new(big.Int).Set(leg.Amount)})
	}
	return out
}
