package events

import (
	"math/big"
	"strconv"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

const (
	// TypeBasketConfigured is emitted when the full basket composition is replaced.
	TypeBasketConfigured = "basket.configured"
	// TypeMintExecuted is emitted when a wrapper mint settles.
	TypeMintExecuted = "basket.mint"
	// TypeBurnExecuted is emitted when a wrapper burn settles.
	TypeBurnExecuted = "basket.burn"
	// TypePriceFeedBound is emitted when an asset gains an active oracle binding.
	TypePriceFeedBound = "pricing.feed_bound"
	// TypeToleranceUpdated is emitted when the slippage tolerance changes.
	TypeToleranceUpdated = "pricing.tolerance_updated"
	// TypeEnginePaused is emitted when mint/burn processing halts.
	TypeEnginePaused = "basket.paused"
	// TypeEngineResumed is emitted when mint/burn processing resumes.
	TypeEngineResumed = "basket.resumed"
	// TypeTokenRecovered is emitted after an owner-only custody sweep.
	TypeTokenRecovered = "basket.token_recovered"
)

// BasketConfigured captures a wholesale basket replacement.
type BasketConfigured struct {
	Version uint64
	Tokens  []ethcommon.Address
	Weights []uint64
}

func (BasketConfigured) EventType() string { return TypeBasketConfigured }

// Attributes renders the event payload as string attributes.
func (e BasketConfigured) Attributes() map[string]string {
	tokens := make([]string, 0, len(e.Tokens))
	for _, token := range e.Tokens {
		tokens = append(tokens, strings.ToLower(token.Hex()))
	}
	weights := make([]string, 0, len(e.Weights))
	for _, weight := range e.Weights {
		weights = append(weights, strconv.FormatUint(weight, 10))
	}
	return map[string]string{
		"version": strconv.FormatUint(e.Version, 10),
		"tokens":  strings.Join(tokens, ","),
		"weights": strings.Join(weights, ","),
	}
}

// MintExecuted captures a settled mint along with its caller and amount.
type MintExecuted struct {
	Caller ethcommon.Address
	Amount *big.Int
	Supply *big.Int
}

func (MintExecuted) EventType() string { return TypeMintExecuted }

// Attributes renders the event payload as string attributes.
func (e MintExecuted) Attributes() map[string]string {
	return map[string]string{
		"caller": strings.ToLower(e.Caller.Hex()),
		"amount": formatAmount(e.Amount),
		"supply": formatAmount(e.Supply),
	}
}

// BurnExecuted captures a settled burn along with its caller and amount.
type BurnExecuted struct {
	Caller ethcommon.Address
	Amount *big.Int
	Supply *big.Int
}

func (BurnExecuted) EventType() string { return TypeBurnExecuted }

// Attributes renders the event payload as string attributes.
func (e BurnExecuted) Attributes() map[string]string {
	return map[string]string{
		"caller": strings.ToLower(e.Caller.Hex()),
		"amount": formatAmount(e.Amount),
		"supply": formatAmount(e.Supply),
	}
}

// PriceFeedBound captures a new active oracle binding for a basket asset.
type PriceFeedBound struct {
	Token    ethcommon.Address
	Decimals uint8
}

func (PriceFeedBound) EventType() string { return TypePriceFeedBound }

// Attributes renders the event payload as string attributes.
func (e PriceFeedBound) Attributes() map[string]string {
	return map[string]string{
		"token":    strings.ToLower(e.Token.Hex()),
		"decimals": strconv.FormatUint(uint64(e.Decimals), 10),
	}
}

// ToleranceUpdated captures a slippage tolerance change.
type ToleranceUpdated struct {
	Bps uint64
}

func (ToleranceUpdated) EventType() string { return TypeToleranceUpdated }

// Attributes renders the event payload as string attributes.
func (e ToleranceUpdated) Attributes() map[string]string {
	return map[string]string{"bps": strconv.FormatUint(e.Bps, 10)}
}

// EnginePaused marks the halt of mint/burn processing.
type EnginePaused struct {
	Caller ethcommon.Address
}

func (EnginePaused) EventType() string { return TypeEnginePaused }

// Attributes renders the event payload as string attributes.
func (e EnginePaused) Attributes() map[string]string {
	return map[string]string{"caller": strings.ToLower(e.Caller.Hex())}
}

// EngineResumed marks the resumption of mint/burn processing.
type EngineResumed struct {
	Caller ethcommon.Address
}

func (EngineResumed) EventType() string { return TypeEngineResumed }

// Attributes renders the event payload as string attributes.
func (e EngineResumed) Attributes() map[string]string {
	return map[string]string{"caller": strings.ToLower(e.Caller.Hex())}
}

// TokenRecovered captures an owner-only sweep of stray token custody.
type TokenRecovered struct {
	ReceiptID string
	Token     ethcommon.Address
	Recipient ethcommon.Address
	Amount    *big.Int
}

func (TokenRecovered) EventType() string { return TypeTokenRecovered }

// Attributes renders the event payload as string attributes.
func (e TokenRecovered) Attributes() map[string]string {
	return map[string]string{
		"receiptId": e.ReceiptID,
		"token":     strings.ToLower(e.Token.Hex()),
		"recipient": strings.ToLower(e.Recipient.Hex()),
		"amount":    formatAmount(e.Amount),
	}
}

func formatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}
