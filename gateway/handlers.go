package gateway

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/auroca-io/Asset-Referenced-Token/native/basket"
	nativecommon "github.com/auroca-io/Asset-Referenced-Token/native/common"
	"github.com/auroca-io/Asset-Referenced-Token/native/pricing"
	"github.com/auroca-io/Asset-Referenced-Token/native/token"
	"github.com/auroca-io/Asset-Referenced-Token/observability"
	oraclemetrics "github.com/auroca-io/Asset-Referenced-Token/observability/metrics"
)

type assetPayload struct {
	Token     string `json:"token"`
	WeightBps uint64 `json:"weightBps"`
}

type legPayload struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
	Price  string `json:"price,omitempty"`
}

type receiptPayload struct {
	Caller        string       `json:"caller"`
	Amount        string       `json:"amount"`
	Legs          []legPayload `json:"legs"`
	Supply        string       `json:"supply"`
	BasketVersion uint64       `json:"basketVersion"`
}

type mintRequest struct {
	Caller   string `json:"caller"`
	Amount   string `json:"amount"`
	MaxValue string `json:"maxValue,omitempty"`
}

type burnRequest struct {
	Caller   string `json:"caller"`
	Amount   string `json:"amount"`
	MinValue string `json:"minValue,omitempty"`
}

type basketRequest struct {
	Tokens  []string `json:"tokens"`
	Weights []uint64 `json:"weights"`
}

type feedRequest struct {
	Token    string `json:"token"`
	Decimals uint8  `json:"decimals"`
	Endpoint string `json:"endpoint,omitempty"`
	Price    string `json:"price,omitempty"`
}

type toleranceRequest struct {
	Bps uint64 `json:"bps"`
}

type recoverRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleBasket(w http.ResponseWriter, r *http.Request) {
	entries, err := s.engine.ActiveAssets()
	if err != nil {
		s.writeError(w, err)
		return
	}
	assets := make([]assetPayload, 0, len(entries))
	for _, entry := range entries {
		assets = append(assets, assetPayload{
			Token:     strings.ToLower(entry.Token.Hex()),
			WeightBps: entry.WeightBps,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"assets": assets,
		"paused": s.engine.Paused(),
	})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	amount, err := parseAmount(r.URL.Query().Get("amount"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	legs, err := s.engine.CalculateMintAmounts(amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	payload := make([]legPayload, 0, len(legs))
	for _, leg := range legs {
		entry := legPayload{
			Token:  strings.ToLower(leg.Token.Hex()),
			Amount: leg.Amount.String(),
		}
		if s.prices != nil {
			price, priceErr := s.prices.Price(leg.Token)
			oraclemetrics.Oracle().RecordRead(entry.Token, priceErr)
			if priceErr == nil {
				entry.Price = price.String()
			}
		}
		payload = append(payload, entry)
	}
	response := map[string]any{"amount": amount.String(), "legs": payload}
	if s.guard != nil {
		if value, valueErr := s.guard.TotalValue(amount); valueErr == nil {
			response["value"] = value.String()
		} else {
			response["valuationError"] = valueErr.Error()
		}
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleSupply(w http.ResponseWriter, r *http.Request) {
	supply, err := s.engine.TotalSupply()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"totalSupply": supply.String()})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	holder, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	balance, err := s.engine.BalanceOf(holder)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"address": strings.ToLower(holder.Hex()),
		"balance": balance.String(),
	})
}

func (s *Server) handleDust(w http.ResponseWriter, r *http.Request) {
	dust, err := s.engine.Dust()
	if err != nil {
		s.writeError(w, err)
		return
	}
	payload := make(map[string]string, len(dust))
	for asset, units := range dust {
		payload[strings.ToLower(asset.Hex())] = units.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{"dust": payload})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	type eventPayload struct {
		Type       string            `json:"type"`
		Attributes map[string]string `json:"attributes"`
	}
	snapshot := s.recorder.Snapshot()
	payload := make([]eventPayload, 0, len(snapshot))
	for _, evt := range snapshot {
		payload = append(payload, eventPayload{Type: evt.EventType(), Attributes: evt.Attributes()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": payload})
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var maxValue *big.Int
	if strings.TrimSpace(req.MaxValue) != "" {
		if maxValue, err = parseAmount(req.MaxValue); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}

	start := time.Now()
	var receipt *basket.Receipt
	s.opMu.Lock()
	if maxValue != nil {
		receipt, err = s.engine.MintWithLimit(caller, amount, maxValue)
	} else {
		receipt, err = s.engine.Mint(caller, amount)
	}
	s.opMu.Unlock()
	s.observeEngine("mint", start, err)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receiptJSON(receipt))
}

func (s *Server) handleBurn(w http.ResponseWriter, r *http.Request) {
	var req burnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var minValue *big.Int
	if strings.TrimSpace(req.MinValue) != "" {
		if minValue, err = parseAmount(req.MinValue); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}

	start := time.Now()
	var receipt *basket.Receipt
	s.opMu.Lock()
	if minValue != nil {
		receipt, err = s.engine.BurnWithLimit(caller, amount, minValue)
	} else {
		receipt, err = s.engine.Burn(caller, amount)
	}
	s.opMu.Unlock()
	s.observeEngine("burn", start, err)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receiptJSON(receipt))
}

func (s *Server) handleConfigureBasket(w http.ResponseWriter, r *http.Request) {
	var req basketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	tokens := make([]ethcommon.Address, 0, len(req.Tokens))
	for _, raw := range req.Tokens {
		addr, err := parseAddress(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		tokens = append(tokens, addr)
	}
	s.opMu.Lock()
	configured, err := s.engine.ConfigureBasket(s.engine.Owner(), tokens, req.Weights)
	s.opMu.Unlock()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"version": configured.Version})
}

func (s *Server) handleBindFeed(w http.ResponseWriter, r *http.Request) {
	var req feedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	asset, err := parseAddress(req.Token)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	var feed pricing.PriceFeed
	switch {
	case strings.TrimSpace(req.Endpoint) != "":
		feed, err = pricing.NewHTTPFeed(nil, req.Endpoint, req.Decimals)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	case strings.TrimSpace(req.Price) != "":
		manual := pricing.NewManualFeed(req.Decimals)
		if err := manual.SetDecimal(req.Price, time.Now()); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		feed = manual
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "endpoint or price required"})
		return
	}
	if err := s.engine.BindPriceFeed(s.engine.Owner(), asset, feed); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "bound"})
}

func (s *Server) handleSetTolerance(w http.ResponseWriter, r *http.Request) {
	var req toleranceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := s.engine.SetSlippageTolerance(s.engine.Owner(), req.Bps); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"toleranceBps": req.Bps})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Pause(s.engine.Owner()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Unpause(s.engine.Owner()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	var req recoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	asset, err := parseAddress(req.Token)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.opMu.Lock()
	receipt, err := s.engine.Recover(s.engine.Owner(), asset)
	s.opMu.Unlock()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"receiptId": receipt.ReceiptID,
		"token":     strings.ToLower(receipt.Token.Hex()),
		"recipient": strings.ToLower(receipt.Recipient.Hex()),
		"amount":    receipt.Amount.String(),
	})
}

func (s *Server) observeEngine(operation string, start time.Time, err error) {
	metrics := observability.Engine()
	metrics.Observe(operation, time.Since(start), err)
	if err == nil {
		if supply, supplyErr := s.engine.TotalSupply(); supplyErr == nil {
			metrics.SetSupply(supply)
		}
	}
}

func receiptJSON(receipt *basket.Receipt) receiptPayload {
	legs := make([]legPayload, 0, len(receipt.Legs))
	for _, leg := range receipt.Legs {
		legs = append(legs, legPayload{
			Token:  strings.ToLower(leg.Token.Hex()),
			Amount: leg.Amount.String(),
		})
	}
	return receiptPayload{
		Caller:        strings.ToLower(receipt.Caller.Hex()),
		Amount:        receipt.Amount.String(),
		Legs:          legs,
		Supply:        receipt.Supply.String(),
		BasketVersion: receipt.BasketVersion,
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, nativecommon.ErrModulePaused):
		status = http.StatusServiceUnavailable
	case errors.Is(err, basket.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, basket.ErrEmptyBasket),
		errors.Is(err, basket.ErrInsufficientSupply),
		errors.Is(err, basket.ErrBasketAsset),
		errors.Is(err, basket.ErrReentrantCall),
		errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientAllowance):
		status = http.StatusConflict
	case errors.Is(err, basket.ErrNothingToRecover),
		errors.Is(err, token.ErrUnknownToken):
		status = http.StatusNotFound
	case errors.Is(err, pricing.ErrSlippageExceeded),
		errors.Is(err, pricing.ErrStalePrice),
		errors.Is(err, pricing.ErrFeedNotBound),
		errors.Is(err, pricing.ErrInvalidPrice):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, basket.ErrInvalidBasket),
		errors.Is(err, pricing.ErrToleranceRange):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func parseAddress(raw string) (ethcommon.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !ethcommon.IsHexAddress(trimmed) {
		return ethcommon.Address{}, errors.New("invalid address")
	}
	return ethcommon.HexToAddress(trimmed), nil
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() <= 0 {
		return nil, errors.New("amount must be a positive integer")
	}
	return amount, nil
}
