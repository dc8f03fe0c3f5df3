package storage

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/auroca-io/Asset-Referenced-Token/native/basket"
)

// basketRecord mirrors the persisted basket payload.
type basketRecord struct {
	Version uint64        `json:"version"`
	Entries []assetRecord `json:"entries"`
}

type assetRecord struct {
	Token     string `json:"token"`
	WeightBps uint64 `json:"weightBps"`
	Active    bool   `json:"active"`
}

func encodeBasket(b *basket.Basket) ([]byte, error) {
	if b == nil {
		return nil, fmt.Errorf("storage: basket required")
	}
	record := basketRecord{Version: b.Version, Entries: make([]assetRecord, 0, len(b.Entries))}
	for _, entry := range b.Entries {
		record.Entries = append(record.Entries, assetRecord{
			Token:     strings.ToLower(entry.Token.Hex()),
			WeightBps: entry.WeightBps,
			Active:    entry.Active,
		})
	}
	return json.Marshal(record)
}

func decodeBasket(raw []byte) (*basket.Basket, error) {
	var record basketRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("storage: decode basket: %w", err)
	}
	decoded := &basket.Basket{Version: record.Version, Entries: make([]basket.AssetEntry, 0, len(record.Entries))}
	for _, entry := range record.Entries {
		if !ethcommon.IsHexAddress(entry.Token) {
			return nil, fmt.Errorf("storage: decode basket: invalid token %q", entry.Token)
		}
		decoded.Entries = append(decoded.Entries, basket.AssetEntry{
			Token:     ethcommon.HexToAddress(entry.Token),
			WeightBps: entry.WeightBps,
			Active:    entry.Active,
		})
	}
	return decoded, nil
}

// Amounts persist as decimal strings so records stay inspectable with plain
// bolt tooling.
func encodeAmount(amount *big.Int) []byte {
	return []byte(amount.String())
}

func decodeAmount(raw []byte) (*big.Int, error) {
	if len(raw) == 0 {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return nil, fmt.Errorf("storage: malformed amount %q", raw)
	}
	return amount, nil
}
