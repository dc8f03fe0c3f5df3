package config

import (
	"fmt"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

func validate(cfg *Config) error {
	if owner := strings.TrimSpace(cfg.Owner); owner != "" && !ethcommon.IsHexAddress(owner) {
		return fmt.Errorf("config: Owner is not a valid address: %q", cfg.Owner)
	}
	if custody := strings.TrimSpace(cfg.Custody); custody != "" && !ethcommon.IsHexAddress(custody) {
		return fmt.Errorf("config: Custody is not a valid address: %q", cfg.Custody)
	}
	if cfg.Engine.ToleranceBps > 10_000 {
		return fmt.Errorf("config: engine.ToleranceBps must be at most 10000, got %d", cfg.Engine.ToleranceBps)
	}
	if cfg.Oracle.FreshnessWindow.Duration < 0 {
		return fmt.Errorf("config: oracle.FreshnessWindow must not be negative")
	}

	known := make(map[string]struct{}, len(cfg.Tokens))
	for i, tok := range cfg.Tokens {
		addr := strings.TrimSpace(tok.Address)
		if !ethcommon.IsHexAddress(addr) {
			return fmt.Errorf("config: tokens[%d].Address is not a valid address: %q", i, tok.Address)
		}
		normalized := strings.ToLower(ethcommon.HexToAddress(addr).Hex())
		if _, dup := known[normalized]; dup {
			return fmt.Errorf("config: tokens[%d] duplicates address %s", i, normalized)
		}
		known[normalized] = struct{}{}
		if strings.TrimSpace(tok.Symbol) == "" {
			return fmt.Errorf("config: tokens[%d].Symbol required", i)
		}
	}

	for i, feed := range cfg.Feeds {
		addr := strings.TrimSpace(feed.Token)
		if !ethcommon.IsHexAddress(addr) {
			return fmt.Errorf("config: feeds[%d].Token is not a valid address: %q", i, feed.Token)
		}
		normalized := strings.ToLower(ethcommon.HexToAddress(addr).Hex())
		if _, ok := known[normalized]; !ok {
			return fmt.Errorf("config: feeds[%d] references unregistered token %s", i, normalized)
		}
		if strings.TrimSpace(feed.Endpoint) == "" && strings.TrimSpace(feed.Price) == "" {
			return fmt.Errorf("config: feeds[%d] needs an Endpoint or a Price", i)
		}
	}
	return nil
}
