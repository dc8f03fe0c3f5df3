package token

import (
	"fmt"
	"strings"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// Directory is a thread-safe Resolver backed by an address map.
type Directory struct {
	mu     sync.RWMutex
	tokens map[ethcommon.Address]Token
}

// NewDirectory constructs an empty directory.
func NewDirectory() *Directory {
	return &Directory{tokens: make(map[ethcommon.Address]Token)}
}

// Register binds the capability to the supplied address, replacing any prior
// binding. A nil capability is rejected so lookups never resolve to nothing.
func (d *Directory) Register(addr ethcommon.Address, capability Token) error {
	if d == nil {
		return fmt.Errorf("token directory not initialised")
	}
	if capability == nil {
		return fmt.Errorf("token directory: capability required for %s", strings.ToLower(addr.Hex()))
	}
	d.mu.Lock()
	d.tokens[addr] = capability
	d.mu.Unlock()
	return nil
}

// Token resolves the capability for the supplied address.
func (d *Directory) Token(addr ethcommon.Address) (Token, error) {
	if d == nil {
		return nil, fmt.Errorf("token directory not initialised")
	}
	d.mu.RLock()
	capability, ok := d.tokens[addr]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, strings.ToLower(addr.Hex()))
	}
	return capability, nil
}

// Addresses lists the registered token addresses in unspecified order.
func (d *Directory) Addresses() []ethcommon.Address {
	if d == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	addrs := make([]ethcommon.Address, 0, len(d.tokens))
	for addr := range d.tokens {
		addrs = append(addrs, addr)
	}
	return addrs
}
