package basket

import (
	"errors"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// ErrUnauthorized is returned when a non-administrator invokes a gated operation.
var ErrUnauthorized = errors.New("basket: caller is not the administrator")

// Authority holds the single privileged principal. Every gated operation
// performs an explicit check at its entry point rather than inheriting one.
type Authority struct {
	owner ethcommon.Address
}

// NewAuthority constructs an authority for the supplied owner address.
func NewAuthority(owner ethcommon.Address) Authority {
	return Authority{owner: owner}
}

// Owner returns the administrative principal.
func (a Authority) Owner() ethcommon.Address {
	return a.owner
}

// RequireOwner rejects any caller other than the administrator.
func (a Authority) RequireOwner(caller ethcommon.Address) error {
	if caller != a.owner {
		return ErrUnauthorized
	}
	return nil
}

// PauseSwitch halts mint/burn during emergencies. Administrative operations,
// recovery included, bypass it so the condition forcing a pause cannot also
// block remediation.
type PauseSwitch struct {
	mu     sync.RWMutex
	paused bool
}

// SetPaused flips the switch.
func (p *PauseSwitch) SetPaused(paused bool) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.paused = paused
	p.mu.Unlock()
}

// Paused reports the current flag.
func (p *PauseSwitch) Paused() bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused
}

// IsPaused implements the common.PauseView interface; the module name is
// ignored because the switch guards a single engine.
func (p *PauseSwitch) IsPaused(string) bool {
	return p.Paused()
}
