package token

import (
	"errors"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

var (
	// ErrUnknownToken indicates the directory holds no capability for the address.
	ErrUnknownToken = errors.New("token: unknown token")
	// ErrInsufficientBalance indicates the sender balance cannot cover the transfer.
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	// ErrInsufficientAllowance indicates the spender authorization cannot cover the pull.
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")

	errInvalidAmount = errors.New("token: amount must be positive")
)

// Token is the fungible-asset capability consumed per basket member. Every
// implementation is treated as untrusted: callers must check each result and
// never assume a transfer settled without a nil error.
type Token interface {
	BalanceOf(holder ethcommon.Address) (*big.Int, error)
	Allowance(owner, spender ethcommon.Address) (*big.Int, error)
	Transfer(from, to ethcommon.Address, amount *big.Int) error
	TransferFrom(spender, from, to ethcommon.Address, amount *big.Int) error
}

// Resolver maps basket token addresses to their transfer capabilities.
type Resolver interface {
	Token(addr ethcommon.Address) (Token, error)
}
