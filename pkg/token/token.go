// Package token holds the fungible token collaborator the claim registry pays out from.
package token

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// ErrTransferRejected means the token refused the transfer without reverting.
	ErrTransferRejected = errors.New("token rejected transfer")

	// ErrTransferUnconfirmed means the transfer left this process but its outcome
	// is unknown. It may still be executed.
	ErrTransferUnconfirmed = errors.New("token transfer unconfirmed")
)

// TokenLedger is a fungible token as seen by a single holder.
type TokenLedger interface {
	// Transfer moves amount from the holder to the recipient. Any error aborts the caller's operation.
	Transfer(ctx context.Context, to common.Address, amount *uint256.Int) error

	// BalanceOf returns the token balance of account.
	BalanceOf(ctx context.Context, account common.Address) (*uint256.Int, error)
}
