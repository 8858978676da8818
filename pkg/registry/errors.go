package registry

import "errors"

// Messages match the revert reasons of the deployed distributor contract so
// clients can surface the same text.
var (
	ErrInvalidProof   = errors.New("Invalid proof")
	ErrInvalidAmount  = errors.New("Invalid amount")
	ErrBlockedAccount = errors.New("Blocked account")
	ErrAlreadyClaimed = errors.New("Drop already claimed.")
	ErrAlreadyBlocked = errors.New("Already blocked")
	ErrNotBlocked     = errors.New("Not blocked")
	ErrInvalidAddress = errors.New("Invalid address")
	ErrNotOwner       = errors.New("Ownable: caller is not the owner")
	ErrZeroOwner      = errors.New("Ownable: new owner is the zero address")
	ErrPaused         = errors.New("Pausable: paused")
	ErrNotPaused      = errors.New("Pausable: not paused")
	ErrAlreadyPaused  = errors.New("Already paused")
	ErrTransferFailed = errors.New("token transfer failed")

	// ErrTransferPending is returned when a transfer was sent but not confirmed.
	// The state change is kept, since the transfer may still execute.
	ErrTransferPending = errors.New("token transfer pending")
)
