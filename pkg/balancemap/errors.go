package balancemap

import "errors"

var (
	ErrInvalidAddress   = errors.New("invalid address")
	ErrZeroAmount       = errors.New("invalid amount")
	ErrDuplicateAccount = errors.New("duplicate address")
	ErrUnknownAccount   = errors.New("no such account")
	ErrAmountOverflow   = errors.New("amount overflows uint256")
	ErrInvalidSnapshot  = errors.New("invalid snapshot")
)
