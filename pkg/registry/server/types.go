package server

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/balancemap"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/registry"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/util"
)

// ClaimableRequest asks how much of an entitlement remains claimable.
type ClaimableRequest struct {
	Account string   `json:"account"`
	Index   uint64   `json:"index"`
	Total   string   `json:"total"`
	Proof   []string `json:"proof"`
}

// ClaimRequest pays Amount of the caller's entitlement Total. Amount is
// ignored by /claim-all.
type ClaimRequest struct {
	Index  uint64   `json:"index"`
	Amount string   `json:"amount,omitempty"`
	Total  string   `json:"total"`
	Proof  []string `json:"proof"`
}

type RootRequest struct {
	Root string `json:"root"`
}

type AccountRequest struct {
	Account string `json:"account"`
}

type WithdrawRequest struct {
	Amount string `json:"amount"`
}

type OwnerRequest struct {
	NewOwner string `json:"newOwner"`
}

type InfoResponse struct {
	Registry common.Address `json:"registry"`
	Token    common.Address `json:"token"`
	Owner    common.Address `json:"owner"`
	Root     common.Hash    `json:"root"`
	Paused   bool           `json:"paused"`
	Balance  string         `json:"balance"`
}

type AccountResponse struct {
	Account common.Address `json:"account"`
	Allowed bool           `json:"allowed"`
	Claimed string         `json:"claimed"`
}

type ClaimableResponse struct {
	Account   common.Address `json:"account"`
	Claimable string         `json:"claimable"`
}

type ClaimResponse struct {
	Account common.Address `json:"account"`
	Claimed string         `json:"claimed"`
}

type EventsResponse struct {
	Events []*registry.Event `json:"events"`
	// Next is the cursor to pass as ?after= for the following page.
	Next uint64 `json:"next"`
}

func parseAddress(s string) (common.Address, error) {
	addr, err := util.ParseAddress(s)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %q: %v", registry.ErrInvalidAddress, s, err)
	}
	return addr, nil
}

func parseAmount(s string) (*uint256.Int, error) {
	amount, err := balancemap.ParseAmount(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", registry.ErrInvalidAmount, err)
	}
	return amount, nil
}

func parseProof(proof []string) ([][32]byte, error) {
	out := make([][32]byte, len(proof))
	for i, p := range proof {
		h, err := balancemap.ParseHash(p)
		if err != nil {
			return nil, fmt.Errorf("proof[%d]: %w", i, err)
		}
		out[i] = h
	}
	return out, nil
}

func blockedAddresses(accounts []common.Address) []string {
	return util.Map(accounts, func(a common.Address, _ uint64) string {
		return a.Hex()
	})
}
