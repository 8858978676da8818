package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/balancemap"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/registry"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse request: %v", err))
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.HealthCheck(); err != nil {
		s.logger.Sugar().Warnw("Health check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "persistence unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	balance, err := s.registry.Balance(r.Context())
	if err != nil {
		s.logger.Sugar().Errorw("Failed to read registry balance", "error", err)
		writeError(w, http.StatusBadGateway, "failed to read token balance")
		return
	}
	writeJSON(w, http.StatusOK, InfoResponse{
		Registry: s.registry.Address(),
		Token:    s.registry.Token(),
		Owner:    s.registry.Owner(),
		Root:     s.registry.Root(),
		Paused:   s.registry.Paused(),
		Balance:  balance.Hex(),
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]common.Hash{"root": s.registry.Root()})
}

func (s *Server) handleOwner(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]common.Address{"owner": s.registry.Owner()})
}

func (s *Server) handlePaused(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"paused": s.registry.Paused()})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress(chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	allowed, err := s.registry.CheckAcct(account)
	if err != nil {
		s.writeRegistryError(w, r, err)
		return
	}
	claimed, err := s.registry.ClaimedAmount(account)
	if err != nil {
		s.writeRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AccountResponse{Account: account, Allowed: allowed, Claimed: claimed.Hex()})
}

func (s *Server) handleBlocked(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.registry.BlockedAccounts()
	if err != nil {
		s.writeRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"blocked": blockedAddresses(accounts)})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var after uint64
	if raw := r.URL.Query().Get("after"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "after must be an unsigned integer")
			return
		}
		after = v
	}
	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(v, maxEventLimit)
	}

	events, err := s.registry.Events(after, limit)
	if err != nil {
		s.writeRegistryError(w, r, err)
		return
	}
	next := after
	if len(events) > 0 {
		next = events[len(events)-1].Seq
	}
	if events == nil {
		events = []*registry.Event{}
	}
	writeJSON(w, http.StatusOK, EventsResponse{Events: events, Next: next})
}

func (s *Server) handleClaimable(w http.ResponseWriter, r *http.Request) {
	var req ClaimableRequest
	if !decodeBody(w, r, &req) {
		return
	}
	account, err := parseAddress(req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	total, proof, ok := parseEntitlement(w, req.Total, req.Proof)
	if !ok {
		return
	}

	claimable, err := s.registry.GetClaimableAmt(req.Index, account, total, proof)
	if err != nil {
		s.writeRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ClaimableResponse{Account: account, Claimable: claimable.Hex()})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	var req ClaimRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	total, proof, ok := parseEntitlement(w, req.Total, req.Proof)
	if !ok {
		return
	}

	err = s.registry.Claim(r.Context(), caller, req.Index, amount, total, proof)
	s.metrics.ObserveClaim("claim", resultFor(err))
	if err != nil {
		s.writeRegistryError(w, r, err)
		return
	}
	s.writeClaimed(w, r, caller)
}

func (s *Server) handleClaimAll(w http.ResponseWriter, r *http.Request) {
	caller, _ := callerFrom(r.Context())
	var req ClaimRequest
	if !decodeBody(w, r, &req) {
		return
	}
	total, proof, ok := parseEntitlement(w, req.Total, req.Proof)
	if !ok {
		return
	}

	err := s.registry.ClaimAll(r.Context(), caller, req.Index, total, proof)
	s.metrics.ObserveClaim("claim_all", resultFor(err))
	if err != nil {
		s.writeRegistryError(w, r, err)
		return
	}
	s.writeClaimed(w, r, caller)
}

func (s *Server) writeClaimed(w http.ResponseWriter, r *http.Request, account common.Address) {
	claimed, err := s.registry.ClaimedAmount(account)
	if err != nil {
		s.writeRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ClaimResponse{Account: account, Claimed: claimed.Hex()})
}

func (s *Server) handleUpdateRoot(w http.ResponseWriter, r *http.Request) {
	var req RootRequest
	if !decodeBody(w, r, &req) {
		return
	}
	root, err := balancemap.ParseHash(req.Root)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid root: %v", err))
		return
	}
	s.admin(w, r, "update_root", func(caller common.Address) error {
		return s.registry.UpdateMerkleRoot(r.Context(), caller, root)
	})
}

func (s *Server) handleBlacklist(w http.ResponseWriter, r *http.Request) {
	s.handleBlockList(w, r, "blacklist", s.registry.Blacklist)
}

func (s *Server) handleWhitelist(w http.ResponseWriter, r *http.Request) {
	s.handleBlockList(w, r, "whitelist", s.registry.Whitelist)
}

func (s *Server) handleBlockList(w http.ResponseWriter, r *http.Request, op string, apply func(ctx context.Context, from, account common.Address) error) {
	var req AccountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	account, err := parseAddress(req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.admin(w, r, op, func(caller common.Address) error {
		return apply(r.Context(), caller, account)
	})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.admin(w, r, "pause", func(caller common.Address) error {
		return s.registry.Pause(r.Context(), caller)
	})
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	s.admin(w, r, "unpause", func(caller common.Address) error {
		return s.registry.Unpause(r.Context(), caller)
	})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.admin(w, r, "withdraw", func(caller common.Address) error {
		return s.registry.WithdrawToken(r.Context(), caller, amount)
	})
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req OwnerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	newOwner, err := parseAddress(req.NewOwner)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.admin(w, r, "transfer_ownership", func(caller common.Address) error {
		return s.registry.TransferOwnership(r.Context(), caller, newOwner)
	})
}

// admin runs an owner operation as the authenticated caller and answers with
// the resulting registry state.
func (s *Server) admin(w http.ResponseWriter, r *http.Request, op string, fn func(caller common.Address) error) {
	caller, _ := callerFrom(r.Context())
	err := fn(caller)
	s.metrics.ObserveAdmin(op, resultFor(err))
	if err != nil {
		s.writeRegistryError(w, r, err)
		return
	}
	s.metrics.SetPaused(s.registry.Paused())
	writeJSON(w, http.StatusOK, map[string]any{
		"owner":  s.registry.Owner(),
		"root":   s.registry.Root(),
		"paused": s.registry.Paused(),
	})
}

// parseEntitlement decodes the total and proof shared by claim requests.
func parseEntitlement(w http.ResponseWriter, rawTotal string, rawProof []string) (*uint256.Int, [][32]byte, bool) {
	total, err := parseAmount(rawTotal)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, nil, false
	}
	proof, err := parseProof(rawProof)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid proof: %v", err))
		return nil, nil, false
	}
	return total, proof, true
}
