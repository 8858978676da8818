// Package registry implements the claim registry: the state machine that pays
// out Merkle-committed entitlements and gates them behind an owner, a pause
// switch and a block list.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/token"
)

type Event = persistence.Event

// Config holds the construction parameters of a registry.
type Config struct {
	// Address is the registry's own account on the token ledger.
	Address common.Address
	// Token is the address of the distributed token.
	Token common.Address
	// Owner is the deployer, who becomes the initial owner.
	Owner common.Address
	// InitialRoot is the first Merkle root. The zero root accepts no claims.
	InitialRoot common.Hash
	// TransferTimeout bounds each token transfer. Zero means DefaultTransferTimeout.
	TransferTimeout time.Duration
}

// DefaultTransferTimeout leaves room for an on-chain transfer to be mined.
const DefaultTransferTimeout = 2 * time.Minute

// ClaimRegistry holds the claim state for a single token distribution.
// All state changing operations are serialized by one mutex.
type ClaimRegistry struct {
	mu      sync.RWMutex
	address common.Address
	meta    *persistence.RegistryMeta
	lastSeq uint64

	token           token.TokenLedger
	transferTimeout time.Duration
	store           persistence.IRegistryPersistence
	logger          *zap.Logger
	now             func() time.Time
}

// New opens the registry stored in store, or constructs a fresh one from cfg
// when the store is empty.
func New(cfg *Config, ledger token.TokenLedger, store persistence.IRegistryPersistence, logger *zap.Logger) (*ClaimRegistry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("registry config cannot be nil")
	}
	if ledger == nil || store == nil {
		return nil, fmt.Errorf("registry requires a token ledger and a persistence layer")
	}

	r := &ClaimRegistry{
		address:         cfg.Address,
		token:           ledger,
		transferTimeout: cfg.TransferTimeout,
		store:           store,
		logger:          logger,
		now:             time.Now,
	}
	if r.transferTimeout <= 0 {
		r.transferTimeout = DefaultTransferTimeout
	}

	meta, err := store.LoadMeta()
	if err != nil {
		return nil, fmt.Errorf("failed to load registry state: %w", err)
	}
	lastSeq, err := store.LastEventSeq()
	if err != nil {
		return nil, fmt.Errorf("failed to load event sequence: %w", err)
	}
	r.lastSeq = lastSeq

	if meta != nil {
		if meta.Token != cfg.Token {
			return nil, fmt.Errorf("persisted registry distributes token %s, not %s", meta.Token.Hex(), cfg.Token.Hex())
		}
		r.meta = meta
		logger.Sugar().Infow("Resumed claim registry",
			"token", meta.Token.Hex(),
			"owner", meta.Owner.Hex(),
			"root", meta.Root.Hex(),
			"paused", meta.Paused,
			"lastEventSeq", lastSeq,
		)
		if cfg.InitialRoot != (common.Hash{}) && cfg.InitialRoot != meta.Root {
			logger.Sugar().Warnw("Ignoring configured initial root, registry already has one",
				"configured", cfg.InitialRoot.Hex(),
				"current", meta.Root.Hex(),
			)
		}
		return r, nil
	}

	if cfg.Owner == (common.Address{}) {
		return nil, ErrZeroOwner
	}
	meta = &persistence.RegistryMeta{
		Token: cfg.Token,
		Owner: cfg.Owner,
		Root:  cfg.InitialRoot,
	}
	event := r.newEvent(persistence.EventOwnershipTransferred)
	event.NewOwner = cfg.Owner
	if err := r.commit(&persistence.StateUpdate{Meta: meta, Events: []*Event{event}}); err != nil {
		return nil, err
	}
	r.meta = meta

	logger.Sugar().Infow("Constructed claim registry",
		"token", cfg.Token.Hex(),
		"owner", cfg.Owner.Hex(),
		"root", cfg.InitialRoot.Hex(),
	)
	return r, nil
}

func (r *ClaimRegistry) Address() common.Address {
	return r.address
}

func (r *ClaimRegistry) Token() common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.meta.Token
}

func (r *ClaimRegistry) Root() common.Hash {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.meta.Root
}

func (r *ClaimRegistry) Owner() common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.meta.Owner
}

func (r *ClaimRegistry) Paused() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.meta.Paused
}

// ClaimedAmount returns how much account has been paid out so far.
func (r *ClaimRegistry) ClaimedAmount(account common.Address) (*uint256.Int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.LoadClaimed(account)
}

// Balance returns the registry's own token balance.
func (r *ClaimRegistry) Balance(ctx context.Context) (*uint256.Int, error) {
	return r.token.BalanceOf(ctx, r.address)
}

// Events returns up to limit events with a sequence number greater than after.
func (r *ClaimRegistry) Events(after uint64, limit int) ([]*Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.ListEvents(after, limit)
}

// BlockedAccounts lists the block list in ascending byte order.
func (r *ClaimRegistry) BlockedAccounts() ([]common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.ListBlocked()
}

// CheckAcct reports whether account may currently receive payouts.
func (r *ClaimRegistry) CheckAcct(account common.Address) (bool, error) {
	if account == (common.Address{}) {
		return false, ErrInvalidAddress
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	blocked, err := r.store.IsBlocked(account)
	if err != nil {
		return false, err
	}
	return !blocked, nil
}

// GetClaimableAmt returns what account could still claim under the current
// root. Blocked accounts can claim nothing.
func (r *ClaimRegistry) GetClaimableAmt(index uint64, account common.Address, total *uint256.Int, proof [][32]byte) (*uint256.Int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if total == nil {
		return nil, ErrInvalidAmount
	}
	if !r.verify(index, account, total, proof) {
		return nil, ErrInvalidProof
	}
	blocked, err := r.store.IsBlocked(account)
	if err != nil {
		return nil, err
	}
	if blocked {
		return new(uint256.Int), nil
	}
	claimed, err := r.store.LoadClaimed(account)
	if err != nil {
		return nil, err
	}
	if claimed.Gt(total) {
		// The root was replaced with a smaller entitlement than was already paid.
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Sub(total, claimed), nil
}

// Claim pays amount of from's entitlement total to from.
func (r *ClaimRegistry) Claim(ctx context.Context, from common.Address, index uint64, amount, total *uint256.Int, proof [][32]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.whenNotPaused(); err != nil {
		return err
	}
	if amount == nil || total == nil {
		return ErrInvalidAmount
	}
	claimed, err := r.checkClaim(index, from, total, proof)
	if err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(claimed, amount)
	if amount.IsZero() || overflow || next.Gt(total) {
		return ErrInvalidAmount
	}

	if err := r.payout(ctx, persistence.EventClaimed, index, from, claimed, next, amount); err != nil {
		return err
	}
	r.logger.Sugar().Infow("Claimed",
		"index", index,
		"account", from.Hex(),
		"amount", amount.Dec(),
		"claimed", next.Dec(),
		"entitlement", total.Dec(),
	)
	return nil
}

// ClaimAll pays from's whole entitlement. It fails once anything has been
// claimed, even partially.
func (r *ClaimRegistry) ClaimAll(ctx context.Context, from common.Address, index uint64, total *uint256.Int, proof [][32]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.whenNotPaused(); err != nil {
		return err
	}
	if total == nil {
		return ErrInvalidAmount
	}
	claimed, err := r.checkClaim(index, from, total, proof)
	if err != nil {
		return err
	}
	if !claimed.IsZero() {
		return ErrAlreadyClaimed
	}
	if total.IsZero() {
		return ErrInvalidAmount
	}

	if err := r.payout(ctx, persistence.EventClaimedAll, index, from, claimed, total.Clone(), total); err != nil {
		return err
	}
	r.logger.Sugar().Infow("Claimed all",
		"index", index,
		"account", from.Hex(),
		"amount", total.Dec(),
	)
	return nil
}

// UpdateMerkleRoot replaces the root. Claimed amounts are kept.
func (r *ClaimRegistry) UpdateMerkleRoot(ctx context.Context, from common.Address, root common.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.onlyOwner(from); err != nil {
		return err
	}

	meta := r.meta.Clone()
	meta.Root = root
	event := r.newEvent(persistence.EventMerkleRootUpdated)
	event.Account = from
	event.PreviousRoot = r.meta.Root
	event.Root = root
	if err := r.commitMeta(meta, event); err != nil {
		return err
	}

	r.logger.Sugar().Infow("Merkle root updated", "previous", event.PreviousRoot.Hex(), "root", root.Hex())
	return nil
}

func (r *ClaimRegistry) Blacklist(ctx context.Context, from, account common.Address) error {
	return r.setBlocked(from, account, true)
}

func (r *ClaimRegistry) Whitelist(ctx context.Context, from, account common.Address) error {
	return r.setBlocked(from, account, false)
}

func (r *ClaimRegistry) setBlocked(from, account common.Address, block bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.onlyOwner(from); err != nil {
		return err
	}
	if account == (common.Address{}) {
		return ErrInvalidAddress
	}
	blocked, err := r.store.IsBlocked(account)
	if err != nil {
		return err
	}
	if block && blocked {
		return ErrAlreadyBlocked
	}
	if !block && !blocked {
		return ErrNotBlocked
	}

	kind := persistence.EventWhitelisted
	if block {
		kind = persistence.EventBlacklisted
	}
	event := r.newEvent(kind)
	event.Account = account
	err = r.commit(&persistence.StateUpdate{
		Blocked: map[common.Address]bool{account: block},
		Events:  []*Event{event},
	})
	if err != nil {
		return err
	}

	r.logger.Sugar().Infow(string(kind), "account", account.Hex())
	return nil
}

func (r *ClaimRegistry) Pause(ctx context.Context, from common.Address) error {
	return r.setPaused(from, true)
}

func (r *ClaimRegistry) Unpause(ctx context.Context, from common.Address) error {
	return r.setPaused(from, false)
}

func (r *ClaimRegistry) setPaused(from common.Address, paused bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.onlyOwner(from); err != nil {
		return err
	}
	if paused && r.meta.Paused {
		return ErrAlreadyPaused
	}
	if !paused && !r.meta.Paused {
		return ErrNotPaused
	}

	meta := r.meta.Clone()
	meta.Paused = paused
	kind := persistence.EventUnpaused
	if paused {
		kind = persistence.EventPaused
	}
	event := r.newEvent(kind)
	event.Account = from
	if err := r.commitMeta(meta, event); err != nil {
		return err
	}

	r.logger.Sugar().Infow(string(kind), "by", from.Hex())
	return nil
}

// TransferOwnership hands every owner-only operation to newOwner.
func (r *ClaimRegistry) TransferOwnership(ctx context.Context, from, newOwner common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.onlyOwner(from); err != nil {
		return err
	}
	if newOwner == (common.Address{}) {
		return ErrZeroOwner
	}

	meta := r.meta.Clone()
	meta.Owner = newOwner
	event := r.newEvent(persistence.EventOwnershipTransferred)
	event.Account = from
	event.NewOwner = newOwner
	if err := r.commitMeta(meta, event); err != nil {
		return err
	}

	r.logger.Sugar().Infow("Ownership transferred", "previous", from.Hex(), "owner", newOwner.Hex())
	return nil
}

// WithdrawToken sends amount of the registry's balance to the owner. Claim
// accounting is not touched.
func (r *ClaimRegistry) WithdrawToken(ctx context.Context, from common.Address, amount *uint256.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.onlyOwner(from); err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}

	event := r.newEvent(persistence.EventWithdrawn)
	event.Account = from
	event.Amount = amount.Hex()
	if err := r.store.Apply(&persistence.StateUpdate{Events: []*Event{event}}); err != nil {
		return fmt.Errorf("failed to persist withdrawal: %w", err)
	}
	if err := r.transfer(ctx, from, amount); err != nil {
		if errors.Is(err, token.ErrTransferUnconfirmed) {
			r.lastSeq = event.Seq
			return r.pending(event, err)
		}
		return r.rollback(&persistence.StateUpdate{DeleteEvents: []uint64{event.Seq}}, err)
	}
	r.lastSeq = event.Seq

	r.logger.Sugar().Infow("Token withdrawn", "owner", from.Hex(), "amount", amount.Dec())
	return nil
}

// checkClaim runs the proof and block list checks shared by Claim and
// ClaimAll and returns the amount already claimed.
func (r *ClaimRegistry) checkClaim(index uint64, account common.Address, total *uint256.Int, proof [][32]byte) (*uint256.Int, error) {
	if !r.verify(index, account, total, proof) {
		return nil, ErrInvalidProof
	}
	blocked, err := r.store.IsBlocked(account)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, ErrBlockedAccount
	}
	return r.store.LoadClaimed(account)
}

// payout records the new claimed amount, then transfers. A transfer that
// definitely did not happen restores the previous amount. An unconfirmed one
// keeps it, so the same entitlement cannot be paid twice.
func (r *ClaimRegistry) payout(ctx context.Context, kind persistence.EventKind, index uint64, account common.Address, prev, next, amount *uint256.Int) error {
	event := r.newEvent(kind)
	event.Index = index
	event.Account = account
	event.Amount = amount.Hex()

	err := r.store.Apply(&persistence.StateUpdate{
		Claimed: map[common.Address]*uint256.Int{account: next},
		Events:  []*Event{event},
	})
	if err != nil {
		return fmt.Errorf("failed to persist claim: %w", err)
	}

	if err := r.transfer(ctx, account, amount); err != nil {
		if errors.Is(err, token.ErrTransferUnconfirmed) {
			r.lastSeq = event.Seq
			return r.pending(event, err)
		}
		return r.rollback(&persistence.StateUpdate{
			Claimed:      map[common.Address]*uint256.Int{account: prev},
			DeleteEvents: []uint64{event.Seq},
		}, err)
	}
	r.lastSeq = event.Seq
	return nil
}

// transfer runs on a context detached from the caller's. A caller that goes
// away must not turn a broadcast transfer into a rolled back one.
func (r *ClaimRegistry) transfer(ctx context.Context, to common.Address, amount *uint256.Int) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.transferTimeout)
	defer cancel()
	return r.token.Transfer(ctx, to, amount)
}

func (r *ClaimRegistry) pending(event *Event, transferErr error) error {
	r.logger.Sugar().Errorw("Token transfer unconfirmed, keeping recorded state",
		"event", string(event.Kind),
		"seq", event.Seq,
		"account", event.Account.Hex(),
		"amount", event.Amount,
		"error", transferErr,
	)
	return fmt.Errorf("%w: %w", ErrTransferPending, transferErr)
}

func (r *ClaimRegistry) rollback(undo *persistence.StateUpdate, transferErr error) error {
	if err := r.store.Apply(undo); err != nil {
		r.logger.Sugar().Errorw("Failed to roll back state after failed transfer",
			"transferError", transferErr,
			"error", err,
		)
		return errors.Join(fmt.Errorf("%w: %w", ErrTransferFailed, transferErr), err)
	}
	r.logger.Sugar().Warnw("Token transfer failed, state restored", "error", transferErr)
	return fmt.Errorf("%w: %w", ErrTransferFailed, transferErr)
}

func (r *ClaimRegistry) commitMeta(meta *persistence.RegistryMeta, event *Event) error {
	if err := r.commit(&persistence.StateUpdate{Meta: meta, Events: []*Event{event}}); err != nil {
		return err
	}
	r.meta = meta
	return nil
}

// commit applies update and consumes the sequence numbers of its events.
func (r *ClaimRegistry) commit(update *persistence.StateUpdate) error {
	if err := r.store.Apply(update); err != nil {
		return fmt.Errorf("failed to persist registry state: %w", err)
	}
	for _, e := range update.Events {
		if e.Seq > r.lastSeq {
			r.lastSeq = e.Seq
		}
	}
	return nil
}

func (r *ClaimRegistry) newEvent(kind persistence.EventKind) *Event {
	return &Event{
		Seq:       r.lastSeq + 1,
		Kind:      kind,
		Timestamp: r.now().Unix(),
	}
}

func (r *ClaimRegistry) onlyOwner(from common.Address) error {
	if from != r.meta.Owner {
		return ErrNotOwner
	}
	return nil
}

func (r *ClaimRegistry) whenNotPaused() error {
	if r.meta.Paused {
		return ErrPaused
	}
	return nil
}

func (r *ClaimRegistry) verify(index uint64, account common.Address, total *uint256.Int, proof [][32]byte) bool {
	return verifyProof(proof, r.meta.Root, claimLeaf(index, account, total))
}
