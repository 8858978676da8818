package token

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

var (
	ErrInsufficientBalance = errors.New("ERC20: transfer amount exceeds balance")
	ErrInvalidRecipient    = errors.New("ERC20: transfer to the zero address")
)

// Ledger is an in-memory fixed supply token.
type Ledger struct {
	logger   *zap.Logger
	mu       sync.RWMutex
	supply   *uint256.Int
	balances map[common.Address]*uint256.Int
}

// NewLedger mints supply to treasury.
func NewLedger(treasury common.Address, supply *uint256.Int, logger *zap.Logger) *Ledger {
	l := &Ledger{
		logger:   logger,
		supply:   new(uint256.Int),
		balances: make(map[common.Address]*uint256.Int),
	}
	if supply != nil {
		l.supply.Set(supply)
		l.balances[treasury] = supply.Clone()
	}
	return l
}

func (l *Ledger) TotalSupply() *uint256.Int {
	return l.supply.Clone()
}

// TransferFrom moves amount from one holder to another.
func (l *Ledger) TransferFrom(from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrInvalidRecipient
	}
	if amount == nil {
		amount = new(uint256.Int)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fromBalance := l.balanceLocked(from)
	if fromBalance.Lt(amount) {
		return fmt.Errorf("%w: have %s, want %s", ErrInsufficientBalance, fromBalance.Dec(), amount.Dec())
	}
	l.balances[from] = new(uint256.Int).Sub(fromBalance, amount)
	// Cannot overflow, every balance is bounded by the supply.
	l.balances[to] = new(uint256.Int).Add(l.balanceLocked(to), amount)

	l.logger.Sugar().Debugw("Token transfer",
		"from", from.Hex(),
		"to", to.Hex(),
		"amount", amount.Dec(),
	)
	return nil
}

func (l *Ledger) Balance(account common.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balanceLocked(account).Clone()
}

func (l *Ledger) balanceLocked(account common.Address) *uint256.Int {
	if b, ok := l.balances[account]; ok {
		return b
	}
	return new(uint256.Int)
}

// Account returns a TokenLedger whose transfers are debited from holder.
func (l *Ledger) Account(holder common.Address) TokenLedger {
	return &account{ledger: l, holder: holder}
}

type account struct {
	ledger *Ledger
	holder common.Address
}

func (a *account) Transfer(ctx context.Context, to common.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.ledger.TransferFrom(a.holder, to, amount)
}

func (a *account) BalanceOf(_ context.Context, account common.Address) (*uint256.Int, error) {
	return a.ledger.Balance(account), nil
}
