package token

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/transactionSigner"
)

const erc20ABIJSON = `[
	{"type":"function","name":"transfer","stateMutability":"nonpayable",
	 "inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]}
]`

var erc20ABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// ERC20 is a TokenLedger backed by a deployed ERC-20 contract. Transfers are
// sent from the signer's address.
type ERC20 struct {
	address  common.Address
	contract *bind.BoundContract
	signer   transactionSigner.ITransactionSigner
	logger   *zap.Logger
}

func NewERC20(address common.Address, caller bind.ContractCaller, signer transactionSigner.ITransactionSigner, logger *zap.Logger) *ERC20 {
	return &ERC20{
		address:  address,
		contract: bind.NewBoundContract(address, erc20ABI, caller, nil, nil),
		signer:   signer,
		logger:   logger,
	}
}

func (e *ERC20) Address() common.Address {
	return e.address
}

func (e *ERC20) BalanceOf(ctx context.Context, account common.Address) (*uint256.Int, error) {
	var out []interface{}
	if err := e.contract.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", account); err != nil {
		return nil, errors.Wrap(err, "failed to call balanceOf")
	}
	if len(out) != 1 {
		return nil, errors.Errorf("unexpected balanceOf output length %d", len(out))
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, errors.Errorf("unexpected balanceOf output type %T", out[0])
	}
	amount, overflow := uint256.FromBig(balance)
	if overflow {
		return nil, errors.New("balanceOf result overflows uint256")
	}
	return amount, nil
}

// Transfer simulates the call first and only broadcasts when the token would
// return true. A transaction that was sent but never confirmed yields an error
// wrapping ErrTransferUnconfirmed.
func (e *ERC20) Transfer(ctx context.Context, to common.Address, amount *uint256.Int) error {
	if e.signer == nil {
		return errors.New("no transaction signer configured")
	}
	from := e.signer.GetFromAddress()

	var out []interface{}
	if err := e.contract.Call(&bind.CallOpts{From: from, Context: ctx}, &out, "transfer", to, amount.ToBig()); err != nil {
		return errors.Wrap(err, "token transfer would revert")
	}
	if len(out) != 1 {
		return errors.Errorf("unexpected transfer output length %d", len(out))
	}
	if ok, _ := out[0].(bool); !ok {
		return errors.Wrap(ErrTransferRejected, "token transfer returned false")
	}

	data, err := erc20ABI.Pack("transfer", to, amount.ToBig())
	if err != nil {
		return errors.Wrap(err, "failed to pack transfer")
	}

	tokenAddress := e.address
	tx := types.NewTx(&types.DynamicFeeTx{
		To:    &tokenAddress,
		Value: new(big.Int),
		Data:  data,
	})

	e.logger.Sugar().Infow("Submitting token transfer",
		"token", e.address.Hex(),
		"from", from.Hex(),
		"to", to.Hex(),
		"amount", amount.Dec(),
	)

	receipt, err := e.signer.SignAndSendTransaction(ctx, tx)
	if err != nil {
		if errors.Is(err, transactionSigner.ErrTransactionPending) {
			return fmt.Errorf("%w: %w", ErrTransferUnconfirmed, err)
		}
		return errors.Wrap(err, "token transfer failed")
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return errors.Errorf("token transfer reverted in tx %s", receipt.TxHash.Hex())
	}
	return nil
}
