package transactionSigner

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/util"
)

// EthClient is the subset of *ethclient.Client the signer needs.
type EthClient interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

// ErrTransactionPending is returned when a transaction may have reached the
// network but its receipt could not be obtained. It can still be mined.
var ErrTransactionPending = errors.New("transaction sent but not confirmed")

var fallbackGasTipCap = big.NewInt(1_500_000_000) // 1.5 gwei

const baseFeeMultiplier = 2

// PrivateKeySigner signs EIP-1559 transactions with a locally held key.
type PrivateKeySigner struct {
	ethClient   EthClient
	logger      *zap.Logger
	chainID     *big.Int
	privateKey  *ecdsa.PrivateKey
	fromAddress common.Address
}

// NewPrivateKeySigner creates a signer from a hex encoded secp256k1 key.
func NewPrivateKeySigner(privateKey string, ethClient EthClient, logger *zap.Logger) (*PrivateKeySigner, error) {
	key, err := util.StringToECDSAPrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	chainID, err := ethClient.ChainID(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	from, err := util.DeriveAddressFromECDSAPrivateKey(key)
	if err != nil {
		return nil, err
	}

	return &PrivateKeySigner{
		ethClient:   ethClient,
		logger:      logger,
		chainID:     chainID,
		privateKey:  key,
		fromAddress: from,
	}, nil
}

// SignAndSendTransaction signs a transaction and sends it to the network
func (pks *PrivateKeySigner) SignAndSendTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	gasTipCap, err := pks.ethClient.SuggestGasTipCap(ctx)
	if err != nil {
		pks.logger.Sugar().Warnw("Cannot get gasTipCap, using fallback", "error", err)
		gasTipCap = fallbackGasTipCap
	}

	header, err := pks.ethClient.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest block header: %w", err)
	}

	maxFeePerGas := new(big.Int).Add(
		new(big.Int).Mul(header.BaseFee, big.NewInt(baseFeeMultiplier)),
		gasTipCap,
	)

	gasLimit, err := pks.ethClient.EstimateGas(ctx, ethereum.CallMsg{
		From:      pks.fromAddress,
		To:        tx.To(),
		GasTipCap: gasTipCap,
		GasFeeCap: maxFeePerGas,
		Value:     tx.Value(),
		Data:      tx.Data(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to estimate gas: %w", err)
	}

	nonce, err := pks.ethClient.PendingNonceAt(ctx, pks.fromAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	unsigned := types.NewTx(&types.DynamicFeeTx{
		ChainID:   pks.chainID,
		Nonce:     nonce,
		GasTipCap: gasTipCap,
		GasFeeCap: maxFeePerGas,
		Gas:       addGasBuffer(gasLimit),
		To:        tx.To(),
		Value:     tx.Value(),
		Data:      tx.Data(),
	})

	signedTx, err := types.SignTx(unsigned, types.LatestSignerForChainID(pks.chainID), pks.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := pks.ethClient.SendTransaction(ctx, signedTx); err != nil {
		// A send interrupted by the context may already have been accepted by the node.
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: tx %s: %w", ErrTransactionPending, signedTx.Hash().Hex(), err)
		}
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}
	pks.logger.Sugar().Infow("Transaction sent", "txHash", signedTx.Hash().Hex(), "nonce", nonce)

	receipt, err := bind.WaitMined(ctx, pks.ethClient, signedTx)
	if err != nil {
		pks.logger.Sugar().Errorw("Transaction sent but receipt unavailable",
			"txHash", signedTx.Hash().Hex(),
			"error", err,
		)
		return nil, fmt.Errorf("%w: tx %s: failed to wait for transaction receipt: %w", ErrTransactionPending, signedTx.Hash().Hex(), err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		pks.logger.Sugar().Errorw("Transaction failed",
			"txHash", receipt.TxHash.Hex(),
			"status", receipt.Status,
			"gasUsed", receipt.GasUsed,
		)
		return nil, fmt.Errorf("transaction failed with status %d", receipt.Status)
	}

	pks.logger.Sugar().Infow("Transaction succeeded",
		"txHash", receipt.TxHash.Hex(),
		"gasUsed", receipt.GasUsed,
		"blockNumber", receipt.BlockNumber.Uint64(),
	)
	return receipt, nil
}

// GetFromAddress returns the address that will be used for signing
func (pks *PrivateKeySigner) GetFromAddress() common.Address {
	return pks.fromAddress
}

// addGasBuffer adds a 20% margin to an estimated gas limit.
func addGasBuffer(gasLimit uint64) uint64 {
	return gasLimit + gasLimit/5
}
