package transactionSigner

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// ITransactionSigner provides methods for signing Ethereum transactions
type ITransactionSigner interface {
	// SignAndSendTransaction signs a transaction, sends it and waits for a successful receipt
	SignAndSendTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)

	// GetFromAddress returns the address that will be used for signing
	GetFromAddress() common.Address
}

type SignerConfig struct {
	PrivateKey string `json:"privateKey" yaml:"privateKey"`
}

func NewTransactionSigner(cfg *SignerConfig, ethClient EthClient, logger *zap.Logger) (ITransactionSigner, error) {
	if cfg == nil || cfg.PrivateKey == "" {
		return nil, fmt.Errorf("private key cannot be empty")
	}

	signer, err := NewPrivateKeySigner(cfg.PrivateKey, ethClient, logger)
	if err != nil {
		return nil, err
	}
	return signer, nil
}
