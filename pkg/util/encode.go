package util

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var requestArguments = func() abi.Arguments {
	stringType, _ := abi.NewType("string", "", nil)
	bytes32Type, _ := abi.NewType("bytes32", "", nil)
	uint64Type, _ := abi.NewType("uint64", "", nil)
	return abi.Arguments{
		{Type: stringType},
		{Type: stringType},
		{Type: bytes32Type},
		{Type: uint64Type},
	}
}()

// EncodeRequest ABI encodes the parts of an authenticated request that a caller signs.
func EncodeRequest(method, path string, body []byte, timestamp uint64) ([]byte, error) {
	encoded, err := requestArguments.Pack(method, path, crypto.Keccak256Hash(body), timestamp)
	if err != nil {
		return nil, err
	}
	return encoded, nil
}

// SignRequest returns the 65 byte EIP-191 personal signature over the encoded request.
func SignRequest(key *ecdsa.PrivateKey, method, path string, body []byte, timestamp uint64) ([]byte, error) {
	encoded, err := EncodeRequest(method, path, body, timestamp)
	if err != nil {
		return nil, err
	}
	return crypto.Sign(accounts.TextHash(encoded), key)
}

// RecoverRequestSigner returns the address that produced sig over the encoded request.
func RecoverRequestSigner(sig []byte, method, path string, body []byte, timestamp uint64) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(sig))
	}
	encoded, err := EncodeRequest(method, path, body, timestamp)
	if err != nil {
		return common.Address{}, err
	}
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(encoded), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
