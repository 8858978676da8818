package util

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Map applies f to every element of list and returns a new slice.
func Map[A any, B any](list []A, f func(A, uint64) B) []B {
	out := make([]B, len(list))
	for i, v := range list {
		out[i] = f(v, uint64(i))
	}
	return out
}

func Filter[A any](list []A, f func(A) bool) []A {
	out := make([]A, 0)
	for _, v := range list {
		if f(v) {
			out = append(out, v)
		}
	}
	return out
}

// ParseAddress parses a hex address. Mixed-case input must carry a valid
// EIP-55 checksum; all lower or all upper case input is accepted as is.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("not a 20 byte hex address")
	}
	addr := common.HexToAddress(s)
	digits := s
	if len(digits) == 42 {
		digits = digits[2:]
	}
	if digits != strings.ToLower(digits) && digits != strings.ToUpper(digits) && digits != addr.Hex()[2:] {
		return common.Address{}, fmt.Errorf("bad address checksum, expected %s", addr.Hex())
	}
	return addr, nil
}

// StringToECDSAPrivateKey parses a hex encoded secp256k1 private key, with or without 0x prefix.
func StringToECDSAPrivateKey(pk string) (*ecdsa.PrivateKey, error) {
	pk = strings.TrimPrefix(strings.TrimSpace(pk), "0x")
	if pk == "" {
		return nil, fmt.Errorf("private key is empty")
	}
	key, err := crypto.HexToECDSA(pk)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return key, nil
}

func DeriveAddressFromECDSAPrivateKey(pk *ecdsa.PrivateKey) (common.Address, error) {
	if pk == nil {
		return common.Address{}, fmt.Errorf("private key is nil")
	}
	pub, ok := pk.Public().(*ecdsa.PublicKey)
	if !ok {
		return common.Address{}, fmt.Errorf("failed to cast public key to ECDSA")
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// DeriveAddressFromECDSAPrivateKeyString parses pk and returns its address.
func DeriveAddressFromECDSAPrivateKeyString(pk string) (common.Address, error) {
	key, err := StringToECDSAPrivateKey(pk)
	if err != nil {
		return common.Address{}, err
	}
	return DeriveAddressFromECDSAPrivateKey(key)
}
