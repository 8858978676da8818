package util

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndRecoverRequest(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	expected := crypto.PubkeyToAddress(key.PublicKey)

	body := []byte(`{"root":"0x01"}`)
	sig, err := SignRequest(key, "POST", "/admin/root", body, 1700000000)
	require.NoError(t, err)
	require.Len(t, sig, crypto.SignatureLength)

	t.Run("recovers signer", func(t *testing.T) {
		addr, err := RecoverRequestSigner(sig, "POST", "/admin/root", body, 1700000000)
		require.NoError(t, err)
		assert.Equal(t, expected, addr)
	})

	t.Run("accepts wallet style recovery id", func(t *testing.T) {
		shifted := append([]byte{}, sig...)
		shifted[64] += 27
		addr, err := RecoverRequestSigner(shifted, "POST", "/admin/root", body, 1700000000)
		require.NoError(t, err)
		assert.Equal(t, expected, addr)
		assert.Equal(t, sig[64], shifted[64]-27, "input signature must not be modified")
	})

	t.Run("different body recovers different address", func(t *testing.T) {
		addr, err := RecoverRequestSigner(sig, "POST", "/admin/root", []byte(`{"root":"0x02"}`), 1700000000)
		if err == nil {
			assert.NotEqual(t, expected, addr)
		}
	})

	t.Run("different timestamp recovers different address", func(t *testing.T) {
		addr, err := RecoverRequestSigner(sig, "POST", "/admin/root", body, 1700000001)
		if err == nil {
			assert.NotEqual(t, expected, addr)
		}
	})

	t.Run("short signature", func(t *testing.T) {
		_, err := RecoverRequestSigner(sig[:64], "POST", "/admin/root", body, 1700000000)
		require.Error(t, err)
	})
}
