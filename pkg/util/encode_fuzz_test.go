package util

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func FuzzEncodeRequestRoundTrip(f *testing.F) {
	f.Add("POST", "/claim", []byte(`{"index":0}`), uint64(1))
	f.Add("GET", "", []byte{}, uint64(0))
	f.Add("POST", "/admin/root", []byte("こんにちは"), uint64(1<<40))

	f.Fuzz(func(t *testing.T, method, path string, body []byte, ts uint64) {
		if len(method) > 64 {
			method = method[:64]
		}
		if len(path) > 1024 {
			path = path[:1024]
		}

		encoded, err := EncodeRequest(method, path, body, ts)
		require.NoError(t, err)

		out, err := requestArguments.Unpack(encoded)
		require.NoError(t, err)
		require.Len(t, out, 4)
		require.Equal(t, method, out[0].(string))
		require.Equal(t, path, out[1].(string))
		require.Equal(t, [32]byte(crypto.Keccak256Hash(body)), out[2].([32]byte))
		require.Equal(t, ts, out[3].(uint64))
	})
}
