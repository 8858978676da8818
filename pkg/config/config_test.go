package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validMemoryConfig() *DistributorServerConfig {
	cfg := NewDefaultDistributorServerConfig()
	cfg.TokenAddress = "0x1111111111111111111111111111111111111111"
	cfg.OwnerAddress = "0x2222222222222222222222222222222222222222"
	cfg.RegistryAddress = "0x3333333333333333333333333333333333333333"
	return cfg
}

func TestDistributorServerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *DistributorServerConfig)
		wantErr string
	}{
		{name: "valid memory config", mutate: func(c *DistributorServerConfig) {}},
		{name: "valid initial root", mutate: func(c *DistributorServerConfig) {
			c.InitialRoot = "0x0000000000000000000000000000000000000000000000000000000000000001"
		}},
		{name: "bad port", mutate: func(c *DistributorServerConfig) { c.Port = 0 }, wantErr: "port"},
		{name: "bad token", mutate: func(c *DistributorServerConfig) { c.TokenAddress = "nope" }, wantErr: "tokenAddress"},
		{name: "zero owner", mutate: func(c *DistributorServerConfig) {
			c.OwnerAddress = "0x0000000000000000000000000000000000000000"
		}, wantErr: "ownerAddress"},
		{name: "short root", mutate: func(c *DistributorServerConfig) { c.InitialRoot = "0x1234" }, wantErr: "initialRoot"},
		{name: "missing registry address", mutate: func(c *DistributorServerConfig) { c.RegistryAddress = "" }, wantErr: "registryAddress"},
		{name: "unknown ledger", mutate: func(c *DistributorServerConfig) { c.Ledger = "paper" }, wantErr: "ledger"},
		{name: "erc20 without chain", mutate: func(c *DistributorServerConfig) { c.Ledger = LedgerType_ERC20 }, wantErr: "chain.rpcUrl"},
		{name: "badger without path", mutate: func(c *DistributorServerConfig) {
			c.Persistence.Type = PersistenceType_Badger
		}, wantErr: "persistence.dataPath"},
		{name: "redis without address", mutate: func(c *DistributorServerConfig) {
			c.Persistence.Type = PersistenceType_Redis
		}, wantErr: "persistence.redis.address"},
		{name: "redis db out of range", mutate: func(c *DistributorServerConfig) {
			c.Persistence.Type = PersistenceType_Redis
			c.Persistence.Redis.Address = "localhost:6379"
			c.Persistence.Redis.DB = 16
		}, wantErr: "persistence.redis.db"},
		{name: "unknown persistence", mutate: func(c *DistributorServerConfig) { c.Persistence.Type = "sqlite" }, wantErr: "persistence.type"},
		{name: "zero claim rate", mutate: func(c *DistributorServerConfig) { c.ClaimRate = 0 }, wantErr: "claimRate"},
		{name: "zero burst", mutate: func(c *DistributorServerConfig) { c.ClaimBurst = 0 }, wantErr: "claimBurst"},
		{name: "zero signature age", mutate: func(c *DistributorServerConfig) { c.SignatureMaxAge = 0 }, wantErr: "signatureMaxAge"},
		{name: "bad token checksum", mutate: func(c *DistributorServerConfig) { c.TokenAddress = "0x70997970c51812dc3A010C7d01b50e0d17dc79C8" }, wantErr: "tokenAddress"},
		{name: "zero transfer timeout", mutate: func(c *DistributorServerConfig) { c.TransferTimeout = 0 }, wantErr: "transferTimeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validMemoryConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDistributorServerConfig_ValidateERC20(t *testing.T) {
	cfg := validMemoryConfig()
	cfg.Ledger = LedgerType_ERC20
	cfg.RegistryAddress = ""
	cfg.Chain = ChainConfig{
		ChainID:          ChainId_EthereumSepolia,
		RpcUrl:           "http://localhost:8545",
		SignerPrivateKey: "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318",
	}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ChainName_EthereumSepolia, cfg.Chain.ChainName)

	cfg.Chain.ChainID = 5
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain.chainId")

	cfg.Chain.ChainID = ChainId_EthereumAnvil
	cfg.Chain.SignerPrivateKey = "0x1234"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain.signerPrivateKey")
	assert.NotContains(t, err.Error(), "0x1234", "key material must not leak into errors")

	// Right length, but zero is not a valid secp256k1 scalar.
	cfg.Chain.SignerPrivateKey = "0x" + strings.Repeat("0", 64)
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid secp256k1 private key")
}

func TestDistributorServerConfig_CollectsAllErrors(t *testing.T) {
	cfg := &DistributorServerConfig{}
	err := cfg.Validate()
	require.Error(t, err)
	for _, field := range []string{"port", "tokenAddress", "ownerAddress", "ledger", "persistence.type", "claimRate"} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestLoadDistributorServerConfig(t *testing.T) {
	t.Run("no file returns defaults", func(t *testing.T) {
		cfg, err := LoadDistributorServerConfig("")
		require.NoError(t, err)
		assert.Equal(t, DefaultPort, cfg.Port)
		assert.Equal(t, PersistenceType_Memory, cfg.Persistence.Type)
		assert.Equal(t, DefaultSignatureMaxAge, cfg.SignatureMaxAge)
		assert.Equal(t, DefaultTransferTimeout, cfg.TransferTimeout)
	})

	t.Run("yaml overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "distributor.yaml")
		content := `
port: 9000
tokenAddress: "0x1111111111111111111111111111111111111111"
ownerAddress: "0x2222222222222222222222222222222222222222"
registryAddress: "0x3333333333333333333333333333333333333333"
tokenSupply: "1000000"
funding: "750"
signatureMaxAge: 30s
persistence:
  type: redis
  redis:
    address: "localhost:6379"
    db: 2
    keyPrefix: "airdrop:"
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		cfg, err := LoadDistributorServerConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 9000, cfg.Port)
		assert.Equal(t, "750", cfg.Funding)
		assert.Equal(t, 30*time.Second, cfg.SignatureMaxAge)
		assert.Equal(t, PersistenceType_Redis, cfg.Persistence.Type)
		assert.Equal(t, 2, cfg.Persistence.Redis.DB)
		assert.Equal(t, "airdrop:", cfg.Persistence.Redis.KeyPrefix)
		assert.Equal(t, DefaultClaimBurst, cfg.ClaimBurst, "unset fields keep defaults")
		require.NoError(t, cfg.Validate())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadDistributorServerConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("port: [1, 2"), 0o600))
		_, err := LoadDistributorServerConfig(path)
		require.Error(t, err)
	})
}

func TestChainTables(t *testing.T) {
	for _, id := range GetSupportedChainIDs() {
		name, ok := ChainIdToName[id]
		require.True(t, ok)
		assert.Equal(t, id, ChainNameToId[name])
	}
	assert.Contains(t, GetSupportedChainIDsString(), "11155111")
}
