package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/util"
)

// Environment variable names for distributor server configuration
const (
	EnvDistributorConfigFile      = "DISTRIBUTOR_CONFIG_FILE"
	EnvDistributorPort            = "DISTRIBUTOR_PORT"
	EnvDistributorTokenAddress    = "DISTRIBUTOR_TOKEN_ADDRESS"
	EnvDistributorOwnerAddress    = "DISTRIBUTOR_OWNER_ADDRESS"
	EnvDistributorRegistryAddress = "DISTRIBUTOR_REGISTRY_ADDRESS"
	EnvDistributorInitialRoot     = "DISTRIBUTOR_INITIAL_ROOT"
	EnvDistributorLedgerType      = "DISTRIBUTOR_LEDGER_TYPE"
	EnvDistributorTokenSupply     = "DISTRIBUTOR_TOKEN_SUPPLY"
	EnvDistributorFunding         = "DISTRIBUTOR_FUNDING"
	EnvDistributorChainID         = "DISTRIBUTOR_CHAIN_ID"
	EnvDistributorRPCURL          = "DISTRIBUTOR_RPC_URL"
	EnvDistributorSignerKey       = "DISTRIBUTOR_SIGNER_PRIVATE_KEY"
	EnvDistributorPersistenceType = "DISTRIBUTOR_PERSISTENCE_TYPE"
	EnvDistributorDataPath        = "DISTRIBUTOR_DATA_PATH"
	EnvDistributorRedisAddress    = "DISTRIBUTOR_REDIS_ADDRESS"
	EnvDistributorRedisPassword   = "DISTRIBUTOR_REDIS_PASSWORD"
	EnvDistributorRedisDB         = "DISTRIBUTOR_REDIS_DB"
	EnvDistributorRedisKeyPrefix  = "DISTRIBUTOR_REDIS_KEY_PREFIX"
	EnvDistributorClaimRate       = "DISTRIBUTOR_CLAIM_RATE"
	EnvDistributorClaimBurst      = "DISTRIBUTOR_CLAIM_BURST"
	EnvDistributorSignatureMaxAge = "DISTRIBUTOR_SIGNATURE_MAX_AGE"
	EnvDistributorTransferTimeout = "DISTRIBUTOR_TRANSFER_TIMEOUT"
	EnvDistributorLogFile         = "DISTRIBUTOR_LOG_FILE"
	EnvDistributorVerbose         = "DISTRIBUTOR_VERBOSE"
)

type ChainId uint

const (
	ChainId_EthereumMainnet ChainId = 1
	ChainId_EthereumSepolia ChainId = 11155111
	ChainId_EthereumAnvil   ChainId = 31337
)

type ChainName string

const (
	ChainName_EthereumMainnet ChainName = "mainnet"
	ChainName_EthereumSepolia ChainName = "sepolia"
	ChainName_EthereumAnvil   ChainName = "devnet"
)

var ChainIdToName = map[ChainId]ChainName{
	ChainId_EthereumMainnet: ChainName_EthereumMainnet,
	ChainId_EthereumSepolia: ChainName_EthereumSepolia,
	ChainId_EthereumAnvil:   ChainName_EthereumAnvil,
}
var ChainNameToId = map[ChainName]ChainId{
	ChainName_EthereumMainnet: ChainId_EthereumMainnet,
	ChainName_EthereumSepolia: ChainId_EthereumSepolia,
	ChainName_EthereumAnvil:   ChainId_EthereumAnvil,
}

// GetSupportedChainIDs returns all supported chain IDs
func GetSupportedChainIDs() []ChainId {
	return []ChainId{
		ChainId_EthereumMainnet,
		ChainId_EthereumSepolia,
		ChainId_EthereumAnvil,
	}
}

// GetSupportedChainIDsString returns supported chain IDs as strings for CLI help
func GetSupportedChainIDsString() string {
	return fmt.Sprintf("%d (mainnet), %d (sepolia), %d (anvil)",
		ChainId_EthereumMainnet, ChainId_EthereumSepolia, ChainId_EthereumAnvil)
}

type PersistenceType string

const (
	PersistenceType_Memory PersistenceType = "memory"
	PersistenceType_Badger PersistenceType = "badger"
	PersistenceType_Redis  PersistenceType = "redis"
)

type LedgerType string

const (
	// LedgerType_Memory runs an in-process token, for local testing.
	LedgerType_Memory LedgerType = "memory"
	// LedgerType_ERC20 pays out from a deployed ERC-20 over JSON-RPC.
	LedgerType_ERC20 LedgerType = "erc20"
)

const (
	DefaultPort            = 8080
	DefaultClaimRate       = 5.0
	DefaultClaimBurst      = 10
	DefaultSignatureMaxAge = 5 * time.Minute
	DefaultTransferTimeout = 2 * time.Minute
)

type RedisConfig struct {
	Address   string `json:"address" yaml:"address"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	KeyPrefix string `json:"keyPrefix" yaml:"keyPrefix"`
}

type PersistenceConfig struct {
	Type     PersistenceType `json:"type" yaml:"type"`
	DataPath string          `json:"dataPath" yaml:"dataPath"`
	Redis    RedisConfig     `json:"redis" yaml:"redis"`
}

type ChainConfig struct {
	ChainID   ChainId   `json:"chainId" yaml:"chainId"`
	ChainName ChainName `json:"chainName" yaml:"chainName"`
	RpcUrl    string    `json:"rpcUrl" yaml:"rpcUrl"`
	// SignerPrivateKey pays gas for and signs token transfers. Its address is the registry's address.
	SignerPrivateKey string `json:"signerPrivateKey" yaml:"signerPrivateKey"`
}

// DistributorServerConfig represents the complete configuration for a distributor server
type DistributorServerConfig struct {
	Port int `json:"port" yaml:"port"`

	TokenAddress string `json:"tokenAddress" yaml:"tokenAddress"`
	OwnerAddress string `json:"ownerAddress" yaml:"ownerAddress"`
	InitialRoot  string `json:"initialRoot" yaml:"initialRoot"`

	Ledger LedgerType `json:"ledger" yaml:"ledger"`
	// RegistryAddress, TokenSupply and Funding apply to the memory ledger only.
	// The supply is minted to the owner and Funding of it is moved to the registry.
	RegistryAddress string `json:"registryAddress" yaml:"registryAddress"`
	TokenSupply     string `json:"tokenSupply" yaml:"tokenSupply"`
	Funding         string `json:"funding" yaml:"funding"`

	Chain       ChainConfig       `json:"chain" yaml:"chain"`
	Persistence PersistenceConfig `json:"persistence" yaml:"persistence"`

	// ClaimRate is the sustained number of claim requests per second allowed per caller.
	ClaimRate       float64       `json:"claimRate" yaml:"claimRate"`
	ClaimBurst      int           `json:"claimBurst" yaml:"claimBurst"`
	SignatureMaxAge time.Duration `json:"signatureMaxAge" yaml:"signatureMaxAge"`
	// TransferTimeout bounds a single payout, independent of the request that triggered it.
	TransferTimeout time.Duration `json:"transferTimeout" yaml:"transferTimeout"`

	LogFile string `json:"logFile" yaml:"logFile"`
	Debug   bool   `json:"debug" yaml:"debug"`
	Verbose bool   `json:"verbose" yaml:"verbose"`
}

// NewDefaultDistributorServerConfig returns a config with every optional field defaulted.
func NewDefaultDistributorServerConfig() *DistributorServerConfig {
	return &DistributorServerConfig{
		Port:            DefaultPort,
		Ledger:          LedgerType_Memory,
		ClaimRate:       DefaultClaimRate,
		ClaimBurst:      DefaultClaimBurst,
		SignatureMaxAge: DefaultSignatureMaxAge,
		TransferTimeout: DefaultTransferTimeout,
		Persistence: PersistenceConfig{
			Type: PersistenceType_Memory,
		},
	}
}

// LoadDistributorServerConfig reads a YAML config file over the defaults.
func LoadDistributorServerConfig(path string) (*DistributorServerConfig, error) {
	cfg := NewDefaultDistributorServerConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate validates the distributor server configuration
func (c *DistributorServerConfig) Validate() error {
	var allErrors field.ErrorList

	if c.Port < 1 || c.Port > 65535 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("port"), c.Port, "must be between 1-65535"))
	}
	if _, err := util.ParseAddress(c.TokenAddress); err != nil {
		allErrors = append(allErrors, field.Invalid(field.NewPath("tokenAddress"), c.TokenAddress, "must be a hex address: "+err.Error()))
	}
	if owner, err := util.ParseAddress(c.OwnerAddress); err != nil || owner == (common.Address{}) {
		allErrors = append(allErrors, field.Invalid(field.NewPath("ownerAddress"), c.OwnerAddress, "must be a non-zero hex address"))
	}
	if c.InitialRoot != "" && !isHash(c.InitialRoot) {
		allErrors = append(allErrors, field.Invalid(field.NewPath("initialRoot"), c.InitialRoot, "must be a 32 byte hex string"))
	}

	switch c.Ledger {
	case LedgerType_Memory:
		if _, err := util.ParseAddress(c.RegistryAddress); err != nil {
			allErrors = append(allErrors, field.Required(field.NewPath("registryAddress"), "registryAddress is required for the memory ledger"))
		}
	case LedgerType_ERC20:
		allErrors = append(allErrors, c.Chain.validate(field.NewPath("chain"))...)
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("ledger"), c.Ledger,
			[]string{string(LedgerType_Memory), string(LedgerType_ERC20)}))
	}

	allErrors = append(allErrors, c.Persistence.validate(field.NewPath("persistence"))...)

	if c.ClaimRate <= 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("claimRate"), c.ClaimRate, "must be positive"))
	}
	if c.ClaimBurst < 1 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("claimBurst"), c.ClaimBurst, "must be at least 1"))
	}
	if c.SignatureMaxAge <= 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("signatureMaxAge"), c.SignatureMaxAge.String(), "must be positive"))
	}
	if c.TransferTimeout <= 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("transferTimeout"), c.TransferTimeout.String(), "must be positive"))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

func (cc *ChainConfig) validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList

	chainName, exists := ChainIdToName[cc.ChainID]
	if !exists {
		allErrors = append(allErrors, field.Invalid(path.Child("chainId"), cc.ChainID,
			fmt.Sprintf("unsupported chain ID. Supported: %s", GetSupportedChainIDsString())))
	} else {
		cc.ChainName = chainName
	}
	if cc.RpcUrl == "" {
		allErrors = append(allErrors, field.Required(path.Child("rpcUrl"), "rpcUrl is required for the erc20 ledger"))
	}
	if cc.SignerPrivateKey == "" {
		allErrors = append(allErrors, field.Required(path.Child("signerPrivateKey"), "signerPrivateKey is required for the erc20 ledger"))
	} else if key := strings.TrimPrefix(cc.SignerPrivateKey, "0x"); len(key) != 64 {
		allErrors = append(allErrors, field.Invalid(path.Child("signerPrivateKey"), "<redacted>",
			fmt.Sprintf("must be 32 bytes (64 hex chars), got %d chars", len(key))))
	} else if _, err := util.DeriveAddressFromECDSAPrivateKeyString(key); err != nil {
		allErrors = append(allErrors, field.Invalid(path.Child("signerPrivateKey"), "<redacted>", "not a valid secp256k1 private key"))
	}
	return allErrors
}

func (pc *PersistenceConfig) validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList

	switch pc.Type {
	case PersistenceType_Memory:
	case PersistenceType_Badger:
		if pc.DataPath == "" {
			allErrors = append(allErrors, field.Required(path.Child("dataPath"), "dataPath is required for badger persistence"))
		}
	case PersistenceType_Redis:
		if pc.Redis.Address == "" {
			allErrors = append(allErrors, field.Required(path.Child("redis", "address"), "address is required for redis persistence"))
		}
		if pc.Redis.DB < 0 || pc.Redis.DB > 15 {
			allErrors = append(allErrors, field.Invalid(path.Child("redis", "db"), pc.Redis.DB, "must be between 0-15"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(path.Child("type"), pc.Type,
			[]string{string(PersistenceType_Memory), string(PersistenceType_Badger), string(PersistenceType_Redis)}))
	}
	return allErrors
}

func isHash(s string) bool {
	s = strings.TrimPrefix(s, "0x")
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}
