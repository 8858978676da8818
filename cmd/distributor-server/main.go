package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/balancemap"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/config"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/logger"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/metrics"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence"
	badgerPersistence "github.com/Layr-Labs/merkle-distributor-go/pkg/persistence/badger"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence/memory"
	redisPersistence "github.com/Layr-Labs/merkle-distributor-go/pkg/persistence/redis"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/registry"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/registry/server"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/token"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/transactionSigner"
)

func main() {
	app := &cli.App{
		Name:  "distributor-server",
		Usage: "Merkle airdrop claim registry server",
		Description: `Hosts a claim registry for one token distribution and serves it over HTTP.

Claimants present an inclusion proof for (index, account, amount) against the
current Merkle root and are paid from the registry's token balance. The owner
can replace the root, pause claims, block accounts and withdraw tokens.

Tokens are held either by an in-memory ledger (development) or by a deployed
ERC-20 reached over JSON-RPC, in which case the signer key is the registry's
account.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file; flags override its values",
				EnvVars: []string{config.EnvDistributorConfigFile},
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   config.DefaultPort,
				Usage:   "HTTP server port",
				EnvVars: []string{config.EnvDistributorPort},
			},
			&cli.StringFlag{
				Name:    "token-address",
				Aliases: []string{"token"},
				Usage:   "Address of the distributed token",
				EnvVars: []string{config.EnvDistributorTokenAddress},
			},
			&cli.StringFlag{
				Name:    "owner-address",
				Aliases: []string{"owner"},
				Usage:   "Initial owner of the registry",
				EnvVars: []string{config.EnvDistributorOwnerAddress},
			},
			&cli.StringFlag{
				Name:    "initial-root",
				Aliases: []string{"root"},
				Usage:   "Initial Merkle root (32 byte hex). Ignored when resuming persisted state",
				EnvVars: []string{config.EnvDistributorInitialRoot},
			},
			&cli.StringFlag{
				Name:    "ledger",
				Value:   string(config.LedgerType_Memory),
				Usage:   "Token ledger: memory or erc20",
				EnvVars: []string{config.EnvDistributorLedgerType},
			},
			&cli.StringFlag{
				Name:    "registry-address",
				Usage:   "Registry account on the memory ledger",
				EnvVars: []string{config.EnvDistributorRegistryAddress},
			},
			&cli.StringFlag{
				Name:    "token-supply",
				Usage:   "Supply minted to the owner on the memory ledger (hex or decimal)",
				EnvVars: []string{config.EnvDistributorTokenSupply},
			},
			&cli.StringFlag{
				Name:    "funding",
				Usage:   "Amount moved from the owner to the registry on the memory ledger (hex or decimal)",
				EnvVars: []string{config.EnvDistributorFunding},
			},
			&cli.Uint64Flag{
				Name:    "chain-id",
				Aliases: []string{"chain"},
				Usage:   fmt.Sprintf("Ethereum chain ID for the erc20 ledger: %s", config.GetSupportedChainIDsString()),
				EnvVars: []string{config.EnvDistributorChainID},
			},
			&cli.StringFlag{
				Name:    "rpc-url",
				Aliases: []string{"rpc"},
				Usage:   "Ethereum RPC endpoint URL for the erc20 ledger",
				EnvVars: []string{config.EnvDistributorRPCURL},
			},
			&cli.StringFlag{
				Name:    "signer-private-key",
				Usage:   "ECDSA key (hex) that holds the distributed tokens on the erc20 ledger",
				EnvVars: []string{config.EnvDistributorSignerKey},
			},
			&cli.StringFlag{
				Name:    "persistence-type",
				Value:   string(config.PersistenceType_Memory),
				Usage:   "Persistence backend: memory, badger or redis",
				EnvVars: []string{config.EnvDistributorPersistenceType},
			},
			&cli.StringFlag{
				Name:    "data-path",
				Usage:   "Badger data directory",
				EnvVars: []string{config.EnvDistributorDataPath},
			},
			&cli.StringFlag{
				Name:    "redis-address",
				Usage:   "Redis address (host:port)",
				EnvVars: []string{config.EnvDistributorRedisAddress},
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				EnvVars: []string{config.EnvDistributorRedisPassword},
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "Redis database number",
				EnvVars: []string{config.EnvDistributorRedisDB},
			},
			&cli.StringFlag{
				Name:    "redis-key-prefix",
				Usage:   "Prefix for every redis key",
				EnvVars: []string{config.EnvDistributorRedisKeyPrefix},
			},
			&cli.Float64Flag{
				Name:    "claim-rate",
				Value:   config.DefaultClaimRate,
				Usage:   "Sustained claim requests per second per caller",
				EnvVars: []string{config.EnvDistributorClaimRate},
			},
			&cli.IntFlag{
				Name:    "claim-burst",
				Value:   config.DefaultClaimBurst,
				Usage:   "Claim request burst per caller",
				EnvVars: []string{config.EnvDistributorClaimBurst},
			},
			&cli.DurationFlag{
				Name:    "signature-max-age",
				Value:   config.DefaultSignatureMaxAge,
				Usage:   "Maximum clock skew accepted for signed requests",
				EnvVars: []string{config.EnvDistributorSignatureMaxAge},
			},
			&cli.DurationFlag{
				Name:    "transfer-timeout",
				Value:   config.DefaultTransferTimeout,
				Usage:   "Maximum time a single token transfer may take",
				EnvVars: []string{config.EnvDistributorTransferTimeout},
			},
			&cli.StringFlag{
				Name:    "log-file",
				Usage:   "Also write logs to this file, rotated by size",
				EnvVars: []string{config.EnvDistributorLogFile},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvDistributorVerbose},
			},
		},
		Action: runDistributorServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func runDistributorServer(c *cli.Context) error {
	cfg, err := parseDistributorConfig(c)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug, File: cfg.LogFile})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := newPersistence(&cfg.Persistence, l)
	if err != nil {
		return fmt.Errorf("failed to create persistence: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			l.Sugar().Warnw("Failed to close persistence", "error", err)
		}
	}()

	ledger, registryAddress, err := newTokenLedger(ctx, cfg, l)
	if err != nil {
		return fmt.Errorf("failed to create token ledger: %w", err)
	}

	var initialRoot common.Hash
	if cfg.InitialRoot != "" {
		initialRoot = common.HexToHash(cfg.InitialRoot)
	}
	reg, err := registry.New(&registry.Config{
		Address:         registryAddress,
		Token:           common.HexToAddress(cfg.TokenAddress),
		Owner:           common.HexToAddress(cfg.OwnerAddress),
		InitialRoot:     initialRoot,
		TransferTimeout: cfg.TransferTimeout,
	}, ledger, store, l)
	if err != nil {
		return fmt.Errorf("failed to open claim registry: %w", err)
	}

	if cfg.Verbose {
		l.Sugar().Infow("Distributor Server Configuration",
			"port", cfg.Port,
			"ledger", cfg.Ledger,
			"persistence", cfg.Persistence.Type,
			"claim_rate", cfg.ClaimRate,
			"claim_burst", cfg.ClaimBurst,
			"signature_max_age", cfg.SignatureMaxAge,
		)
	}

	srv := server.NewServer(reg, store, metrics.New(), server.Config{
		Port:            cfg.Port,
		ClaimRate:       cfg.ClaimRate,
		ClaimBurst:      cfg.ClaimBurst,
		SignatureMaxAge: cfg.SignatureMaxAge,
	}, l)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	l.Sugar().Infow("Distributor Server running",
		"registry", reg.Address().Hex(),
		"token", reg.Token().Hex(),
		"owner", reg.Owner().Hex(),
		"root", reg.Root().Hex(),
		"port", cfg.Port,
	)
	l.Sugar().Info("Press Ctrl+C to stop")

	<-ctx.Done()
	l.Sugar().Infow("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

// parseDistributorConfig loads the optional config file, then applies every
// flag or environment variable that was explicitly set.
func parseDistributorConfig(c *cli.Context) (*config.DistributorServerConfig, error) {
	cfg, err := config.LoadDistributorServerConfig(c.String("config"))
	if err != nil {
		return nil, err
	}

	setString := func(name string, dst *string) {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	setString("token-address", &cfg.TokenAddress)
	setString("owner-address", &cfg.OwnerAddress)
	setString("initial-root", &cfg.InitialRoot)
	setString("registry-address", &cfg.RegistryAddress)
	setString("token-supply", &cfg.TokenSupply)
	setString("funding", &cfg.Funding)
	setString("rpc-url", &cfg.Chain.RpcUrl)
	setString("signer-private-key", &cfg.Chain.SignerPrivateKey)
	setString("data-path", &cfg.Persistence.DataPath)
	setString("redis-address", &cfg.Persistence.Redis.Address)
	setString("redis-password", &cfg.Persistence.Redis.Password)
	setString("redis-key-prefix", &cfg.Persistence.Redis.KeyPrefix)
	setString("log-file", &cfg.LogFile)

	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}
	if c.IsSet("ledger") {
		cfg.Ledger = config.LedgerType(c.String("ledger"))
	}
	if c.IsSet("chain-id") {
		cfg.Chain.ChainID = config.ChainId(c.Uint64("chain-id"))
	}
	if c.IsSet("persistence-type") {
		cfg.Persistence.Type = config.PersistenceType(c.String("persistence-type"))
	}
	if c.IsSet("redis-db") {
		cfg.Persistence.Redis.DB = c.Int("redis-db")
	}
	if c.IsSet("claim-rate") {
		cfg.ClaimRate = c.Float64("claim-rate")
	}
	if c.IsSet("claim-burst") {
		cfg.ClaimBurst = c.Int("claim-burst")
	}
	if c.IsSet("signature-max-age") {
		cfg.SignatureMaxAge = c.Duration("signature-max-age")
	}
	if c.IsSet("transfer-timeout") {
		cfg.TransferTimeout = c.Duration("transfer-timeout")
	}
	if c.IsSet("verbose") {
		cfg.Debug = c.Bool("verbose")
		cfg.Verbose = c.Bool("verbose")
	}
	return cfg, nil
}

func newPersistence(cfg *config.PersistenceConfig, l *zap.Logger) (persistence.IRegistryPersistence, error) {
	switch cfg.Type {
	case config.PersistenceType_Badger:
		return badgerPersistence.NewBadgerPersistence(cfg.DataPath, l)
	case config.PersistenceType_Redis:
		return redisPersistence.NewRedisPersistence(&redisPersistence.RedisConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, l)
	default:
		return memory.NewMemoryPersistence(), nil
	}
}

// newTokenLedger returns the ledger the registry pays from and the registry's
// own account on it.
func newTokenLedger(ctx context.Context, cfg *config.DistributorServerConfig, l *zap.Logger) (token.TokenLedger, common.Address, error) {
	if cfg.Ledger == config.LedgerType_ERC20 {
		return newERC20Ledger(ctx, cfg, l)
	}

	owner := common.HexToAddress(cfg.OwnerAddress)
	registryAddress := common.HexToAddress(cfg.RegistryAddress)

	funding := new(uint256.Int)
	if cfg.Funding != "" {
		v, err := balancemap.ParseAmount(cfg.Funding)
		if err != nil {
			return nil, common.Address{}, fmt.Errorf("invalid funding: %w", err)
		}
		funding = v
	}
	supply := funding.Clone()
	if cfg.TokenSupply != "" {
		v, err := balancemap.ParseAmount(cfg.TokenSupply)
		if err != nil {
			return nil, common.Address{}, fmt.Errorf("invalid token supply: %w", err)
		}
		supply = v
	}

	ledger := token.NewLedger(owner, supply, l)
	if !funding.IsZero() {
		if err := ledger.TransferFrom(owner, registryAddress, funding); err != nil {
			return nil, common.Address{}, fmt.Errorf("failed to fund registry: %w", err)
		}
	}
	l.Sugar().Infow("Using in-memory token ledger",
		"supply", supply.Dec(),
		"funding", funding.Dec(),
		"registry", registryAddress.Hex(),
	)
	return ledger.Account(registryAddress), registryAddress, nil
}

func newERC20Ledger(ctx context.Context, cfg *config.DistributorServerConfig, l *zap.Logger) (token.TokenLedger, common.Address, error) {
	client, err := ethclient.DialContext(ctx, cfg.Chain.RpcUrl)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("failed to dial %s: %w", cfg.Chain.RpcUrl, err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("failed to get chain ID: %w", err)
	}
	if chainID.Uint64() != uint64(cfg.Chain.ChainID) {
		return nil, common.Address{}, fmt.Errorf("rpc endpoint serves chain %s, configured chain is %d", chainID, cfg.Chain.ChainID)
	}

	signer, err := transactionSigner.NewTransactionSigner(&transactionSigner.SignerConfig{
		PrivateKey: cfg.Chain.SignerPrivateKey,
	}, client, l)
	if err != nil {
		return nil, common.Address{}, err
	}

	erc20 := token.NewERC20(common.HexToAddress(cfg.TokenAddress), client, signer, l)
	l.Sugar().Infow("Using chain", "name", cfg.Chain.ChainName, "chain_id", cfg.Chain.ChainID, "registry", signer.GetFromAddress().Hex())
	return erc20, signer.GetFromAddress(), nil
}
