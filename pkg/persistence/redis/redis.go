package redis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence"
)

// Key names for namespacing in Redis
const (
	keyMeta              = "distributor:meta"
	keyClaimed           = "distributor:claimed" // hash: account -> amount (32 bytes)
	keyBlocked           = "distributor:blocked" // set of accounts
	keyEvents            = "distributor:events"  // hash: seq -> event JSON
	keyEventIndex        = "distributor:events:index"
	keySchemaVersion     = "distributor:metadata:schema_version"
	currentSchemaVersion = "v1"

	opTimeout = 5 * time.Second
)

// RedisPersistence is a production-ready persistence implementation using Redis.
// Provides durable, distributed storage suitable for cloud-native deployments.
type RedisPersistence struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	mu        sync.RWMutex
	closed    bool
}

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is an optional custom prefix for all keys, so several registries
	// can share one database. "airdrop1:" gives keys like "airdrop1:distributor:meta".
	KeyPrefix string
}

// NewRedisPersistence creates a new Redis-backed persistence layer.
func NewRedisPersistence(cfg *RedisConfig, logger *zap.Logger) (*RedisPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rp := &RedisPersistence{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rp.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis persistence initialized", "address", cfg.Address, "db", cfg.DB, "key_prefix", cfg.KeyPrefix)

	return rp, nil
}

// prefixKey adds the custom key prefix (if configured) to a key
func (r *RedisPersistence) prefixKey(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return r.keyPrefix + key
}

// initSchema initializes or validates the schema version
func (r *RedisPersistence) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if errors.Is(err, redis.Nil) {
		return r.client.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}

	return nil
}

func (r *RedisPersistence) LoadMeta() (*persistence.RegistryMeta, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.prefixKey(keyMeta)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load RegistryMeta: %w", err)
	}
	return persistence.UnmarshalMeta(data)
}

func (r *RedisPersistence) LoadClaimed(account common.Address) (*uint256.Int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	data, err := r.client.HGet(ctx, r.prefixKey(keyClaimed), account.Hex()).Bytes()
	if errors.Is(err, redis.Nil) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load claimed amount: %w", err)
	}
	return persistence.UnmarshalAmount(data)
}

func (r *RedisPersistence) IsBlocked(account common.Address) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return false, persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	blocked, err := r.client.SIsMember(ctx, r.prefixKey(keyBlocked), account.Hex()).Result()
	if err != nil {
		return false, fmt.Errorf("failed to load blocked flag: %w", err)
	}
	return blocked, nil
}

func (r *RedisPersistence) ListBlocked() ([]common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	members, err := r.client.SMembers(ctx, r.prefixKey(keyBlocked)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list blocked accounts: %w", err)
	}

	out := make([]common.Address, 0, len(members))
	for _, m := range members {
		if !common.IsHexAddress(m) {
			r.logger.Sugar().Warnw("Skipping malformed blocked account", "member", m)
			continue
		}
		out = append(out, common.HexToAddress(m))
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out, nil
}

// Apply sends the update as one MULTI/EXEC transaction.
func (r *RedisPersistence) Apply(update *persistence.StateUpdate) error {
	if update == nil {
		return fmt.Errorf("cannot apply nil StateUpdate")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	var metaData []byte
	if update.Meta != nil {
		data, err := persistence.MarshalMeta(update.Meta)
		if err != nil {
			return err
		}
		metaData = data
	}
	eventData := make([][]byte, len(update.Events))
	for i, e := range update.Events {
		data, err := persistence.MarshalEvent(e)
		if err != nil {
			return err
		}
		eventData[i] = data
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	claimedKey := r.prefixKey(keyClaimed)
	blockedKey := r.prefixKey(keyBlocked)
	eventsKey := r.prefixKey(keyEvents)
	indexKey := r.prefixKey(keyEventIndex)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if metaData != nil {
			pipe.Set(ctx, r.prefixKey(keyMeta), metaData, 0)
		}
		for account, amount := range update.Claimed {
			if amount == nil || amount.IsZero() {
				pipe.HDel(ctx, claimedKey, account.Hex())
				continue
			}
			pipe.HSet(ctx, claimedKey, account.Hex(), persistence.MarshalAmount(amount))
		}
		for account, blocked := range update.Blocked {
			if blocked {
				pipe.SAdd(ctx, blockedKey, account.Hex())
			} else {
				pipe.SRem(ctx, blockedKey, account.Hex())
			}
		}
		for _, seq := range update.DeleteEvents {
			field := strconv.FormatUint(seq, 10)
			pipe.HDel(ctx, eventsKey, field)
			pipe.ZRem(ctx, indexKey, field)
		}
		for i, e := range update.Events {
			field := strconv.FormatUint(e.Seq, 10)
			pipe.HSet(ctx, eventsKey, field, eventData[i])
			pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(e.Seq), Member: field})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to apply state update: %w", err)
	}
	return nil
}

func (r *RedisPersistence) ListEvents(after uint64, limit int) ([]*persistence.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	opt := &redis.ZRangeBy{
		Min: "(" + strconv.FormatUint(after, 10),
		Max: "+inf",
	}
	if limit > 0 {
		opt.Count = int64(limit)
	}
	fields, err := r.client.ZRangeByScore(ctx, r.prefixKey(keyEventIndex), opt).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list event sequence numbers: %w", err)
	}
	if len(fields) == 0 {
		return []*persistence.Event{}, nil
	}

	values, err := r.client.HMGet(ctx, r.prefixKey(keyEvents), fields...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}

	events := make([]*persistence.Event, 0, len(values))
	for i, val := range values {
		data, ok := val.(string)
		if !ok {
			r.logger.Sugar().Warnw("Event missing from store, skipping", "seq", fields[i])
			continue
		}
		e, err := persistence.UnmarshalEvent([]byte(data))
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal event, skipping", "seq", fields[i], "error", err)
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

func (r *RedisPersistence) LastEventSeq() (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return 0, persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	last, err := r.client.ZRevRange(ctx, r.prefixKey(keyEventIndex), 0, 0).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read last event sequence: %w", err)
	}
	if len(last) == 0 {
		return 0, nil
	}
	return strconv.ParseUint(last[0], 10, 64)
}

// Close shuts down the persistence layer
func (r *RedisPersistence) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (r *RedisPersistence) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	_, err := r.client.Get(ctx, r.prefixKey(keySchemaVersion)).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("schema version not found - database may not be properly initialized")
	}
	if err != nil {
		return fmt.Errorf("failed to verify schema version: %w", err)
	}

	return nil
}
